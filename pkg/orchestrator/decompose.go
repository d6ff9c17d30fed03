package orchestrator

import (
	"regexp"
	"strings"
)

// pattern matches a description shape and expands it into steps.
type pattern struct {
	re     *regexp.Regexp
	expand func(m []string) []Step
}

// patterns is ordered; the first match wins.
var patterns = []pattern{
	{
		// "compare @alice and @bob"
		re: regexp.MustCompile(`(?i)compare\s+@(\w+)\s+(?:and|with|vs\.?|versus)\s+@(\w+)`),
		expand: func(m []string) []Step {
			return []Step{
				{
					Skill:  "xactions.x_get_profile",
					Params: map[string]any{"username": m[1]},
					Label:  "Fetch profile @" + m[1],
				},
				{
					Skill:  "xactions.x_get_profile",
					Params: map[string]any{"username": m[2]},
					Label:  "Fetch profile @" + m[2],
				},
				{
					Skill:  "xactions.x_compare_profiles",
					Params: map[string]any{"username_a": "$step1.username", "username_b": "$step2.username"},
					Label:  "Compare @" + m[1] + " and @" + m[2],
					Deps:   []string{"$step1", "$step2"},
				},
			}
		},
	},
	{
		// "analyze sentiment of @user" / "sentiment for @user"
		re: regexp.MustCompile(`(?i)(?:analyze\s+)?sentiment\s+(?:of|for)\s+@(\w+)`),
		expand: func(m []string) []Step {
			return []Step{{
				Skill:  "xactions.x_analyze_sentiment",
				Params: map[string]any{"target": "@" + m[1]},
				Label:  "Analyze sentiment of @" + m[1],
			}}
		},
	},
	{
		// "analyze engagement of @user"
		re: regexp.MustCompile(`(?i)(?:analyze\s+)?engagement\s+(?:of|for)\s+@(\w+)`),
		expand: func(m []string) []Step {
			return []Step{{
				Skill:  "xactions.x_analyze_engagement",
				Params: map[string]any{"username": m[1]},
				Label:  "Analyze engagement of @" + m[1],
			}}
		},
	},
	{
		// "scrape thread <url>"
		re: regexp.MustCompile(`(?i)(?:scrape\s+)?thread\s+(https?://\S+)`),
		expand: func(m []string) []Step {
			return []Step{{
				Skill:  "xactions.x_scrape_thread",
				Params: map[string]any{"url": m[1]},
				Label:  "Scrape thread",
			}}
		},
	},
	{
		// "search <query>" / "search for <query>"
		re: regexp.MustCompile(`(?i)^search\s+(?:for\s+)?(.+)$`),
		expand: func(m []string) []Step {
			return []Step{{
				Skill:  "xactions.x_search_tweets",
				Params: map[string]any{"query": strings.Trim(m[1], `"'`)},
				Label:  "Search tweets",
			}}
		},
	},
	{
		// "follow @user"
		re: regexp.MustCompile(`(?i)^follow\s+@(\w+)`),
		expand: func(m []string) []Step {
			return []Step{{
				Skill:  "xactions.x_follow_user",
				Params: map[string]any{"username": m[1]},
				Label:  "Follow @" + m[1],
			}}
		},
	},
	{
		// "unfollow @user"
		re: regexp.MustCompile(`(?i)^unfollow\s+@(\w+)`),
		expand: func(m []string) []Step {
			return []Step{{
				Skill:  "xactions.x_unfollow_user",
				Params: map[string]any{"username": m[1]},
				Label:  "Unfollow @" + m[1],
			}}
		},
	},
	{
		// "get profile of @user" / "profile @user"
		re: regexp.MustCompile(`(?i)(?:get\s+)?profile\s+(?:of\s+)?@(\w+)`),
		expand: func(m []string) []Step {
			return []Step{{
				Skill:  "xactions.x_get_profile",
				Params: map[string]any{"username": m[1]},
				Label:  "Fetch profile @" + m[1],
			}}
		},
	},
	{
		// "trending" / "trends"
		re: regexp.MustCompile(`(?i)\btrend(?:s|ing)?\b`),
		expand: func(m []string) []Step {
			return []Step{{
				Skill:  "xactions.x_get_trends",
				Params: map[string]any{},
				Label:  "Fetch trends",
			}}
		},
	},
}

// Decompose expands a description into steps. Descriptions matching no
// pattern become a single natural-language step.
func Decompose(description string) []Step {
	text := strings.TrimSpace(description)
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			return p.expand(m)
		}
	}
	return []Step{{
		Params: map[string]any{"text": text},
		Label:  "Natural-language task",
	}}
}
