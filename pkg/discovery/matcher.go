package discovery

import (
	"sort"
	"strings"
)

// minTokenLength drops noise words when matching task text to skills.
const minTokenLength = 3

// AgentMatch is one candidate agent for a task.
type AgentMatch struct {
	AgentURL       string   `json:"agentUrl"`
	AgentName      string   `json:"agentName"`
	MatchingSkills []string `json:"matchingSkills"`
	Score          int      `json:"score"`
}

// Matcher finds agents for tasks and skills over the registry.
type Matcher struct {
	registry *Registry
}

// NewMatcher creates a matcher over the registry.
func NewMatcher(registry *Registry) *Matcher {
	return &Matcher{registry: registry}
}

// FindAgentsForTask scores healthy agents against the task text. A skill
// counts when at least one text token appears in its id, name,
// description, or tags.
func (m *Matcher) FindAgentsForTask(text string) []AgentMatch {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	var matches []AgentMatch
	for _, entry := range m.registry.List(ListFilters{HealthyOnly: true}) {
		if entry.Card == nil {
			continue
		}
		match := AgentMatch{AgentURL: entry.URL, AgentName: entry.Card.Name}
		for _, skill := range entry.Card.Skills {
			haystack := strings.ToLower(skill.ID + " " + skill.Name + " " + skill.Description + " " + strings.Join(skill.Tags, " "))
			hits := 0
			for _, token := range tokens {
				if strings.Contains(haystack, token) {
					hits++
				}
			}
			if hits > 0 {
				match.MatchingSkills = append(match.MatchingSkills, skill.ID)
				match.Score += hits
			}
		}
		if match.Score > 0 {
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

// FindAgentForSkill returns every healthy agent advertising the exact
// skill id.
func (m *Matcher) FindAgentForSkill(skillID string) []Entry {
	return m.registry.List(ListFilters{SkillID: skillID, HealthyOnly: true})
}

// ComplementaryAgent pairs an agent with the skills it has that we lack.
type ComplementaryAgent struct {
	Entry           Entry    `json:"agent"`
	ExclusiveSkills []string `json:"exclusiveSkills"`
}

// FindComplementaryAgents returns agents offering skills outside
// mySkillIDs, sorted by how many such skills they bring.
func (m *Matcher) FindComplementaryAgents(mySkillIDs []string) []ComplementaryAgent {
	mine := make(map[string]struct{}, len(mySkillIDs))
	for _, id := range mySkillIDs {
		mine[id] = struct{}{}
	}

	var out []ComplementaryAgent
	for _, entry := range m.registry.List(ListFilters{HealthyOnly: true}) {
		if entry.Card == nil {
			continue
		}
		var exclusive []string
		for _, skill := range entry.Card.Skills {
			if _, ok := mine[skill.ID]; !ok {
				exclusive = append(exclusive, skill.ID)
			}
		}
		if len(exclusive) > 0 {
			out = append(out, ComplementaryAgent{Entry: entry, ExclusiveSkills: exclusive})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].ExclusiveSkills) > len(out[j].ExclusiveSkills)
	})
	return out
}

func tokenize(text string) []string {
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(text)) {
		token := strings.Trim(field, ".,!?:;\"'()")
		if len(token) >= minTokenLength {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
