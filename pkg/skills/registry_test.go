package skills

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/xactions/xactions-a2a/pkg/a2a"
)

func TestConvertTool(t *testing.T) {
	tool := mcp.NewTool("x_get_profile",
		mcp.WithDescription("Fetch a public profile."),
		mcp.WithString("username", mcp.Required()),
	)
	skill := ConvertTool(tool)

	if skill.ID != "xactions.x_get_profile" {
		t.Errorf("ID = %q", skill.ID)
	}
	if skill.Name != "Get Profile" {
		t.Errorf("Name = %q", skill.Name)
	}
	if skill.Description != "Fetch a public profile." {
		t.Errorf("Description = %q", skill.Description)
	}
	if skill.InputSchema == nil {
		t.Error("InputSchema missing")
	}
	if skill.OutputSchema["type"] != "object" {
		t.Errorf("OutputSchema = %v", skill.OutputSchema)
	}

	wantTags := []string{"get", "profile", "scraping", "twitter"}
	for _, want := range wantTags {
		if !skill.HasTag(want) {
			t.Errorf("missing tag %q in %v", want, skill.Tags)
		}
	}
}

func TestConvertTool_SecondaryPlatforms(t *testing.T) {
	tool := mcp.NewTool("x_post_tweet",
		mcp.WithDescription("Post a tweet. Supports twitter, bluesky and mastodon targets."),
		mcp.WithString("text", mcp.Required()),
	)
	skill := ConvertTool(tool)

	for _, platform := range []string{"twitter", "bluesky", "mastodon"} {
		if !skill.HasTag(platform) {
			t.Errorf("missing platform tag %q in %v", platform, skill.Tags)
		}
	}
	if skill.HasTag("threads") {
		t.Error("threads should not be tagged, the tool never mentions it")
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		toolName string
		want     string
	}{
		{"x_get_profile", "scraping"},
		{"x_scrape_thread", "scraping"},
		{"x_search_tweets", "scraping"},
		{"x_post_tweet", "posting"},
		{"x_reply", "posting"},
		{"x_like_tweet", "posting"},
		{"x_send_dm", "posting"},
		{"x_follow_user", "engagement"},
		{"x_unfollow_user", "engagement"},
		{"x_analyze_sentiment", "analytics"},
		{"x_compare_profiles", "analytics"},
		{"x_get_trends", "scraping"}, // x_get_ wins before x_trends
		{"x_workflow_run", "workflow"},
		{"x_mystery_tool", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.toolName, func(t *testing.T) {
			if got := CategoryOf(tt.toolName); got != tt.want {
				t.Errorf("CategoryOf(%s) = %q, want %q", tt.toolName, got, tt.want)
			}
		})
	}
}

func TestRegistry_BaseCatalog(t *testing.T) {
	r := NewRegistry()
	if r.Count() == 0 {
		t.Fatal("base catalog should not be empty")
	}

	skill, ok := r.Get("xactions.x_get_profile")
	if !ok {
		t.Fatal("x_get_profile missing from base catalog")
	}
	if skill.Name != "Get Profile" {
		t.Errorf("Name = %q", skill.Name)
	}

	if _, ok := r.Get("x_get_profile"); ok {
		t.Error("lookup without namespace should miss")
	}
}

func TestRegistry_Search(t *testing.T) {
	r := NewRegistry()

	byQuery := r.Search("sentiment", nil)
	if len(byQuery) != 1 || byQuery[0].ID != "xactions.x_analyze_sentiment" {
		t.Errorf("Search(sentiment) = %v", skillIDs(byQuery))
	}

	byTag := r.Search("", []string{"engagement"})
	if len(byTag) == 0 {
		t.Error("Search by tag engagement found nothing")
	}
	for _, s := range byTag {
		if !s.HasTag("engagement") {
			t.Errorf("skill %s lacks the engagement tag", s.ID)
		}
	}

	everything := r.Search("", nil)
	if len(everything) != r.Count() {
		t.Errorf("empty search returned %d of %d", len(everything), r.Count())
	}

	if got := r.Search("no-such-skill-anywhere", nil); len(got) != 0 {
		t.Errorf("unexpected matches: %v", skillIDs(got))
	}
}

func TestRegistry_RefreshDedupes(t *testing.T) {
	dup := StaticCatalog{
		mcp.NewTool("x_get_profile", mcp.WithDescription("first")),
		mcp.NewTool("x_get_profile", mcp.WithDescription("second")),
	}
	r := NewRegistry(dup)

	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
	skill, _ := r.Get("xactions.x_get_profile")
	if skill.Description != "first" {
		t.Errorf("first loader should win, got %q", skill.Description)
	}
}

func TestRegistry_Categories(t *testing.T) {
	r := NewRegistry()
	categories := r.Categories()

	total := 0
	for _, group := range categories {
		total += len(group)
	}
	if total != r.Count() {
		t.Errorf("categorized %d of %d skills", total, r.Count())
	}

	names := SortedCategoryNames(categories)
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("category names not sorted: %v", names)
		}
	}
}

func skillIDs(skills []a2a.Skill) []string {
	ids := make([]string, len(skills))
	for i, s := range skills {
		ids[i] = s.ID
	}
	return ids
}
