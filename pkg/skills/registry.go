// Package skills projects the XActions tool catalog into A2A skills and
// answers catalog queries: lookup by id, text/tag search, category
// grouping.
package skills

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/xactions/xactions-a2a/pkg/a2a"
)

// Namespace prefixes every skill id.
const Namespace = "xactions."

// PrimaryPlatform is always advertised; the others are appended when the
// tool mentions them.
const PrimaryPlatform = "twitter"

var secondaryPlatforms = []string{"bluesky", "mastodon", "threads"}

// categoryPatterns maps a category to the tool-name prefixes (or
// substrings) that select it. Order matters: first match wins.
var categoryPatterns = []struct {
	category string
	patterns []string
}{
	{"scraping", []string{"x_get_", "x_scrape_", "x_search_"}},
	{"posting", []string{"x_post_", "x_reply", "x_retweet", "x_like_", "x_send_"}},
	{"engagement", []string{"x_follow_", "x_unfollow_"}},
	{"analytics", []string{"x_analyze_", "x_compare_", "x_trends"}},
	{"workflow", []string{"x_workflow"}},
}

// CategoryOther collects tools matching no pattern.
const CategoryOther = "other"

// Registry is the canonical skill catalog. It is rebuilt from its loaders
// on Refresh and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	loaders []CatalogLoader
	skills  []a2a.Skill
	byID    map[string]a2a.Skill
}

// NewRegistry builds a registry from the given loaders and performs the
// initial load. With no loaders the base catalog is used alone.
func NewRegistry(loaders ...CatalogLoader) *Registry {
	if len(loaders) == 0 {
		loaders = []CatalogLoader{BaseCatalog()}
	}
	r := &Registry{loaders: loaders}
	r.Refresh()
	return r
}

// Refresh rebuilds the catalog from all loaders.
func (r *Registry) Refresh() {
	var skills []a2a.Skill
	byID := make(map[string]a2a.Skill)
	for _, loader := range r.loaders {
		for _, tool := range loader.LoadTools() {
			skill := ConvertTool(tool)
			if _, dup := byID[skill.ID]; dup {
				continue
			}
			byID[skill.ID] = skill
			skills = append(skills, skill)
		}
	}

	r.mu.Lock()
	r.skills = skills
	r.byID = byID
	r.mu.Unlock()
}

// All returns every skill in catalog order.
func (r *Registry) All() []a2a.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]a2a.Skill, len(r.skills))
	copy(out, r.skills)
	return out
}

// Get returns the skill with the exact id.
func (r *Registry) Get(id string) (a2a.Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skill, ok := r.byID[id]
	return skill, ok
}

// Count returns the number of skills.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// Categories groups skills by inferred category.
func (r *Registry) Categories() map[string][]a2a.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]a2a.Skill)
	for _, skill := range r.skills {
		cat := CategoryOf(strings.TrimPrefix(skill.ID, Namespace))
		out[cat] = append(out[cat], skill)
	}
	return out
}

// Search matches skills by case-insensitive substring on id, name, and
// description, and by OR over tags. Empty query and empty tags match
// everything.
func (r *Registry) Search(query string, tags []string) []a2a.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))

	var out []a2a.Skill
	for _, skill := range r.skills {
		if query != "" {
			haystack := strings.ToLower(skill.ID + " " + skill.Name + " " + skill.Description)
			if !strings.Contains(haystack, query) {
				continue
			}
		}
		if len(tags) > 0 {
			matched := false
			for _, tag := range tags {
				if skill.HasTag(tag) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, skill)
	}
	return out
}

// ============================================================================
// MCP TOOL -> A2A SKILL CONVERSION
// ============================================================================

// ConvertTool converts an MCP tool descriptor to an A2A skill: namespaced
// id, title-cased display name, tags from name tokens plus inferred
// category and platforms.
func ConvertTool(tool mcp.Tool) a2a.Skill {
	tokens := nameTokens(tool.Name)
	category := CategoryOf(tool.Name)
	platforms := platformsOf(tool)

	tags := make([]string, 0, len(tokens)+1+len(platforms))
	tags = append(tags, tokens...)
	tags = append(tags, category)
	tags = append(tags, platforms...)

	return a2a.Skill{
		ID:          Namespace + tool.Name,
		Name:        displayName(tokens),
		Description: tool.Description,
		Tags:        dedupe(tags),
		InputSchema: schemaMap(tool.InputSchema),
		OutputSchema: map[string]any{
			"type": "object",
		},
	}
}

// CategoryOf infers the category from the tool name. First matching
// pattern wins; unmatched tools fall into CategoryOther.
func CategoryOf(toolName string) string {
	for _, entry := range categoryPatterns {
		for _, pattern := range entry.patterns {
			if strings.Contains(toolName, pattern) {
				return entry.category
			}
		}
	}
	return CategoryOther
}

// platformsOf always includes the primary platform and appends secondary
// platforms mentioned in the description or input schema.
func platformsOf(tool mcp.Tool) []string {
	platforms := []string{PrimaryPlatform}

	var schemaText string
	if data, err := json.Marshal(tool.InputSchema); err == nil {
		schemaText = string(data)
	}
	haystack := strings.ToLower(tool.Description + " " + schemaText)

	for _, p := range secondaryPlatforms {
		if strings.Contains(haystack, p) {
			platforms = append(platforms, p)
		}
	}
	return platforms
}

// nameTokens splits a tool name into its tokens, dropping a leading "x"
// from the x_ prefix.
func nameTokens(name string) []string {
	parts := strings.Split(name, "_")
	var tokens []string
	for i, p := range parts {
		if p == "" || (i == 0 && p == "x") {
			continue
		}
		tokens = append(tokens, strings.ToLower(p))
	}
	return tokens
}

// displayName title-cases the tokens: "get_profile" -> "Get Profile".
func displayName(tokens []string) string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		if tok == "" {
			continue
		}
		out[i] = strings.ToUpper(tok[:1]) + tok[1:]
	}
	return strings.Join(out, " ")
}

func schemaMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// SortedCategoryNames returns category names in stable order, for
// deterministic listings.
func SortedCategoryNames(categories map[string][]a2a.Skill) []string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
