package a2a

import (
	"fmt"
	"strings"
)

// ============================================================================
// AGENT CARD - Identity & Capability Advertisement
// Served at /.well-known/agent.json
// ============================================================================

// AgentCard is the public identity document of an agent.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	URL                string            `json:"url"`
	Version            string            `json:"version"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	Skills             []Skill           `json:"skills"`
	Authentication     Authentication    `json:"authentication"`
	DefaultInputModes  []string          `json:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes"`
	Provider           *AgentProvider    `json:"provider,omitempty"`
}

// AgentCapabilities is the card's capability flag block.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// Authentication describes how callers authenticate to the agent.
type Authentication struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitempty"` // issuance URL
}

// AgentProvider identifies who operates the agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitempty"`
}

// Skill is a single advertised capability.
type Skill struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Tags         []string       `json:"tags,omitempty"`
	InputSchema  map[string]any `json:"inputSchema,omitempty"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
}

// HasTag reports whether the skill carries the given tag (case-insensitive).
func (s Skill) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Validate checks the card invariants: name/url/version non-empty, every
// skill has a non-empty id and name, and the authentication scheme list is
// present.
func (c *AgentCard) Validate() error {
	if c == nil {
		return fmt.Errorf("agent card is nil")
	}
	if c.Name == "" {
		return fmt.Errorf("agent card missing name")
	}
	if c.URL == "" {
		return fmt.Errorf("agent card missing url")
	}
	if c.Version == "" {
		return fmt.Errorf("agent card missing version")
	}
	for i, skill := range c.Skills {
		if skill.ID == "" {
			return fmt.Errorf("skill %d has empty id", i)
		}
		if skill.Name == "" {
			return fmt.Errorf("skill %q has empty name", skill.ID)
		}
	}
	if c.Authentication.Schemes == nil {
		return fmt.Errorf("agent card missing authentication schemes")
	}
	return nil
}

// SkillIDs returns the ids of every advertised skill.
func (c *AgentCard) SkillIDs() []string {
	ids := make([]string, len(c.Skills))
	for i, s := range c.Skills {
		ids[i] = s.ID
	}
	return ids
}

// HasSkill reports whether the card advertises the exact skill id.
func (c *AgentCard) HasSkill(id string) bool {
	for _, s := range c.Skills {
		if s.ID == id {
			return true
		}
	}
	return false
}

// ============================================================================
// CARD DIFF - for monitoring remote agents across refreshes
// ============================================================================

// FieldChange records one changed top-level card field.
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// CardDiff summarizes the difference between two cards.
type CardDiff struct {
	Added   []string      `json:"added"`   // skill ids present only in b
	Removed []string      `json:"removed"` // skill ids present only in a
	Changed []FieldChange `json:"changed"`
}

// Empty reports whether the diff carries no changes.
func (d CardDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffCards compares two cards: skill ids added/removed and changed scalar
// fields.
func DiffCards(a, b *AgentCard) CardDiff {
	diff := CardDiff{Added: []string{}, Removed: []string{}}

	aSkills := make(map[string]bool)
	for _, s := range a.Skills {
		aSkills[s.ID] = true
	}
	bSkills := make(map[string]bool)
	for _, s := range b.Skills {
		bSkills[s.ID] = true
	}
	// Iterate the card slices, not the maps, so the diff is stable
	// across calls.
	for _, s := range b.Skills {
		if !aSkills[s.ID] {
			diff.Added = append(diff.Added, s.ID)
		}
	}
	for _, s := range a.Skills {
		if !bSkills[s.ID] {
			diff.Removed = append(diff.Removed, s.ID)
		}
	}

	fields := []struct {
		name string
		from string
		to   string
	}{
		{"name", a.Name, b.Name},
		{"description", a.Description, b.Description},
		{"url", a.URL, b.URL},
		{"version", a.Version, b.Version},
	}
	for _, f := range fields {
		if f.from != f.to {
			diff.Changed = append(diff.Changed, FieldChange{Field: f.name, From: f.from, To: f.to})
		}
	}

	return diff
}
