// Package card composes and serves this agent's public identity document
// and fetches remote agents' cards.
package card

import (
	"strings"
	"sync"
	"time"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/skills"
)

// CacheTTL is how long a composed or fetched card stays valid.
const CacheTTL = 5 * time.Minute

// Options describe the agent identity the card advertises.
type Options struct {
	Name        string
	Description string
	BaseURL     string
	Version     string

	Streaming              bool
	PushNotifications      bool
	StateTransitionHistory bool

	AuthSchemes    []string
	CredentialsURL string

	Provider *a2a.AgentProvider

	// CategoryFilter restricts the advertised skills to one category.
	// Empty means all skills.
	CategoryFilter string
}

// Service composes the agent card from options and the live skill
// catalog, caching the result for CacheTTL.
type Service struct {
	opts     Options
	registry *skills.Registry

	mu       sync.Mutex
	cached   *a2a.AgentCard
	cachedAt time.Time
}

// NewService creates a card service over the skill registry.
func NewService(opts Options, registry *skills.Registry) *Service {
	return &Service{opts: opts, registry: registry}
}

// Card returns the composed card, regenerating when the cache expired.
func (s *Service) Card() (*a2a.AgentCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && time.Since(s.cachedAt) < CacheTTL {
		return s.cached, nil
	}

	card, err := s.compose()
	if err != nil {
		return nil, err
	}
	s.cached = card
	s.cachedAt = time.Now()
	return card, nil
}

// Refresh drops the cached card so the next Card call recomposes it.
func (s *Service) Refresh() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Service) compose() (*a2a.AgentCard, error) {
	var skillList []a2a.Skill
	for _, skill := range s.registry.All() {
		if s.opts.CategoryFilter != "" && skills.CategoryOf(strings.TrimPrefix(skill.ID, skills.Namespace)) != s.opts.CategoryFilter {
			continue
		}
		skillList = append(skillList, skill)
	}

	schemes := s.opts.AuthSchemes
	if schemes == nil {
		schemes = []string{}
	}

	card := &a2a.AgentCard{
		Name:        s.opts.Name,
		Description: s.opts.Description,
		URL:         s.opts.BaseURL,
		Version:     s.opts.Version,
		Capabilities: a2a.AgentCapabilities{
			Streaming:              s.opts.Streaming,
			PushNotifications:      s.opts.PushNotifications,
			StateTransitionHistory: s.opts.StateTransitionHistory,
		},
		Skills: skillList,
		Authentication: a2a.Authentication{
			Schemes:     schemes,
			Credentials: s.opts.CredentialsURL,
		},
		DefaultInputModes:  []string{"text/plain", "application/json"},
		DefaultOutputModes: []string{"application/json"},
		Provider:           s.opts.Provider,
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	return card, nil
}

// MinimalCard is the ?format=minimal projection.
type MinimalCard struct {
	Name         string                `json:"name"`
	URL          string                `json:"url"`
	Version      string                `json:"version"`
	SkillCount   int                   `json:"skillCount"`
	SkillIDs     []string              `json:"skillIds"`
	Capabilities a2a.AgentCapabilities `json:"capabilities"`
	Provider     *a2a.AgentProvider    `json:"provider,omitempty"`
}

// Minimal returns the compact card projection.
func (s *Service) Minimal() (*MinimalCard, error) {
	card, err := s.Card()
	if err != nil {
		return nil, err
	}
	return &MinimalCard{
		Name:         card.Name,
		URL:          card.URL,
		Version:      card.Version,
		SkillCount:   len(card.Skills),
		SkillIDs:     card.SkillIDs(),
		Capabilities: card.Capabilities,
		Provider:     card.Provider,
	}, nil
}
