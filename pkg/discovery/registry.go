// Package discovery maintains the persistent registry of remote agents,
// matches tasks to agents by skill, and scores agents by interaction
// history.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/auth"
	"github.com/xactions/xactions-a2a/pkg/card"
	"github.com/xactions/xactions-a2a/pkg/storage"
)

// RefreshInterval is the auto-refresh cadence.
const RefreshInterval = 5 * time.Minute

// HealthTimeout bounds a health probe.
const HealthTimeout = 5 * time.Second

// Entry is one registered remote agent.
type Entry struct {
	URL          string         `json:"url"`
	Card         *a2a.AgentCard `json:"card"`
	RegisteredAt time.Time      `json:"registeredAt"`
	LastHealthy  time.Time      `json:"lastHealthy"`
	Healthy      bool           `json:"healthy"`
}

// ListFilters narrow a registry listing. Zero values mean no filter.
type ListFilters struct {
	SkillID     string
	Tag         string
	HealthyOnly bool
	Provider    string // substring match on provider organization
}

// Registry persists remote agents and keeps their cards fresh.
type Registry struct {
	fetcher *card.Fetcher
	creds   *auth.CredentialStore
	repo    storage.Repository[map[string]Entry]
	client  *http.Client

	mu      sync.Mutex
	entries map[string]Entry
}

// NewRegistry loads persisted entries. creds may be nil when no outbound
// credentials are configured.
func NewRegistry(repo storage.Repository[map[string]Entry], fetcher *card.Fetcher, creds *auth.CredentialStore) (*Registry, error) {
	entries, err := repo.Load()
	if err != nil {
		return nil, fmt.Errorf("load agent registry: %w", err)
	}
	if entries == nil {
		entries = make(map[string]Entry)
	}
	return &Registry{
		fetcher: fetcher,
		creds:   creds,
		repo:    repo,
		client:  &http.Client{Timeout: HealthTimeout},
		entries: entries,
	}, nil
}

// Register fetches and validates the agent's card, then stores the
// entry. A fetch or validation failure refuses the registration.
func (r *Registry) Register(ctx context.Context, agentURL string) (*Entry, error) {
	base := normalizeURL(agentURL)
	agentCard, err := r.fetcher.Fetch(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", base, err)
	}

	now := time.Now().UTC()
	entry := Entry{
		URL:          base,
		Card:         agentCard,
		RegisteredAt: now,
		LastHealthy:  now,
		Healthy:      true,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[base]; ok {
		entry.RegisteredAt = existing.RegisteredAt
	}
	r.entries[base] = entry
	if err := r.persist(); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Unregister removes the agent.
func (r *Registry) Unregister(agentURL string) error {
	base := normalizeURL(agentURL)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[base]; !ok {
		return fmt.Errorf("agent %s not registered", base)
	}
	delete(r.entries, base)
	return r.persist()
}

// Get returns the entry for the agent URL.
func (r *Registry) Get(agentURL string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[normalizeURL(agentURL)]
	if !ok {
		return nil, false
	}
	return &entry, true
}

// List returns entries matching the filters, sorted by URL for stable
// output.
func (r *Registry) List(filters ListFilters) []Entry {
	r.mu.Lock()
	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	var out []Entry
	for _, e := range entries {
		if filters.HealthyOnly && !e.Healthy {
			continue
		}
		if filters.SkillID != "" && (e.Card == nil || !e.Card.HasSkill(filters.SkillID)) {
			continue
		}
		if filters.Tag != "" && !hasTag(e.Card, filters.Tag) {
			continue
		}
		if filters.Provider != "" && !hasProvider(e.Card, filters.Provider) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Refresh refetches the card for one agent, or all agents when agentURL
// is empty. A failed fetch marks the entry unhealthy but keeps it.
func (r *Registry) Refresh(ctx context.Context, agentURL string) {
	var urls []string
	if agentURL != "" {
		urls = []string{normalizeURL(agentURL)}
	} else {
		r.mu.Lock()
		for u := range r.entries {
			urls = append(urls, u)
		}
		r.mu.Unlock()
	}

	for _, u := range urls {
		r.fetcher.Invalidate(u)
		agentCard, err := r.fetcher.Fetch(ctx, u)

		r.mu.Lock()
		entry, ok := r.entries[u]
		if !ok {
			r.mu.Unlock()
			continue
		}
		if err != nil {
			entry.Healthy = false
		} else {
			entry.Card = agentCard
			entry.Healthy = true
			entry.LastHealthy = time.Now().UTC()
		}
		r.entries[u] = entry
		r.mu.Unlock()
	}

	r.mu.Lock()
	if err := r.persist(); err != nil {
		slog.Warn("failed to persist agent registry after refresh", "error", err)
	}
	r.mu.Unlock()
}

// StartAutoRefresh refreshes every RefreshInterval until ctx is
// canceled.
func (r *Registry) StartAutoRefresh(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Refresh(ctx, "")
			}
		}
	}()
}

// Health probes GET /a2a/health with outbound credentials and updates
// the entry's healthy flag.
func (r *Registry) Health(ctx context.Context, agentURL string) (bool, error) {
	base := normalizeURL(agentURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/a2a/health", nil)
	if err != nil {
		return false, fmt.Errorf("build health request: %w", err)
	}
	if r.creds != nil {
		r.creds.Apply(req, base)
	}

	healthy := false
	resp, err := r.client.Do(req)
	if err == nil {
		resp.Body.Close()
		healthy = resp.StatusCode == http.StatusOK
	}

	r.mu.Lock()
	if entry, ok := r.entries[base]; ok {
		entry.Healthy = healthy
		if healthy {
			entry.LastHealthy = time.Now().UTC()
		}
		r.entries[base] = entry
		if perr := r.persist(); perr != nil {
			slog.Warn("failed to persist agent registry after health check", "error", perr)
		}
	}
	r.mu.Unlock()

	if err != nil {
		return false, fmt.Errorf("health check %s: %w", base, err)
	}
	return healthy, nil
}

// persist writes the entry map; caller holds r.mu.
func (r *Registry) persist() error {
	out := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	if err := r.repo.Save(out); err != nil {
		return fmt.Errorf("persist agent registry: %w", err)
	}
	return nil
}

func normalizeURL(u string) string {
	return strings.TrimSuffix(strings.TrimSpace(u), "/")
}

func hasTag(c *a2a.AgentCard, tag string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Skills {
		if s.HasTag(tag) {
			return true
		}
	}
	return false
}

func hasProvider(c *a2a.AgentCard, substr string) bool {
	if c == nil || c.Provider == nil {
		return false
	}
	return strings.Contains(strings.ToLower(c.Provider.Organization), strings.ToLower(substr))
}
