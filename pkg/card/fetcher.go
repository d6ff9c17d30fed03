package card

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xactions/xactions-a2a/pkg/a2a"
)

// FetchTimeout bounds a remote card fetch.
const FetchTimeout = 5 * time.Second

const fetcherCacheSize = 128

// Fetcher retrieves remote agent cards from /.well-known/agent.json and
// caches validated results per URL for the card TTL.
type Fetcher struct {
	client *http.Client
	cache  *expirable.LRU[string, *a2a.AgentCard]

	// Prepare is called on every request before it is sent, so callers
	// can attach outbound credentials.
	Prepare func(*http.Request)
}

// NewFetcher creates a fetcher with the 5-second timeout and a
// TTL-bounded cache.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: FetchTimeout},
		cache:  expirable.NewLRU[string, *a2a.AgentCard](fetcherCacheSize, nil, CacheTTL),
	}
}

// Fetch returns the agent card served at agentURL. Invalid or
// unreachable cards return an error after a logged warning.
func (f *Fetcher) Fetch(ctx context.Context, agentURL string) (*a2a.AgentCard, error) {
	base := strings.TrimSuffix(agentURL, "/")
	if cached, ok := f.cache.Get(base); ok {
		return cached, nil
	}

	card, err := f.fetch(ctx, base)
	if err != nil {
		slog.Warn("failed to fetch agent card", "url", base, "error", err)
		return nil, err
	}
	f.cache.Add(base, card)
	return card, nil
}

// Invalidate drops the cached card for agentURL.
func (f *Fetcher) Invalidate(agentURL string) {
	f.cache.Remove(strings.TrimSuffix(agentURL, "/"))
}

func (f *Fetcher) fetch(ctx context.Context, base string) (*a2a.AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/.well-known/agent.json", nil)
	if err != nil {
		return nil, fmt.Errorf("build card request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.Prepare != nil {
		f.Prepare(req)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch agent card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent card endpoint returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read agent card: %w", err)
	}

	var card a2a.AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("decode agent card: %w", err)
	}
	if err := card.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent card: %w", err)
	}
	return &card, nil
}
