package discovery

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/xactions/xactions-a2a/pkg/storage"
)

// EventCap bounds the per-agent interaction history.
const EventCap = 1000

// NeutralScore is returned for agents with no recorded history.
const NeutralScore = 50

// TrustEventType classifies one interaction outcome.
type TrustEventType string

const (
	TrustSuccess TrustEventType = "success"
	TrustFailure TrustEventType = "failure"
	TrustTimeout TrustEventType = "timeout"
)

// TrustEvent is one recorded interaction with an agent.
type TrustEvent struct {
	Type      TrustEventType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration,omitempty"`
}

// TrustRecord is the per-agent history.
type TrustRecord struct {
	FirstSeen time.Time    `json:"firstSeen"`
	Events    []TrustEvent `json:"events"`
}

// TrustStore scores agents from their interaction history. The score is
// a weighted sum of success ratio (40), longevity (20), recency (20),
// and volume (20), clamped to [0,100].
type TrustStore struct {
	mu      sync.Mutex
	repo    storage.Repository[map[string]TrustRecord]
	records map[string]TrustRecord
	now     func() time.Time // replaced in tests
}

// NewTrustStore loads persisted trust records.
func NewTrustStore(repo storage.Repository[map[string]TrustRecord]) (*TrustStore, error) {
	records, err := repo.Load()
	if err != nil {
		return nil, fmt.Errorf("load trust records: %w", err)
	}
	if records == nil {
		records = make(map[string]TrustRecord)
	}
	return &TrustStore{repo: repo, records: records, now: time.Now}, nil
}

// Record appends one interaction event, evicting the oldest past the
// cap, and persists.
func (s *TrustStore) Record(agentURL string, eventType TrustEventType, duration time.Duration) error {
	base := normalizeURL(agentURL)
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[base]
	if !ok {
		record = TrustRecord{FirstSeen: now}
	}
	record.Events = append(record.Events, TrustEvent{Type: eventType, Timestamp: now, Duration: duration})
	if len(record.Events) > EventCap {
		record.Events = record.Events[len(record.Events)-EventCap:]
	}
	s.records[base] = record

	out := make(map[string]TrustRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	if err := s.repo.Save(out); err != nil {
		return fmt.Errorf("persist trust records: %w", err)
	}
	return nil
}

// Score computes the agent's trust score in [0,100]. Unknown agents get
// the neutral score.
func (s *TrustStore) Score(agentURL string) int {
	s.mu.Lock()
	record, ok := s.records[normalizeURL(agentURL)]
	s.mu.Unlock()
	if !ok {
		return NeutralScore
	}

	now := s.now().UTC()
	total := len(record.Events)

	// Success ratio, worth 40.
	successRatio := 20.0
	if total > 0 {
		successes := 0
		for _, ev := range record.Events {
			if ev.Type == TrustSuccess {
				successes++
			}
		}
		successRatio = float64(successes) / float64(total) * 40
	}

	// Longevity, worth 20: saturates at 30 days known.
	daysKnown := now.Sub(record.FirstSeen).Hours() / 24
	longevity := math.Min(daysKnown/30, 1) * 20

	// Recency, worth 20: success ratio over the last 24 hours.
	recency := 10.0
	recentTotal, recentSuccesses := 0, 0
	cutoff := now.Add(-24 * time.Hour)
	for _, ev := range record.Events {
		if ev.Timestamp.After(cutoff) {
			recentTotal++
			if ev.Type == TrustSuccess {
				recentSuccesses++
			}
		}
	}
	if recentTotal > 0 {
		recency = float64(recentSuccesses) / float64(recentTotal) * 20
	}

	// Volume, worth 20: saturates at 100 interactions.
	volume := math.Min(float64(total)/100, 1) * 20

	score := successRatio + longevity + recency + volume
	if score > 100 {
		score = 100
	}
	return int(math.Round(score))
}

// Get returns a copy of the agent's trust record.
func (s *TrustStore) Get(agentURL string) (TrustRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[normalizeURL(agentURL)]
	if !ok {
		return TrustRecord{}, false
	}
	record.Events = append([]TrustEvent(nil), record.Events...)
	return record, true
}
