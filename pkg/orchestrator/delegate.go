package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/auth"
	"github.com/xactions/xactions-a2a/pkg/discovery"
	"github.com/xactions/xactions-a2a/pkg/httpclient"
	"github.com/xactions/xactions-a2a/pkg/stream"
)

const (
	// DelegationTimeout bounds a single delegation request.
	DelegationTimeout = 30 * time.Second
	// PollInterval is the remote task poll tick.
	PollInterval = 2 * time.Second
	// PollWindow is the ceiling on waiting for a remote task.
	PollWindow = 120 * time.Second

	delegateRetries   = 3
	delegateBaseDelay = time.Second
)

// Delegator sends tasks to remote agents and waits for completion. When
// the remote card advertises streaming it follows the task over SSE,
// otherwise it polls. Outcomes are credited to the trust store.
type Delegator struct {
	client   *httpclient.Client
	creds    *auth.CredentialStore
	trust    *discovery.TrustStore
	consumer *stream.Consumer

	pollInterval time.Duration
	pollWindow   time.Duration
	sleep        func(time.Duration) // replaced in tests
}

// NewDelegator creates a delegator. creds and trust may be nil.
func NewDelegator(creds *auth.CredentialStore, trust *discovery.TrustStore) *Delegator {
	d := &Delegator{
		client:       httpclient.New(httpclient.WithTimeout(DelegationTimeout), httpclient.WithMaxRetries(0)),
		creds:        creds,
		trust:        trust,
		consumer:     stream.NewConsumer(),
		pollInterval: PollInterval,
		pollWindow:   PollWindow,
		sleep:        time.Sleep,
	}
	d.consumer.Prepare = d.applyCreds
	return d
}

func (d *Delegator) applyCreds(req *http.Request) {
	if d.creds != nil {
		d.creds.Apply(req, req.URL.Scheme+"://"+req.URL.Host)
	}
}

// Delegate runs one task on the remote agent and returns the terminal
// task. The trust store is credited with the outcome and elapsed time.
func (d *Delegator) Delegate(ctx context.Context, entry discovery.Entry, msg a2a.Message, metadata map[string]any) (*a2a.Task, error) {
	started := time.Now()
	t, err := d.delegate(ctx, entry, msg, metadata)
	elapsed := time.Since(started)

	if d.trust != nil {
		switch {
		case err == nil && t.Status.State == a2a.TaskStateCompleted:
			d.recordTrust(entry.URL, discovery.TrustSuccess, elapsed)
		case err != nil && ctx.Err() == context.DeadlineExceeded:
			d.recordTrust(entry.URL, discovery.TrustTimeout, elapsed)
		default:
			d.recordTrust(entry.URL, discovery.TrustFailure, elapsed)
		}
	}
	return t, err
}

func (d *Delegator) recordTrust(url string, eventType discovery.TrustEventType, elapsed time.Duration) {
	if err := d.trust.Record(url, eventType, elapsed); err != nil {
		slog.Warn("failed to record trust event", "url", url, "error", err)
	}
}

func (d *Delegator) delegate(ctx context.Context, entry discovery.Entry, msg a2a.Message, metadata map[string]any) (*a2a.Task, error) {
	streaming := entry.Card != nil && entry.Card.Capabilities.Streaming
	method := a2a.MethodTasksSend
	if streaming {
		method = a2a.MethodTasksSendSubscribe
	}

	params, err := json.Marshal(a2a.TaskSendParams{Message: msg, Metadata: metadata})
	if err != nil {
		return nil, fmt.Errorf("encode delegation params: %w", err)
	}
	rpcReq := a2a.Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      uuid.New().String(),
	}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, fmt.Errorf("encode delegation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, entry.URL+"/a2a/tasks", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build delegation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	d.applyCreds(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("delegate to %s: %w", entry.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read delegation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote agent returned HTTP %d", resp.StatusCode)
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *a2a.ErrorBody  `json:"error"`
	}
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode delegation response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("remote agent rejected task: %w", rpcResp.Error)
	}

	var t a2a.Task
	if err := json.Unmarshal(rpcResp.Result, &t); err != nil {
		return nil, fmt.Errorf("decode remote task: %w", err)
	}
	if a2a.IsTerminalState(t.Status.State) {
		return &t, nil
	}

	if streaming {
		return d.follow(ctx, entry.URL, t.ID)
	}
	return d.poll(ctx, entry.URL, t.ID)
}

// follow waits for the remote task over SSE, then fetches the terminal
// task. A streaming failure falls back to polling.
func (d *Delegator) follow(ctx context.Context, agentURL, taskID string) (*a2a.Task, error) {
	streamCtx, cancel := context.WithTimeout(ctx, d.pollWindow)
	defer cancel()

	url := fmt.Sprintf("%s/a2a/tasks/%s/stream", agentURL, taskID)
	if err := d.consumer.Listen(streamCtx, url, func(event string, data []byte) {}); err != nil {
		slog.Debug("SSE follow failed, falling back to polling", "url", url, "error", err)
		return d.poll(ctx, agentURL, taskID)
	}
	return d.fetchTask(ctx, agentURL, taskID)
}

// poll fetches the remote task every pollInterval until it is terminal
// or the window closes.
func (d *Delegator) poll(ctx context.Context, agentURL, taskID string) (*a2a.Task, error) {
	deadline := time.Now().Add(d.pollWindow)
	for {
		t, err := d.fetchTask(ctx, agentURL, taskID)
		if err != nil {
			return nil, err
		}
		if a2a.IsTerminalState(t.Status.State) {
			return t, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("remote task %s did not complete within %s", taskID, d.pollWindow)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

func (d *Delegator) fetchTask(ctx context.Context, agentURL, taskID string) (*a2a.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, agentURL+"/a2a/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("build task fetch: %w", err)
	}
	d.applyCreds(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch remote task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote task fetch returned HTTP %d", resp.StatusCode)
	}
	var t a2a.Task
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode remote task: %w", err)
	}
	return &t, nil
}

// DelegateWithRetry retries a failed delegation with exponential backoff
// (1 s, 2 s, 4 s) up to three attempts.
func (d *Delegator) DelegateWithRetry(ctx context.Context, entry discovery.Entry, msg a2a.Message, metadata map[string]any) (*a2a.Task, error) {
	var lastErr error
	for attempt := 0; attempt < delegateRetries; attempt++ {
		if attempt > 0 {
			d.sleep(delegateBaseDelay << (attempt - 1))
		}
		t, err := d.Delegate(ctx, entry, msg, metadata)
		if err == nil {
			return t, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("delegation failed after %d attempts: %w", delegateRetries, lastErr)
}

// DelegateWithFallback tries each agent in order until one succeeds,
// returning the terminal task and the serving agent's URL.
func (d *Delegator) DelegateWithFallback(ctx context.Context, agents []discovery.Entry, msg a2a.Message, metadata map[string]any) (*a2a.Task, string, error) {
	var lastErr error
	for _, entry := range agents {
		t, err := d.Delegate(ctx, entry, msg, metadata)
		if err == nil {
			return t, entry.URL, nil
		}
		lastErr = err
		slog.Warn("delegation failed, trying next agent", "url", entry.URL, "error", err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no agents available")
	}
	return nil, "", lastErr
}
