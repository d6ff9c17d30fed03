package stream

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	reconnectBase = time.Second
	reconnectCap  = 30 * time.Second
)

// EventHandler receives one parsed SSE event.
type EventHandler func(event string, data []byte)

// Consumer attaches to a remote SSE endpoint and dispatches parsed
// events. Disconnects trigger reconnection with capped exponential
// backoff; only context cancellation stops it.
type Consumer struct {
	httpClient *http.Client
	// Prepare is called on every request before it is sent, for auth
	// headers and the like.
	Prepare func(*http.Request)
}

// NewConsumer creates a consumer. SSE connections are long-lived, so the
// underlying client has no overall timeout.
func NewConsumer() *Consumer {
	return &Consumer{httpClient: &http.Client{}}
}

// Listen streams events from url until ctx is canceled or the server
// ends the stream cleanly after a `done` event.
func (c *Consumer) Listen(ctx context.Context, url string, handler EventHandler) error {
	delay := reconnectBase
	for {
		sawDone, sawEvents, err := c.attach(ctx, url, handler)
		if sawDone {
			return nil
		}
		if sawEvents {
			delay = reconnectBase
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Debug("SSE connection lost, reconnecting", "url", url, "delay", delay, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectCap {
			delay = reconnectCap
		}
	}
}

// attach runs one connection. It reports whether a `done` event was
// seen, whether any event was dispatched, and any error that ended the
// read loop.
func (c *Consumer) attach(ctx context.Context, url string, handler EventHandler) (sawDone, sawEvents bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.Prepare != nil {
		c.Prepare(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, false, fmt.Errorf("SSE endpoint returned HTTP %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var event string
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" || data.Len() > 0 {
				handler(event, []byte(data.String()))
				sawEvents = true
				if event == "done" {
					sawDone = true
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return sawDone, sawEvents, scanner.Err()
}
