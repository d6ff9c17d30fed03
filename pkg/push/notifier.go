package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/httpclient"
)

// Notification is the webhook body. Exactly one of State, Progress,
// Result, or Error is typically set alongside the task id.
type Notification struct {
	TaskID    string        `json:"taskId"`
	State     a2a.TaskState `json:"state,omitempty"`
	Progress  string        `json:"progress,omitempty"`
	Result    any           `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Notifier posts signed notifications to callback URLs. Transport errors
// and 5xx responses are retried with exponential backoff; any 4xx is
// treated as a permanent rejection.
type Notifier struct {
	secret []byte
	client *httpclient.Client
}

// NewNotifier creates a notifier signing with secret.
func NewNotifier(secret []byte, opts ...httpclient.Option) *Notifier {
	defaults := []httpclient.Option{
		httpclient.WithTimeout(10 * time.Second),
		httpclient.WithMaxRetries(3),
		httpclient.WithBaseDelay(time.Second),
	}
	return &Notifier{
		secret: secret,
		client: httpclient.New(append(defaults, opts...)...),
	}
}

// Notify delivers one notification to url. Success is any 2xx response.
func (n *Notifier) Notify(ctx context.Context, url string, notification Notification) error {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, SignBody(n.secret, body))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback rejected notification: HTTP %d", resp.StatusCode)
	}
	return nil
}
