package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xactions/xactions-a2a/pkg/httpclient"
	"github.com/xactions/xactions-a2a/pkg/skills"
)

// HTTPBridge executes skills through the XActions executor API. Requests
// are authenticated with the browser session cookie the executor already
// trusts.
type HTTPBridge struct {
	apiURL        string
	sessionCookie string
	client        *httpclient.Client
}

// HTTPOption configures an HTTPBridge.
type HTTPOption func(*HTTPBridge)

// WithClient replaces the retrying HTTP client.
func WithClient(c *httpclient.Client) HTTPOption {
	return func(b *HTTPBridge) { b.client = c }
}

// NewHTTPBridge creates a bridge against the executor at apiURL.
func NewHTTPBridge(apiURL, sessionCookie string, opts ...HTTPOption) *HTTPBridge {
	b := &HTTPBridge{
		apiURL:        strings.TrimSuffix(apiURL, "/"),
		sessionCookie: sessionCookie,
		client:        httpclient.New(httpclient.WithTimeout(60 * time.Second)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// executeRequest is the wire format of an executor call.
type executeRequest struct {
	Tool   string         `json:"tool,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Text   string         `json:"text,omitempty"`
}

// executeResponse is the executor's reply.
type executeResponse struct {
	Success   bool   `json:"success"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	Artifacts []struct {
		Type     string `json:"type"`
		Name     string `json:"name,omitempty"`
		MimeType string `json:"mimeType,omitempty"`
		URI      string `json:"uri,omitempty"`
		Data     any    `json:"data,omitempty"`
	} `json:"artifacts,omitempty"`
}

// Execute posts the skill call to the executor's tool endpoint.
func (b *HTTPBridge) Execute(ctx context.Context, skillID string, params map[string]any) (*Result, error) {
	toolName := strings.TrimPrefix(skillID, skills.Namespace)
	result, err := b.post(ctx, "/api/tools/execute", executeRequest{Tool: toolName, Params: params})
	if err != nil {
		return nil, skillError(skillID, err)
	}
	return result, nil
}

// ExecuteNatural posts a free-form instruction to the executor's
// natural-language endpoint.
func (b *HTTPBridge) ExecuteNatural(ctx context.Context, text string) (*Result, error) {
	result, err := b.post(ctx, "/api/agent/execute", executeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("natural-language execution: %w", err)
	}
	return result, nil
}

func (b *HTTPBridge) post(ctx context.Context, path string, payload executeRequest) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.sessionCookie != "" {
		req.Header.Set("Cookie", "x_session="+b.sessionCookie)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUnknownSkill
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("executor returned HTTP %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var er executeResponse
	if err := json.Unmarshal(raw, &er); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !er.Success {
		msg := er.Error
		if msg == "" {
			msg = "executor reported failure"
		}
		return nil, fmt.Errorf("executor error: %s", msg)
	}

	result := &Result{Output: er.Result}
	for _, art := range er.Artifacts {
		result.Artifacts = append(result.Artifacts, artifactPart(art.Type, art.Name, art.MimeType, art.URI, art.Data))
	}
	return result, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
