// Package n8n is the outbound side of the analysis workflow: it posts review
// payloads to the n8n webhook and fires best-effort notifications.
//
// The client never retries. Every answer that reaches the server is returned
// as a Response, whatever its status code; only transport failures (DNS,
// connect, timeout, cancelled context) come back as errors.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// User-Agent values identify the dispatch source to the workflow. The call
// webhook skips auto dispatch for any agent containing "CallAI-App".
const (
	UserAgentManual   = "CallAI-App-Manual/2.0"
	UserAgentAuto     = "CallAI-App-Auto/3.0"
	UserAgentIncoming = "CallAI-App-Auto/1.0"
)

// maxBodyBytes caps how much of an answer is kept.
const maxBodyBytes = 1 << 20

// ChecklistEntry is one item of a dispatch payload.
type ChecklistEntry struct {
	Title          string  `json:"title"`
	Description    *string `json:"description"`
	EvaluationType string  `json:"evaluationType"`
}

// Payload is the body posted to the analysis workflow.
type Payload struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	Checklist []ChecklistEntry `json:"checklist"`
	ReviewID  string           `json:"reviewId"`
}

// Response is what the workflow answered.
type Response struct {
	Status     int
	StatusText string
	Headers    map[string]string
	// Body is the parsed JSON answer, or {"rawResponse": text} when the
	// answer is not JSON.
	Body json.RawMessage
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Diagnostic is the JSON stored on the review for an answered dispatch.
type Diagnostic struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       json.RawMessage   `json:"body"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Diagnostic wraps the response for persistence.
func (r *Response) Diagnostic(now time.Time) Diagnostic {
	return Diagnostic{
		Status:     r.Status,
		StatusText: r.StatusText,
		Headers:    r.Headers,
		Body:       r.Body,
		Timestamp:  now.UTC(),
	}
}

// TransportFailure is the JSON stored on the review when nothing was answered.
type TransportFailure struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Doer is the subset of *http.Client used by Client.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client posts JSON to n8n webhooks.
type Client struct {
	http Doer
}

// NewClient returns a Client whose requests are bounded by timeout.
// A non-positive timeout means no client-side limit beyond the context.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewClientWithDoer is used by tests and callers that bring their own transport.
func NewClientWithDoer(d Doer) *Client {
	if d == nil {
		d = http.DefaultClient
	}
	return &Client{http: d}
}

// Post sends payload as JSON to url. kind labels the dispatch metrics
// (manual, auto, incoming, notify).
func (c *Client) Post(ctx context.Context, kind, url, userAgent string, payload any) (*Response, error) {
	start := time.Now()
	resp, err := c.post(ctx, url, userAgent, payload)
	observe(kind, start, resp, err)
	return resp, err
}

func (c *Client) post(ctx context.Context, url, userAgent string, payload any) (*Response, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("n8n: empty webhook url")
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("n8n: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("n8n: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("n8n: read response: %w", err)
	}

	return &Response{
		Status:     res.StatusCode,
		StatusText: statusText(res),
		Headers:    flattenHeaders(res.Header),
		Body:       parseBody(raw),
	}, nil
}

// parseBody keeps JSON answers as-is and wraps anything else.
func parseBody(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	wrapped, _ := json.Marshal(map[string]string{"rawResponse": string(raw)})
	return wrapped
}

// statusText returns the reason phrase sent by the server, falling back to
// the canonical one.
func statusText(res *http.Response) string {
	prefix := strconv.Itoa(res.StatusCode) + " "
	if s := strings.TrimPrefix(res.Status, prefix); s != res.Status && s != "" {
		return s
	}
	return http.StatusText(res.StatusCode)
}

// flattenHeaders lower-cases names and joins repeated values with ", ".
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}
