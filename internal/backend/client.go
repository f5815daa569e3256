package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPError is a non-2xx answer from the backend.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Client talks to the hospital search, feedback and location endpoints.
type Client struct {
	baseURL string
	client  *http.Client

	// NotifyTimeout bounds best-effort calls.
	NotifyTimeout time.Duration
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        hc,
		NotifyTimeout: 10 * time.Second,
	}
}

type Query struct {
	Lat      *float64
	Lon      *float64
	Symptom  string
	Severity string
}

// SearchHospitals returns hospitals ranked by the backend.
func (c *Client) SearchHospitals(ctx context.Context, q Query) ([]Hospital, error) {
	params := url.Values{}
	if q.Lat != nil {
		params.Set("lat", strconv.FormatFloat(*q.Lat, 'f', -1, 64))
	}
	if q.Lon != nil {
		params.Set("lon", strconv.FormatFloat(*q.Lon, 'f', -1, 64))
	}
	if q.Symptom != "" {
		params.Set("symptom", q.Symptom)
	}
	if q.Severity != "" {
		params.Set("severity", q.Severity)
	}

	var out []Hospital
	if err := c.do(ctx, http.MethodGet, "/api/hospitals", params, nil, &out); err != nil {
		return nil, fmt.Errorf("search hospitals: %w", err)
	}
	return out, nil
}

type Verdict string

const (
	VerdictLike    Verdict = "like"
	VerdictDislike Verdict = "dislike"
)

func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(s))); v {
	case VerdictLike, VerdictDislike:
		return v, nil
	default:
		return "", fmt.Errorf("unknown verdict %q", s)
	}
}

type Feedback struct {
	Hospital string  `json:"hospital"`
	Address  string  `json:"address,omitempty"`
	Verdict  Verdict `json:"verdict"`
}

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c *Client) SendFeedback(ctx context.Context, fb Feedback) error {
	return c.do(ctx, http.MethodPost, "/api/feedback", nil, fb, nil)
}

func (c *Client) SendLocation(ctx context.Context, loc Location) error {
	return c.do(ctx, http.MethodPost, "/api/location", nil, loc, nil)
}

// NotifyFeedback sends feedback in the background. Failures are logged and
// never reach the caller.
func (c *Client) NotifyFeedback(fb Feedback) {
	c.bestEffort("feedback", func(ctx context.Context) error { return c.SendFeedback(ctx, fb) })
}

// NotifyLocation reports the user position in the background.
func (c *Client) NotifyLocation(loc Location) {
	c.bestEffort("location", func(ctx context.Context) error { return c.SendLocation(ctx, loc) })
}

func (c *Client) bestEffort(what string, call func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.NotifyTimeout)
		defer cancel()
		if err := call(ctx); err != nil {
			log.Warn("Best-effort call failed", "call", what, "err", err)
			return
		}
		log.Debug("Best-effort call sent", "call", what)
	}()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	isJSON := strings.Contains(resp.Header.Get("Content-Type"), "application/json")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if isJSON {
			var e struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(raw, &e) == nil && e.Message != "" {
				msg = e.Message
			}
		}
		if msg == "" {
			msg = "Request failed"
		}
		return &HTTPError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
