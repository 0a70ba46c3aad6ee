package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is where the helpdesk service listens during local development.
const DefaultBaseURL = "http://localhost:8000"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 1 << 20

// Backend is the surface a chat session needs from the helpdesk service.
type Backend interface {
	Health(ctx context.Context) error
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Client talks to the helpdesk service over HTTP.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
}

var _ Backend = &Client{}

type ClientOption func(*Client) error

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout bounds every request. Zero leaves the transport default in place.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return errors.Errorf("invalid timeout %s", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// NewClient creates a client rooted at baseURL. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		userAgent:  "helpdesk-chat",
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "failed to apply client option")
		}
	}
	return c, nil
}

// ParseBaseURL validates that raw is an absolute http(s) URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("base url %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, errors.Errorf("base url %q has no host", raw)
	}
	return u, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.baseURL.String(), "/") + path
}

// Health probes HealthPath. The body is ignored.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(HealthPath), nil)
	if err != nil {
		return &ConnectivityError{Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ConnectivityError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Chat posts a query. Failures are one of *TransportError, *ApplicationError or
// *MalformedResponseError.
func (c *Client) Chat(ctx context.Context, in ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode chat request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(ChatPath), bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Err: errors.Wrap(err, "failed to read response body")}
	}
	log.Debug().
		Str("component", "helpdesk_client").
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Int("bytes", len(respBody)).
		Msg("chat response received")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		appErr := &ApplicationError{StatusCode: resp.StatusCode}
		// An undecodable error body leaves the fallback message in place.
		_ = json.Unmarshal(respBody, &appErr.Body)
		return nil, appErr
	}

	return decodeChatResponse(resp.StatusCode, respBody)
}

func decodeChatResponse(status int, body []byte) (*ChatResponse, error) {
	var raw struct {
		Response       *string  `json:"response"`
		ContextUsed    *string  `json:"context_used"`
		ProcessingTime *float64 `json:"processing_time"`
		Query          string   `json:"query"`
		Timestamp      string   `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &MalformedResponseError{StatusCode: status, Err: err}
	}
	if raw.Response == nil {
		return nil, &MalformedResponseError{StatusCode: status, Err: errors.New("missing response field")}
	}

	out := &ChatResponse{
		Response:       *raw.Response,
		ProcessingTime: raw.ProcessingTime,
		Query:          raw.Query,
		Timestamp:      raw.Timestamp,
	}
	if raw.ContextUsed != nil {
		out.ContextUsed = *raw.ContextUsed
	}
	return out, nil
}

// Outcome classifies the result of a chat query for metrics and logs.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	var (
		te *TransportError
		ae *ApplicationError
		me *MalformedResponseError
	)
	switch {
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &ae):
		return "application"
	case errors.As(err, &me):
		return "malformed"
	default:
		return "unknown"
	}
}
