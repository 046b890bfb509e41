package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/gokatarajesh/exam-runner/internal/metrics"
)

const (
	defaultBaseURL = "https://edux.site/api"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// Options configures the backend REST client.
type Options struct {
	BaseURL string
	// Timeout bounds every call except SubmitExam.
	Timeout   time.Duration
	Transport http.RoundTripper
	Metrics   *metrics.Recorder
}

// Client talks to the exam backend. A Client is safe for concurrent use;
// WithTokenSource derives a per-student client sharing the same transport.
type Client struct {
	baseURL    string
	transport  http.RoundTripper
	httpClient *http.Client
	timeout    time.Duration
	rec        *metrics.Recorder
	logger     zerolog.Logger
}

// APIError is a non-2xx or undecodable backend response.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	if e.Message == "" {
		return fmt.Sprintf("backend %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// HTTPStatus exposes the status code to callers classifying failures.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// ErrMalformedResponse marks a 2xx body that could not be decoded.
var ErrMalformedResponse = errors.New("malformed backend response")

func New(opts Options, logger zerolog.Logger) (*Client, error) {
	base := opts.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", base)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		transport:  transport,
		httpClient: &http.Client{Transport: transport},
		timeout:    timeout,
		rec:        opts.Metrics,
		logger:     logger.With().Str("component", "backend_client").Logger(),
	}, nil
}

// WithTokenSource returns a client that authenticates every request with ts.
func (c *Client) WithTokenSource(ts oauth2.TokenSource) *Client {
	clone := *c
	clone.httpClient = &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: c.transport},
	}
	return &clone
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type call struct {
	op          string
	path        string
	body        io.Reader
	contentType string
	untimed     bool
}

// do posts a request and decodes the envelope's data into out. It returns the
// envelope message.
func (c *Client) do(ctx context.Context, cl call, out any) (string, error) {
	if !cl.untimed {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+cl.path, cl.body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.rec.ObserveBackend(cl.op, 0, time.Since(started))
		return "", fmt.Errorf("backend %s: %w", cl.op, err)
	}
	defer resp.Body.Close()
	c.rec.ObserveBackend(cl.op, resp.StatusCode, time.Since(started))

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Op: cl.op, StatusCode: resp.StatusCode}
		var env envelope
		if raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); readErr == nil {
			if json.Unmarshal(raw, &env) == nil {
				apiErr.Message = env.Message
			}
		}
		c.logger.Warn().
			Str("op", cl.op).
			Int("status", resp.StatusCode).
			Str("message", apiErr.Message).
			Msg("backend rejected request")
		return "", apiErr
	}

	malformed := func(err error) *APIError {
		return &APIError{
			Op:         cl.op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", malformed(err)
	}
	if out != nil {
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return "", malformed(errors.New("missing data"))
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", malformed(err)
		}
	}
	return env.Message, nil
}

func jsonCall(op, path string, body any) (call, error) {
	cl := call{op: op, path: path}
	if body == nil {
		return cl, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return call{}, err
	}
	cl.body = bytes.NewReader(raw)
	cl.contentType = "application/json"
	return cl, nil
}
