package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fulcrum-hq/portunus/pkg/httpclient"
	"fulcrum-hq/portunus/pkg/retry"
)

// maxErrorBody caps how much of an upstream error body is kept for error
// messages and parse diagnostics.
const maxErrorBody = 2048

// Client is the shared HTTP core embedded by the concrete adapters. It
// owns the connection pool, applies the retry profile to each call, and
// classifies upstream failures into typed errors.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// NewClient builds the shared core from an adapter config.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()

	if cfg.Name == "" {
		return nil, &ConfigError{Provider: "unknown", Field: "name", Message: "adapter name is required"}
	}
	if cfg.BaseURL == "" {
		return nil, &ConfigError{Provider: cfg.Name, Field: "base_url", Message: "base URL is required"}
	}

	// No client-level timeout: non-streaming calls are bounded per
	// attempt, streams live until the caller's context ends.
	hc, err := httpclient.New(httpclient.Config{
		TargetURL:           cfg.BaseURL,
		ConnectTimeout:      cfg.ConnectTimeout,
		ProxyURL:            cfg.ProxyURL,
		TLS:                 cfg.TLS,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	})
	if err != nil {
		return nil, &ConfigError{Provider: cfg.Name, Field: "http_client", Message: err.Error()}
	}

	return &Client{
		cfg:  cfg,
		http: hc,
		log:  slog.With("component", "providers", "provider", cfg.Name),
	}, nil
}

// Name returns the adapter name the client was built for.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Config returns the adapter configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Logger returns the adapter's component logger.
func (c *Client) Logger() *slog.Logger {
	return c.log
}

// Close releases idle connections in the pool.
func (c *Client) Close() error {
	if t, ok := c.http.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// DoJSON sends a JSON request and decodes the 2xx response into out. The
// call is wrapped in the adapter's retry profile; each attempt is bounded
// by timeout. The last error is returned unchanged after the budget is
// exhausted. A nil out discards the response body.
func (c *Client) DoJSON(ctx context.Context, method, url string, headers http.Header, in, out any, timeout time.Duration) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	return retry.Do(ctx, c.cfg.Retry, c.cfg.Name+" "+method+" "+url, func(ctx context.Context) error {
		attemptCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		req, err := c.newRequest(attemptCtx, method, url, headers, payload)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return c.wrapTransportError(err, timeout)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return c.wrapTransportError(err, timeout)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return c.classifyStatus(resp.StatusCode, body, resp.Header)
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &ParseError{
				Provider:    c.cfg.Name,
				RawResponse: truncate(body, maxErrorBody),
				Cause:       err,
			}
		}
		return nil
	})
}

// DoForm sends a form-encoded POST and decodes the 2xx response into out.
// Used for OAuth2 token endpoints, which do not accept JSON bodies. The
// call is wrapped in the adapter's retry profile.
func (c *Client) DoForm(ctx context.Context, url string, form url.Values, out any, timeout time.Duration) error {
	payload := []byte(form.Encode())

	return retry.Do(ctx, c.cfg.Retry, c.cfg.Name+" POST "+url, func(ctx context.Context) error {
		attemptCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return c.wrapTransportError(err, timeout)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return c.wrapTransportError(err, timeout)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return c.classifyStatus(resp.StatusCode, body, resp.Header)
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &ParseError{
				Provider:    c.cfg.Name,
				RawResponse: truncate(body, maxErrorBody),
				Cause:       err,
			}
		}
		return nil
	})
}

// OpenSSE sends a streaming request and returns the response body once the
// upstream has accepted it. Only the opening phase is retried; after 2xx
// headers arrive the stream belongs to the caller, who must close it. The
// stream is bounded by ctx, not by the per-call timeout, so long streams
// are not cut off.
func (c *Client) OpenSSE(ctx context.Context, method, url string, headers http.Header, in any) (io.ReadCloser, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var body io.ReadCloser
	err = retry.Do(ctx, c.cfg.Retry, c.cfg.Name+" stream "+url, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, method, url, headers, payload)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.http.Do(req)
		if err != nil {
			return c.wrapTransportError(err, 0)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer resp.Body.Close()
			errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return c.classifyStatus(resp.StatusCode, errBody, resp.Header)
		}

		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// newRequest builds one attempt's request with the adapter headers applied
// over the JSON defaults.
func (c *Client) newRequest(ctx context.Context, method, url string, headers http.Header, payload []byte) (*http.Request, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, values := range headers {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

// wrapTransportError converts network-level failures into typed errors.
// Context cancellation passes through so the retry engine stops.
func (c *Client) wrapTransportError(err error, timeout time.Duration) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Provider: c.cfg.Name, Timeout: timeout, Cause: err}
	}

	return &UpstreamError{
		Provider: c.cfg.Name,
		Message:  "request failed",
		Cause:    err,
	}
}

// classifyStatus converts an upstream non-2xx response into a typed error.
func (c *Client) classifyStatus(status int, body []byte, header http.Header) error {
	message := upstreamMessage(body, status)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Provider: c.cfg.Name, StatusCode: status, Message: message}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{
			Provider:   c.cfg.Name,
			RetryAfter: parseRetryAfter(header.Get("Retry-After")),
			Message:    message,
		}
	default:
		return &UpstreamError{Provider: c.cfg.Name, StatusCode: status, Message: message}
	}
}

// errorEnvelope matches the error shapes upstreams use: the OpenAI
// {"error": {...}} envelope, a bare {"detail"} body, or {"message"}.
type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// upstreamMessage extracts a human-readable message from an upstream error
// body, falling back to the raw body or the status text.
func upstreamMessage(body []byte, status int) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		switch {
		case env.Error != nil && env.Error.Message != "":
			return env.Error.Message
		case env.Detail != "":
			return env.Detail
		case env.Message != "":
			return env.Message
		}
	}
	if raw := truncate(body, 256); raw != "" {
		return raw
	}
	return http.StatusText(status)
}

// parseRetryAfter parses a Retry-After header value: either delta seconds
// or an HTTP date. Returns 0 when absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(body []byte, limit int) string {
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
