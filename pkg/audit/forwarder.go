package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"fulcrum-hq/portunus/pkg/retry"
)

// Forwarder delivers audit records to a sink beyond the database.
type Forwarder interface {
	// Name identifies the forwarder in logs and metrics.
	Name() string

	// Forward delivers one record. Errors are logged by the audit
	// service and never propagate to request handling.
	Forward(ctx context.Context, rec *Record) error
}

// PrintForwarder emits each record through the structured logger at a
// fixed level, giving operators a stdout audit trail without a database.
type PrintForwarder struct {
	logger *slog.Logger
	level  slog.Level
}

// NewPrintForwarder creates a print forwarder emitting at the named
// level ("debug", "info", "warn", "error").
func NewPrintForwarder(level string, logger *slog.Logger) *PrintForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrintForwarder{
		logger: logger,
		level:  parseLevel(level),
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Name implements Forwarder.
func (f *PrintForwarder) Name() string { return "print" }

// Forward implements Forwarder.
func (f *PrintForwarder) Forward(ctx context.Context, rec *Record) error {
	f.logger.Log(ctx, f.level, "audit",
		"record_id", rec.ID,
		"method", rec.Method,
		"path", rec.Path,
		"username", rec.Username,
		"auth_type", rec.AuthType,
		"status_code", rec.StatusCode,
		"duration_ms", rec.DurationMS,
		"request_id", rec.RequestID,
	)
	return nil
}

// HTTPForwarder posts each record as JSON to an external collector,
// retrying transient failures.
type HTTPForwarder struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
	retry   retry.Config
}

// NewHTTPForwarder creates an HTTP forwarder. retryCount is the number
// of additional attempts after a failed delivery; client defaults to a
// plain client bounded by timeout.
func NewHTTPForwarder(name, url string, headers map[string]string, timeout time.Duration, retryCount int, client *http.Client) *HTTPForwarder {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPForwarder{
		name:    name,
		url:     url,
		headers: headers,
		client:  client,
		retry: retry.Config{
			MaxAttempts: retryCount + 1,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Multiplier:  2.0,
			Jitter:      true,
			Strategy:    retry.StrategyExponential,
		},
	}
}

// Name implements Forwarder.
func (f *HTTPForwarder) Name() string { return f.name }

// Forward implements Forwarder.
func (f *HTTPForwarder) Forward(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}

	return retry.Do(ctx, f.retry, "audit forward "+f.name, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range f.headers {
			req.Header.Set(k, v)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
		}()

		if resp.StatusCode >= 400 {
			return &deliveryError{status: resp.StatusCode, url: f.url}
		}
		return nil
	})
}

// deliveryError carries the collector's status code so the retry engine
// can classify it.
type deliveryError struct {
	status int
	url    string
}

func (e *deliveryError) Error() string {
	return fmt.Sprintf("audit collector %s returned status %d", e.url, e.status)
}

// HTTPStatus implements retry.StatusCoder.
func (e *deliveryError) HTTPStatus() int { return e.status }
