package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// retryableStatuses are upstream statuses worth another attempt: rate
// limiting, server-side failures, and the Cloudflare 52x range.
var retryableStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
	507: true,
	509: true,
	520: true,
	521: true,
	522: true,
	523: true,
	524: true,
}

// RetryableStatus reports whether an HTTP status code is transient.
func RetryableStatus(code int) bool {
	return retryableStatuses[code]
}

// IsRetryable classifies an error as transient. Errors carrying an HTTP
// status are retried only when the status is in the retryable set; 4xx
// responses other than 429 propagate immediately. Bare context
// cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Status classification runs before the context sentinels: a
	// per-attempt timeout arrives wrapped with a 504 status over
	// context.DeadlineExceeded and must stay retryable. Cancellation of
	// the caller's own context is caught by Do's ctx.Err() check.
	var sc StatusCoder
	if errors.As(err, &sc) {
		return RetryableStatus(sc.HTTPStatus())
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	return false
}
