package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/identity"
	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/security/auth"
)

// genericDetail is returned for errors that carry internal detail a
// client has no business seeing.
const genericDetail = "internal server error"

// StatusForError maps a domain error to the HTTP status the client
// receives. Not-found lookups become 404, uniqueness violations 409,
// invalid input 400, credential failures 401/403, exhausted upstream
// retries 502 or 504, and adapter misconfiguration 500.
func StatusForError(err error) int {
	var catalogNotFound *catalog.NotFoundError
	var identityNotFound *identity.NotFoundError
	var catalogExists *catalog.AlreadyExistsError
	var identityExists *identity.AlreadyExistsError
	var catalogInvalid *catalog.ValidationError
	var identityInvalid *identity.ValidationError
	var requestInvalid *types.ValidationError
	var authn *auth.AuthenticationError
	var authz *auth.AuthorizationError
	var upstream *providers.UpstreamError
	var upstreamAuth *providers.AuthError
	var rateLimit *providers.RateLimitError
	var timeout *providers.TimeoutError
	var parse *providers.ParseError
	var stream *providers.StreamError
	var config *providers.ConfigError

	switch {
	case errors.As(err, &catalogNotFound), errors.As(err, &identityNotFound):
		return http.StatusNotFound
	case errors.As(err, &catalogExists), errors.As(err, &identityExists):
		return http.StatusConflict
	case errors.As(err, &catalogInvalid), errors.As(err, &identityInvalid),
		errors.As(err, &requestInvalid):
		return http.StatusBadRequest
	case errors.As(err, &authn):
		return http.StatusUnauthorized
	case errors.As(err, &authz):
		return http.StatusForbidden
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &rateLimit):
		// Upstream throttling that outlived the retry budget.
		return http.StatusBadGateway
	case errors.As(err, &upstream):
		if upstream.StatusCode >= 400 && upstream.StatusCode < 500 {
			// Permanent upstream rejection: the request we built was
			// refused, which is our fault, not the client's.
			return http.StatusInternalServerError
		}
		return http.StatusBadGateway
	case errors.As(err, &upstreamAuth):
		// The configured provider key was rejected.
		return http.StatusInternalServerError
	case errors.As(err, &parse), errors.As(err, &stream):
		return http.StatusBadGateway
	case errors.As(err, &config):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// DetailForError returns the message placed in the response "detail"
// field. Client-caused errors echo the domain message verbatim; internal
// failures collapse to a generic detail so stack internals and
// credentials never reach the wire.
func DetailForError(err error) string {
	status := StatusForError(err)

	var upstream *providers.UpstreamError
	var upstreamAuth *providers.AuthError
	var config *providers.ConfigError

	switch {
	case status < http.StatusInternalServerError:
		return err.Error()
	case status == http.StatusBadGateway || status == http.StatusGatewayTimeout:
		return err.Error()
	case errors.As(err, &upstream):
		return fmt.Sprintf("upstream request failed: %s", upstream.Message)
	case errors.As(err, &upstreamAuth):
		return fmt.Sprintf("upstream rejected provider credentials for %q", upstreamAuth.Provider)
	case errors.As(err, &config):
		return config.Error()
	default:
		return genericDetail
	}
}

// WriteError renders err as a JSON error response. The body is always
// {"detail": "<message>"}.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	body := types.MarshalDetail(DetailForError(err))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
