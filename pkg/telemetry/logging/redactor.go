package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const masked = "[REDACTED]"

// sensitiveKeys are attribute names whose string values are always
// masked in full. Matching is exact or by suffix so token counters
// ("prompt_tokens") pass untouched.
var sensitiveKeys = []string{
	"authorization",
	"api_key",
	"apikey",
	"token",
	"access_token",
	"refresh_token",
	"id_token",
	"bearer_token",
	"password",
	"secret",
	"client_secret",
	"credential",
	"credentials",
	"key_hash",
}

// valuePatterns catch credential shapes that leak into arbitrary
// string values or messages: bearer headers, sk- keys, and JWTs.
var valuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{6,}`),
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{4,}\.[A-Za-z0-9._-]+\.[A-Za-z0-9_-]+`),
}

// Redactor masks credential-shaped values before they reach a log
// sink. It is stateless after construction and safe for concurrent
// use.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor returns a Redactor with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: valuePatterns}
}

// RedactString masks credential shapes inside s.
func (r *Redactor) RedactString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, masked)
	}
	return s
}

// RedactAttr masks an attribute. Sensitive key names lose their whole
// string value; all other string values are scanned for credential
// shapes. Groups are walked recursively.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindGroup:
		members := a.Value.Group()
		redacted := make([]slog.Attr, len(members))
		for i, m := range members {
			redacted[i] = r.RedactAttr(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	case slog.KindString:
		if isSensitiveKey(a.Key) {
			return slog.String(a.Key, masked)
		}
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	default:
		return a
	}
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if k == s || strings.HasSuffix(k, "_"+s) {
			return true
		}
	}
	return false
}

// redactHandler rewrites every record through the redactor on its way
// to the wrapped handler.
type redactHandler struct {
	next     slog.Handler
	redactor *Redactor
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, h.redactor.RedactString(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactor.RedactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactor.RedactAttr(a)
	}
	return &redactHandler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}
