// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the access log. Request bodies are never logged, so
// passwords submitted to POST /users cannot reach it; query strings and
// header values are scrubbed of emails, phone numbers and UUIDs, and
// credential-bearing headers are masked entirely.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const masked = "[REDACTED]"

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so it cannot eat hex segments; runs after uuidRE.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Redactor scrubs PII from free text and masks sensitive header values.
type Redactor struct {
	mask map[string]struct{}
}

// NewRedactor returns a Redactor that masks Authorization, Cookie,
// Set-Cookie and any extra header names given (case-insensitive).
func NewRedactor(maskHeaders ...string) *Redactor {
	m := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range maskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			m[h] = struct{}{}
		}
	}
	return &Redactor{mask: m}
}

// String replaces identifiers, then emails, then phone numbers in s.
func (r *Redactor) String(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// Masked reports whether the header name is fully masked.
func (r *Redactor) Masked(name string) bool {
	_, ok := r.mask[strings.ToLower(name)]
	return ok
}

// Headers flattens h into a scrubbed name → value map.
func (r *Redactor) Headers(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if r.Masked(k) {
			out[k] = masked
			continue
		}
		out[k] = r.String(strings.Join(vv, ", "))
	}
	return out
}

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are extra header names to mask, merged with the built-ins.
	MaskHeaders []string
	// SkipPaths are exact request paths that are not logged (health checks, scrapes).
	SkipPaths []string
}

// RedactingLogger writes one "http_request" line per request through the
// request-scoped logger. Level is info, warn for 4xx, and error for 5xx or
// when handlers attached Gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	red := NewRedactor(opts.MaskHeaders...)
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		query := red.String(c.Request.URL.RawQuery)
		headers := red.Headers(c.Request.Header)
		_, scoped := c.Get(loggerKey)

		c.Next()

		status := c.Writer.Status()
		lg := LoggerFrom(c)
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = lg.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = lg.Error()
		case status >= 400:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}

		// ContextLogger already carries these fields.
		if !scoped {
			path := c.FullPath()
			if path == "" {
				path = c.Request.URL.Path
			}
			ev = ev.Str("request_id", c.Writer.Header().Get(requestIDHeader)).
				Str("method", c.Request.Method).
				Str("path", path)
		}

		ev.Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", red.String(c.Request.UserAgent())).
			Interface("headers", headers).
			Msg("http_request")
	}
}
