// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Idempotency-Key handling. IdempotencyValidator checks the header on unsafe
// methods and stores the key for handlers. When a lookup reports that the
// key already produced a result for the same route, the request is flagged
// as a replay and the stored resource id is handed to the handler, so the
// record is read once per request. Replays skip the rate limiter.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Header names.
const (
	HeaderIdempotencyKey      = "Idempotency-Key"
	HeaderIdempotencyReplayed = "Idempotency-Replayed"
)

const (
	ctxKeyIdemKey      = "idem.key"
	ctxKeyIdemReplay   = "idem.replay"
	ctxKeyIdemChecked  = "idem.checked"
	ctxKeyIdemResource = "idem.resource"
	ctxKeyRateBypass   = "rate.bypass"

	defaultKeyMaxLen = 200
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures key validation. Zero values use a 200 byte
// limit and the token pattern ^[A-Za-z0-9._~\-:]+$.
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the resource id stored for (scope, key), or ""
// when no live result exists. A failed lookup is logged and treated as a
// miss that was never checked.
type IdempotencyLookup func(ctx context.Context, scope, key string, now time.Time) (string, error)

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Value(ctxKeyIdemKey).(string)
	return s, s != ""
}

// IsReplay reports whether the request repeats a key with a stored result.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// StoredResult returns the resource id found for the request's key and
// whether the lookup ran and succeeded. checked with an empty id is a miss.
func StoredResult(c *gin.Context) (resourceID string, checked bool) {
	checked, _ = c.Value(ctxKeyIdemChecked).(bool)
	resourceID, _ = c.Value(ctxKeyIdemResource).(string)
	return resourceID, checked
}

// IdempotencyScope names the operation a key belongs to, e.g.
// "POST /api/v1/users". Unmatched requests use the raw path.
func IdempotencyScope(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return c.Request.Method + " " + path
}

// IdempotencyValidator validates Idempotency-Key on POST, PUT, PATCH and
// DELETE. Safe methods and requests without the header pass untouched; a
// malformed key is rejected with 400.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	if opts.MaxLen <= 0 {
		opts.MaxLen = defaultKeyMaxLen
	}
	if opts.Pattern == nil {
		opts.Pattern = defaultKeyPattern
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > opts.MaxLen || !opts.Pattern.MatchString(key) {
			AbortWithError(c, http.StatusBadRequest, "Invalid Idempotency-Key header")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			scope := IdempotencyScope(c)
			id, err := lookup(c.Request.Context(), scope, key, time.Now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).
					Str("event", "idempotency_lookup_error").
					Str("scope", scope).
					Msg("idempotency lookup failed")
				CountAPIError("idempotency_lookup_error")
			case id == "":
				c.Set(ctxKeyIdemChecked, true)
			default:
				c.Set(ctxKeyIdemChecked, true)
				c.Set(ctxKeyIdemResource, id)
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
