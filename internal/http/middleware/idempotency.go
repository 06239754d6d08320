// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements redelivery support for the SMS webhook. Gateways
// retry deliveries on timeout, so the ingest endpoint accepts an optional
// Idempotency-Key header; this middleware validates the header, stashes the
// normalized key in the request context, and optionally performs a lookup to
// detect an already-persisted delivery so downstream components can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect redeliveries (IsReplay)
//   - bypass rate limiting when a replay is served (via an internal flag)
//
// Transport concerns (validation, context stashing) live here; persistence
// stays behind the narrow ReceiptLookup function type.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header through which a gateway conveys
// a delivery key. The value is expected to be stable across redeliveries of
// the same message so retries can be safely deduplicated.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderGatewaySource names the delivering gateway; it scopes the
// idempotency key so two gateways can reuse the same key space.
const HeaderGatewaySource = "X-Gateway-Source"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: true when a stored receipt exists
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the middleware detected that this request
// redelivers an SMS that was already persisted under the same (source, key).
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// GatewaySource returns the delivering gateway identity from the request,
// falling back to "gateway" when the header is absent.
func GatewaySource(c *gin.Context) string {
	if s := c.GetHeader(HeaderGatewaySource); s != "" {
		return s
	}
	return "gateway"
}

// IdempotencyOptions configures header validation for IdempotencyValidator.
// TTL enforcement belongs inside the provided lookup function.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative RFC7230-like
	// token pattern is used: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// ReceiptLookup answers whether a still-valid ingest receipt exists for
// (source, key) at the given time. Implementations consult the receipt store
// honoring its TTL window.
//
// Return exists=true when the original sms_id can be replayed; return an
// error only for lookup failures (which must not block normal processing).
type ReceiptLookup func(ctx context.Context, source, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it in the request context, and optionally checks for a previously
// persisted delivery via the supplied lookup. When a redelivery is detected
// it marks the context so downstream components can:
//   - detect the replay via IsReplay
//   - bypass rate limiting (internal flag checked by the RL middleware)
//
// Behavior:
//   - If the header is absent: the middleware is a no-op.
//   - If the header fails validation: responds 400 with a compact error body.
//   - If lookup indicates a redelivery: sets replay + rate-bypass flags.
//   - Always invokes the next handler unless validation fails.
//
// The middleware never serves a cached payload itself; the ingest handler
// stays in control of how redeliveries are answered.
func IdempotencyValidator(opts IdempotencyOptions, lookup ReceiptLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		// RFC-7230-ish token + common safe chars.
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			now := time.Now().UTC()
			if exists, _ := lookup(c.Request.Context(), GatewaySource(c), key, now); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true) // let RL middleware skip limiting
			}
		}

		c.Next()
	}
}
