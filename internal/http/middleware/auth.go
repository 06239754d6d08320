// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements static bearer-token authentication for the two
// protected surfaces: the SMS gateway webhook and the operator workbench.
// Tokens are deployment secrets compared in constant time; an empty
// configured token disables the check, which is intended for local
// development only.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// operatorKey is the Gin context key carrying the acting operator
	// identity for audit fields.
	operatorKey = "operator"
	// operatorHeader names the header through which an authenticated
	// admin client identifies the human operator behind the request.
	operatorHeader = "X-Admin-User"
)

// RequireBearer enforces "Authorization: Bearer <token>" with the given
// static token. Responses carry the standard error envelope so callers can
// distinguish a missing credential from a wrong one only by message, never
// by timing.
func RequireBearer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		raw := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(raw, prefix) {
			unauthorized(c)
			return
		}
		presented := strings.TrimSpace(strings.TrimPrefix(raw, prefix))
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			unauthorized(c)
			return
		}
		c.Next()
	}
}

// OperatorIdentity records who is acting on the admin surface. The identity
// comes from the X-Admin-User header; absent that, a stable placeholder is
// stored so audit fields are never empty.
func OperatorIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		op := strings.TrimSpace(c.GetHeader(operatorHeader))
		if op == "" {
			op = "unknown-operator"
		}
		c.Set(operatorKey, op)
		c.Next()
	}
}

// Operator returns the acting operator identity stored by OperatorIdentity.
func Operator(c *gin.Context) string {
	if v, ok := c.Get(operatorKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "unknown-operator"
}

func unauthorized(c *gin.Context) {
	rid, _ := c.Get(requestIDKey)
	c.Header("WWW-Authenticate", `Bearer realm="recon"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": asString(rid),
		"code":       "unauthorized",
		"message":    "missing or invalid bearer token",
	})
}
