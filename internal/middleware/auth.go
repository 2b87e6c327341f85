package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/classroom-insights-api/pkg/errors"
	"github.com/noah-isme/classroom-insights-api/pkg/response"
)

// ContextTokenKey is the gin context key storing the caller's bearer token.
// The token is opaque to this service; it is forwarded verbatim to the
// Classroom API, which is the sole authority on its validity.
const ContextTokenKey = "accessToken"

// BearerToken requires an Authorization header and stashes the raw token on
// the context. Requests without one are rejected before reaching handlers.
func BearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		c.Set(ContextTokenKey, parts[1])
		c.Next()
	}
}

// TokenFromContext returns the bearer token stored by BearerToken.
func TokenFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if token, exists := c.Get(ContextTokenKey); exists {
		if typed, ok := token.(string); ok {
			return typed
		}
	}
	return ""
}
