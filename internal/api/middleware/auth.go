package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"refill-api-server/internal/auth"
	"refill-api-server/internal/identity"
	"refill-api-server/internal/logger"
)

const identityKey = "identity"

// Authenticate verifies the bearer token and stores the caller's identity in
// the gin context.
func Authenticate(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthenticated(c, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			abortUnauthenticated(c, "Invalid token format")
			return
		}

		id, err := tokens.ParseToken(tokenString)
		if err != nil {
			abortUnauthenticated(c, "Invalid or expired token")
			return
		}

		c.Set(identityKey, id)
		ctx := logger.WithLogger(c.Request.Context(), logger.FromContext(c.Request.Context()).With("user", id.UserID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": message})
}

// Authorize lets the request through only for the given roles.
func Authorize(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			// Authenticate was not mounted in front of this route.
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "message": "User identity not found in context"})
			return
		}

		for _, role := range allowedRoles {
			if role == id.Role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "UNAUTHORIZED", "message": "You do not have permission to access this resource"})
	}
}

// CurrentIdentity returns the identity stored by Authenticate.
func CurrentIdentity(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}
