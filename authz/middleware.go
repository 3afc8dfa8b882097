package authz

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// userContextKey is the gin context key the resolved User is stored
// under by RequireAuth.
const userContextKey = "nexus.authz.user"

// DefaultPublicPaths never require an API key.
//
// Grounded on _examples/original_source/shared/auth/middleware.py::DEFAULT_PUBLIC_PATHS.
var DefaultPublicPaths = []string{
	"/health",
	"/admin/health",
	"/metrics",
}

// KeyValidator resolves a plaintext API key to its User, or (nil, nil)
// if the key doesn't validate. *Store satisfies this.
type KeyValidator interface {
	ValidateKey(plaintext string) (*User, error)
}

// RequireAuth builds gin middleware that validates the X-API-Key header
// against validator and attaches the resolved User to the context.
// OPTIONS requests and any path under publicPaths skip validation.
func RequireAuth(validator KeyValidator, publicPaths []string) gin.HandlerFunc {
	if publicPaths == nil {
		publicPaths = DefaultPublicPaths
	}
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		for _, public := range publicPaths {
			if path == public || strings.HasPrefix(path, public+"/") {
				c.Next()
				return
			}
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Missing API key"})
			return
		}

		user, err := validator.ValidateKey(apiKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "auth check failed"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid API key"})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// UserFromContext returns the User attached by RequireAuth, if any.
func UserFromContext(c *gin.Context) (*User, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*User)
	return user, ok
}

// RequirePermission builds gin middleware that 403s unless the
// context's authenticated User's role carries permission. Must run
// after RequireAuth.
func RequirePermission(permission Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := UserFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Missing API key"})
			return
		}
		if !HasPermission(user.Role, permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "insufficient permission"})
			return
		}
		c.Next()
	}
}
