// Package middleware provides HTTP middleware for the Granta API.
package middleware

import (
	"net/http"

	"github.com/granta-app/granta/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

// UserContextKey is the context key for the authenticated user.
const UserContextKey ContextKey = "user"

// AuthMiddleware returns a Gin middleware that requires authentication.
func AuthMiddleware(sessions *auth.SessionStore, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		sessionUser, err := sessions.GetUser(c.Request)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		// Store user in Gin context for handlers to access
		c.Set(string(UserContextKey), sessionUser)

		c.Next()
	}
}

// RequireWriteRole returns a middleware that rejects read-only users on
// mutating methods. Safe methods pass so viewers can still browse.
// Must run after AuthMiddleware.
func RequireWriteRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		user := GetUser(c)
		if user == nil || !user.Role.CanWrite() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}

// GetUser retrieves the authenticated user from the Gin context.
// Returns nil if no user is authenticated.
func GetUser(c *gin.Context) *auth.SessionUser {
	user, exists := c.Get(string(UserContextKey))
	if !exists {
		return nil
	}
	sessionUser, ok := user.(*auth.SessionUser)
	if !ok {
		return nil
	}
	return sessionUser
}

// RequireUser is a helper that gets the authenticated user or aborts with 401.
// Use this in handlers that expect AuthMiddleware to have already run.
func RequireUser(c *gin.Context) *auth.SessionUser {
	user := GetUser(c)
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil
	}
	return user
}
