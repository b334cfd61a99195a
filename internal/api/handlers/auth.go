package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/granta-app/granta/internal/api/middleware"
	"github.com/granta-app/granta/internal/auth"
	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuthStore defines the interface for user authentication lookups.
type AuthStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	TouchUserLogin(ctx context.Context, id uuid.UUID) error
}

// AuthHandler handles login, logout and session introspection.
type AuthHandler struct {
	store    AuthStore
	sessions *auth.SessionStore
	logger   zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(store AuthStore, sessions *auth.SessionStore, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		store:    store,
		sessions: sessions,
		logger:   logger.With().Str("component", "auth_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the login route.
func (h *AuthHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.POST("/api/v1/auth/login", h.Login)
}

// RegisterRoutes registers session-protected auth routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/logout", h.Logout)
		authGroup.GET("/me", h.Me)
	}
}

// Login authenticates an admin user and starts a session.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.store.GetUserByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Same response as a bad password; no account enumeration.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to look up user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		h.logger.Warn().Str("email", user.Email).Str("client_ip", c.ClientIP()).Msg("failed login attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	sessionUser := &auth.SessionUser{
		ID:              user.ID,
		Email:           user.Email,
		Role:            user.Role,
		AuthenticatedAt: time.Now(),
	}
	if err := h.sessions.SetUser(c.Request, c.Writer, sessionUser); err != nil {
		h.logger.Error().Err(err).Msg("failed to create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if err := h.store.TouchUserLogin(c.Request.Context(), user.ID); err != nil {
		h.logger.Warn().Err(err).Msg("failed to record login time")
	}

	c.JSON(http.StatusOK, user)
}

// Logout ends the current session.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sessions.ClearUser(c.Request, c.Writer); err != nil {
		h.logger.Warn().Err(err).Msg("failed to clear session")
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// Me returns the authenticated user.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	sessionUser := middleware.RequireUser(c)
	if sessionUser == nil {
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), sessionUser.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Stale session after a user was deleted.
			if clearErr := h.sessions.ClearUser(c.Request, c.Writer); clearErr != nil {
				h.logger.Warn().Err(clearErr).Msg("failed to clear stale session")
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired, please log in again"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, user)
}
