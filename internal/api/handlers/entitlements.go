// Package handlers implements the HTTP endpoints of the Granta API.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/entitlement"
	"github.com/granta-app/granta/internal/metrics"
	"github.com/granta-app/granta/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EntitlementsHandler handles entitlement admin endpoints.
type EntitlementsHandler struct {
	service *entitlement.Service
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewEntitlementsHandler creates a new EntitlementsHandler.
func NewEntitlementsHandler(service *entitlement.Service, m *metrics.Metrics, logger zerolog.Logger) *EntitlementsHandler {
	return &EntitlementsHandler{
		service: service,
		metrics: m,
		logger:  logger.With().Str("component", "entitlements_handler").Logger(),
	}
}

// RegisterRoutes registers entitlement routes on the given router group.
func (h *EntitlementsHandler) RegisterRoutes(r *gin.RouterGroup) {
	entitlements := r.Group("/entitlements")
	{
		entitlements.GET("", h.List)
		entitlements.POST("", h.Create)
		entitlements.GET("/summary", h.Summary)
		entitlements.GET("/:id", h.Get)
		entitlements.PATCH("/:id", h.Update)
		entitlements.POST("/:id/revoke", h.Revoke)
		entitlements.DELETE("/:id", h.Delete)
	}
}

// Create issues a new entitlement.
// POST /api/v1/entitlements
func (h *EntitlementsHandler) Create(c *gin.Context) {
	var req models.CreateEntitlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ent, err := h.service.Issue(c.Request.Context(), req.ProductID, req.CustomerID, req.MaxDownloads, req.ExpiresAt)
	if err != nil {
		h.respondError(c, err, "failed to issue entitlement")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordEntitlementIssued()
	}

	c.JSON(http.StatusCreated, ent)
}

// List returns entitlements matching the query filters.
// GET /api/v1/entitlements
func (h *EntitlementsHandler) List(c *gin.Context) {
	var filter models.EntitlementFilter

	if statusParam := c.Query("status"); statusParam != "" {
		status := models.EntitlementStatus(statusParam)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		filter.Status = &status
	}
	if productParam := c.Query("product_id"); productParam != "" {
		productID, err := uuid.Parse(productParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product_id"})
			return
		}
		filter.ProductID = &productID
	}
	if customerParam := c.Query("customer_id"); customerParam != "" {
		customerID, err := uuid.Parse(customerParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer_id"})
			return
		}
		filter.CustomerID = &customerID
	}
	filter.Search = c.Query("search")
	filter.Limit = parseIntQuery(c, "limit", 0)
	filter.Offset = parseIntQuery(c, "offset", 0)

	entitlements, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list entitlements")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list entitlements"})
		return
	}

	if entitlements == nil {
		entitlements = []*models.Entitlement{}
	}
	c.JSON(http.StatusOK, gin.H{"entitlements": entitlements})
}

// Summary returns per-status entitlement counts.
// GET /api/v1/entitlements/summary
func (h *EntitlementsHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get entitlement summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Get returns a single entitlement by ID.
// GET /api/v1/entitlements/:id
func (h *EntitlementsHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ent, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "failed to get entitlement")
		return
	}
	c.JSON(http.StatusOK, ent)
}

// Update applies an administrative override.
// PATCH /api/v1/entitlements/:id
func (h *EntitlementsHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req models.UpdateEntitlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ent, err := h.service.Override(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, err, "failed to update entitlement")
		return
	}
	c.JSON(http.StatusOK, ent)
}

// Revoke suspends an entitlement.
// POST /api/v1/entitlements/:id/revoke
func (h *EntitlementsHandler) Revoke(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.service.Revoke(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "failed to revoke entitlement")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// Delete permanently removes an entitlement.
// DELETE /api/v1/entitlements/:id
func (h *EntitlementsHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "failed to delete entitlement")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EntitlementsHandler) respondError(c *gin.Context, err error, msg string) {
	var verr *entitlement.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "entitlement not found"})
	default:
		h.logger.Error().Err(err).Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// parseIDParam parses the :id path parameter, responding 400 on garbage.
func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func parseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
