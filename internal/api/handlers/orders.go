package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrderStore defines the interface for order read operations. Orders are
// created by the payment webhook, never through the admin API.
type OrderStore interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]*models.Order, error)
	GetEntitlementsByOrderID(ctx context.Context, orderID uuid.UUID) ([]*models.Entitlement, error)
}

// OrdersHandler handles order read endpoints.
type OrdersHandler struct {
	store  OrderStore
	logger zerolog.Logger
}

// NewOrdersHandler creates a new OrdersHandler.
func NewOrdersHandler(store OrderStore, logger zerolog.Logger) *OrdersHandler {
	return &OrdersHandler{
		store:  store,
		logger: logger.With().Str("component", "orders_handler").Logger(),
	}
}

// RegisterRoutes registers order routes on the given router group.
func (h *OrdersHandler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.GET("", h.List)
		orders.GET("/:id", h.Get)
		orders.GET("/:id/entitlements", h.Entitlements)
	}
}

// List returns orders, newest first.
// GET /api/v1/orders
func (h *OrdersHandler) List(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 0)
	offset := parseIntQuery(c, "offset", 0)

	orders, err := h.store.ListOrders(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list orders")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list orders"})
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// Get returns a single order with its line items.
// GET /api/v1/orders/:id
func (h *OrdersHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	order, err := h.store.GetOrderByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to get order")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get order"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// Entitlements returns the entitlements issued for an order.
// GET /api/v1/orders/:id/entitlements
func (h *OrdersHandler) Entitlements(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if _, err := h.store.GetOrderByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to get order")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get order"})
		return
	}

	entitlements, err := h.store.GetEntitlementsByOrderID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list order entitlements")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list entitlements"})
		return
	}
	if entitlements == nil {
		entitlements = []*models.Entitlement{}
	}
	c.JSON(http.StatusOK, gin.H{"entitlements": entitlements})
}
