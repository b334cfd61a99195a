package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CustomerStore defines the interface for customer persistence operations.
type CustomerStore interface {
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomerByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	ListCustomers(ctx context.Context) ([]*models.Customer, error)
	UpdateCustomer(ctx context.Context, c *models.Customer) error
	DeleteCustomer(ctx context.Context, id uuid.UUID) error
}

// CustomersHandler handles customer directory endpoints.
type CustomersHandler struct {
	store  CustomerStore
	logger zerolog.Logger
}

// NewCustomersHandler creates a new CustomersHandler.
func NewCustomersHandler(store CustomerStore, logger zerolog.Logger) *CustomersHandler {
	return &CustomersHandler{
		store:  store,
		logger: logger.With().Str("component", "customers_handler").Logger(),
	}
}

// RegisterRoutes registers customer routes on the given router group.
func (h *CustomersHandler) RegisterRoutes(r *gin.RouterGroup) {
	customers := r.Group("/customers")
	{
		customers.GET("", h.List)
		customers.POST("", h.Create)
		customers.GET("/:id", h.Get)
		customers.PUT("/:id", h.Update)
		customers.DELETE("/:id", h.Delete)
	}
}

// List returns all customers.
// GET /api/v1/customers
func (h *CustomersHandler) List(c *gin.Context) {
	customers, err := h.store.ListCustomers(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list customers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list customers"})
		return
	}
	if customers == nil {
		customers = []*models.Customer{}
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

// Create adds a customer.
// POST /api/v1/customers
func (h *CustomersHandler) Create(c *gin.Context) {
	var req models.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customer := models.NewCustomer(strings.ToLower(req.Email), req.Name, req.Company)
	if err := h.store.CreateCustomer(c.Request.Context(), customer); err != nil {
		if db.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already in use"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to create customer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create customer"})
		return
	}
	c.JSON(http.StatusCreated, customer)
}

// Get returns a single customer by ID.
// GET /api/v1/customers/:id
func (h *CustomersHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	customer, err := h.store.GetCustomerByID(c.Request.Context(), id)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// Update modifies customer fields.
// PUT /api/v1/customers/:id
func (h *CustomersHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req models.UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customer, err := h.store.GetCustomerByID(c.Request.Context(), id)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	if req.Email != nil {
		customer.Email = strings.ToLower(*req.Email)
	}
	if req.Name != nil {
		customer.Name = *req.Name
	}
	if req.Company != nil {
		customer.Company = *req.Company
	}

	if err := h.store.UpdateCustomer(c.Request.Context(), customer); err != nil {
		if db.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already in use"})
			return
		}
		h.logger.Error().Err(err).Str("customer_id", id.String()).Msg("failed to update customer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update customer"})
		return
	}
	c.JSON(http.StatusOK, customer)
}

// Delete removes a customer.
// DELETE /api/v1/customers/:id
func (h *CustomersHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.store.DeleteCustomer(c.Request.Context(), id); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CustomersHandler) respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
		return
	}
	h.logger.Error().Err(err).Msg("store error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
