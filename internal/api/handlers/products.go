package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/granta-app/granta/internal/catalog"
	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxUploadBytes caps product file uploads at 5 GiB.
const maxUploadBytes = 5 << 30

// ProductStore defines the interface for product persistence operations.
type ProductStore interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]*models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product) error
	SetProductFile(ctx context.Context, id uuid.UUID, fileKey, fileName, contentType string, sizeBytes int64) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

// FileUploader stores product files, implemented by the delivery client.
type FileUploader interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// ProductsHandler handles product catalog endpoints.
type ProductsHandler struct {
	store  ProductStore
	files  FileUploader
	logger zerolog.Logger
}

// NewProductsHandler creates a new ProductsHandler.
func NewProductsHandler(store ProductStore, files FileUploader, logger zerolog.Logger) *ProductsHandler {
	return &ProductsHandler{
		store:  store,
		files:  files,
		logger: logger.With().Str("component", "products_handler").Logger(),
	}
}

// RegisterRoutes registers product routes on the given router group.
func (h *ProductsHandler) RegisterRoutes(r *gin.RouterGroup) {
	products := r.Group("/products")
	{
		products.GET("", h.List)
		products.POST("", h.Create)
		products.GET("/:id", h.Get)
		products.PUT("/:id", h.Update)
		products.DELETE("/:id", h.Delete)
		products.POST("/:id/file", h.UploadFile)
	}
}

// List returns all products.
// GET /api/v1/products
func (h *ProductsHandler) List(c *gin.Context) {
	products, err := h.store.ListProducts(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list products")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list products"})
		return
	}
	if products == nil {
		products = []*models.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// Create adds a product to the catalog.
// POST /api/v1/products
func (h *ProductsHandler) Create(c *gin.Context) {
	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !req.Type.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product type"})
		return
	}

	slug := req.Slug
	if slug == "" {
		slug = catalog.Slugify(req.Name)
	}
	if !catalog.IsValidSlug(slug) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slug"})
		return
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}

	product := models.NewProduct(req.Name, slug, req.Type, req.PriceCents, currency)
	product.Description = req.Description

	if err := h.store.CreateProduct(c.Request.Context(), product); err != nil {
		if db.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug already in use"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to create product")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create product"})
		return
	}

	c.JSON(http.StatusCreated, product)
}

// Get returns a single product by ID.
// GET /api/v1/products/:id
func (h *ProductsHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	product, err := h.store.GetProductByID(c.Request.Context(), id)
	if err != nil {
		h.respondStoreError(c, err, "product")
		return
	}
	c.JSON(http.StatusOK, product)
}

// Update modifies product fields.
// PUT /api/v1/products/:id
func (h *ProductsHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.store.GetProductByID(c.Request.Context(), id)
	if err != nil {
		h.respondStoreError(c, err, "product")
		return
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.PriceCents != nil {
		product.PriceCents = *req.PriceCents
	}
	if req.Currency != nil {
		product.Currency = strings.ToUpper(*req.Currency)
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	if err := h.store.UpdateProduct(c.Request.Context(), product); err != nil {
		h.logger.Error().Err(err).Str("product_id", id.String()).Msg("failed to update product")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update product"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// Delete removes a product.
// DELETE /api/v1/products/:id
func (h *ProductsHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.store.DeleteProduct(c.Request.Context(), id); err != nil {
		h.respondStoreError(c, err, "product")
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadFile attaches a file to a digital-capable product.
// POST /api/v1/products/:id/file (multipart, field "file")
func (h *ProductsHandler) UploadFile(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	product, err := h.store.GetProductByID(c.Request.Context(), id)
	if err != nil {
		h.respondStoreError(c, err, "product")
		return
	}
	if !product.IsDigitalCapable() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product is not digital-capable"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	if header.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to open uploaded file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	baseName := path.Base(header.Filename)
	key := fmt.Sprintf("products/%s/%s", product.ID, baseName)

	storedKey, err := h.files.Put(c.Request.Context(), key, contentType, file)
	if err != nil {
		h.logger.Error().Err(err).Str("product_id", id.String()).Msg("failed to store product file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	if err := h.store.SetProductFile(c.Request.Context(), id, storedKey, baseName, contentType, header.Size); err != nil {
		h.logger.Error().Err(err).Str("product_id", id.String()).Msg("failed to record product file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	product, err = h.store.GetProductByID(c.Request.Context(), id)
	if err != nil {
		h.respondStoreError(c, err, "product")
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *ProductsHandler) respondStoreError(c *gin.Context, err error, resource string) {
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": resource + " not found"})
		return
	}
	h.logger.Error().Err(err).Msg("store error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
