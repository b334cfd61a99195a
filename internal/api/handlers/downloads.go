package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/granta-app/granta/internal/config"
	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/delivery"
	"github.com/granta-app/granta/internal/entitlement"
	"github.com/granta-app/granta/internal/metrics"
	"github.com/granta-app/granta/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DownloadProductStore looks up the product behind an entitlement.
type DownloadProductStore interface {
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// FileStore serves product file bytes, implemented by the delivery client.
type FileStore interface {
	Fetch(ctx context.Context, key string) (*delivery.Object, error)
	Presign(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// DownloadsHandler handles the public, unauthenticated download surface.
type DownloadsHandler struct {
	service    *entitlement.Service
	store      DownloadProductStore
	files      FileStore
	mode       config.DownloadMode
	presignTTL time.Duration
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewDownloadsHandler creates a new DownloadsHandler.
func NewDownloadsHandler(service *entitlement.Service, store DownloadProductStore, files FileStore, mode config.DownloadMode, presignTTL time.Duration, m *metrics.Metrics, logger zerolog.Logger) *DownloadsHandler {
	return &DownloadsHandler{
		service:    service,
		store:      store,
		files:      files,
		mode:       mode,
		presignTTL: presignTTL,
		metrics:    m,
		logger:     logger.With().Str("component", "downloads_handler").Logger(),
	}
}

// RegisterPublicRoutes registers download routes that don't require
// authentication. mw is applied to the whole download surface; the router
// passes the token-keyed rate limiter here.
func (h *DownloadsHandler) RegisterPublicRoutes(r *gin.Engine, mw ...gin.HandlerFunc) {
	downloads := r.Group("/downloads", mw...)
	{
		downloads.GET("/:token", h.Download)
		downloads.GET("/:token/info", h.Info)
	}
}

// Download validates a token and serves the file.
// GET /downloads/:token
func (h *DownloadsHandler) Download(c *gin.Context) {
	token := c.Param("token")
	if !entitlement.IsValidTokenFormat(token) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	decision, err := h.service.Validate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to validate download token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return
	}

	if !decision.Allow {
		if h.metrics != nil {
			h.metrics.RecordDownloadDenied(string(decision.Reason))
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "download denied", "reason": decision.Reason})
		return
	}

	ent := decision.Entitlement
	product, err := h.store.GetProductByID(c.Request.Context(), ent.ProductID)
	if err != nil {
		h.logger.Error().Err(err).Str("product_id", ent.ProductID.String()).Msg("failed to load product for download")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
		return
	}
	if !product.HasFile() {
		h.logger.Warn().Str("product_id", product.ID.String()).Msg("entitled product has no file attached")
		c.JSON(http.StatusNotFound, gin.H{"error": "file not available"})
		return
	}

	switch h.mode {
	case config.DownloadModeRedirect:
		h.serveRedirect(c, ent, product)
	default:
		h.serveProxy(c, ent, product)
	}
}

// serveProxy streams the file through the server. The download is recorded
// only after the last byte went out, so an interrupted transfer costs no
// credit.
func (h *DownloadsHandler) serveProxy(c *gin.Context, ent *models.Entitlement, product *models.Product) {
	obj, err := h.files.Fetch(c.Request.Context(), *product.FileKey)
	if err != nil {
		h.logger.Error().Err(err).Str("file_key", *product.FileKey).Msg("failed to fetch product file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName(product)))
	c.Header("Content-Type", contentType)
	if obj.ContentLength > 0 {
		c.Header("Content-Length", fmt.Sprintf("%d", obj.ContentLength))
	}
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, obj.Body); err != nil {
		// Transfer broke midway; headers are out, credit stays untouched.
		h.logger.Warn().Err(err).Str("entitlement_id", ent.ID.String()).Msg("download transfer interrupted")
		return
	}

	h.recordDownload(c.Request.Context(), ent)
}

// serveRedirect hands out a presigned URL. The transfer happens directly
// against object storage, so the credit is consumed at issuance.
func (h *DownloadsHandler) serveRedirect(c *gin.Context, ent *models.Entitlement, product *models.Product) {
	if _, err := h.service.RecordDownload(c.Request.Context(), ent.ID); err != nil {
		if errors.Is(err, db.ErrNoDownloadCredit) {
			if h.metrics != nil {
				h.metrics.RecordDownloadDenied(string(models.DenyReasonExhausted))
			}
			c.JSON(http.StatusForbidden, gin.H{"error": "download denied", "reason": models.DenyReasonExhausted})
			return
		}
		h.logger.Error().Err(err).Str("entitlement_id", ent.ID.String()).Msg("failed to record download")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
		return
	}

	url, err := h.files.Presign(c.Request.Context(), *product.FileKey, h.presignTTL)
	if err != nil {
		h.logger.Error().Err(err).Str("file_key", *product.FileKey).Msg("failed to presign download url")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordDownloadAllowed()
	}
	c.Redirect(http.StatusFound, url)
}

// fileName returns the stored file name, falling back to the slug.
func fileName(product *models.Product) string {
	if product.FileName != nil && *product.FileName != "" {
		return *product.FileName
	}
	return product.Slug
}

func (h *DownloadsHandler) recordDownload(ctx context.Context, ent *models.Entitlement) {
	if _, err := h.service.RecordDownload(ctx, ent.ID); err != nil {
		// A concurrent request may have used the last credit while this
		// transfer was in flight. The bytes are already served; the count
		// simply does not overshoot.
		h.logger.Warn().Err(err).Str("entitlement_id", ent.ID.String()).Msg("failed to record completed download")
		return
	}
	if h.metrics != nil {
		h.metrics.RecordDownloadAllowed()
	}
}

// Info returns the validation status of a token without consuming credit.
// GET /downloads/:token/info
func (h *DownloadsHandler) Info(c *gin.Context) {
	token := c.Param("token")
	if !entitlement.IsValidTokenFormat(token) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	info, err := h.service.Info(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to get download info")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, info)
}
