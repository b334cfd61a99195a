package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/metrics"
	"github.com/granta-app/granta/internal/payments"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxWebhookBodyBytes caps event payloads. The route sits outside the
// session-authenticated group and its body limit, so the cap lives here.
const maxWebhookBodyBytes = 1 << 20

// WebhookHandler receives payment processor callbacks.
type WebhookHandler struct {
	processor *payments.Processor
	secret    []byte
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(processor *payments.Processor, secret []byte, m *metrics.Metrics, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		secret:    secret,
		metrics:   m,
		logger:    logger.With().Str("component", "webhook_handler").Logger(),
	}
}

// RegisterPublicRoutes registers webhook routes. These are authenticated by
// signature, not session.
func (h *WebhookHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.POST("/webhooks/payment", h.Payment)
}

// Payment verifies and processes a payment event.
// POST /webhooks/payment
func (h *WebhookHandler) Payment(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	signature := c.GetHeader(payments.SignatureHeader)
	if !payments.VerifySignature(body, signature, h.secret) {
		h.logger.Warn().Str("client_ip", c.ClientIP()).Msg("webhook signature mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var event payments.Event
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	if event.Type == "" || event.ProcessorRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type and processor_ref are required"})
		return
	}

	result, err := h.processor.Process(c.Request.Context(), &event)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrUnknownEventType):
			// Acknowledge so the processor stops retrying events we will
			// never handle.
			h.recordEvent(event.Type, "ignored")
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		case errors.Is(err, db.ErrNotFound):
			h.recordEvent(event.Type, "unknown_order")
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown order"})
		default:
			h.logger.Error().Err(err).Str("processor_ref", event.ProcessorRef).Msg("failed to process webhook event")
			h.recordEvent(event.Type, "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		}
		return
	}

	outcome := "processed"
	if result.Replay {
		outcome = "replay"
	}
	h.recordEvent(event.Type, outcome)

	c.JSON(http.StatusOK, gin.H{
		"status":              outcome,
		"order_id":            result.OrderID,
		"entitlements_issued": result.Issued,
	})
}

func (h *WebhookHandler) recordEvent(eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(eventType, outcome)
	}
}
