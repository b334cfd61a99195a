// Package payments processes payment-processor webhook events: signature
// verification, order persistence, and entitlement issuance on completed
// payments.
package payments

import (
	"github.com/google/uuid"
)

// Event types the processor sends.
const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentRefunded  = "payment.refunded"
)

// Event is a payment-processor webhook payload.
type Event struct {
	Type         string         `json:"type" binding:"required"`
	ProcessorRef string         `json:"processor_ref" binding:"required"`
	Customer     *EventCustomer `json:"customer,omitempty"`
	TotalCents   int64          `json:"total_cents"`
	Currency     string         `json:"currency"`
	LineItems    []EventLine    `json:"line_items"`

	// Optional per-event entitlement policy. Absent means unlimited
	// downloads that never expire.
	MaxDownloads  *int `json:"max_downloads,omitempty"`
	ExpiresInDays *int `json:"expires_in_days,omitempty"`
}

// EventCustomer identifies the buyer, when the processor knows them.
type EventCustomer struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Company string `json:"company"`
}

// EventLine is one purchased line item.
type EventLine struct {
	ProductID      uuid.UUID `json:"product_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}
