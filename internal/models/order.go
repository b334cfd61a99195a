package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the payment state of an order.
type OrderStatus string

const (
	// OrderStatusPending means payment has not completed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid means the processor confirmed payment.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusRefunded means the processor refunded the payment.
	OrderStatusRefunded OrderStatus = "refunded"
)

// ValidOrderStatuses returns all valid order statuses.
func ValidOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPending, OrderStatusPaid, OrderStatusRefunded}
}

// IsValid checks if the order status is a known value.
func (s OrderStatus) IsValid() bool {
	for _, valid := range ValidOrderStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// Order records a purchase as reported by the payment processor. Granta does
// not charge cards itself; orders exist so entitlement issuance is idempotent
// per processor reference and refunds can revoke what they granted.
type Order struct {
	ID           uuid.UUID   `json:"id"`
	ProcessorRef string      `json:"processor_ref"`
	CustomerID   *uuid.UUID  `json:"customer_id,omitempty"`
	Status       OrderStatus `json:"status"`
	TotalCents   int64       `json:"total_cents"`
	Currency     string      `json:"currency"`
	Items        []OrderItem `json:"items,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// OrderItem is a single purchased line item.
type OrderItem struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	ProductID      uuid.UUID `json:"product_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}

// NewOrder creates a new pending order.
func NewOrder(processorRef string, customerID *uuid.UUID, totalCents int64, currency string) *Order {
	now := time.Now()
	return &Order{
		ID:           uuid.New(),
		ProcessorRef: processorRef,
		CustomerID:   customerID,
		Status:       OrderStatusPending,
		TotalCents:   totalCents,
		Currency:     currency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewOrderItem creates a line item for an order.
func NewOrderItem(orderID, productID uuid.UUID, quantity int, unitPriceCents int64) *OrderItem {
	return &OrderItem{
		ID:             uuid.New(),
		OrderID:        orderID,
		ProductID:      productID,
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
	}
}
