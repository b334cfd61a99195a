package models

import (
	"time"

	"github.com/google/uuid"
)

// EntitlementStatus represents the lifecycle state of a download entitlement.
type EntitlementStatus string

const (
	// EntitlementStatusActive means downloads are currently permitted.
	EntitlementStatusActive EntitlementStatus = "active"
	// EntitlementStatusExpired means the expiry timestamp has passed.
	EntitlementStatusExpired EntitlementStatus = "expired"
	// EntitlementStatusSuspended means an administrator blocked access.
	EntitlementStatusSuspended EntitlementStatus = "suspended"
	// EntitlementStatusExhausted means the download limit has been reached.
	EntitlementStatusExhausted EntitlementStatus = "exhausted"
)

// ValidEntitlementStatuses returns all valid entitlement statuses.
func ValidEntitlementStatuses() []EntitlementStatus {
	return []EntitlementStatus{
		EntitlementStatusActive,
		EntitlementStatusExpired,
		EntitlementStatusSuspended,
		EntitlementStatusExhausted,
	}
}

// IsValid checks if the status is a known value.
func (s EntitlementStatus) IsValid() bool {
	for _, valid := range ValidEntitlementStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// DenyReason explains why a download was refused. Denials are expected
// outcomes, returned as data rather than errors.
type DenyReason string

const (
	// DenyReasonSuspended means an administrator blocked the entitlement.
	DenyReasonSuspended DenyReason = "suspended"
	// DenyReasonExpired means the entitlement's expiry has passed.
	DenyReasonExpired DenyReason = "expired"
	// DenyReasonExhausted means the download limit has been reached.
	DenyReasonExhausted DenyReason = "exhausted"
)

// Entitlement grants a purchaser (or anonymous grantee) the right to download
// a digital product, bounded by count and/or time. The download token is the
// opaque credential a client presents without a full authenticated session.
type Entitlement struct {
	ID              uuid.UUID         `json:"id"`
	DownloadToken   string            `json:"download_token"`
	ProductID       uuid.UUID         `json:"product_id"`
	CustomerID      *uuid.UUID        `json:"customer_id,omitempty"`
	OrderID         *uuid.UUID        `json:"order_id,omitempty"`
	DownloadCount   int               `json:"download_count"`
	MaxDownloads    *int              `json:"max_downloads,omitempty"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	Status          EntitlementStatus `json:"status"`
	FirstDownloadAt *time.Time        `json:"first_download_at,omitempty"`
	LastDownloadAt  *time.Time        `json:"last_download_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewEntitlement creates a new active entitlement with the given token.
func NewEntitlement(token string, productID uuid.UUID, customerID *uuid.UUID, maxDownloads *int, expiresAt *time.Time) *Entitlement {
	now := time.Now()
	return &Entitlement{
		ID:            uuid.New(),
		DownloadToken: token,
		ProductID:     productID,
		CustomerID:    customerID,
		DownloadCount: 0,
		MaxDownloads:  maxDownloads,
		ExpiresAt:     expiresAt,
		Status:        EntitlementStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsExpired returns true if the expiry timestamp is set and has passed.
// The stored status is a cache; callers deciding access must use this.
func (e *Entitlement) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// IsExhausted returns true if a download limit is set and reached.
func (e *Entitlement) IsExhausted() bool {
	return e.MaxDownloads != nil && e.DownloadCount >= *e.MaxDownloads
}

// RemainingDownloads returns the remaining download credit, or nil when
// unlimited.
func (e *Entitlement) RemainingDownloads() *int {
	if e.MaxDownloads == nil {
		return nil
	}
	remaining := *e.MaxDownloads - e.DownloadCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// DeriveStatus computes the truthful status from the underlying facts.
// Suspension always wins; it is only ever set by explicit admin action.
func (e *Entitlement) DeriveStatus(now time.Time) EntitlementStatus {
	if e.Status == EntitlementStatusSuspended {
		return EntitlementStatusSuspended
	}
	if e.IsExpired(now) {
		return EntitlementStatusExpired
	}
	if e.IsExhausted() {
		return EntitlementStatusExhausted
	}
	return EntitlementStatusActive
}

// CreateEntitlementRequest is the request body for issuing an entitlement.
type CreateEntitlementRequest struct {
	ProductID    uuid.UUID  `json:"product_id" binding:"required"`
	CustomerID   *uuid.UUID `json:"customer_id,omitempty"`
	MaxDownloads *int       `json:"max_downloads,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// UpdateEntitlementRequest is the request body for an administrative override.
// All fields are optional; only provided fields are changed.
type UpdateEntitlementRequest struct {
	Status       *EntitlementStatus `json:"status,omitempty"`
	MaxDownloads *int               `json:"max_downloads,omitempty"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
	// ClearMaxDownloads removes the download limit entirely.
	ClearMaxDownloads bool `json:"clear_max_downloads,omitempty"`
	// ClearExpiresAt removes the expiry entirely.
	ClearExpiresAt bool `json:"clear_expires_at,omitempty"`
}

// EntitlementFilter selects entitlements for the admin list endpoint.
type EntitlementFilter struct {
	Status     *EntitlementStatus
	ProductID  *uuid.UUID
	CustomerID *uuid.UUID
	// Search matches against the download token prefix.
	Search string
	Limit  int
	Offset int
}

// EntitlementSummary is the per-status count breakdown for the admin list.
type EntitlementSummary struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Expired   int64 `json:"expired"`
	Suspended int64 `json:"suspended"`
	Exhausted int64 `json:"exhausted"`
}

// DownloadInfoResponse is the storefront-facing validation probe response.
type DownloadInfoResponse struct {
	Allow        bool        `json:"allow"`
	Reason       *DenyReason `json:"reason,omitempty"`
	ProductID    uuid.UUID   `json:"product_id"`
	Remaining    *int        `json:"remaining_downloads,omitempty"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
	DownloadedAt *time.Time  `json:"last_download_at,omitempty"`
}
