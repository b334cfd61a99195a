// Package entitlement implements the download-entitlement state machine:
// issuing entitlements, validating download requests and recording usage.
package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store defines the persistence operations the service needs.
type Store interface {
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetCustomerByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)

	CreateEntitlement(ctx context.Context, e *models.Entitlement) error
	GetEntitlementByID(ctx context.Context, id uuid.UUID) (*models.Entitlement, error)
	GetEntitlementByToken(ctx context.Context, token string) (*models.Entitlement, error)
	RecordDownload(ctx context.Context, id uuid.UUID) (*models.Entitlement, error)
	UpdateEntitlementStatus(ctx context.Context, id uuid.UUID, status models.EntitlementStatus) error
	UpdateEntitlement(ctx context.Context, e *models.Entitlement) error
	DeleteEntitlement(ctx context.Context, id uuid.UUID) error
	ListEntitlements(ctx context.Context, filter models.EntitlementFilter) ([]*models.Entitlement, error)
	GetEntitlementSummary(ctx context.Context) (*models.EntitlementSummary, error)
}

// Decision is the outcome of validating a download token. Denials are data:
// an entitlement that exists but may not be used yields Allow=false with a
// reason, not an error.
type Decision struct {
	Allow       bool
	Reason      models.DenyReason
	Entitlement *models.Entitlement
}

// Service implements issue/validate/record/override over a Store.
type Service struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates an entitlement service.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "entitlement").Logger(),
		now:    time.Now,
	}
}

// Issue creates a new entitlement for a digital-capable product. An absent
// customer ID is a guest grant; absent limits mean unlimited/never-expiring.
func (s *Service) Issue(ctx context.Context, productID uuid.UUID, customerID *uuid.UUID, maxDownloads *int, expiresAt *time.Time) (*models.Entitlement, error) {
	return s.issue(ctx, productID, customerID, maxDownloads, expiresAt, nil)
}

// IssueForOrder issues an entitlement tied to an order, used by the payment
// webhook so a refund can find and revoke what the purchase granted.
func (s *Service) IssueForOrder(ctx context.Context, orderID, productID uuid.UUID, customerID *uuid.UUID, maxDownloads *int, expiresAt *time.Time) (*models.Entitlement, error) {
	return s.issue(ctx, productID, customerID, maxDownloads, expiresAt, &orderID)
}

func (s *Service) issue(ctx context.Context, productID uuid.UUID, customerID *uuid.UUID, maxDownloads *int, expiresAt *time.Time, orderID *uuid.UUID) (*models.Entitlement, error) {
	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, newValidationError("product_id", "product does not exist")
		}
		return nil, err
	}
	if !product.IsDigitalCapable() {
		return nil, newValidationError("product_id", "product is not digital-capable")
	}

	if customerID != nil {
		if _, err := s.store.GetCustomerByID(ctx, *customerID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, newValidationError("customer_id", "customer does not exist")
			}
			return nil, err
		}
	}

	if maxDownloads != nil && *maxDownloads <= 0 {
		return nil, newValidationError("max_downloads", "must be a positive integer")
	}

	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, newValidationError("expires_at", "must be in the future")
	}

	// Token collisions are vanishingly unlikely at 256 bits but the unique
	// constraint makes them loud; retry a couple of times anyway.
	var ent *models.Entitlement
	for attempt := 0; attempt < 3; attempt++ {
		token, err := GenerateToken()
		if err != nil {
			return nil, err
		}
		ent = models.NewEntitlement(token, productID, customerID, maxDownloads, expiresAt)
		ent.OrderID = orderID
		err = s.store.CreateEntitlement(ctx, ent)
		if err == nil {
			break
		}
		if !db.IsUniqueViolation(err) {
			return nil, err
		}
		ent = nil
	}
	if ent == nil {
		return nil, errors.New("issue entitlement: token collision persisted after retries")
	}

	s.logger.Info().
		Str("entitlement_id", ent.ID.String()).
		Str("product_id", productID.String()).
		Msg("entitlement issued")

	return ent, nil
}

// Validate decides whether the holder of a token may download right now.
// Precedence: suspension, then expiry, then exhaustion. Suspension is an
// explicit admin decision and overrides everything; expiry and exhaustion
// are re-derived from the underlying facts, never trusted from the stored
// status, and discovered drift is written back.
func (s *Service) Validate(ctx context.Context, token string) (*Decision, error) {
	ent, err := s.store.GetEntitlementByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if ent.Status == models.EntitlementStatusSuspended {
		return &Decision{Allow: false, Reason: models.DenyReasonSuspended, Entitlement: ent}, nil
	}

	if ent.IsExpired(s.now()) {
		if ent.Status != models.EntitlementStatusExpired {
			if err := s.store.UpdateEntitlementStatus(ctx, ent.ID, models.EntitlementStatusExpired); err != nil {
				s.logger.Error().Err(err).Str("entitlement_id", ent.ID.String()).Msg("failed to persist expired status")
			} else {
				ent.Status = models.EntitlementStatusExpired
			}
		}
		return &Decision{Allow: false, Reason: models.DenyReasonExpired, Entitlement: ent}, nil
	}

	if ent.IsExhausted() {
		if ent.Status != models.EntitlementStatusExhausted {
			if err := s.store.UpdateEntitlementStatus(ctx, ent.ID, models.EntitlementStatusExhausted); err != nil {
				s.logger.Error().Err(err).Str("entitlement_id", ent.ID.String()).Msg("failed to persist exhausted status")
			} else {
				ent.Status = models.EntitlementStatusExhausted
			}
		}
		return &Decision{Allow: false, Reason: models.DenyReasonExhausted, Entitlement: ent}, nil
	}

	return &Decision{Allow: true, Entitlement: ent}, nil
}

// RecordDownload consumes one download credit. Callers invoke this only after
// Validate allowed the download and the file transfer genuinely succeeded, so
// an interrupted transfer never costs credit. The underlying store performs
// the increment as a single conditional update; a concurrent race that used
// up the last credit surfaces as db.ErrNoDownloadCredit.
func (s *Service) RecordDownload(ctx context.Context, id uuid.UUID) (*models.Entitlement, error) {
	ent, err := s.store.RecordDownload(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("entitlement_id", ent.ID.String()).
		Int("download_count", ent.DownloadCount).
		Msg("download recorded")

	return ent, nil
}

// Override applies an administrative edit. Only type and range checks are
// performed; the admin is trusted to, for example, reactivate a suspended
// record. When limits change without an explicit status, the stored status is
// recomputed so the admin list reflects the edit immediately.
func (s *Service) Override(ctx context.Context, id uuid.UUID, req models.UpdateEntitlementRequest) (*models.Entitlement, error) {
	ent, err := s.store.GetEntitlementByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Status != nil && !req.Status.IsValid() {
		return nil, newValidationError("status", "unknown status value")
	}
	if req.MaxDownloads != nil && *req.MaxDownloads <= 0 {
		return nil, newValidationError("max_downloads", "must be a positive integer")
	}
	if req.MaxDownloads != nil && req.ClearMaxDownloads {
		return nil, newValidationError("max_downloads", "cannot set and clear in the same request")
	}
	if req.ExpiresAt != nil && req.ClearExpiresAt {
		return nil, newValidationError("expires_at", "cannot set and clear in the same request")
	}

	if req.ClearMaxDownloads {
		ent.MaxDownloads = nil
	} else if req.MaxDownloads != nil {
		ent.MaxDownloads = req.MaxDownloads
	}
	if req.ClearExpiresAt {
		ent.ExpiresAt = nil
	} else if req.ExpiresAt != nil {
		ent.ExpiresAt = req.ExpiresAt
	}

	if req.Status != nil {
		ent.Status = *req.Status
	} else if ent.Status != models.EntitlementStatusSuspended {
		// Limits may have changed out from under the cached status.
		ent.Status = ent.DeriveStatus(s.now())
	}

	if err := s.store.UpdateEntitlement(ctx, ent); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("entitlement_id", ent.ID.String()).
		Str("status", string(ent.Status)).
		Msg("entitlement overridden")

	return ent, nil
}

// Revoke suspends an entitlement. Reversible via Override, unlike Delete.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := s.store.UpdateEntitlementStatus(ctx, id, models.EntitlementStatusSuspended); err != nil {
		return err
	}
	s.logger.Info().Str("entitlement_id", id.String()).Msg("entitlement revoked")
	return nil
}

// Delete permanently removes an entitlement. Destructive and irreversible;
// a former token validates as not found afterwards.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteEntitlement(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("entitlement_id", id.String()).Msg("entitlement deleted")
	return nil
}

// Get returns an entitlement by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Entitlement, error) {
	return s.store.GetEntitlementByID(ctx, id)
}

// List returns entitlements matching the filter.
func (s *Service) List(ctx context.Context, filter models.EntitlementFilter) ([]*models.Entitlement, error) {
	return s.store.ListEntitlements(ctx, filter)
}

// Summary returns the per-status counts for the admin surface.
func (s *Service) Summary(ctx context.Context) (*models.EntitlementSummary, error) {
	return s.store.GetEntitlementSummary(ctx)
}

// Info is the storefront-facing probe: the validation decision plus remaining
// credit, with no credit consumed and no status write-back beyond what
// Validate itself performs.
func (s *Service) Info(ctx context.Context, token string) (*models.DownloadInfoResponse, error) {
	decision, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	resp := &models.DownloadInfoResponse{
		Allow:        decision.Allow,
		ProductID:    decision.Entitlement.ProductID,
		Remaining:    decision.Entitlement.RemainingDownloads(),
		ExpiresAt:    decision.Entitlement.ExpiresAt,
		DownloadedAt: decision.Entitlement.LastDownloadAt,
	}
	if !decision.Allow {
		reason := decision.Reason
		resp.Reason = &reason
	}
	return resp, nil
}
