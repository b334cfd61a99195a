package entitlement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store that mirrors the conditional-increment
// semantics of the real Postgres store.
type memStore struct {
	products     map[uuid.UUID]*models.Product
	customers    map[uuid.UUID]*models.Customer
	entitlements map[uuid.UUID]*models.Entitlement
	createErr    error
}

func newMemStore() *memStore {
	return &memStore{
		products:     make(map[uuid.UUID]*models.Product),
		customers:    make(map[uuid.UUID]*models.Customer),
		entitlements: make(map[uuid.UUID]*models.Entitlement),
	}
}

func (m *memStore) GetProductByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("get product: %w", db.ErrNotFound)
	}
	return p, nil
}

func (m *memStore) GetCustomerByID(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, fmt.Errorf("get customer: %w", db.ErrNotFound)
	}
	return c, nil
}

func (m *memStore) CreateEntitlement(_ context.Context, e *models.Entitlement) error {
	if m.createErr != nil {
		return m.createErr
	}
	copied := *e
	m.entitlements[e.ID] = &copied
	return nil
}

func (m *memStore) GetEntitlementByID(_ context.Context, id uuid.UUID) (*models.Entitlement, error) {
	e, ok := m.entitlements[id]
	if !ok {
		return nil, fmt.Errorf("get entitlement: %w", db.ErrNotFound)
	}
	copied := *e
	return &copied, nil
}

func (m *memStore) GetEntitlementByToken(_ context.Context, token string) (*models.Entitlement, error) {
	for _, e := range m.entitlements {
		if e.DownloadToken == token {
			copied := *e
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("get entitlement by token: %w", db.ErrNotFound)
}

func (m *memStore) RecordDownload(_ context.Context, id uuid.UUID) (*models.Entitlement, error) {
	e, ok := m.entitlements[id]
	if !ok {
		return nil, fmt.Errorf("get entitlement: %w", db.ErrNotFound)
	}
	if e.MaxDownloads != nil && e.DownloadCount >= *e.MaxDownloads {
		return nil, db.ErrNoDownloadCredit
	}
	now := time.Now()
	e.DownloadCount++
	if e.FirstDownloadAt == nil {
		e.FirstDownloadAt = &now
	}
	e.LastDownloadAt = &now
	if e.MaxDownloads != nil && e.DownloadCount >= *e.MaxDownloads {
		e.Status = models.EntitlementStatusExhausted
	}
	e.UpdatedAt = now
	copied := *e
	return &copied, nil
}

func (m *memStore) UpdateEntitlementStatus(_ context.Context, id uuid.UUID, status models.EntitlementStatus) error {
	e, ok := m.entitlements[id]
	if !ok {
		return fmt.Errorf("update entitlement status: %w", db.ErrNotFound)
	}
	e.Status = status
	e.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) UpdateEntitlement(_ context.Context, e *models.Entitlement) error {
	stored, ok := m.entitlements[e.ID]
	if !ok {
		return fmt.Errorf("update entitlement: %w", db.ErrNotFound)
	}
	stored.Status = e.Status
	stored.MaxDownloads = e.MaxDownloads
	stored.ExpiresAt = e.ExpiresAt
	stored.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) DeleteEntitlement(_ context.Context, id uuid.UUID) error {
	if _, ok := m.entitlements[id]; !ok {
		return fmt.Errorf("delete entitlement: %w", db.ErrNotFound)
	}
	delete(m.entitlements, id)
	return nil
}

func (m *memStore) ListEntitlements(_ context.Context, filter models.EntitlementFilter) ([]*models.Entitlement, error) {
	var out []*models.Entitlement
	for _, e := range m.entitlements {
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.ProductID != nil && e.ProductID != *filter.ProductID {
			continue
		}
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memStore) GetEntitlementSummary(_ context.Context) (*models.EntitlementSummary, error) {
	s := &models.EntitlementSummary{}
	for _, e := range m.entitlements {
		s.Total++
		switch e.Status {
		case models.EntitlementStatusActive:
			s.Active++
		case models.EntitlementStatusExpired:
			s.Expired++
		case models.EntitlementStatusSuspended:
			s.Suspended++
		case models.EntitlementStatusExhausted:
			s.Exhausted++
		}
	}
	return s, nil
}

func testService(t *testing.T) (*Service, *memStore, uuid.UUID) {
	t.Helper()
	store := newMemStore()
	product := models.NewProduct("Report Bundle", "report-bundle", models.ProductTypeDigital, 4900, "USD")
	store.products[product.ID] = product
	svc := NewService(store, zerolog.Nop())
	return svc, store, product.ID
}

func intPtr(n int) *int { return &n }

func TestIssue(t *testing.T) {
	ctx := context.Background()

	t.Run("guest grant succeeds without customer", func(t *testing.T) {
		svc, _, productID := testService(t)

		ent, err := svc.Issue(ctx, productID, nil, nil, nil)
		require.NoError(t, err)
		assert.Nil(t, ent.CustomerID)
		assert.Equal(t, models.EntitlementStatusActive, ent.Status)
		assert.Equal(t, 0, ent.DownloadCount)
		assert.True(t, IsValidTokenFormat(ent.DownloadToken))
	})

	t.Run("known customer succeeds", func(t *testing.T) {
		svc, store, productID := testService(t)
		customer := models.NewCustomer("buyer@example.com", "Buyer", "")
		store.customers[customer.ID] = customer

		ent, err := svc.Issue(ctx, productID, &customer.ID, intPtr(5), nil)
		require.NoError(t, err)
		require.NotNil(t, ent.CustomerID)
		assert.Equal(t, customer.ID, *ent.CustomerID)
	})

	t.Run("unknown customer rejected", func(t *testing.T) {
		svc, _, productID := testService(t)
		missing := uuid.New()

		_, err := svc.Issue(ctx, productID, &missing, nil, nil)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "customer_id", verr.Field)
	})

	t.Run("physical product rejected", func(t *testing.T) {
		svc, store, _ := testService(t)
		physical := models.NewProduct("Mug", "mug", models.ProductTypePhysical, 1500, "USD")
		store.products[physical.ID] = physical

		_, err := svc.Issue(ctx, physical.ID, nil, nil, nil)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "product_id", verr.Field)
	})

	t.Run("hybrid product accepted", func(t *testing.T) {
		svc, store, _ := testService(t)
		hybrid := models.NewProduct("Box Set", "box-set", models.ProductTypeHybrid, 9900, "USD")
		store.products[hybrid.ID] = hybrid

		_, err := svc.Issue(ctx, hybrid.ID, nil, nil, nil)
		require.NoError(t, err)
	})

	t.Run("non-positive max downloads rejected", func(t *testing.T) {
		svc, _, productID := testService(t)

		_, err := svc.Issue(ctx, productID, nil, intPtr(0), nil)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "max_downloads", verr.Field)
	})

	t.Run("past expiry rejected", func(t *testing.T) {
		svc, _, productID := testService(t)
		past := time.Now().Add(-time.Hour)

		_, err := svc.Issue(ctx, productID, nil, nil, &past)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "expires_at", verr.Field)
	})

	t.Run("future expiry accepted", func(t *testing.T) {
		svc, _, productID := testService(t)
		future := time.Now().Add(24 * time.Hour)

		ent, err := svc.Issue(ctx, productID, nil, nil, &future)
		require.NoError(t, err)
		require.NotNil(t, ent.ExpiresAt)
	})

	t.Run("no record written on validation failure", func(t *testing.T) {
		svc, store, productID := testService(t)

		_, err := svc.Issue(ctx, productID, nil, intPtr(-1), nil)
		require.Error(t, err)
		assert.Empty(t, store.entitlements)
	})
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token is not found", func(t *testing.T) {
		svc, _, _ := testService(t)

		_, err := svc.Validate(ctx, "ent_does-not-exist")
		require.ErrorIs(t, err, db.ErrNotFound)
	})

	t.Run("fresh entitlement allows", func(t *testing.T) {
		svc, _, productID := testService(t)
		ent, err := svc.Issue(ctx, productID, nil, intPtr(3), nil)
		require.NoError(t, err)

		decision, err := svc.Validate(ctx, ent.DownloadToken)
		require.NoError(t, err)
		assert.True(t, decision.Allow)
	})

	t.Run("suspended denies even with credit and time left", func(t *testing.T) {
		svc, _, productID := testService(t)
		future := time.Now().Add(24 * time.Hour)
		ent, err := svc.Issue(ctx, productID, nil, intPtr(10), &future)
		require.NoError(t, err)
		require.NoError(t, svc.Revoke(ctx, ent.ID))

		decision, err := svc.Validate(ctx, ent.DownloadToken)
		require.NoError(t, err)
		assert.False(t, decision.Allow)
		assert.Equal(t, models.DenyReasonSuspended, decision.Reason)
	})

	t.Run("expiry denies and persists corrected status", func(t *testing.T) {
		svc, store, productID := testService(t)
		future := time.Now().Add(time.Hour)
		ent, err := svc.Issue(ctx, productID, nil, nil, &future)
		require.NoError(t, err)

		// Fast-forward past the expiry; the stored status still says active.
		svc.now = func() time.Time { return future.Add(time.Minute) }

		decision, err := svc.Validate(ctx, ent.DownloadToken)
		require.NoError(t, err)
		assert.False(t, decision.Allow)
		assert.Equal(t, models.DenyReasonExpired, decision.Reason)

		stored, err := store.GetEntitlementByID(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EntitlementStatusExpired, stored.Status)
	})

	t.Run("stale stored status never overrides a passed expiry", func(t *testing.T) {
		svc, store, productID := testService(t)
		past := time.Now().Add(-time.Hour)
		ent, err := svc.Issue(ctx, productID, nil, nil, nil)
		require.NoError(t, err)
		// Simulate drift: expiry in the past but stored status active.
		store.entitlements[ent.ID].ExpiresAt = &past
		store.entitlements[ent.ID].Status = models.EntitlementStatusActive

		decision, err := svc.Validate(ctx, ent.DownloadToken)
		require.NoError(t, err)
		assert.False(t, decision.Allow)
		assert.Equal(t, models.DenyReasonExpired, decision.Reason)
	})

	t.Run("exhaustion denies and persists corrected status", func(t *testing.T) {
		svc, store, productID := testService(t)
		ent, err := svc.Issue(ctx, productID, nil, intPtr(1), nil)
		require.NoError(t, err)
		// Simulate drift: count at the limit but stored status active.
		store.entitlements[ent.ID].DownloadCount = 1
		store.entitlements[ent.ID].Status = models.EntitlementStatusActive

		decision, err := svc.Validate(ctx, ent.DownloadToken)
		require.NoError(t, err)
		assert.False(t, decision.Allow)
		assert.Equal(t, models.DenyReasonExhausted, decision.Reason)

		stored, err := store.GetEntitlementByID(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EntitlementStatusExhausted, stored.Status)
	})

	t.Run("suspension outranks expiry and exhaustion", func(t *testing.T) {
		svc, store, productID := testService(t)
		past := time.Now().Add(-time.Hour)
		ent, err := svc.Issue(ctx, productID, nil, intPtr(1), nil)
		require.NoError(t, err)
		store.entitlements[ent.ID].ExpiresAt = &past
		store.entitlements[ent.ID].DownloadCount = 1
		store.entitlements[ent.ID].Status = models.EntitlementStatusSuspended

		decision, err := svc.Validate(ctx, ent.DownloadToken)
		require.NoError(t, err)
		assert.Equal(t, models.DenyReasonSuspended, decision.Reason)
	})
}

func TestRecordDownload(t *testing.T) {
	ctx := context.Background()

	t.Run("sets first and last download timestamps", func(t *testing.T) {
		svc, _, productID := testService(t)
		ent, err := svc.Issue(ctx, productID, nil, nil, nil)
		require.NoError(t, err)

		updated, err := svc.RecordDownload(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, updated.DownloadCount)
		require.NotNil(t, updated.FirstDownloadAt)
		require.NotNil(t, updated.LastDownloadAt)

		first := *updated.FirstDownloadAt
		updated, err = svc.RecordDownload(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.DownloadCount)
		assert.Equal(t, first, *updated.FirstDownloadAt)
	})

	t.Run("no credit consumed past the limit", func(t *testing.T) {
		svc, _, productID := testService(t)
		ent, err := svc.Issue(ctx, productID, nil, intPtr(1), nil)
		require.NoError(t, err)

		_, err = svc.RecordDownload(ctx, ent.ID)
		require.NoError(t, err)

		_, err = svc.RecordDownload(ctx, ent.ID)
		require.ErrorIs(t, err, db.ErrNoDownloadCredit)

		stored, err := svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.DownloadCount)
	})
}

func TestOverride(t *testing.T) {
	ctx := context.Background()

	t.Run("reactivating a suspended entitlement restores access", func(t *testing.T) {
		svc, _, productID := testService(t)
		ent, err := svc.Issue(ctx, productID, nil, intPtr(5), nil)
		require.NoError(t, err)
		require.NoError(t, svc.Revoke(ctx, ent.ID))

		active := models.EntitlementStatusActive
		_, err = svc.Override(ctx, ent.ID, models.UpdateEntitlementRequest{Status: &active})
		require.NoError(t, err)

		decision, err := svc.Validate(ctx, ent.DownloadToken)
		require.NoError(t, err)
		assert.True(t, decision.Allow)
	})

	t.Run("lowering the limit below the count exhausts immediately", func(t *testing.T) {
		svc, _, productID := testService(t)
		ent, err := svc.Issue(ctx, productID, nil, intPtr(10), nil)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			_, err = svc.RecordDownload(ctx, ent.ID)
			require.NoError(t, err)
		}

		updated, err := svc.Override(ctx, ent.ID, models.UpdateEntitlementRequest{MaxDownloads: intPtr(2)})
		require.NoError(t, err)
		assert.Equal(t, models.EntitlementStatusExhausted, updated.Status)

		decision, err := svc.Validate(ctx, ent.DownloadToken)
		require.NoError(t, err)
		assert.Equal(t, models.DenyReasonExhausted, decision.Reason)
	})

	t.Run("clearing the limit reactivates an exhausted entitlement", func(t *testing.T) {
		svc, _, productID := testService(t)
		ent, err := svc.Issue(ctx, productID, nil, intPtr(1), nil)
		require.NoError(t, err)
		_, err = svc.RecordDownload(ctx, ent.ID)
		require.NoError(t, err)

		updated, err := svc.Override(ctx, ent.ID, models.UpdateEntitlementRequest{ClearMaxDownloads: true})
		require.NoError(t, err)
		assert.Equal(t, models.EntitlementStatusActive, updated.Status)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		svc, _, productID := testService(t)
		ent, err := svc.Issue(ctx, productID, nil, nil, nil)
		require.NoError(t, err)

		bogus := models.EntitlementStatus("frozen")
		_, err = svc.Override(ctx, ent.ID, models.UpdateEntitlementRequest{Status: &bogus})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("override does not silently unsuspend", func(t *testing.T) {
		svc, _, productID := testService(t)
		ent, err := svc.Issue(ctx, productID, nil, intPtr(5), nil)
		require.NoError(t, err)
		require.NoError(t, svc.Revoke(ctx, ent.ID))

		updated, err := svc.Override(ctx, ent.ID, models.UpdateEntitlementRequest{MaxDownloads: intPtr(10)})
		require.NoError(t, err)
		assert.Equal(t, models.EntitlementStatusSuspended, updated.Status)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, _, productID := testService(t)

	ent, err := svc.Issue(ctx, productID, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, ent.ID))

	_, err = svc.Validate(ctx, ent.DownloadToken)
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestEndToEndExhaustion(t *testing.T) {
	ctx := context.Background()
	svc, _, productID := testService(t)

	ent, err := svc.Issue(ctx, productID, nil, intPtr(3), nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		decision, err := svc.Validate(ctx, ent.DownloadToken)
		require.NoError(t, err)
		require.True(t, decision.Allow, "download %d should be allowed", i+1)

		_, err = svc.RecordDownload(ctx, ent.ID)
		require.NoError(t, err)
	}

	stored, err := svc.Get(ctx, ent.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.DownloadCount)
	assert.Equal(t, models.EntitlementStatusExhausted, stored.Status)

	decision, err := svc.Validate(ctx, ent.DownloadToken)
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.Equal(t, models.DenyReasonExhausted, decision.Reason)
}

func TestEndToEndExpiry(t *testing.T) {
	ctx := context.Background()
	svc, store, productID := testService(t)

	expiry := time.Now().Add(24 * time.Hour)
	ent, err := svc.Issue(ctx, productID, nil, nil, &expiry)
	require.NoError(t, err)

	decision, err := svc.Validate(ctx, ent.DownloadToken)
	require.NoError(t, err)
	require.True(t, decision.Allow)

	svc.now = func() time.Time { return expiry.Add(time.Second) }

	decision, err = svc.Validate(ctx, ent.DownloadToken)
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.Equal(t, models.DenyReasonExpired, decision.Reason)

	stored, err := store.GetEntitlementByID(ctx, ent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntitlementStatusExpired, stored.Status)
}

func TestInfo(t *testing.T) {
	ctx := context.Background()
	svc, _, productID := testService(t)

	ent, err := svc.Issue(ctx, productID, nil, intPtr(3), nil)
	require.NoError(t, err)
	_, err = svc.RecordDownload(ctx, ent.ID)
	require.NoError(t, err)

	info, err := svc.Info(ctx, ent.DownloadToken)
	require.NoError(t, err)
	assert.True(t, info.Allow)
	require.NotNil(t, info.Remaining)
	assert.Equal(t, 2, *info.Remaining)

	// Probing consumes nothing.
	stored, err := svc.Get(ctx, ent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.DownloadCount)
}
