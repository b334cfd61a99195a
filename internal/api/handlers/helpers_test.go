package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/entitlement"
	"github.com/granta-app/granta/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// entStore is an in-memory entitlement.Store backing service-based handler
// tests. It mirrors the conditional-increment semantics of the Postgres
// store.
type entStore struct {
	products     map[uuid.UUID]*models.Product
	customers    map[uuid.UUID]*models.Customer
	entitlements map[uuid.UUID]*models.Entitlement
}

func newEntStore() *entStore {
	return &entStore{
		products:     make(map[uuid.UUID]*models.Product),
		customers:    make(map[uuid.UUID]*models.Customer),
		entitlements: make(map[uuid.UUID]*models.Entitlement),
	}
}

func (m *entStore) GetProductByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("get product: %w", db.ErrNotFound)
	}
	return p, nil
}

func (m *entStore) GetCustomerByID(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, fmt.Errorf("get customer: %w", db.ErrNotFound)
	}
	return c, nil
}

func (m *entStore) CreateEntitlement(_ context.Context, e *models.Entitlement) error {
	copied := *e
	m.entitlements[e.ID] = &copied
	return nil
}

func (m *entStore) GetEntitlementByID(_ context.Context, id uuid.UUID) (*models.Entitlement, error) {
	e, ok := m.entitlements[id]
	if !ok {
		return nil, fmt.Errorf("get entitlement: %w", db.ErrNotFound)
	}
	copied := *e
	return &copied, nil
}

func (m *entStore) GetEntitlementByToken(_ context.Context, token string) (*models.Entitlement, error) {
	for _, e := range m.entitlements {
		if e.DownloadToken == token {
			copied := *e
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("get entitlement by token: %w", db.ErrNotFound)
}

func (m *entStore) RecordDownload(_ context.Context, id uuid.UUID) (*models.Entitlement, error) {
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

func (m *entStore) UpdateEntitlementStatus(_ context.Context, id uuid.UUID, status models.EntitlementStatus) error {
	e, ok := m.entitlements[id]
	if !ok {
		return fmt.Errorf("update entitlement status: %w", db.ErrNotFound)
	}
	e.Status = status
	e.UpdatedAt = time.Now()
	return nil
}

func (m *entStore) UpdateEntitlement(_ context.Context, e *models.Entitlement) error {
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

func (m *entStore) DeleteEntitlement(_ context.Context, id uuid.UUID) error {
	if _, ok := m.entitlements[id]; !ok {
		return fmt.Errorf("delete entitlement: %w", db.ErrNotFound)
	}
	delete(m.entitlements, id)
	return nil
}

func (m *entStore) ListEntitlements(_ context.Context, filter models.EntitlementFilter) ([]*models.Entitlement, error) {
	var out []*models.Entitlement
	for _, e := range m.entitlements {
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.ProductID != nil && e.ProductID != *filter.ProductID {
			continue
		}
		if filter.CustomerID != nil && (e.CustomerID == nil || *e.CustomerID != *filter.CustomerID) {
			continue
		}
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

func (m *entStore) GetEntitlementSummary(_ context.Context) (*models.EntitlementSummary, error) {
	summary := &models.EntitlementSummary{}
	for _, e := range m.entitlements {
		summary.Total++
		switch e.Status {
		case models.EntitlementStatusActive:
			summary.Active++
		case models.EntitlementStatusExpired:
			summary.Expired++
		case models.EntitlementStatusSuspended:
			summary.Suspended++
		case models.EntitlementStatusExhausted:
			summary.Exhausted++
		}
	}
	return summary, nil
}

// addProduct seeds a digital product and returns it.
func (m *entStore) addProduct(t *testing.T, productType models.ProductType) *models.Product {
	t.Helper()
	product := models.NewProduct("Yearly Report", "yearly-report", productType, 4900, "USD")
	fileKey := "products/" + product.ID.String() + "/report.pdf"
	fileName := "report.pdf"
	contentType := "application/pdf"
	product.FileKey = &fileKey
	product.FileName = &fileName
	product.ContentType = &contentType
	m.products[product.ID] = product
	return product
}

// newTestService wires an entitlement service over the in-memory store.
func newTestService(store *entStore) *entitlement.Service {
	return entitlement.NewService(store, zerolog.Nop())
}

// performJSON issues a request with an optional JSON body against the router.
func performJSON(t *testing.T, r *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decodeJSON unmarshals a recorded response body.
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func assertJSONError(t *testing.T, w *httptest.ResponseRecorder, wantStatus int) map[string]any {
	t.Helper()
	require.Equal(t, wantStatus, w.Code, "body: %s", w.Body.String())
	var body map[string]any
	decodeJSON(t, w, &body)
	return body
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func int64Ptr(n int64) *int64 { return &n }

func boolPtr(b bool) *bool { return &b }

func timePtr(t time.Time) *time.Time { return &t }
