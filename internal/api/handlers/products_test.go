package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type productStoreMock struct {
	products map[uuid.UUID]*models.Product
}

func newProductStoreMock() *productStoreMock {
	return &productStoreMock{products: make(map[uuid.UUID]*models.Product)}
}

func (m *productStoreMock) CreateProduct(_ context.Context, p *models.Product) error {
	for _, existing := range m.products {
		if existing.Slug == p.Slug {
			return &pgconn.PgError{Code: "23505", ConstraintName: "products_slug_key"}
		}
	}
	copied := *p
	m.products[p.ID] = &copied
	return nil
}

func (m *productStoreMock) GetProductByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("get product: %w", db.ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

func (m *productStoreMock) GetProductBySlug(_ context.Context, slug string) (*models.Product, error) {
	for _, p := range m.products {
		if p.Slug == slug {
			copied := *p
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("get product by slug: %w", db.ErrNotFound)
}

func (m *productStoreMock) ListProducts(_ context.Context) ([]*models.Product, error) {
	var out []*models.Product
	for _, p := range m.products {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (m *productStoreMock) UpdateProduct(_ context.Context, p *models.Product) error {
	stored, ok := m.products[p.ID]
	if !ok {
		return fmt.Errorf("update product: %w", db.ErrNotFound)
	}
	*stored = *p
	stored.UpdatedAt = time.Now()
	return nil
}

func (m *productStoreMock) SetProductFile(_ context.Context, id uuid.UUID, fileKey, fileName, contentType string, sizeBytes int64) error {
	p, ok := m.products[id]
	if !ok {
		return fmt.Errorf("set product file: %w", db.ErrNotFound)
	}
	p.FileKey = &fileKey
	p.FileName = &fileName
	p.ContentType = &contentType
	p.FileSizeBytes = &sizeBytes
	p.UpdatedAt = time.Now()
	return nil
}

func (m *productStoreMock) DeleteProduct(_ context.Context, id uuid.UUID) error {
	if _, ok := m.products[id]; !ok {
		return fmt.Errorf("delete product: %w", db.ErrNotFound)
	}
	delete(m.products, id)
	return nil
}

// fakeUploader records what was stored and echoes the key back.
type fakeUploader struct {
	keys         []string
	contentTypes []string
	sizes        []int
}

func (f *fakeUploader) Put(_ context.Context, key, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	f.contentTypes = append(f.contentTypes, contentType)
	f.sizes = append(f.sizes, len(data))
	return key, nil
}

func setupProductsRouter(store ProductStore, files FileUploader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewProductsHandler(store, files, zerolog.Nop())
	handler.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func seedProduct(store *productStoreMock, productType models.ProductType) *models.Product {
	product := models.NewProduct("Audio Pack", "audio-pack", productType, 1900, "USD")
	store.products[product.ID] = product
	return product
}

func TestProductsCreate(t *testing.T) {
	t.Run("creates with generated slug", func(t *testing.T) {
		store := newProductStoreMock()
		r := setupProductsRouter(store, &fakeUploader{})

		w := performJSON(t, r, http.MethodPost, "/api/v1/products", models.CreateProductRequest{
			Name:       "Guide Métier 2026",
			Type:       models.ProductTypeDigital,
			PriceCents: 2500,
		})
		require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

		var product models.Product
		decodeJSON(t, w, &product)
		assert.Equal(t, "guide-metier-2026", product.Slug)
		assert.Equal(t, "USD", product.Currency)
		assert.True(t, product.Active)
	})

	t.Run("duplicate slug conflicts", func(t *testing.T) {
		store := newProductStoreMock()
		seedProduct(store, models.ProductTypeDigital)
		r := setupProductsRouter(store, &fakeUploader{})

		w := performJSON(t, r, http.MethodPost, "/api/v1/products", models.CreateProductRequest{
			Name: "Audio Pack",
			Slug: "audio-pack",
			Type: models.ProductTypeDigital,
		})
		assertJSONError(t, w, http.StatusConflict)
	})

	t.Run("invalid type", func(t *testing.T) {
		store := newProductStoreMock()
		r := setupProductsRouter(store, &fakeUploader{})

		w := performJSON(t, r, http.MethodPost, "/api/v1/products", models.CreateProductRequest{
			Name: "Mystery",
			Type: models.ProductType("subscription"),
		})
		assertJSONError(t, w, http.StatusBadRequest)
	})

	t.Run("invalid slug", func(t *testing.T) {
		store := newProductStoreMock()
		r := setupProductsRouter(store, &fakeUploader{})

		w := performJSON(t, r, http.MethodPost, "/api/v1/products", models.CreateProductRequest{
			Name: "Bad Slug",
			Slug: "Bad_Slug!",
			Type: models.ProductTypeDigital,
		})
		assertJSONError(t, w, http.StatusBadRequest)
	})
}

func TestProductsGet(t *testing.T) {
	store := newProductStoreMock()
	product := seedProduct(store, models.ProductTypeDigital)
	r := setupProductsRouter(store, &fakeUploader{})

	t.Run("found", func(t *testing.T) {
		w := performJSON(t, r, http.MethodGet, "/api/v1/products/"+product.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got models.Product
		decodeJSON(t, w, &got)
		assert.Equal(t, product.ID, got.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := performJSON(t, r, http.MethodGet, "/api/v1/products/"+uuid.NewString(), nil)
		assertJSONError(t, w, http.StatusNotFound)
	})
}

func TestProductsUpdate(t *testing.T) {
	store := newProductStoreMock()
	product := seedProduct(store, models.ProductTypeDigital)
	r := setupProductsRouter(store, &fakeUploader{})

	w := performJSON(t, r, http.MethodPut, "/api/v1/products/"+product.ID.String(), models.UpdateProductRequest{
		Name:       strPtr("Audio Pack Deluxe"),
		PriceCents: int64Ptr(2900),
		Currency:   strPtr("eur"),
		Active:     boolPtr(false),
	})
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	var got models.Product
	decodeJSON(t, w, &got)
	assert.Equal(t, "Audio Pack Deluxe", got.Name)
	assert.Equal(t, int64(2900), got.PriceCents)
	assert.Equal(t, "EUR", got.Currency)
	assert.False(t, got.Active)
}

func TestProductsDelete(t *testing.T) {
	store := newProductStoreMock()
	product := seedProduct(store, models.ProductTypeDigital)
	r := setupProductsRouter(store, &fakeUploader{})

	w := performJSON(t, r, http.MethodDelete, "/api/v1/products/"+product.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, store.products)
}

func multipartUpload(t *testing.T, fieldName, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestProductsUploadFile(t *testing.T) {
	t.Run("stores file under product key", func(t *testing.T) {
		store := newProductStoreMock()
		product := seedProduct(store, models.ProductTypeDigital)
		uploader := &fakeUploader{}
		r := setupProductsRouter(store, uploader)

		body, contentType := multipartUpload(t, "file", "album.zip", "zip bytes")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+product.ID.String()+"/file", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
		require.Len(t, uploader.keys, 1)
		assert.Equal(t, "products/"+product.ID.String()+"/album.zip", uploader.keys[0])
		assert.Equal(t, len("zip bytes"), uploader.sizes[0])

		stored := store.products[product.ID]
		require.NotNil(t, stored.FileKey)
		assert.Equal(t, uploader.keys[0], *stored.FileKey)
		require.NotNil(t, stored.FileName)
		assert.Equal(t, "album.zip", *stored.FileName)
	})

	t.Run("rejects physical product", func(t *testing.T) {
		store := newProductStoreMock()
		product := seedProduct(store, models.ProductTypePhysical)
		uploader := &fakeUploader{}
		r := setupProductsRouter(store, uploader)

		body, contentType := multipartUpload(t, "file", "album.zip", "zip bytes")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+product.ID.String()+"/file", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, uploader.keys)
	})

	t.Run("missing file field", func(t *testing.T) {
		store := newProductStoreMock()
		product := seedProduct(store, models.ProductTypeDigital)
		r := setupProductsRouter(store, &fakeUploader{})

		body, contentType := multipartUpload(t, "attachment", "album.zip", "zip bytes")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+product.ID.String()+"/file", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProductsList(t *testing.T) {
	store := newProductStoreMock()
	seedProduct(store, models.ProductTypeDigital)
	r := setupProductsRouter(store, &fakeUploader{})

	w := performJSON(t, r, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Products []*models.Product `json:"products"`
	}
	decodeJSON(t, w, &body)
	assert.Len(t, body.Products, 1)
}
