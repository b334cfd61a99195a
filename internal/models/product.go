package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductType represents how a product is fulfilled.
type ProductType string

const (
	// ProductTypeDigital is fulfilled by file download only.
	ProductTypeDigital ProductType = "digital"
	// ProductTypePhysical is shipped; no download entitlements.
	ProductTypePhysical ProductType = "physical"
	// ProductTypeHybrid ships and also carries a downloadable file.
	ProductTypeHybrid ProductType = "hybrid"
)

// ValidProductTypes returns all valid product types.
func ValidProductTypes() []ProductType {
	return []ProductType{ProductTypeDigital, ProductTypePhysical, ProductTypeHybrid}
}

// IsValid checks if the product type is a known value.
func (t ProductType) IsValid() bool {
	for _, valid := range ValidProductTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// IsDigitalCapable returns true if the type can carry a downloadable file.
func (t ProductType) IsDigitalCapable() bool {
	return t == ProductTypeDigital || t == ProductTypeHybrid
}

// Product is a catalog entry. Digital-capable products reference a file in
// object storage via FileKey.
type Product struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Slug          string      `json:"slug"`
	Type          ProductType `json:"type"`
	Description   string      `json:"description,omitempty"`
	PriceCents    int64       `json:"price_cents"`
	Currency      string      `json:"currency"`
	FileKey       *string     `json:"file_key,omitempty"`
	FileName      *string     `json:"file_name,omitempty"`
	FileSizeBytes *int64      `json:"file_size_bytes,omitempty"`
	ContentType   *string     `json:"content_type,omitempty"`
	Active        bool        `json:"active"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewProduct creates a new active product.
func NewProduct(name, slug string, productType ProductType, priceCents int64, currency string) *Product {
	now := time.Now()
	return &Product{
		ID:         uuid.New(),
		Name:       name,
		Slug:       slug,
		Type:       productType,
		PriceCents: priceCents,
		Currency:   currency,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsDigitalCapable returns true if entitlements can be issued for the product.
func (p *Product) IsDigitalCapable() bool {
	return p.Type.IsDigitalCapable()
}

// HasFile returns true if a file has been attached to the product.
func (p *Product) HasFile() bool {
	return p.FileKey != nil && *p.FileKey != ""
}

// CreateProductRequest is the request body for creating a product.
type CreateProductRequest struct {
	Name        string      `json:"name" binding:"required,min=1,max=255"`
	Slug        string      `json:"slug,omitempty" binding:"omitempty,max=255"`
	Type        ProductType `json:"type" binding:"required"`
	Description string      `json:"description,omitempty"`
	PriceCents  int64       `json:"price_cents" binding:"min=0"`
	Currency    string      `json:"currency,omitempty" binding:"omitempty,len=3"`
}

// UpdateProductRequest is the request body for updating a product.
type UpdateProductRequest struct {
	Name        *string `json:"name,omitempty" binding:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty" binding:"omitempty,min=0"`
	Currency    *string `json:"currency,omitempty" binding:"omitempty,len=3"`
	Active      *bool   `json:"active,omitempty"`
}
