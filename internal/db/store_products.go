package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/granta-app/granta/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const productColumns = `id, name, slug, type, description, price_cents, currency,
       file_key, file_name, file_size_bytes, content_type, active,
       created_at, updated_at`

// CreateProduct creates a new product.
func (db *DB) CreateProduct(ctx context.Context, p *models.Product) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO products (id, name, slug, type, description, price_cents, currency,
		                      file_key, file_name, file_size_bytes, content_type, active,
		                      created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, p.ID, p.Name, p.Slug, string(p.Type), p.Description, p.PriceCents, p.Currency,
		p.FileKey, p.FileName, p.FileSizeBytes, p.ContentType, p.Active,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// GetProductByID returns a product by ID.
func (db *DB) GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get product: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetProductBySlug returns a product by its slug.
func (db *DB) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE slug = $1
	`, slug)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get product by slug: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get product by slug: %w", err)
	}
	return p, nil
}

// ListProducts returns all products ordered by name.
func (db *DB) ListProducts(ctx context.Context) ([]*models.Product, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// UpdateProduct updates a product's editable fields.
func (db *DB) UpdateProduct(ctx context.Context, p *models.Product) error {
	p.UpdatedAt = time.Now()
	result, err := db.Pool.Exec(ctx, `
		UPDATE products
		SET name = $2, description = $3, price_cents = $4, currency = $5,
		    active = $6, updated_at = $7
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.PriceCents, p.Currency, p.Active, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update product: %w", ErrNotFound)
	}
	return nil
}

// SetProductFile attaches an uploaded file to a product.
func (db *DB) SetProductFile(ctx context.Context, id uuid.UUID, fileKey, fileName, contentType string, sizeBytes int64) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE products
		SET file_key = $2, file_name = $3, content_type = $4,
		    file_size_bytes = $5, updated_at = $6
		WHERE id = $1
	`, id, fileKey, fileName, contentType, sizeBytes, time.Now())
	if err != nil {
		return fmt.Errorf("set product file: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("set product file: %w", ErrNotFound)
	}
	return nil
}

// DeleteProduct deletes a product by ID.
func (db *DB) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	result, err := db.Pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete product: %w", ErrNotFound)
	}
	return nil
}

// scanProduct scans a product from a row.
func scanProduct(row interface {
	Scan(dest ...any) error
}) (*models.Product, error) {
	var p models.Product
	var typeStr string
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &typeStr, &p.Description, &p.PriceCents, &p.Currency,
		&p.FileKey, &p.FileName, &p.FileSizeBytes, &p.ContentType, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Type = models.ProductType(typeStr)
	return &p, nil
}
