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

// CreateCustomer creates a new customer.
func (db *DB) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO customers (id, email, name, company, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.Email, c.Name, c.Company, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

// GetCustomerByID returns a customer by ID.
func (db *DB) GetCustomerByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := db.Pool.QueryRow(ctx, `
		SELECT id, email, name, company, created_at, updated_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Email, &c.Name, &c.Company, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get customer: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

// GetCustomerByEmail returns a customer by email.
func (db *DB) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var c models.Customer
	err := db.Pool.QueryRow(ctx, `
		SELECT id, email, name, company, created_at, updated_at
		FROM customers
		WHERE email = $1
	`, email).Scan(&c.ID, &c.Email, &c.Name, &c.Company, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get customer by email: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get customer by email: %w", err)
	}
	return &c, nil
}

// ListCustomers returns all customers ordered by name.
func (db *DB) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, email, name, company, created_at, updated_at
		FROM customers
		ORDER BY name, email
	`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Email, &c.Name, &c.Company, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

// UpdateCustomer updates a customer's details.
func (db *DB) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	c.UpdatedAt = time.Now()
	result, err := db.Pool.Exec(ctx, `
		UPDATE customers
		SET email = $2, name = $3, company = $4, updated_at = $5
		WHERE id = $1
	`, c.ID, c.Email, c.Name, c.Company, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update customer: %w", ErrNotFound)
	}
	return nil
}

// DeleteCustomer deletes a customer by ID.
func (db *DB) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	result, err := db.Pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete customer: %w", ErrNotFound)
	}
	return nil
}
