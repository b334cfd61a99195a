package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a storefront purchaser known to the directory.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCustomer creates a new customer record.
func NewCustomer(email, name, company string) *Customer {
	now := time.Now()
	return &Customer{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		Company:   company,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateCustomerRequest is the request body for creating a customer.
type CreateCustomerRequest struct {
	Email   string `json:"email" binding:"required,email,max=255"`
	Name    string `json:"name" binding:"required,min=1,max=255"`
	Company string `json:"company,omitempty" binding:"omitempty,max=255"`
}

// UpdateCustomerRequest is the request body for updating a customer.
type UpdateCustomerRequest struct {
	Email   *string `json:"email,omitempty" binding:"omitempty,email,max=255"`
	Name    *string `json:"name,omitempty" binding:"omitempty,min=1,max=255"`
	Company *string `json:"company,omitempty" binding:"omitempty,max=255"`
}
