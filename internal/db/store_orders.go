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

// CreateOrder persists an order and its line items in one transaction.
func (db *DB) CreateOrder(ctx context.Context, o *models.Order) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, processor_ref, customer_id, status, total_cents, currency,
			                    created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, o.ID, o.ProcessorRef, o.CustomerID, string(o.Status), o.TotalCents, o.Currency,
			o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range o.Items {
			_, err := tx.Exec(ctx, `
				INSERT INTO order_items (id, order_id, product_id, quantity, unit_price_cents)
				VALUES ($1, $2, $3, $4, $5)
			`, item.ID, o.ID, item.ProductID, item.Quantity, item.UnitPriceCents)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		return nil
	})
}

// GetOrderByID returns an order with its line items.
func (db *DB) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, processor_ref, customer_id, status, total_cents, currency, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id)
	return db.scanOrderWithItems(ctx, row)
}

// GetOrderByProcessorRef returns an order by the payment processor's
// reference. This is the idempotency key for webhook replays.
func (db *DB) GetOrderByProcessorRef(ctx context.Context, ref string) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, processor_ref, customer_id, status, total_cents, currency, created_at, updated_at
		FROM orders
		WHERE processor_ref = $1
	`, ref)
	return db.scanOrderWithItems(ctx, row)
}

// ListOrders returns orders newest first.
func (db *DB) ListOrders(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, processor_ref, customer_id, status, total_cents, currency, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		var o models.Order
		var statusStr string
		if err := rows.Scan(&o.ID, &o.ProcessorRef, &o.CustomerID, &statusStr,
			&o.TotalCents, &o.Currency, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = models.OrderStatus(statusStr)
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus updates an order's payment status.
func (db *DB) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE orders
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update order status: %w", ErrNotFound)
	}
	return nil
}

// GetOrderItems returns the line items of an order.
func (db *DB) GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price_cents
		FROM order_items
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID,
			&item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (db *DB) scanOrderWithItems(ctx context.Context, row interface {
	Scan(dest ...any) error
}) (*models.Order, error) {
	var o models.Order
	var statusStr string
	err := row.Scan(&o.ID, &o.ProcessorRef, &o.CustomerID, &statusStr,
		&o.TotalCents, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get order: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = models.OrderStatus(statusStr)

	items, err := db.GetOrderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}
