package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/granta-app/granta/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const entitlementColumns = `id, download_token, product_id, customer_id, order_id,
       download_count, max_downloads, expires_at, status,
       first_download_at, last_download_at, created_at, updated_at`

// CreateEntitlement persists a new entitlement.
func (db *DB) CreateEntitlement(ctx context.Context, e *models.Entitlement) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO entitlements (id, download_token, product_id, customer_id, order_id,
		                          download_count, max_downloads, expires_at, status,
		                          created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.DownloadToken, e.ProductID, e.CustomerID, e.OrderID,
		e.DownloadCount, e.MaxDownloads, e.ExpiresAt, string(e.Status),
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create entitlement: %w", err)
	}
	return nil
}

// GetEntitlementByID returns an entitlement by ID.
func (db *DB) GetEntitlementByID(ctx context.Context, id uuid.UUID) (*models.Entitlement, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+entitlementColumns+`
		FROM entitlements
		WHERE id = $1
	`, id)
	e, err := scanEntitlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get entitlement: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get entitlement: %w", err)
	}
	return e, nil
}

// GetEntitlementByToken returns an entitlement by its download token.
func (db *DB) GetEntitlementByToken(ctx context.Context, token string) (*models.Entitlement, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+entitlementColumns+`
		FROM entitlements
		WHERE download_token = $1
	`, token)
	e, err := scanEntitlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get entitlement by token: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get entitlement by token: %w", err)
	}
	return e, nil
}

// RecordDownload consumes one download credit in a single conditional update.
// The count check lives in the WHERE clause so concurrent calls near the
// limit cannot both succeed; a call that finds no credit returns
// ErrNoDownloadCredit. When the increment reaches the ceiling the status is
// flipped to exhausted in the same statement.
func (db *DB) RecordDownload(ctx context.Context, id uuid.UUID) (*models.Entitlement, error) {
	now := time.Now()
	row := db.Pool.QueryRow(ctx, `
		UPDATE entitlements
		SET download_count = download_count + 1,
		    first_download_at = COALESCE(first_download_at, $2),
		    last_download_at = $2,
		    status = CASE
		        WHEN max_downloads IS NOT NULL AND download_count + 1 >= max_downloads
		        THEN 'exhausted'
		        ELSE status
		    END,
		    updated_at = $2
		WHERE id = $1
		  AND (max_downloads IS NULL OR download_count < max_downloads)
		RETURNING `+entitlementColumns+`
	`, id, now)
	e, err := scanEntitlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row is gone or the credit check failed; disambiguate.
			if _, getErr := db.GetEntitlementByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrNoDownloadCredit
		}
		return nil, fmt.Errorf("record download: %w", err)
	}
	return e, nil
}

// UpdateEntitlementStatus writes a corrected status back to storage. Used by
// the validator when it discovers expiry or exhaustion, and by revoke.
func (db *DB) UpdateEntitlementStatus(ctx context.Context, id uuid.UUID, status models.EntitlementStatus) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE entitlements
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("update entitlement status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update entitlement status: %w", ErrNotFound)
	}
	return nil
}

// UpdateEntitlement applies an administrative override to status, limit and
// expiry in one statement.
func (db *DB) UpdateEntitlement(ctx context.Context, e *models.Entitlement) error {
	e.UpdatedAt = time.Now()
	result, err := db.Pool.Exec(ctx, `
		UPDATE entitlements
		SET status = $2, max_downloads = $3, expires_at = $4, updated_at = $5
		WHERE id = $1
	`, e.ID, string(e.Status), e.MaxDownloads, e.ExpiresAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update entitlement: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update entitlement: %w", ErrNotFound)
	}
	return nil
}

// DeleteEntitlement permanently removes an entitlement.
func (db *DB) DeleteEntitlement(ctx context.Context, id uuid.UUID) error {
	result, err := db.Pool.Exec(ctx, `DELETE FROM entitlements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete entitlement: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete entitlement: %w", ErrNotFound)
	}
	return nil
}

// ListEntitlements returns entitlements matching the filter, newest first.
func (db *DB) ListEntitlements(ctx context.Context, filter models.EntitlementFilter) ([]*models.Entitlement, error) {
	var conditions []string
	var args []any

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ProductID != nil {
		args = append(args, *filter.ProductID)
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, escapeLike(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("download_token LIKE $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT `+entitlementColumns+`
		FROM entitlements
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	var entitlements []*models.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		entitlements = append(entitlements, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entitlements: %w", err)
	}

	return entitlements, nil
}

// GetEntitlementSummary returns the per-status counts for the admin surface.
func (db *DB) GetEntitlementSummary(ctx context.Context) (*models.EntitlementSummary, error) {
	summary := &models.EntitlementSummary{}
	err := db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE status = 'active') as active,
			COUNT(*) FILTER (WHERE status = 'expired') as expired,
			COUNT(*) FILTER (WHERE status = 'suspended') as suspended,
			COUNT(*) FILTER (WHERE status = 'exhausted') as exhausted
		FROM entitlements
	`).Scan(
		&summary.Total,
		&summary.Active,
		&summary.Expired,
		&summary.Suspended,
		&summary.Exhausted,
	)
	if err != nil {
		return nil, fmt.Errorf("get entitlement summary: %w", err)
	}
	return summary, nil
}

// GetEntitlementsByOrderID returns all entitlements issued for an order.
func (db *DB) GetEntitlementsByOrderID(ctx context.Context, orderID uuid.UUID) ([]*models.Entitlement, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+entitlementColumns+`
		FROM entitlements
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements by order: %w", err)
	}
	defer rows.Close()

	var entitlements []*models.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		entitlements = append(entitlements, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entitlements: %w", err)
	}
	return entitlements, nil
}

// SuspendEntitlementsByOrderID suspends every entitlement issued for an
// order. Used by the refund path.
func (db *DB) SuspendEntitlementsByOrderID(ctx context.Context, orderID uuid.UUID) (int64, error) {
	result, err := db.Pool.Exec(ctx, `
		UPDATE entitlements
		SET status = 'suspended', updated_at = $2
		WHERE order_id = $1
	`, orderID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("suspend entitlements by order: %w", err)
	}
	return result.RowsAffected(), nil
}

// ExpireStaleEntitlements flips active entitlements whose expiry has passed
// to expired. The validator never trusts the stored status for expiry, so
// this is cache hygiene for the admin surface.
func (db *DB) ExpireStaleEntitlements(ctx context.Context) (int64, error) {
	result, err := db.Pool.Exec(ctx, `
		UPDATE entitlements
		SET status = 'expired', updated_at = $1
		WHERE status = 'active'
		  AND expires_at IS NOT NULL
		  AND expires_at <= $1
	`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("expire stale entitlements: %w", err)
	}
	return result.RowsAffected(), nil
}

// scanEntitlement scans an entitlement from a row.
func scanEntitlement(row interface {
	Scan(dest ...any) error
}) (*models.Entitlement, error) {
	var e models.Entitlement
	var statusStr string
	err := row.Scan(
		&e.ID, &e.DownloadToken, &e.ProductID, &e.CustomerID, &e.OrderID,
		&e.DownloadCount, &e.MaxDownloads, &e.ExpiresAt, &statusStr,
		&e.FirstDownloadAt, &e.LastDownloadAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = models.EntitlementStatus(statusStr)
	return &e, nil
}

// likeEscaper neutralizes LIKE metacharacters so search terms match
// token prefixes literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
