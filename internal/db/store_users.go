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

// CreateUser creates a new admin user.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.Name, string(u.Role), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByID returns a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, email, name, role, password_hash, last_login_at, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

// GetUserByEmail returns a user by email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, email, name, role, password_hash, last_login_at, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row)
}

// CountUsers returns the number of admin users. Used during first boot to
// decide whether to seed the initial admin account.
func (db *DB) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// TouchUserLogin records a successful login time.
func (db *DB) TouchUserLogin(ctx context.Context, id uuid.UUID) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE users
		SET last_login_at = $2, updated_at = $2
		WHERE id = $1
	`, id, time.Now())
	if err != nil {
		return fmt.Errorf("touch user login: %w", err)
	}
	return nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*models.User, error) {
	var u models.User
	var roleStr string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &roleStr, &u.PasswordHash,
		&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get user: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = models.UserRole(roleStr)
	return &u, nil
}
