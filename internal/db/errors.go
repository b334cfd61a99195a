package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrNoDownloadCredit is returned when a conditional download increment finds
// no remaining credit. The caller treats this as exhaustion, not a fault.
var ErrNoDownloadCredit = errors.New("no download credit remaining")

// IsUniqueViolation reports whether an error is a Postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
