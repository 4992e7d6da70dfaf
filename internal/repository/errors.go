package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	// ErrConflict is returned when a conditional update finds the record in an unexpected state.
	ErrConflict = errors.New("conditional write failed")
)

// Page is one slice of a paginated scan. Next is empty once the scan is exhausted.
type Page[K any] struct {
	Keys []K
	Next string
}

func isPgDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
