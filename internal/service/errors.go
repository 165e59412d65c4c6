package service

import (
	"strings"

	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("relation already exists")
	ErrSelfFollow       = errors.New("user cannot follow themselves")
	ErrUniqueConflict   = errors.New("duplicate natural key")
	ErrNotAuthenticated = errors.New("authentication required")
)

// ValidationError carries every violated input rule, not just the first one.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// sqlite (tests) reports unique violations as plain text
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
