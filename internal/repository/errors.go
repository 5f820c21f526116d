package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Repository level sentinels mapped to typed errors by services.
var (
	ErrDuplicateProtocol = errors.New("duplicate protocol")
	ErrVersionConflict   = errors.New("version conflict")
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique violation on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == uniqueViolation && pqErr.Constraint == constraint
}
