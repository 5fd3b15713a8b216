package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports whether err is a unique-constraint violation.
// Losing an insert race is benign for idempotent writers; callers re-fetch the winner.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsLockTimeoutErr reports whether err is a lock-wait timeout. Lock waits are
// transient: the caller leaves durable state unchanged and lets the worker redrive.
func IsLockTimeoutErr(err error) bool {
	if err == nil {
		return false
	}

	// PostgreSQL (error code 55P03)
	if strings.Contains(err.Error(), "could not obtain lock") {
		return true
	}

	// MySQL (error code 1205)
	if strings.Contains(err.Error(), "Lock wait timeout exceeded") {
		return true
	}

	// SQLite
	if strings.Contains(err.Error(), "database is locked") {
		return true
	}

	return false
}
