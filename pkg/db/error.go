package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports whether err is a unique constraint violation on
// any of the supported dialects.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()
	switch {
	// PostgreSQL (23505)
	case strings.Contains(msg, "duplicate key value violates unique constraint"):
		return true
	// MySQL (1062)
	case strings.Contains(msg, "Error 1062"):
		return true
	// SQLite (2067)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return true
	}
	return false
}
