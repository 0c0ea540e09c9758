package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	// drivers that do not translate errors
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
