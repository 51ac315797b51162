package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/lkadlec/cashier/pkg/logger"
)

// ErrNotFound is returned by single-record getters when nothing matches
var ErrNotFound = errors.New("storage: not found")

// New opens (and creates if needed) the SQLite database
func New(path string, log *logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to apply pragma: %w", err)
		}
	}

	log.Named("sqlite").Info("Database opened", logger.String("path", path))
	return db, nil
}

// isUniqueViolation reports whether an insert hit a unique index
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
