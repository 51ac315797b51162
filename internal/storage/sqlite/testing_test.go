package sqlite

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lkadlec/cashier/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	return log
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// one in-memory database, one connection
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestMembershipStorage(t *testing.T, db *sql.DB) *MembershipStorage {
	t.Helper()
	storage, err := NewMembershipStorage(db, []int{150}, []int{500}, testLogger(t))
	require.NoError(t, err)
	return storage
}
