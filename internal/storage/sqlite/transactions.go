package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lkadlec/cashier/internal/fio"
	"github.com/lkadlec/cashier/pkg/logger"
)

// transactionDateLayout stores bank dates as plain ISO dates
const transactionDateLayout = "2006-01-02"

// TransactionStorage handles storage of bank transactions. Records are
// append-only and immutable.
type TransactionStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewTransactionStorage creates a new SQLite transaction storage
func NewTransactionStorage(db *sql.DB, logger *logger.Logger) (*TransactionStorage, error) {
	storage := &TransactionStorage{
		db:     db,
		logger: logger.Named("sqlite-transactions"),
	}
	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize transaction storage: %w", err)
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *TransactionStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			amount INTEGER NOT NULL,
			counterparty TEXT NOT NULL,
			message TEXT,
			date TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transactions table: %w", err)
	}
	return nil
}

// StoreTransaction stores a bank transaction if it is not stored yet and
// reports whether this call inserted it. Re-delivered transactions are
// absorbed without error so cycles stay idempotent.
func (s *TransactionStorage) StoreTransaction(transaction fio.Transaction) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO transactions (id, amount, counterparty, message, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		transaction.ID,
		transaction.Amount,
		transaction.From,
		transaction.Message,
		transaction.Date.Format(transactionDateLayout),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return inserted > 0, nil
}

// LastTransactionID returns the highest stored transaction id, used as
// the bank feed cursor. Returns an empty string when nothing is stored.
func (s *TransactionStorage) LastTransactionID() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM transactions ORDER BY CAST(id AS INTEGER) DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query last transaction: %w", err)
	}
	return id, nil
}

// GetTransactionByID returns one stored transaction, or ErrNotFound
func (s *TransactionStorage) GetTransactionByID(id string) (*fio.Transaction, error) {
	var transaction fio.Transaction
	var message sql.NullString
	var date string

	err := s.db.QueryRow(
		`SELECT id, amount, counterparty, message, date FROM transactions WHERE id = ?`,
		id,
	).Scan(&transaction.ID, &transaction.Amount, &transaction.From, &message, &date)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}

	transaction.Message = message.String
	transaction.Date, err = time.Parse(transactionDateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction date: %w", err)
	}

	return &transaction, nil
}
