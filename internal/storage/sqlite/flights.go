package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lkadlec/cashier/internal/xcontest"
	"github.com/lkadlec/cashier/pkg/logger"
)

// FlightStorage handles storage of processed flights. A flight being
// present means it went through reconciliation; there is deliberately no
// separate "processed" marker.
type FlightStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewFlightStorage creates a new SQLite flight storage
func NewFlightStorage(db *sql.DB, logger *logger.Logger) (*FlightStorage, error) {
	storage := &FlightStorage{
		db:     db,
		logger: logger.Named("sqlite-flights"),
	}
	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize flight storage: %w", err)
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *FlightStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flights (
			id TEXT PRIMARY KEY,
			link TEXT NOT NULL,
			pilot_username TEXT NOT NULL,
			pilot_name TEXT,
			start TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flights table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_flights_pilot_username ON flights(pilot_username)`)
	if err != nil {
		return fmt.Errorf("failed to create flight index: %w", err)
	}

	return nil
}

// StoreFlight stores a flight if it is not stored yet. Repeated calls
// with the same flight id leave exactly one record.
func (s *FlightStorage) StoreFlight(flight xcontest.Flight) error {
	_, err := s.db.Exec(
		`INSERT INTO flights (id, link, pilot_username, pilot_name, start, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		flight.ID,
		flight.Link,
		flight.Pilot.Username,
		flight.Pilot.Name,
		flight.Start.Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert flight: %w", err)
	}
	return nil
}

// FlightExists reports whether a flight id is already stored
func (s *FlightStorage) FlightExists(id string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM flights WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query flight existence: %w", err)
	}
	return true, nil
}

// GetFlightByID returns one stored flight, or ErrNotFound
func (s *FlightStorage) GetFlightByID(id string) (*xcontest.Flight, error) {
	var flight xcontest.Flight
	var pilotName sql.NullString
	var start string

	err := s.db.QueryRow(
		`SELECT id, link, pilot_username, pilot_name, start FROM flights WHERE id = ?`,
		id,
	).Scan(&flight.ID, &flight.Link, &flight.Pilot.Username, &pilotName, &start)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query flight: %w", err)
	}

	flight.Pilot.Name = pilotName.String
	flight.Start, err = time.Parse(time.RFC3339, start)
	if err != nil {
		return nil, fmt.Errorf("failed to parse flight start: %w", err)
	}

	return &flight, nil
}
