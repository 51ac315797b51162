package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lkadlec/cashier/internal/xcontest"
	"github.com/lkadlec/cashier/pkg/logger"
)

// MembershipType is a closed set: a membership is either a single-day or
// a full-year pass. Call sites switch exhaustively so a future third type
// fails loudly instead of silently.
type MembershipType string

const (
	// TypeDaily is a single-day pass; its used_for value is an ISO date
	TypeDaily MembershipType = "DAILY"
	// TypeYearly is a full-year pass; its used_for value is a year
	TypeYearly MembershipType = "YEARLY"
)

// ParseMembershipType parses a membership type from user input
func ParseMembershipType(input string) (MembershipType, error) {
	switch MembershipType(strings.ToUpper(input)) {
	case TypeDaily:
		return TypeDaily, nil
	case TypeYearly:
		return TypeYearly, nil
	default:
		return "", fmt.Errorf("membership type must be either %s or %s", TypeDaily, TypeYearly)
	}
}

// Membership is a fee-payment entitlement created by pairing one bank
// transaction to a pilot. UsedFor is empty until the membership is
// consumed by a flight: then it holds the flight's year (yearly) or ISO
// date (daily) and never reverts.
type Membership struct {
	TransactionID string
	Type          MembershipType
	Pilot         xcontest.Pilot
	DatePaired    time.Time
	UsedFor       string
}

// DuplicateMembershipError is the expected business conflict when a
// transaction is paired a second time.
type DuplicateMembershipError struct {
	Type          MembershipType
	PilotUsername string
}

func (e *DuplicateMembershipError) Error() string {
	return fmt.Sprintf("this transaction is already paired as %s for pilot %s", e.Type, e.PilotUsername)
}

// MembershipStorage handles membership persistence and the resolution
// policy picking the best membership for a flight.
type MembershipStorage struct {
	db            *sql.DB
	dailyAmounts  []int
	yearlyAmounts []int
	logger        *logger.Logger
}

// NewMembershipStorage creates a new SQLite membership storage. The
// amount tables map exact transaction amounts to suggested membership
// types; they are club policy and come from configuration.
func NewMembershipStorage(db *sql.DB, dailyAmounts, yearlyAmounts []int, logger *logger.Logger) (*MembershipStorage, error) {
	storage := &MembershipStorage{
		db:            db,
		dailyAmounts:  dailyAmounts,
		yearlyAmounts: yearlyAmounts,
		logger:        logger.Named("sqlite-memberships"),
	}
	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize membership storage: %w", err)
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *MembershipStorage) initDB() error {
	// transaction_id is the primary key: one membership per transaction
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memberships (
			transaction_id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			pilot_username TEXT NOT NULL,
			pilot_name TEXT,
			pilot_site_id INTEGER,
			date_paired TEXT NOT NULL,
			used_for TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create memberships table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_memberships_pilot_username ON memberships(pilot_username)`)
	if err != nil {
		return fmt.Errorf("failed to create membership index: %w", err)
	}

	return nil
}

// CreateMembership inserts a membership, rejecting a second pairing of
// the same transaction with DuplicateMembershipError.
func (s *MembershipStorage) CreateMembership(membership *Membership) error {
	_, err := s.db.Exec(
		`INSERT INTO memberships (transaction_id, type, pilot_username, pilot_name, pilot_site_id, date_paired, used_for)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		membership.TransactionID,
		string(membership.Type),
		membership.Pilot.Username,
		membership.Pilot.Name,
		membership.Pilot.SiteID,
		membership.DatePaired.Format(transactionDateLayout),
		nullable(membership.UsedFor),
	)
	if isUniqueViolation(err) {
		existing, getErr := s.getByTransactionID(membership.TransactionID)
		if getErr != nil {
			return fmt.Errorf("failed to load conflicting membership: %w", getErr)
		}
		return &DuplicateMembershipError{Type: existing.Type, PilotUsername: existing.Pilot.Username}
	}
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// GetByFlight returns the most suitable membership for the flight's
// pilot, or nil when the flight is unpaid. "Most suitable" means, in
// strict order:
//
//  1. Yearly membership bound to the flight's year.
//  2. Daily membership bound to the flight's date.
//  3. Unbound yearly membership.
//  4. Unbound daily membership.
//
// Bound memberships outrank unbound ones so a re-run recognizes a
// previously consumed pass instead of consuming another one.
func (s *MembershipStorage) GetByFlight(flight xcontest.Flight) (*Membership, error) {
	flightYear := strconv.Itoa(flight.Start.Year())
	flightDate := flight.Start.Format(transactionDateLayout)

	probes := []struct {
		membershipType MembershipType
		usedFor        string
	}{
		{TypeYearly, flightYear},
		{TypeDaily, flightDate},
		{TypeYearly, ""},
		{TypeDaily, ""},
	}

	for _, probe := range probes {
		query := `SELECT transaction_id, type, pilot_username, pilot_name, pilot_site_id, date_paired, used_for
			FROM memberships WHERE pilot_username = ? AND type = ?`
		args := []any{flight.Pilot.Username, string(probe.membershipType)}
		if probe.usedFor == "" {
			query += ` AND used_for IS NULL`
		} else {
			query += ` AND used_for = ?`
			args = append(args, probe.usedFor)
		}

		membership, err := s.scanMembership(s.db.QueryRow(query+` LIMIT 1`, args...))
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query membership: %w", err)
		}
		return membership, nil
	}

	return nil, nil
}

// SetUsedFor binds a membership to the flight that consumed it: the
// flight's year for a yearly pass, the flight's date for a daily one.
// Re-binding with the same flight is a no-op.
func (s *MembershipStorage) SetUsedFor(membership *Membership, flight xcontest.Flight) error {
	var usedFor string
	switch membership.Type {
	case TypeYearly:
		usedFor = strconv.Itoa(flight.Start.Year())
	case TypeDaily:
		usedFor = flight.Start.Format(transactionDateLayout)
	default:
		return fmt.Errorf("unmapped membership type %q", membership.Type)
	}

	_, err := s.db.Exec(
		`UPDATE memberships SET used_for = ? WHERE transaction_id = ?`,
		usedFor,
		membership.TransactionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}

	membership.UsedFor = usedFor
	return nil
}

// TypeFromAmount suggests a membership type for a transaction amount.
// Amounts outside the configured tables stay undetermined rather than
// guessed.
func (s *MembershipStorage) TypeFromAmount(amount int) (MembershipType, bool) {
	for _, daily := range s.dailyAmounts {
		if amount == daily {
			return TypeDaily, true
		}
	}
	for _, yearly := range s.yearlyAmounts {
		if amount == yearly {
			return TypeYearly, true
		}
	}
	return "", false
}

// getByTransactionID returns the membership paired to a transaction
func (s *MembershipStorage) getByTransactionID(transactionID string) (*Membership, error) {
	membership, err := s.scanMembership(s.db.QueryRow(
		`SELECT transaction_id, type, pilot_username, pilot_name, pilot_site_id, date_paired, used_for
		FROM memberships WHERE transaction_id = ?`,
		transactionID,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query membership: %w", err)
	}
	return membership, nil
}

// scanMembership scans a single membership row
func (s *MembershipStorage) scanMembership(row *sql.Row) (*Membership, error) {
	var membership Membership
	var membershipType string
	var pilotName, usedFor sql.NullString
	var pilotSiteID sql.NullInt64
	var datePaired string

	err := row.Scan(
		&membership.TransactionID,
		&membershipType,
		&membership.Pilot.Username,
		&pilotName,
		&pilotSiteID,
		&datePaired,
		&usedFor,
	)
	if err != nil {
		return nil, err
	}

	membership.Type = MembershipType(membershipType)
	membership.Pilot.Name = pilotName.String
	membership.Pilot.SiteID = pilotSiteID.Int64
	membership.UsedFor = usedFor.String

	membership.DatePaired, err = time.Parse(transactionDateLayout, datePaired)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date_paired: %w", err)
	}

	return &membership, nil
}

// nullable maps an empty string to NULL
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
