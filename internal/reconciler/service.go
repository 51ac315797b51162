package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lkadlec/cashier/internal/fio"
	"github.com/lkadlec/cashier/internal/storage/sqlite"
	"github.com/lkadlec/cashier/internal/telegram"
	"github.com/lkadlec/cashier/internal/xcontest"
	"github.com/lkadlec/cashier/pkg/logger"
)

// epochDate is where transaction ingestion starts on an empty database
const epochDate = "2020-01-01"

// Transient bank feed failures are retried a few times; a throttled
// request instead waits the bank's mandated backoff without burning a
// retry.
const (
	bankRetries   = 3
	bankRetryWait = 5 * time.Second
)

// FlightSource streams flights for monitored takeoffs
type FlightSource interface {
	ForEach(ctx context.Context, takeoffs []xcontest.Takeoff, date string, fn func(xcontest.Flight) error) error
}

// BankFeed downloads transactions after a cursor
type BankFeed interface {
	LastSinceID(ctx context.Context, id string) ([]fio.Transaction, error)
	LastSinceDate(ctx context.Context, date string) ([]fio.Transaction, error)
}

// PilotResolver resolves pilot usernames to numeric site ids
type PilotResolver interface {
	ResolveID(ctx context.Context, pilot *xcontest.Pilot) (int64, error)
}

// Service drives the two reconciliation cycles and the operator
// commands. Cycles are idempotent: every mutation is either an insert
// guarded by a unique key or an idempotent field update, so repeated or
// partially failed runs converge instead of double-charging.
type Service struct {
	source       FlightSource
	bank         BankFeed
	resolver     PilotResolver
	flights      *sqlite.FlightStorage
	transactions *sqlite.TransactionStorage
	memberships  *sqlite.MembershipStorage
	notifier     telegram.Notifier
	takeoffs     []xcontest.Takeoff
	daysBack     int
	retryWait    time.Duration
	throttleWait time.Duration
	logger       *logger.Logger
}

// NewService creates the reconciliation service
func NewService(
	source FlightSource,
	bank BankFeed,
	resolver PilotResolver,
	flights *sqlite.FlightStorage,
	transactions *sqlite.TransactionStorage,
	memberships *sqlite.MembershipStorage,
	notifier telegram.Notifier,
	takeoffs []xcontest.Takeoff,
	daysBack int,
	logger *logger.Logger,
) *Service {
	return &Service{
		source:       source,
		bank:         bank,
		resolver:     resolver,
		flights:      flights,
		transactions: transactions,
		memberships:  memberships,
		notifier:     notifier,
		takeoffs:     takeoffs,
		daysBack:     daysBack,
		retryWait:    bankRetryWait,
		throttleWait: fio.ThrottleBackoff,
		logger:       logger.Named("reconciler"),
	}
}

// RunTransactionCycle downloads all bank transactions after the last
// stored one (or from the epoch on an empty database), persists them and
// asks the operators to pair every incoming payment.
func (s *Service) RunTransactionCycle(ctx context.Context) error {
	cursor, err := s.transactions.LastTransactionID()
	if err != nil {
		return err
	}

	transactions, err := s.downloadTransactions(ctx, cursor)
	if err != nil {
		return err
	}
	if len(transactions) == 0 {
		s.logger.Info("No transactions downloaded")
		return nil
	}
	s.logger.Info("Downloaded transactions", logger.Int("count", len(transactions)))

	for _, transaction := range transactions {
		if err := s.processTransaction(ctx, transaction); err != nil {
			return err
		}
	}
	return nil
}

// downloadTransactions fetches the feed with the bank retry policy
func (s *Service) downloadTransactions(ctx context.Context, cursor string) ([]fio.Transaction, error) {
	retriesLeft := bankRetries
	for {
		var transactions []fio.Transaction
		var err error
		if cursor != "" {
			transactions, err = s.bank.LastSinceID(ctx, cursor)
		} else {
			transactions, err = s.bank.LastSinceDate(ctx, epochDate)
		}
		if err == nil {
			return transactions, nil
		}

		var wait time.Duration
		switch {
		case errors.Is(err, fio.ErrThrottled):
			// the bank's backoff contract, does not count as a retry
			s.logger.Warn("Throttled by the bank API", logger.Duration("wait", s.throttleWait))
			wait = s.throttleWait
		case retriesLeft > 0:
			retriesLeft--
			s.logger.Warn("Transaction download failed, will retry",
				logger.Int("retries_left", retriesLeft),
				logger.Error(err),
			)
			wait = s.retryWait
		default:
			return nil, fmt.Errorf("failed to download transactions: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// processTransaction persists one transaction and, for incoming
// payments, notifies the operators with a pairing command suggestion.
// A transaction that is already stored was handled by an earlier cycle
// and is skipped.
func (s *Service) processTransaction(ctx context.Context, transaction fio.Transaction) error {
	inserted, err := s.transactions.StoreTransaction(transaction)
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.Debug("Skipping already stored transaction", logger.String("id", transaction.ID))
		return nil
	}
	if transaction.Amount <= 0 {
		return nil
	}

	suggested, determined := s.memberships.TypeFromAmount(transaction.Amount)
	message := NewTransactionMsg(transaction, suggested, determined)
	if err := s.notifier.Send(ctx, message); err != nil {
		// the transaction is stored; losing the notification is the
		// lesser evil compared to blocking the cursor
		s.logger.Error("Failed to send transaction notification",
			logger.String("id", transaction.ID),
			logger.Error(err),
		)
	}
	return nil
}

// RunFlightCycle walks all monitored takeoffs for the watched day and
// reconciles every flight that was not processed before.
func (s *Service) RunFlightCycle(ctx context.Context) error {
	day := time.Now().AddDate(0, 0, -s.daysBack).Format("2006-01-02")
	return s.source.ForEach(ctx, s.takeoffs, day, func(flight xcontest.Flight) error {
		return s.processFlight(ctx, flight)
	})
}

// processFlight reconciles one flight. The flight is persisted last:
// a crash mid-processing makes the next cycle redo the flight, which is
// safe because notification is at-least-once and membership binding is
// idempotent.
func (s *Service) processFlight(ctx context.Context, flight xcontest.Flight) error {
	exists, err := s.flights.FlightExists(flight.ID)
	if err != nil {
		return err
	}
	if exists {
		s.logger.Debug("Skipping already processed flight", logger.String("id", flight.ID))
		return nil
	}

	s.logger.Info("Processing flight",
		logger.String("id", flight.ID),
		logger.String("pilot", flight.Pilot.Username),
		logger.Time("start", flight.Start),
	)

	membership, err := s.memberships.GetByFlight(flight)
	if err != nil {
		return err
	}

	if membership == nil {
		s.logger.Info("No membership found for flight, reporting", logger.String("id", flight.ID))
		if err := s.notifier.Send(ctx, OffendingFlightMsg(flight)); err != nil {
			// leave the flight unstored so the next cycle reports it again
			s.logger.Error("Failed to send offending flight notification",
				logger.String("id", flight.ID),
				logger.Error(err),
			)
			return nil
		}
	} else {
		if err := s.memberships.SetUsedFor(membership, flight); err != nil {
			return err
		}
		s.logger.Debug("Membership bound to flight",
			logger.String("id", flight.ID),
			logger.String("transaction_id", membership.TransactionID),
			logger.String("used_for", membership.UsedFor),
		)
	}

	return s.flights.StoreFlight(flight)
}
