package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lkadlec/cashier/internal/fio"
	"github.com/lkadlec/cashier/internal/storage/sqlite"
	"github.com/lkadlec/cashier/internal/xcontest"
	"github.com/lkadlec/cashier/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	return log
}

type fakeBank struct {
	transactions   []fio.Transaction
	errs           []error
	sinceIDCalls   []string
	sinceDateCalls []string
}

func (b *fakeBank) popErr() error {
	if len(b.errs) == 0 {
		return nil
	}
	err := b.errs[0]
	b.errs = b.errs[1:]
	return err
}

func (b *fakeBank) LastSinceID(ctx context.Context, id string) ([]fio.Transaction, error) {
	b.sinceIDCalls = append(b.sinceIDCalls, id)
	if err := b.popErr(); err != nil {
		return nil, err
	}
	return b.transactions, nil
}

func (b *fakeBank) LastSinceDate(ctx context.Context, date string) ([]fio.Transaction, error) {
	b.sinceDateCalls = append(b.sinceDateCalls, date)
	if err := b.popErr(); err != nil {
		return nil, err
	}
	return b.transactions, nil
}

type fakeSource struct {
	flights []xcontest.Flight
}

func (s *fakeSource) ForEach(ctx context.Context, takeoffs []xcontest.Takeoff, date string, fn func(xcontest.Flight) error) error {
	for _, flight := range s.flights {
		if err := fn(flight); err != nil {
			return err
		}
	}
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	failures int
}

func (n *fakeNotifier) Send(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures > 0 {
		n.failures--
		return fmt.Errorf("notification sink unavailable")
	}
	n.messages = append(n.messages, text)
	return nil
}

// sent returns a copy safe to inspect while scheduler workers run
func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type fakeResolver struct {
	ids map[string]int64
}

func (r *fakeResolver) ResolveID(ctx context.Context, pilot *xcontest.Pilot) (int64, error) {
	id, ok := r.ids[pilot.Username]
	if !ok {
		return 0, fmt.Errorf("pilot %s: %w", pilot.Username, xcontest.ErrIdentityNotFound)
	}
	pilot.SiteID = id
	return id, nil
}

type fixture struct {
	service      *Service
	bank         *fakeBank
	source       *fakeSource
	notifier     *fakeNotifier
	resolver     *fakeResolver
	flights      *sqlite.FlightStorage
	transactions *sqlite.TransactionStorage
	memberships  *sqlite.MembershipStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	log := testLogger(t)
	flights, err := sqlite.NewFlightStorage(db, log)
	require.NoError(t, err)
	transactions, err := sqlite.NewTransactionStorage(db, log)
	require.NoError(t, err)
	memberships, err := sqlite.NewMembershipStorage(db, []int{150}, []int{500}, log)
	require.NoError(t, err)

	f := &fixture{
		bank:         &fakeBank{},
		source:       &fakeSource{},
		notifier:     &fakeNotifier{},
		resolver:     &fakeResolver{ids: map[string]int64{"bob": 77, "alice": 78}},
		flights:      flights,
		transactions: transactions,
		memberships:  memberships,
	}
	f.service = NewService(
		f.source,
		f.bank,
		f.resolver,
		flights,
		transactions,
		memberships,
		f.notifier,
		[]xcontest.Takeoff{{Name: "Doubrava", Lat: 49.4328, Lon: 13.2028}},
		0,
		log,
	)
	f.service.retryWait = time.Millisecond
	f.service.throttleWait = time.Millisecond
	return f
}

func testStart(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC)
}

func testFlightAt(id, username string, start time.Time) xcontest.Flight {
	return xcontest.Flight{
		ID:    id,
		Link:  "https://www.xcontest.org/world/cs/prelety/detail:" + username + "/17.5.2020/14:02",
		Pilot: xcontest.Pilot{Username: username, Name: username},
		Start: start,
	}
}
