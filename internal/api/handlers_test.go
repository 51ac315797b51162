package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lkadlec/cashier/internal/fio"
	"github.com/lkadlec/cashier/internal/reconciler"
	"github.com/lkadlec/cashier/internal/storage/sqlite"
	"github.com/lkadlec/cashier/internal/xcontest"
	"github.com/lkadlec/cashier/pkg/logger"
)

type stubSource struct{}

func (stubSource) ForEach(ctx context.Context, takeoffs []xcontest.Takeoff, date string, fn func(xcontest.Flight) error) error {
	return nil
}

type stubBank struct{}

func (stubBank) LastSinceID(ctx context.Context, id string) ([]fio.Transaction, error) {
	return nil, nil
}

func (stubBank) LastSinceDate(ctx context.Context, date string) ([]fio.Transaction, error) {
	return nil, nil
}

type stubResolver struct {
	ids map[string]int64
}

func (r stubResolver) ResolveID(ctx context.Context, pilot *xcontest.Pilot) (int64, error) {
	id, ok := r.ids[pilot.Username]
	if !ok {
		return 0, fmt.Errorf("pilot %s: %w", pilot.Username, xcontest.ErrIdentityNotFound)
	}
	pilot.SiteID = id
	return id, nil
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Send(ctx context.Context, text string) error {
	n.messages = append(n.messages, text)
	return nil
}

type apiFixture struct {
	router   http.Handler
	notifier *recordingNotifier
	flights  *sqlite.FlightStorage
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	flights, err := sqlite.NewFlightStorage(db, log)
	require.NoError(t, err)
	transactions, err := sqlite.NewTransactionStorage(db, log)
	require.NoError(t, err)
	memberships, err := sqlite.NewMembershipStorage(db, []int{150}, []int{500}, log)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	service := reconciler.NewService(
		stubSource{},
		stubBank{},
		stubResolver{ids: map[string]int64{"bob": 77}},
		flights,
		transactions,
		memberships,
		notifier,
		nil,
		0,
		log,
	)

	return &apiFixture{
		router:   NewRouter(service, log).Routes(),
		notifier: notifier,
		flights:  flights,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func TestPairCommandEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/commands/pair", "/pair 12345 YEARLY bob")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Okay, paired.\n", resp.Body.String())
}

func TestPairCommandMalformed(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/commands/pair", "pair 12345")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "expected 3 arguments")
	assert.Contains(t, resp.Body.String(), "/api/v1/help")
}

func TestPairCommandDuplicate(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/commands/pair", "pair 12345 YEARLY bob")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = f.do(t, http.MethodPost, "/api/v1/commands/pair", "pair 12345 DAILY bob")
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), "already paired")
}

func TestPairCommandUnknownPilot(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/commands/pair", "pair 12345 YEARLY nobody")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "nobody")
}

func TestNotifyFlightEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	flight := xcontest.Flight{
		ID:    "42",
		Link:  "https://www.xcontest.org/world/cs/prelety/detail:bob/17.5.2020/14:02",
		Pilot: xcontest.Pilot{Username: "bob", Name: "Bob Pilot"},
		Start: time.Date(2020, 5, 17, 14, 2, 0, 0, time.UTC),
	}
	require.NoError(t, f.flights.StoreFlight(flight))

	resp := f.do(t, http.MethodPost, "/api/v1/flights/42/notify", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), flight.Link)
	require.Len(t, f.notifier.messages, 1)
}

func TestNotifyFlightUnknown(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/flights/42/notify", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "not known")
	assert.Empty(t, f.notifier.messages)
}

func TestGetHelp(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/help", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "/pair")
	assert.Contains(t, resp.Body.String(), "/notify")
}

func TestGetHealth(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}
