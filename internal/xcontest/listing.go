package xcontest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/lkadlec/cashier/pkg/logger"
)

// pageSize is the listing page size, hardcoded to match the site
const pageSize = 50

// Transient fetch failures are retried a few times with a fixed delay
// before the takeoff run is given up for the cycle.
const (
	fetchRetries   = 3
	fetchRetryWait = 5 * time.Second
)

// Randomized spacing between takeoffs of a multi-takeoff run, to keep the
// scraping traffic polite.
const (
	takeoffDelayMin    = 5 * time.Second
	takeoffDelaySpread = 10 * time.Second
)

// Pipeline streams the complete, time-ascending flight sequence for
// (takeoff, date) queries, hiding pagination, retries and re-login. The
// stream is lazy and single-pass: a mid-stream failure aborts the
// remainder for that takeoff.
type Pipeline struct {
	client    *Client
	parser    *Parser
	pageSleep time.Duration
	retryWait time.Duration
	logger    *logger.Logger
}

// NewPipeline creates a flight ingestion pipeline
func NewPipeline(client *Client, parser *Parser, pageSleep time.Duration, logger *logger.Logger) *Pipeline {
	return &Pipeline{
		client:    client,
		parser:    parser,
		pageSleep: pageSleep,
		retryWait: fetchRetryWait,
		logger:    logger.Named("xcontest-listing"),
	}
}

// ForEach yields every flight of every given takeoff for the given date to
// fn, in listing order. Date is either ISO 8601 or YYYY-MM for a whole
// month. A non-nil error from fn aborts the walk.
func (p *Pipeline) ForEach(ctx context.Context, takeoffs []Takeoff, date string, fn func(Flight) error) error {
	for i, takeoff := range takeoffs {
		if i > 0 {
			if err := p.takeoffPause(ctx); err != nil {
				return err
			}
		}
		if err := p.forTakeoff(ctx, takeoff, date, fn); err != nil {
			return fmt.Errorf("takeoff %s: %w", takeoff.Name, err)
		}
	}
	return nil
}

// forTakeoff walks all listing pages of one (takeoff, date) query.
// Pagination must stay sequential: each page's existence is only known
// from the previous page's pager control.
func (p *Pipeline) forTakeoff(ctx context.Context, takeoff Takeoff, date string, fn func(Flight) error) error {
	p.logger.Info("Downloading flights",
		logger.String("takeoff", takeoff.Name),
		logger.String("date", date),
	)

	// one re-login per takeoff run
	reloggedIn := false
	offset := 0
	total := 0

	for {
		body, err := p.fetchPage(ctx, p.listingURL(takeoff, date, offset), &reloggedIn)
		if err != nil {
			return err
		}

		flights, err := p.parser.ParseFlights(body)
		if err != nil {
			// structural parse errors are never retried
			return err
		}
		for _, flight := range flights {
			if err := fn(flight); err != nil {
				return err
			}
		}
		total += len(flights)

		if !p.parser.HasNextPage(body) {
			break
		}
		offset += pageSize

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pageSleep):
		}
	}

	p.logger.Info("Downloaded flights",
		logger.String("takeoff", takeoff.Name),
		logger.Int("count", total),
	)
	return nil
}

// fetchPage fetches one listing page with the transient-failure retry
// policy. An unauthorized response triggers a single re-login and retry;
// a second unauthorized within the same takeoff run is fatal.
func (p *Pipeline) fetchPage(ctx context.Context, pageURL string, reloggedIn *bool) ([]byte, error) {
	var body []byte

	backoff := retry.WithMaxRetries(fetchRetries, retry.NewConstant(p.retryWait))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		b, err := p.client.FetchPage(ctx, pageURL)
		if err == nil {
			body = b
			return nil
		}

		if errors.Is(err, ErrUnauthorized) {
			if *reloggedIn {
				return err
			}
			*reloggedIn = true
			p.logger.Warn("Session expired, logging in again", logger.String("url", pageURL))
			if loginErr := p.client.Login(ctx); loginErr != nil {
				return loginErr
			}
			return retry.RetryableError(err)
		}

		p.logger.Warn("Page fetch failed, will retry",
			logger.String("url", pageURL),
			logger.Error(err),
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page: %w", err)
	}
	return body, nil
}

// listingURL builds the worldwide flight search URL for one page.
// The point filter is "<lon> <lat>" to match the site's convention.
func (p *Pipeline) listingURL(takeoff Takeoff, date string, offset int) string {
	return fmt.Sprintf(
		"%s/world/cs/vyhledavani-preletu/?list[sort]=time_start&list[dir]=up&list[start]=%d&filter[point]=%s%%20%s&filter[mode]=START&filter[date]=%s&filter[date_mode]=dmy",
		p.client.BaseURL(),
		offset,
		strconv.FormatFloat(takeoff.Lon, 'f', -1, 64),
		strconv.FormatFloat(takeoff.Lat, 'f', -1, 64),
		date,
	)
}

// takeoffPause sleeps a randomized 5-15s between takeoffs
func (p *Pipeline) takeoffPause(ctx context.Context) error {
	delay := takeoffDelayMin + time.Duration(rand.Int63n(int64(takeoffDelaySpread)))
	p.logger.Debug("Pausing before next takeoff", logger.Duration("delay", delay))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
