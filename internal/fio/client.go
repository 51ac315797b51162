package fio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lkadlec/cashier/pkg/logger"
)

// dateLayout matches the bank's date values, e.g. "2020-01-05+0100"
const dateLayout = "2006-01-02-0700"

// Client talks to the Fio bank REST API. The API keeps a server-side
// cursor per token: we move it with set-last-id/set-last-date and then
// download everything after it.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logger.Logger
}

// NewClient creates a new bank feed client
func NewClient(baseURL, token string, timeout time.Duration, logger *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger.Named("fio-client"),
	}
}

// LastSinceID returns all transactions after the given transaction id
func (c *Client) LastSinceID(ctx context.Context, id string) ([]Transaction, error) {
	c.logger.Debug("Downloading transactions", logger.String("from_id", id))
	if err := c.get(ctx, fmt.Sprintf("%s/set-last-id/%s/%s/", c.baseURL, c.token, id), nil); err != nil {
		return nil, fmt.Errorf("failed to move bank cursor: %w", err)
	}
	return c.downloadLast(ctx)
}

// LastSinceDate returns all transactions from the given ISO date on
func (c *Client) LastSinceDate(ctx context.Context, date string) ([]Transaction, error) {
	c.logger.Debug("Downloading transactions", logger.String("from_date", date))
	if err := c.get(ctx, fmt.Sprintf("%s/set-last-date/%s/%s/", c.baseURL, c.token, date), nil); err != nil {
		return nil, fmt.Errorf("failed to move bank cursor: %w", err)
	}
	return c.downloadLast(ctx)
}

func (c *Client) downloadLast(ctx context.Context) ([]Transaction, error) {
	var body []byte
	if err := c.get(ctx, fmt.Sprintf("%s/last/%s/transactions.json", c.baseURL, c.token), &body); err != nil {
		return nil, fmt.Errorf("failed to download transactions: %w", err)
	}
	return parseTransactions(body)
}

// get performs one API request. The bank answers 409 when called more
// than once per 30 seconds; that is reported as ErrThrottled.
func (c *Client) get(ctx context.Context, url string, body *[]byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrThrottled
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if body != nil {
		*body = data
	}
	return nil
}

// parseTransactions extracts transactions from the bank's statement
// envelope. The payload addresses fields by column numbers, so we pick
// the few we need instead of modelling the whole envelope.
func parseTransactions(body []byte) ([]Transaction, error) {
	list := gjson.GetBytes(body, "accountStatement.transactionList.transaction")
	if !list.Exists() {
		return nil, fmt.Errorf("unexpected bank payload: transaction list missing")
	}

	var transactions []Transaction
	var parseErr error
	list.ForEach(func(_, item gjson.Result) bool {
		id := item.Get("column22.value").String()
		if id == "" {
			parseErr = fmt.Errorf("bank transaction without an id: %s", item.Raw)
			return false
		}

		date, err := time.Parse(dateLayout, item.Get("column0.value").String())
		if err != nil {
			parseErr = fmt.Errorf("bank transaction %s has an invalid date: %w", id, err)
			return false
		}

		// counterparty account name, falling back to who executed the order
		from := item.Get("column10.value").String()
		if from == "" {
			from = item.Get("column9.value").String()
		}

		transactions = append(transactions, Transaction{
			ID:      id,
			Amount:  int(item.Get("column1.value").Float()),
			From:    from,
			Message: item.Get("column16.value").String(),
			Date:    date,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return transactions, nil
}
