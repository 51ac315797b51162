package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"

	"github.com/lkadlec/cashier/pkg/logger"
)

// sendAttempts bounds how often one message is retried after rate limits
const sendAttempts = 3

// Notifier is the notification sink the reconciler talks to
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// RateLimitedError carries the wait the API asked for before retrying
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("telegram: rate limited, retry after %s", e.RetryAfter)
}

// Client sends operator notifications through the Telegram Bot API into
// one fixed chat. Messages use HTML parse mode.
type Client struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	chatID     int64
	logger     *logger.Logger
}

// NewClient creates a new notification client
func NewClient(baseURL, botToken string, chatID int64, timeout time.Duration, logger *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		botToken: botToken,
		chatID:   chatID,
		logger:   logger.Named("telegram"),
	}
}

// Send delivers one message to the operator chat. Rate limiting by the
// API is honored by waiting the advertised retry_after and trying again,
// a bounded number of times.
func (c *Client) Send(ctx context.Context, text string) error {
	backoff := retry.WithMaxRetries(sendAttempts, retry.NewConstant(time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.sendMessage(ctx, text)
		var rateLimited *RateLimitedError
		if errors.As(err, &rateLimited) {
			c.logger.Warn("Rate limited by Telegram",
				logger.Duration("retry_after", rateLimited.RetryAfter),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rateLimited.RetryAfter):
			}
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) sendMessage(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(c.chatID, 10))
	form.Set("text", text)
	form.Set("parse_mode", "HTML")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := gjson.GetBytes(body, "parameters.retry_after").Int()
		if retryAfter <= 0 {
			retryAfter = 1
		}
		return &RateLimitedError{RetryAfter: time.Duration(retryAfter) * time.Second}
	}
	if resp.StatusCode != http.StatusOK || !gjson.GetBytes(body, "ok").Bool() {
		return fmt.Errorf("send failed with status %d: %s", resp.StatusCode, gjson.GetBytes(body, "description").String())
	}

	return nil
}
