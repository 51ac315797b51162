package xcontest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/lkadlec/cashier/pkg/logger"
)

const loginPath = "/world/en/login"

// Client is an authenticated fetcher for the flight-tracking site. It owns
// the HTTP session (cookie jar) and the credentials; Login refreshes the
// session and FetchPage performs plain authenticated GETs against it.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	userAgent  string
	logger     *logger.Logger
}

// NewClient creates a new site client with a fresh session
func NewClient(baseURL, username, password, userAgent string, timeout time.Duration, logger *logger.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		username:  username,
		password:  password,
		userAgent: userAgent,
		logger:    logger.Named("xcontest-client"),
	}, nil
}

// BaseURL returns the configured site base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login posts the credentials and updates the session cookie jar. The only
// side effect is session state mutation.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("login[username]", c.username)
	form.Set("login[password]", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("Logging in", logger.String("username", c.username))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute login request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("login rejected: %w", ErrUnauthorized)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected login status code: %d", resp.StatusCode)
	}

	c.logger.Info("Logged in", logger.String("username", c.username))
	return nil
}

// FetchPage performs an authenticated GET and returns the page body.
// A 401/403 response is reported as ErrUnauthorized so the caller can
// decide on a single re-login.
func (c *Client) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("Fetching page", logger.String("url", pageURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("fetch of %s: %w", pageURL, ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}
