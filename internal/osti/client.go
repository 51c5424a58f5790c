// Package osti searches the OSTI.gov records API and returns its articles in
// the same shape as a local retrieval.
package osti

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultBaseURL is the public OSTI API
	DefaultBaseURL = "https://www.osti.gov/api/v1"

	// DefaultTimeout bounds a single HTTP attempt
	DefaultTimeout = 15 * time.Second

	// DefaultMaxTries is the number of attempts made for a retryable failure
	DefaultMaxTries = 6

	// MaxRows is the largest page OSTI is asked for
	MaxRows = 20
)

// ErrStatus is returned for a non-retryable OSTI response
var ErrStatus = errors.New("unexpected OSTI response status")

// Config holds configuration for the OSTI client.
type Config struct {
	// BaseURL is the API root (default: https://www.osti.gov/api/v1).
	BaseURL string

	// Timeout bounds each HTTP attempt (default: 15s).
	Timeout time.Duration

	// MaxTries caps attempts on 429 and 5xx responses (default: 6).
	MaxTries uint

	// InitialInterval is the first backoff delay (default: 500ms).
	InitialInterval time.Duration

	// HTTPClient is an optional custom HTTP client. Timeout is ignored when set.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to the OSTI records API
type Client struct {
	baseURL         string
	client          *http.Client
	maxTries        uint
	initialInterval time.Duration
	logger          *slog.Logger
}

// NewClient creates a new OSTI client
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	maxTries := cfg.MaxTries
	if maxTries == 0 {
		maxTries = DefaultMaxTries
	}
	interval := cfg.InitialInterval
	if interval <= 0 {
		interval = backoff.DefaultInitialInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:         baseURL,
		client:          client,
		maxTries:        maxTries,
		initialInterval: interval,
		logger:          logger,
	}
}

// Query is one OSTI records search
type Query struct {
	Text         string
	EarliestYear int
	Title        string
	Rows         int
	Page         int
	Order        string
	Sort         string
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.EarliestYear > 0 {
		v.Set("publication_date_start", fmt.Sprintf("01/01/%d", q.EarliestYear))
	}
	if q.Title != "" {
		v.Set("title", q.Title)
	}

	rows := q.Rows
	if rows <= 0 || rows > MaxRows {
		rows = MaxRows
	}
	v.Set("rows", strconv.Itoa(rows))

	page := q.Page
	if page <= 0 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))

	order := q.Order
	if order == "" {
		order = "desc"
	}
	v.Set("order", order)
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	return v
}

// Search returns the cleaned article records matching q. Rate limiting and
// server errors are retried with exponential backoff.
func (c *Client) Search(ctx context.Context, q Query) ([]Article, error) {
	endpoint := c.baseURL + "/records?" + q.values().Encode()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialInterval

	records, err := backoff.Retry(ctx, func() ([]record, error) {
		return c.fetch(ctx, endpoint)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("osti request failed, retrying", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search osti: %w", err)
	}

	return cleanRecords(records), nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("%w: status %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(body)))
		if !retryable(resp.StatusCode) {
			return nil, backoff.Permanent(err)
		}
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			c.logger.Debug("osti asked to retry later", "seconds", secs)
			return nil, errors.Join(err, backoff.RetryAfter(secs))
		}
		return nil, err
	}

	var records []record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return records, nil
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
