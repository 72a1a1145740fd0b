package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/runclub/clubsync/internal/models"
)

// DefaultPageSize is the provider's per_page default.
const DefaultPageSize = 100

var errRateLimited = errors.New("rate limit exceeded")

// APIError is a non-success response from the activity endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Message)
}

// ClientConfig tunes the activity listing client.
type ClientConfig struct {
	BaseURL        string
	PageSize       int
	RequestTimeout time.Duration
	Retry          RetryPolicy
	HTTPClient     *http.Client
}

// Client lists athlete activities page by page.
type Client struct {
	baseURL    string
	pageSize   int
	timeout    time.Duration
	retry      RetryPolicy
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		pageSize:   pageSize,
		timeout:    timeout,
		retry:      cfg.Retry,
		httpClient: httpClient,
		logger:     logger,
	}
}

// PageSize returns the number of records requested per page.
func (c *Client) PageSize() int {
	return c.pageSize
}

// ListActivities fetches a single page. A 429 response is returned as a
// RetryableError carrying the provider's Retry-After hint.
func (c *Client) ListActivities(ctx context.Context, accessToken string, page int) ([]models.RawActivity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(c.pageSize)},
	}
	endpoint := c.baseURL + "/athlete/activities?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request activities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errRateLimited.Error()}
		return nil, &RetryableError{Err: apiErr, RetryAfter: retryAfter(resp.Header)}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var records []models.RawActivity
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}

	return records, nil
}

// Pages walks the activity feed from page 1. It stops after an empty page or a
// short page; a full page always leads to another request. A failed page ends the
// sequence with a *models.FetchError and nothing is retried except rate limiting.
func (c *Client) Pages(ctx context.Context, accessToken string) iter.Seq2[[]models.RawActivity, error] {
	return func(yield func([]models.RawActivity, error) bool) {
		for page := 1; ; page++ {
			var records []models.RawActivity
			err := c.retry.Do(ctx, func(attempt int) error {
				var err error
				records, err = c.ListActivities(ctx, accessToken, page)
				if IsRetryable(err) {
					c.logger.Warn("Activity listing rate limited", "page", page, "attempt", attempt, "error", err)
				}
				return err
			})
			if err != nil {
				yield(nil, fetchError(page, err))
				return
			}

			if len(records) == 0 {
				return
			}
			if !yield(records, nil) {
				return
			}
			if len(records) < c.pageSize {
				return
			}
		}
	}
}

func fetchError(page int, err error) *models.FetchError {
	fe := &models.FetchError{Page: page, Err: err}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		fe.StatusCode = apiErr.StatusCode
	}
	return fe
}

// retryAfter reads a delay in seconds. HTTP-date values fall back to the policy backoff.
func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
