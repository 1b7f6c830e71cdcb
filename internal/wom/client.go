package wom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/metrics"
)

const (
	DefaultBaseURL   = "https://api.wiseoldman.net/v2"
	DefaultUserAgent = "MultiServerSyncBot/2.4"
	DefaultTimeout   = 30 * time.Second

	breakerName = "wom-api"
)

// ErrMalformed is returned when a response body is not a group payload
var ErrMalformed = errors.New("malformed group payload")

// StatusError is returned for any non-200 response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: status %d, body: %s", e.StatusCode, e.Body)
}

// Options configures a Client
type Options struct {
	BaseURL   string
	APIKey    string
	UserAgent string

	// Timeout bounds a whole GetGroup call, retries included
	Timeout time.Duration

	// Limiter spaces requests; shared by every caller of the client
	Limiter *rate.Limiter

	// MaxTries bounds attempts when WOM answers 429
	MaxTries uint

	HTTPClient *http.Client
}

// Client is a Wise Old Man API client with rate limiting and a circuit breaker
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	timeout    time.Duration
	maxTries   uint
	limiter    *rate.Limiter
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Group]
}

// NewClient creates a new WOM API client
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		userAgent:  opts.UserAgent,
		timeout:    opts.Timeout,
		maxTries:   opts.MaxTries,
		limiter:    opts.Limiter,
		httpClient: opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxTries == 0 {
		c.maxTries = 2
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	c.breaker = gobreaker.NewCircuitBreaker[*Group](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 4xx other than 429 means WOM is up and answering
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
			}
			return err == nil || errors.Is(err, ErrMalformed)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("WOM circuit breaker state changed", "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return c
}

// GetGroup fetches a group with its current memberships. Every failure mode
// (transport error, timeout, open circuit, non-200, bad payload) is an error.
func (c *Client) GetGroup(ctx context.Context, groupID int64) (*Group, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/groups/%d", c.baseURL, groupID)

	group, err := c.breaker.Execute(func() (*Group, error) {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second

		return backoff.Retry(ctx, func() (*Group, error) {
			g, err := c.get(ctx, endpoint)
			var se *StatusError
			if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
				return nil, err
			}
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			return g, nil
		}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	})
	metrics.WOMRequests.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to get group %d: %w", groupID, err)
	}
	return group, nil
}

// get performs a single rate limited GET and decodes the group payload
func (c *Client) get(ctx context.Context, url string) (*Group, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var group Group
	if err := json.NewDecoder(resp.Body).Decode(&group); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if group.Memberships == nil {
		return nil, fmt.Errorf("%w: no memberships list", ErrMalformed)
	}
	return &group, nil
}

func outcome(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	case errors.As(err, &se):
		return fmt.Sprintf("status_%d", se.StatusCode)
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "transport"
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
