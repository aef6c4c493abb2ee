package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"time"

	"tradewatch/internal/domain"
	"tradewatch/internal/enrich"
	"tradewatch/internal/ports"
)

// DayFormat is the calendar-date layout used by quote keys.
const DayFormat = domain.DayFormat

// Client fetches daily close prices from the quotes API. Every call consults
// the run-scoped cache first and records its outcome there, including
// confirmed-absent results, so concurrent consumers of the same (ticker, day)
// key cost exactly one network round trip.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   *enrich.Cache[domain.QuoteKey, float64]
	logger  *slog.Logger

	jitterMin   time.Duration
	jitterMax   time.Duration
	maxLookback int
}

var _ ports.QuoteSource = (*Client)(nil)

// NewClient wires an HTTP client; a nil client gets a 20s request timeout.
func NewClient(baseURL, apiKey string, client *http.Client, logger *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		client:      client,
		cache:       enrich.NewCache[domain.QuoteKey, float64](),
		logger:      logger,
		jitterMin:   200 * time.Millisecond,
		jitterMax:   500 * time.Millisecond,
		maxLookback: 7,
	}
}

// CacheSize reports the number of cached keys, for diagnostics.
func (c *Client) CacheSize() int {
	return c.cache.Len()
}

// Fetch returns the close price for the key's date, falling back up to seven
// calendar days (weekends skipped) when the exact date has no data. The
// outcome, positive or negative, is cached under the originally requested
// key before returning.
func (c *Client) Fetch(ctx context.Context, key domain.QuoteKey) (enrich.Outcome[float64], error) {
	if out, ok := c.cache.Lookup(key); ok {
		return out, nil
	}

	if err := c.pause(ctx); err != nil {
		return enrich.Negative[float64](), err
	}

	day, err := time.Parse(DayFormat, key.Day)
	if err != nil {
		return enrich.Negative[float64](), enrich.Failuref(enrich.FailureParse, "quote key date %q: %v", key.Day, err)
	}

	for _, candidate := range tradingDays(day, c.maxLookback) {
		out, err := c.request(ctx, key.Ticker, candidate)
		if err != nil {
			return enrich.Negative[float64](), err
		}
		if out.Found {
			c.cache.Store(key, out)
			return out, nil
		}
	}

	c.logger.Debug("no quote within lookback window", "ticker", key.Ticker, "day", key.Day)
	neg := enrich.Negative[float64]()
	c.cache.Store(key, neg)
	return neg, nil
}

// pause sleeps a uniformly random jittered duration so concurrent callers do
// not hit the API in synchronized bursts.
func (c *Client) pause(ctx context.Context) error {
	d := c.jitterMin
	if c.jitterMax > c.jitterMin {
		d += rand.N(c.jitterMax - c.jitterMin)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type quoteResponse struct {
	Symbol string   `json:"symbol"`
	Date   string   `json:"date"`
	Close  *float64 `json:"close"`
}

func (c *Client) request(ctx context.Context, ticker string, day time.Time) (enrich.Outcome[float64], error) {
	endpoint, err := url.Parse(c.baseURL + "/v1/daily")
	if err != nil {
		return enrich.Negative[float64](), enrich.Failuref(enrich.FailureConfig, "quotes base url: %v", err)
	}
	q := endpoint.Query()
	q.Set("symbol", ticker)
	q.Set("date", day.Format(DayFormat))
	q.Set("apikey", c.apiKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return enrich.Negative[float64](), fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("User-Agent", "tradewatch/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return enrich.Negative[float64](), enrich.Failure(enrich.FailureConfig, err)
		}
		return enrich.Negative[float64](), enrich.Failure(enrich.FailureUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return enrich.Negative[float64](), nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return enrich.Negative[float64](), enrich.Failuref(enrich.FailureRateLimited, "quotes api: %s", resp.Status)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return enrich.Negative[float64](), enrich.Failuref(enrich.FailureConfig, "quotes api rejected credentials: %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return enrich.Negative[float64](), enrich.Failuref(enrich.FailureUpstream, "quotes api: %s", resp.Status)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return enrich.Negative[float64](), enrich.Failuref(enrich.FailureParse, "decode quote for %s: %v", ticker, err)
	}
	if body.Close == nil {
		return enrich.Negative[float64](), nil
	}
	return enrich.Hit(*body.Close), nil
}

// tradingDays lists candidate dates from day backward, newest first, skipping
// weekends: a Saturday falls back to the prior Friday, a Sunday to the Friday
// two days before. The walk stops lookback calendar days before day.
func tradingDays(day time.Time, lookback int) []time.Time {
	limit := day.AddDate(0, 0, -lookback)
	var days []time.Time
	d := day
	for {
		switch d.Weekday() {
		case time.Saturday:
			d = d.AddDate(0, 0, -1)
		case time.Sunday:
			d = d.AddDate(0, 0, -2)
		}
		if d.Before(limit) {
			return days
		}
		days = append(days, d)
		d = d.AddDate(0, 0, -1)
	}
}
