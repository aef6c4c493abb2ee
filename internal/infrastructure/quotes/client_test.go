package quotes

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tradewatch/internal/domain"
	"tradewatch/internal/enrich"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(server.URL, "test-key", server.Client(), nil)
	c.jitterMin = 0
	c.jitterMax = 0
	return c, server
}

func quoteHandler(calls *atomic.Int64, closes map[string]float64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		date := r.URL.Query().Get("date")
		if day, err := time.Parse(DayFormat, date); err == nil {
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				panic(fmt.Sprintf("client requested a weekend date: %s", date))
			}
		}
		px, ok := closes[date]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"symbol":%q,"date":%q,"close":%g}`, r.URL.Query().Get("symbol"), date, px)
	})
}

func TestFetchCachesPositiveResult(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c, _ := newTestClient(t, quoteHandler(&calls, map[string]float64{"2024-03-01": 178.92}))

	key := domain.QuoteKey{Ticker: "AAPL", Day: "2024-03-01"}
	out, err := c.Fetch(t.Context(), key)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if !out.Found || out.Value != 178.92 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	if _, err := c.Fetch(t.Context(), key); err != nil {
		t.Fatalf("cached Fetch error: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 network call, got %d", got)
	}
	if c.CacheSize() != 1 {
		t.Fatalf("expected 1 cached key, got %d", c.CacheSize())
	}
}

func TestWeekendFallback(t *testing.T) {
	t.Parallel()

	// 2024-03-01 is a Friday; 03-02 Saturday, 03-03 Sunday.
	var calls atomic.Int64
	c, _ := newTestClient(t, quoteHandler(&calls, map[string]float64{"2024-03-01": 201.5}))

	saturday, err := c.Fetch(t.Context(), domain.QuoteKey{Ticker: "NVDA", Day: "2024-03-02"})
	if err != nil {
		t.Fatalf("saturday Fetch error: %v", err)
	}
	sunday, err := c.Fetch(t.Context(), domain.QuoteKey{Ticker: "NVDA", Day: "2024-03-03"})
	if err != nil {
		t.Fatalf("sunday Fetch error: %v", err)
	}
	friday, err := c.Fetch(t.Context(), domain.QuoteKey{Ticker: "NVDA", Day: "2024-03-01"})
	if err != nil {
		t.Fatalf("friday Fetch error: %v", err)
	}

	if !saturday.Found || saturday.Value != friday.Value {
		t.Fatalf("saturday fallback: got %+v, want friday value %v", saturday, friday.Value)
	}
	if !sunday.Found || sunday.Value != friday.Value {
		t.Fatalf("sunday fallback: got %+v, want friday value %v", sunday, friday.Value)
	}
}

func TestNegativeResultCachedUnderOriginalDate(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c, _ := newTestClient(t, quoteHandler(&calls, nil))

	key := domain.QuoteKey{Ticker: "GHOST", Day: "2024-03-06"}
	out, err := c.Fetch(t.Context(), key)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if out.Found {
		t.Fatalf("expected confirmed-absent outcome, got %+v", out)
	}

	firstRound := calls.Load()
	if firstRound == 0 {
		t.Fatalf("expected at least one lookback request")
	}

	if _, err := c.Fetch(t.Context(), key); err != nil {
		t.Fatalf("cached Fetch error: %v", err)
	}
	if calls.Load() != firstRound {
		t.Fatalf("negative result was re-fetched: %d calls after, %d before", calls.Load(), firstRound)
	}
}

func TestFetchClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		h    http.HandlerFunc
		want enrich.FailureKind
	}{
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}, enrich.FailureRateLimited},
		{"bad credential", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}, enrich.FailureConfig},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html>not json</html>")
		}, enrich.FailureParse},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, enrich.FailureUpstream},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c, _ := newTestClient(t, tc.h)
			_, err := c.Fetch(t.Context(), domain.QuoteKey{Ticker: "AAPL", Day: "2024-03-01"})
			if err == nil {
				t.Fatalf("expected a classified error")
			}
			if got := enrich.KindOf(err); got != tc.want {
				t.Fatalf("expected kind %v, got %v (%v)", tc.want, got, err)
			}
		})
	}
}

func TestTradingDays(t *testing.T) {
	t.Parallel()

	saturday := time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC)
	days := tradingDays(saturday, 7)
	if len(days) == 0 {
		t.Fatalf("no candidate days produced")
	}
	if got := days[0].Format(DayFormat); got != "2024-03-01" {
		t.Fatalf("saturday should fall back to friday first, got %s", got)
	}
	for _, d := range days {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("candidate list contains weekend day %s", d.Format(DayFormat))
		}
		if d.Before(saturday.AddDate(0, 0, -7)) {
			t.Fatalf("candidate %s beyond seven-day lookback", d.Format(DayFormat))
		}
	}

	sunday := time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC)
	days = tradingDays(sunday, 7)
	if got := days[0].Format(DayFormat); got != "2024-03-01" {
		t.Fatalf("sunday should fall back two days to friday, got %s", got)
	}
}
