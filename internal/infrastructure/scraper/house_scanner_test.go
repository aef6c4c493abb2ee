package scraper

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tradewatch/internal/domain"
	"tradewatch/internal/scanner"
)

const sampleRows = `
<table>
  <tr class="trade-row">
    <td class="politician" data-chamber="house" data-party="IND" data-state="TX">Jane Example</td>
    <td class="ticker">aapl</td>
    <td class="action">Purchase</td>
    <td class="trade-date">2024-03-01</td>
    <td class="published">2024-03-05</td>
    <td class="amount">$1,001 - $15,000</td>
  </tr>
  <tr class="trade-row">
    <td class="politician" data-chamber="house" data-party="DEM" data-state="CA">John Sample</td>
    <td class="ticker">MSFT</td>
    <td class="action">Sale (Partial)</td>
    <td class="trade-date">2024-02-20</td>
    <td class="published">2024-02-25</td>
    <td class="amount">$15,001 - $50,000</td>
  </tr>
</table>`

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	u, err := buildPageURL("https://disclosures.example.gov/trades", 200, 100)
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	q := parsed.Query()
	if q.Get("offset") != "200" {
		t.Fatalf("expected offset=200, got %s", q.Get("offset"))
	}
	if q.Get("limit") != "100" {
		t.Fatalf("expected limit=100, got %s", q.Get("limit"))
	}
}

func TestParseRow(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sampleRows))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	d, err := parseRow(doc.Find("tr.trade-row").First())
	if err != nil {
		t.Fatalf("parseRow error: %v", err)
	}

	if d.Politician.Name != "Jane Example" || d.Politician.State != "TX" {
		t.Fatalf("unexpected politician: %+v", d.Politician)
	}
	if d.Trade.Ticker != "AAPL" {
		t.Fatalf("ticker not normalized: %s", d.Trade.Ticker)
	}
	if d.Trade.Action != domain.ActionPurchase {
		t.Fatalf("unexpected action: %s", d.Trade.Action)
	}
	if d.Trade.AmountLow != 1001 || d.Trade.AmountHigh != 15000 {
		t.Fatalf("unexpected amount range: %d-%d", d.Trade.AmountLow, d.Trade.AmountHigh)
	}
	if got := d.Trade.TradeDate.Format(domain.DayFormat); got != "2024-03-01" {
		t.Fatalf("unexpected trade date: %s", got)
	}
}

func TestParseAmountRange(t *testing.T) {
	t.Parallel()

	if _, _, err := parseAmountRange("undisclosed"); err == nil {
		t.Fatalf("expected error for unparseable range")
	}

	low, high, err := parseAmountRange("$250,001 - $500,000")
	if err != nil {
		t.Fatalf("parseAmountRange error: %v", err)
	}
	if low != 250001 || high != 500000 {
		t.Fatalf("unexpected range: %d-%d", low, high)
	}
}

func TestHouseScannerScanStopsAtSince(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleRows))
	}))
	defer server.Close()

	sc := NewHouseScanner(server.Client())
	sc.pageSize = 10

	req := scanner.Request{
		Since:    time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		SiteName: "house-ptr",
		Pages:    []scanner.Page{{Name: "all", URL: server.URL + "/trades"}},
	}

	disclosures, err := sc.Scan(t.Context(), req)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(disclosures) != 1 {
		t.Fatalf("expected 1 disclosure on or after since, got %d", len(disclosures))
	}
	if disclosures[0].Trade.Ticker != "AAPL" {
		t.Fatalf("unexpected disclosure: %+v", disclosures[0])
	}
}
