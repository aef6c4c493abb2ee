package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tradewatch/internal/domain"
	"tradewatch/internal/scanner"
)

var amountExpr = regexp.MustCompile(`\$([\d,]+)\s*-\s*\$([\d,]+)`)

// HouseScanner crawls periodic-transaction-report listing pages and extracts
// disclosures published on or after the requested date.
type HouseScanner struct {
	client   *http.Client
	pageSize int
}

// NewHouseScanner wires an HTTP client; pageSize defaults to 100.
func NewHouseScanner(client *http.Client) *HouseScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HouseScanner{client: client, pageSize: 100}
}

// Name identifies the strategy inside the registry.
func (h *HouseScanner) Name() string {
	return "house"
}

// Scan walks each listing page and returns all disclosures published on or
// after the requested date, deduplicated across pages.
func (h *HouseScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Disclosure, error) {
	if len(req.Pages) == 0 {
		return nil, fmt.Errorf("no listing pages provided for site %s", req.SiteName)
	}

	since := req.Since.UTC().Truncate(24 * time.Hour)
	results := make([]domain.Disclosure, 0)
	seen := map[string]struct{}{}

	for _, page := range req.Pages {
		offset := 0
		for {
			pageURL, err := buildPageURL(page.URL, offset, h.pageSize)
			if err != nil {
				return nil, fmt.Errorf("page %s: %w", page.Name, err)
			}

			doc, err := h.fetchDocument(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("page %s: %w", page.Name, err)
			}

			disclosures, shouldContinue := h.extractDisclosures(doc, since)
			for _, d := range disclosures {
				key := dedupKey(d)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				results = append(results, d)
			}

			if !shouldContinue {
				break
			}
			offset += h.pageSize
		}
	}

	return results, nil
}

func buildPageURL(base string, offset, limit int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}
	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (h *HouseScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "tradewatch/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return doc, nil
}

func (h *HouseScanner) extractDisclosures(doc *goquery.Document, since time.Time) ([]domain.Disclosure, bool) {
	var (
		collected    []domain.Disclosure
		continueScan = true
		processed    int
	)

	doc.Find("tr.trade-row").EachWithBreak(func(i int, row *goquery.Selection) bool {
		processed++

		d, err := parseRow(row)
		if err != nil {
			return true
		}

		published := d.Trade.PublishedDate.UTC().Truncate(24 * time.Hour)
		if published.Before(since) {
			continueScan = false
			return false
		}
		collected = append(collected, d)
		return true
	})

	if processed < h.pageSize {
		continueScan = false
	}
	return collected, continueScan
}

func parseRow(row *goquery.Selection) (domain.Disclosure, error) {
	cell := row.Find("td.politician").First()
	name := strings.TrimSpace(cell.Text())
	if name == "" {
		return domain.Disclosure{}, fmt.Errorf("row has no politician name")
	}

	ticker := strings.ToUpper(strings.TrimSpace(row.Find("td.ticker").First().Text()))
	if ticker == "" || ticker == "--" {
		return domain.Disclosure{}, fmt.Errorf("row has no ticker")
	}

	tradeDate, err := time.Parse(domain.DayFormat, strings.TrimSpace(row.Find("td.trade-date").First().Text()))
	if err != nil {
		return domain.Disclosure{}, fmt.Errorf("trade date: %w", err)
	}
	published, err := time.Parse(domain.DayFormat, strings.TrimSpace(row.Find("td.published").First().Text()))
	if err != nil {
		return domain.Disclosure{}, fmt.Errorf("published date: %w", err)
	}

	low, high, err := parseAmountRange(row.Find("td.amount").First().Text())
	if err != nil {
		return domain.Disclosure{}, err
	}

	chamber, _ := cell.Attr("data-chamber")
	if chamber == "" {
		chamber = "house"
	}
	party, _ := cell.Attr("data-party")
	state, _ := cell.Attr("data-state")

	return domain.Disclosure{
		Politician: domain.Politician{
			Name:    name,
			Chamber: chamber,
			Party:   party,
			State:   state,
		},
		Trade: domain.Trade{
			Ticker:        ticker,
			Action:        parseAction(row.Find("td.action").First().Text()),
			TradeDate:     tradeDate,
			PublishedDate: published,
			AmountLow:     low,
			AmountHigh:    high,
		},
	}, nil
}

func parseAction(raw string) domain.TradeAction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "purchase", "buy":
		return domain.ActionPurchase
	case "sale", "sell", "sale (full)":
		return domain.ActionSale
	case "sale (partial)", "partial sale":
		return domain.ActionPartialSale
	case "exchange":
		return domain.ActionExchange
	default:
		return domain.TradeAction(strings.ToLower(strings.TrimSpace(raw)))
	}
}

func parseAmountRange(raw string) (int64, int64, error) {
	match := amountExpr.FindStringSubmatch(raw)
	if match == nil {
		return 0, 0, fmt.Errorf("amount range %q", strings.TrimSpace(raw))
	}
	low, err := strconv.ParseInt(strings.ReplaceAll(match[1], ",", ""), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("amount low: %w", err)
	}
	high, err := strconv.ParseInt(strings.ReplaceAll(match[2], ",", ""), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("amount high: %w", err)
	}
	return low, high, nil
}

func dedupKey(d domain.Disclosure) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d",
		d.Politician.Name,
		d.Trade.Ticker,
		d.Trade.Action,
		d.Trade.TradeDate.Format(domain.DayFormat),
		d.Trade.AmountLow)
}
