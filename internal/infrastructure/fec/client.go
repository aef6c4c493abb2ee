// Package fec talks to the campaign-finance regulatory API: keyset-paginated
// itemized receipts plus the candidate/committee directory used by identifier
// resolution.
package fec

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
	"strconv"
	"time"

	"tradewatch/internal/domain"
	"tradewatch/internal/enrich"
	"tradewatch/internal/ports"
)

const defaultPageSize = 100

var receiptDateLayouts = []string{"2006-01-02T15:04:05", "2006-01-02"}

// Client is the rate-limited HTTP client for the regulatory API.
type Client struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
	pageSize int

	jitterMin time.Duration
	jitterMax time.Duration
}

var (
	_ ports.ContributionSource = (*Client)(nil)
	_ ports.CommitteeDirectory = (*Client)(nil)
)

// NewClient wires an HTTP client; a nil client gets a 30s request timeout.
func NewClient(baseURL, apiKey string, client *http.Client, logger *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		client:    client,
		logger:    logger,
		pageSize:  defaultPageSize,
		jitterMin: 200 * time.Millisecond,
		jitterMax: 500 * time.Millisecond,
	}
}

// ContributionsPage fetches one page of a committee's itemized receipts.
// An empty cursor requests the first page; the returned page's NextCursor is
// empty once the API reports no further index.
func (c *Client) ContributionsPage(ctx context.Context, committeeID, cursor string, cycle int) (domain.ContributionPage, error) {
	if err := c.pause(ctx); err != nil {
		return domain.ContributionPage{}, err
	}

	q := url.Values{}
	q.Set("committee_id", committeeID)
	q.Set("two_year_transaction_period", strconv.Itoa(cycle))
	q.Set("per_page", strconv.Itoa(c.pageSize))
	q.Set("sort", "-contribution_receipt_date")
	if cursor != "" {
		q.Set("last_index", cursor)
	}

	var body scheduleAResponse
	if err := c.getJSON(ctx, "/v3/schedules/schedule_a/", q, &body); err != nil {
		return domain.ContributionPage{}, err
	}

	page := domain.ContributionPage{Records: make([]domain.Contribution, 0, len(body.Results))}
	for _, raw := range body.Results {
		rec, err := raw.contribution(cycle)
		if err != nil {
			return domain.ContributionPage{}, enrich.Failuref(enrich.FailureParse, "receipt %s: %v", raw.SubID, err)
		}
		page.Records = append(page.Records, rec)
	}
	if body.Pagination.LastIndexes != nil {
		page.NextCursor = body.Pagination.LastIndexes.LastIndex
	}
	return page, nil
}

// CandidateCommittees lists the committees registered to a candidate id.
func (c *Client) CandidateCommittees(ctx context.Context, candidateID string) ([]domain.Committee, error) {
	if err := c.pause(ctx); err != nil {
		return nil, err
	}

	var body committeeResponse
	path := "/v3/candidate/" + url.PathEscape(candidateID) + "/committees/"
	if err := c.getJSON(ctx, path, url.Values{}, &body); err != nil {
		return nil, err
	}

	committees := make([]domain.Committee, 0, len(body.Results))
	for _, raw := range body.Results {
		committees = append(committees, domain.Committee{
			FECID:       raw.CommitteeID,
			Name:        raw.Name,
			Designation: raw.Designation,
			Type:        raw.CommitteeType,
			Party:       raw.Party,
		})
	}
	return committees, nil
}

// SearchCandidate finds the best-matching candidate id for a filer name, or
// "" when the registry has no match. Absence is an expected outcome, not an
// error.
func (c *Client) SearchCandidate(ctx context.Context, name, state string) (string, error) {
	if err := c.pause(ctx); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("q", name)
	if state != "" {
		q.Set("state", state)
	}

	var body candidateSearchResponse
	if err := c.getJSON(ctx, "/v3/candidates/search/", q, &body); err != nil {
		return "", err
	}
	if len(body.Results) == 0 {
		return "", nil
	}
	return body.Results[0].CandidateID, nil
}

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

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return enrich.Failuref(enrich.FailureConfig, "fec base url: %v", err)
	}
	q.Set("api_key", c.apiKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build fec request: %w", err)
	}
	req.Header.Set("User-Agent", "tradewatch/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return enrich.Failure(enrich.FailureConfig, err)
		}
		return enrich.Failure(enrich.FailureUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return enrich.Failuref(enrich.FailureRateLimited, "fec api: %s", resp.Status)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return enrich.Failuref(enrich.FailureConfig, "fec api rejected credentials: %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return enrich.Failuref(enrich.FailureUpstream, "fec api: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return enrich.Failuref(enrich.FailureParse, "decode fec response: %v", err)
	}
	return nil
}

type scheduleAResponse struct {
	Results    []receiptRecord `json:"results"`
	Pagination struct {
		LastIndexes *struct {
			LastIndex string `json:"last_index"`
		} `json:"last_indexes"`
	} `json:"pagination"`
}

type receiptRecord struct {
	SubID       string  `json:"sub_id"`
	CommitteeID string  `json:"committee_id"`
	Contributor string  `json:"contributor_name"`
	Employer    string  `json:"contributor_employer"`
	City        string  `json:"contributor_city"`
	State       string  `json:"contributor_state"`
	Amount      float64 `json:"contribution_receipt_amount"`
	ReceiptDate string  `json:"contribution_receipt_date"`
}

func (r receiptRecord) contribution(cycle int) (domain.Contribution, error) {
	if r.SubID == "" {
		return domain.Contribution{}, fmt.Errorf("missing sub_id")
	}
	var date time.Time
	if r.ReceiptDate != "" {
		var err error
		for _, layout := range receiptDateLayouts {
			if date, err = time.Parse(layout, r.ReceiptDate); err == nil {
				break
			}
		}
		if err != nil {
			return domain.Contribution{}, fmt.Errorf("receipt date %q: %w", r.ReceiptDate, err)
		}
	}
	return domain.Contribution{
		SubID:       r.SubID,
		CommitteeID: r.CommitteeID,
		Cycle:       cycle,
		Contributor: r.Contributor,
		Employer:    r.Employer,
		City:        r.City,
		State:       r.State,
		Amount:      r.Amount,
		Date:        date,
	}, nil
}

type committeeResponse struct {
	Results []struct {
		CommitteeID   string `json:"committee_id"`
		Name          string `json:"name"`
		Designation   string `json:"designation"`
		CommitteeType string `json:"committee_type"`
		Party         string `json:"party"`
	} `json:"results"`
}

type candidateSearchResponse struct {
	Results []struct {
		CandidateID string `json:"candidate_id"`
	} `json:"results"`
}
