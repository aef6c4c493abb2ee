package domain

import "time"

// DayFormat is the calendar-date layout shared by quote keys and scrapers.
const DayFormat = "2006-01-02"

// Trade is a core entity describing one disclosed securities transaction.
type Trade struct {
	ID            int64
	PoliticianID  int64
	Ticker        string
	Action        TradeAction
	TradeDate     time.Time
	PublishedDate time.Time
	AmountLow     int64
	AmountHigh    int64

	// Price is the closing price on the trade date, filled in by the
	// enrichment run. nil with PriceCheckedAt set means confirmed absent;
	// nil with PriceCheckedAt nil means not yet attempted.
	Price          *float64
	PriceCheckedAt *time.Time
}

// TradeAction enumerates disclosed transaction types.
type TradeAction string

const (
	ActionPurchase    TradeAction = "purchase"
	ActionSale        TradeAction = "sale"
	ActionPartialSale TradeAction = "sale_partial"
	ActionExchange    TradeAction = "exchange"
)

// QuoteKey identifies one unit of price-fetch work. Many trades sharing a
// ticker and date map to the same key.
type QuoteKey struct {
	Ticker string
	Day    string // calendar date in DayFormat
}

// Disclosure pairs a scraped trade with the filer it belongs to, before the
// filer has a database id.
type Disclosure struct {
	Politician Politician
	Trade      Trade
}

// Politician identifies a filer whose disclosures are tracked.
type Politician struct {
	ID      int64
	Name    string
	Chamber string
	Party   string
	State   string

	// FECCandidateID is the regulator-assigned identifier, empty until the
	// resolution cache links it.
	FECCandidateID string
}

// Committee is a campaign committee record from the regulatory API,
// denormalized locally for downstream classification.
type Committee struct {
	FECID       string
	Name        string
	Designation string
	Type        string
	Party       string
}

// Contribution is one itemized receipt reported by a committee.
type Contribution struct {
	SubID       string
	CommitteeID string
	Cycle       int
	Contributor string
	Employer    string
	City        string
	State       string
	Amount      float64
	Date        time.Time
}

// ContributionPage is one keyset-paginated slice of a committee's receipts.
// An empty NextCursor marks the final page.
type ContributionPage struct {
	Records    []Contribution
	NextCursor string
}

// SyncPartition is the grain of independent, resumable sync progress:
// one politician's link to one committee.
type SyncPartition struct {
	PoliticianID int64
	CommitteeID  string
}

// SyncCursor is the persisted resumption state for one partition.
// Position "" with CompletedAt set means fully synced; a partition with no
// cursor row at all has never been started.
type SyncCursor struct {
	Partition   SyncPartition
	Position    string
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// Complete reports whether the partition finished a full pass.
func (c SyncCursor) Complete() bool {
	return c.CompletedAt != nil
}
