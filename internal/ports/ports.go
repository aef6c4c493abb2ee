package ports

import (
	"context"
	"time"

	"tradewatch/internal/domain"
	"tradewatch/internal/enrich"
)

// TradeSource pulls newly published disclosures from upstream scrapers.
type TradeSource interface {
	FetchSince(ctx context.Context, since time.Time) ([]domain.Disclosure, error)
}

// TradeStore reads and writes disclosed trades and their enrichment columns.
type TradeStore interface {
	SaveTrades(ctx context.Context, trades []domain.Trade) (int, error)
	TradesNeedingPrices(ctx context.Context) ([]domain.Trade, error)
	// SetTradePrice writes the enriched close price for one trade row.
	// A nil price records the confirmed-absent sentinel so the row is not
	// re-processed indefinitely. The update is idempotent.
	SetTradePrice(ctx context.Context, tradeID int64, price *float64) error
}

// PoliticianStore lists tracked filers.
type PoliticianStore interface {
	Politicians(ctx context.Context) ([]domain.Politician, error)
	SavePolitician(ctx context.Context, p domain.Politician) (int64, error)
}

// QuoteSource fetches one close price per (ticker, date) key, consulting its
// run-scoped cache first.
type QuoteSource interface {
	Fetch(ctx context.Context, key domain.QuoteKey) (enrich.Outcome[float64], error)
}

// CursorStore persists resumable sync progress per partition.
type CursorStore interface {
	// LoadCursor returns nil when the partition has never been started.
	LoadCursor(ctx context.Context, part domain.SyncPartition) (*domain.SyncCursor, error)
	// SaveContributionsPage commits the page's records and the advanced
	// cursor in one transaction. A page with no next cursor marks the
	// partition complete.
	SaveContributionsPage(ctx context.Context, part domain.SyncPartition, page domain.ContributionPage) error
}

// ContributionSource fetches one keyset-paginated page of receipts.
type ContributionSource interface {
	ContributionsPage(ctx context.Context, committeeID, cursor string, cycle int) (domain.ContributionPage, error)
}

// CommitteeDirectory is the remote tier of identifier resolution.
type CommitteeDirectory interface {
	// SearchCandidate returns the candidate id for a filer, or "" when the
	// registry has no match.
	SearchCandidate(ctx context.Context, name, state string) (string, error)
	CandidateCommittees(ctx context.Context, candidateID string) ([]domain.Committee, error)
}

// ResolutionStore is the persistent tier of identifier resolution.
type ResolutionStore interface {
	// CommitteeLinks returns the cached linkage and when it was resolved;
	// a nil resolvedAt means the politician has never been resolved.
	CommitteeLinks(ctx context.Context, politicianID int64) (links []domain.Committee, resolvedAt *time.Time, err error)
	// SaveResolution persists the linkage, the denormalized committee
	// metadata, and the candidate id. An empty committees slice is a valid,
	// cacheable negative resolution.
	SaveResolution(ctx context.Context, politicianID int64, candidateID string, committees []domain.Committee) error
}

// CommitteeResolver maps a politician to campaign committees via the
// three-tier cache.
type CommitteeResolver interface {
	Resolve(ctx context.Context, p domain.Politician) ([]domain.Committee, error)
}

// ProgressReporter receives incremental progress from long-running commands.
type ProgressReporter interface {
	Report(done, total int, message string)
}
