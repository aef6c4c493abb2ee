package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradewatch/internal/domain"
	"tradewatch/internal/enrich"
	"tradewatch/internal/ports"
)

// ContributionSyncerDeps wires the driven adapters into the sync run.
type ContributionSyncerDeps struct {
	Politicians ports.PoliticianStore
	Cursors     ports.CursorStore
	Source      ports.ContributionSource
	Resolver    ports.CommitteeResolver
	Progress    ports.ProgressReporter
	Logger      *slog.Logger
	Concurrency int
	Threshold   int
	Cycle       int
	Recheck     time.Duration
}

// ContributionSyncer synchronizes itemized receipts per (politician,
// committee) partition. Each partition is one fetch task that pages through
// the keyset-paginated API from its persisted cursor; the single-writer sink
// commits every page together with the advanced cursor in one transaction,
// so an interrupted run resumes from the last durable page.
type ContributionSyncer struct {
	politicians ports.PoliticianStore
	cursors     ports.CursorStore
	source      ports.ContributionSource
	resolver    ports.CommitteeResolver
	progress    ports.ProgressReporter
	logger      *slog.Logger
	concurrency int
	threshold   int
	cycle       int
	recheck     time.Duration
	now         func() time.Time
}

// NewContributionSyncer constructs the sync use case.
func NewContributionSyncer(deps ContributionSyncerDeps) *ContributionSyncer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	threshold := deps.Threshold
	if threshold <= 0 {
		threshold = 5
	}
	recheck := deps.Recheck
	if recheck <= 0 {
		recheck = 24 * time.Hour
	}
	return &ContributionSyncer{
		politicians: deps.Politicians,
		cursors:     deps.Cursors,
		source:      deps.Source,
		resolver:    deps.Resolver,
		progress:    deps.Progress,
		logger:      logger,
		concurrency: concurrency,
		threshold:   threshold,
		cycle:       deps.Cycle,
		recheck:     recheck,
		now:         time.Now,
	}
}

// Run resolves committees for every tracked politician, skips partitions
// completed within the recheck window, and syncs the rest. Returns
// enrich.ErrTripped when the breaker halted the run.
func (s *ContributionSyncer) Run(ctx context.Context) (enrich.Stats, error) {
	pols, err := s.politicians.Politicians(ctx)
	if err != nil {
		return enrich.Stats{}, fmt.Errorf("load politicians: %w", err)
	}

	starts := make(map[domain.SyncPartition]string)
	batch := make(map[domain.SyncPartition][]int64)
	skipped := 0

	for _, p := range pols {
		committees, err := s.resolver.Resolve(ctx, p)
		if err != nil {
			if enrich.IsFatal(err) {
				return enrich.Stats{}, err
			}
			s.logger.Warn("committee resolution failed, skipping politician",
				"politician", p.Name, "error", err)
			continue
		}

		for _, c := range committees {
			part := domain.SyncPartition{PoliticianID: p.ID, CommitteeID: c.FECID}
			cursor, err := s.cursors.LoadCursor(ctx, part)
			if err != nil {
				return enrich.Stats{}, fmt.Errorf("load cursor: %w", err)
			}
			if cursor != nil {
				if cursor.Complete() && s.now().Sub(*cursor.CompletedAt) < s.recheck {
					skipped++
					continue
				}
				starts[part] = cursor.Position
			}
			batch[part] = nil
		}
	}

	if len(batch) == 0 {
		s.logger.Info("all partitions up to date", "skipped", skipped)
		return enrich.Stats{}, nil
	}
	s.logger.Info("starting contribution sync",
		"partitions", len(batch), "skipped", skipped, "cycle", s.cycle, "concurrency", s.concurrency)

	fetch := func(ctx context.Context, part domain.SyncPartition) (enrich.Outcome[[]domain.ContributionPage], error) {
		cursor := starts[part]
		var pages []domain.ContributionPage
		for {
			page, err := s.source.ContributionsPage(ctx, part.CommitteeID, cursor, s.cycle)
			if err != nil {
				// Pages fetched before the failure still flow to the
				// sink; the next run resumes from the last committed
				// cursor.
				if len(pages) == 0 {
					return enrich.Negative[[]domain.ContributionPage](), err
				}
				return enrich.Hit(pages), err
			}
			pages = append(pages, page)
			if page.NextCursor == "" {
				return enrich.Hit(pages), nil
			}
			cursor = page.NextCursor
		}
	}

	apply := func(ctx context.Context, _ []int64, res enrich.Result[domain.SyncPartition, []domain.ContributionPage]) error {
		for _, page := range res.Outcome.Value {
			if err := s.cursors.SaveContributionsPage(ctx, res.Key, page); err != nil {
				return err
			}
		}
		return nil
	}

	breaker := enrich.NewBreaker(s.threshold)
	pool := enrich.NewPool(fetch, s.concurrency, breaker, s.logger.With("component", "pool.fec"))
	if s.progress != nil {
		pool.Progress = s.progress.Report
	}

	start := time.Now()
	stats, err := pool.Run(ctx, batch, apply)
	s.logger.Info("contribution sync finished",
		"partitions", stats.Processed,
		"failures", stats.Failures,
		"skipped", skipped,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return stats, err
}
