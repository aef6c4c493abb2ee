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

// PriceEnricherDeps wires the driven adapters into the price-enrichment run.
type PriceEnricherDeps struct {
	Trades      ports.TradeStore
	Quotes      ports.QuoteSource
	Progress    ports.ProgressReporter
	Logger      *slog.Logger
	Concurrency int
	Threshold   int
}

// PriceEnricher fills in closing prices for disclosed trades. It deduplicates
// trades into (ticker, date) fetch keys, runs them through the bounded pool,
// and writes every delivered result, including confirmed-absent sentinels,
// from the single-writer sink.
type PriceEnricher struct {
	trades      ports.TradeStore
	quotes      ports.QuoteSource
	progress    ports.ProgressReporter
	logger      *slog.Logger
	concurrency int
	threshold   int
}

// NewPriceEnricher constructs the enrichment use case.
func NewPriceEnricher(deps PriceEnricherDeps) *PriceEnricher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	threshold := deps.Threshold
	if threshold <= 0 {
		threshold = 5
	}
	return &PriceEnricher{
		trades:      deps.Trades,
		quotes:      deps.Quotes,
		progress:    deps.Progress,
		logger:      logger,
		concurrency: concurrency,
		threshold:   threshold,
	}
}

// Run enriches every trade that has not been attempted yet. It returns
// enrich.ErrTripped when the circuit breaker halted the batch; progress made
// before the trip is already durable.
func (e *PriceEnricher) Run(ctx context.Context) (enrich.Stats, error) {
	trades, err := e.trades.TradesNeedingPrices(ctx)
	if err != nil {
		return enrich.Stats{}, fmt.Errorf("load unenriched trades: %w", err)
	}
	if len(trades) == 0 {
		e.logger.Info("no trades need price enrichment")
		return enrich.Stats{}, nil
	}

	batch := make(map[domain.QuoteKey][]int64)
	for _, tr := range trades {
		key := domain.QuoteKey{Ticker: tr.Ticker, Day: tr.TradeDate.Format(domain.DayFormat)}
		batch[key] = append(batch[key], tr.ID)
	}
	e.logger.Info("starting price enrichment",
		"trades", len(trades), "unique_keys", len(batch), "concurrency", e.concurrency)

	apply := func(ctx context.Context, consumers []int64, res enrich.Result[domain.QuoteKey, float64]) error {
		var price *float64
		if res.Err == nil && res.Outcome.Found {
			v := res.Outcome.Value
			price = &v
		}
		for _, id := range consumers {
			if err := e.trades.SetTradePrice(ctx, id, price); err != nil {
				return err
			}
		}
		return nil
	}

	breaker := enrich.NewBreaker(e.threshold)
	pool := enrich.NewPool(e.quotes.Fetch, e.concurrency, breaker, e.logger.With("component", "pool.quotes"))
	if e.progress != nil {
		pool.Progress = e.progress.Report
	}

	start := time.Now()
	stats, err := pool.Run(ctx, batch, apply)
	e.logger.Info("price enrichment finished",
		"processed", stats.Processed,
		"hits", stats.Hits,
		"absent", stats.Negatives,
		"failures", stats.Failures,
		"rows", stats.Rows,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return stats, err
}
