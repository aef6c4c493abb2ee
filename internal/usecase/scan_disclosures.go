package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradewatch/internal/domain"
	"tradewatch/internal/ports"
)

// DisclosureScanDeps wires the scraper and stores into the scan use case.
type DisclosureScanDeps struct {
	Source       ports.TradeSource
	Trades       ports.TradeStore
	Politicians  ports.PoliticianStore
	Logger       *slog.Logger
	LookbackDays int
}

// DisclosureScan ingests newly published disclosures into the database.
type DisclosureScan struct {
	source       ports.TradeSource
	trades       ports.TradeStore
	politicians  ports.PoliticianStore
	logger       *slog.Logger
	lookbackDays int
}

// NewDisclosureScan constructs the scan use case.
func NewDisclosureScan(deps DisclosureScanDeps) *DisclosureScan {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lookback := deps.LookbackDays
	if lookback <= 0 {
		lookback = 30
	}
	return &DisclosureScan{
		source:       deps.Source,
		trades:       deps.Trades,
		politicians:  deps.Politicians,
		logger:       logger,
		lookbackDays: lookback,
	}
}

// Run scrapes disclosures from the lookback window and stores them. Filers
// are upserted first so every trade row carries a database id. Returns the
// number of newly inserted trades; re-running is idempotent.
func (s *DisclosureScan) Run(ctx context.Context) (int, error) {
	since := time.Now().UTC().AddDate(0, 0, -s.lookbackDays)

	disclosures, err := s.source.FetchSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("fetch disclosures: %w", err)
	}
	if len(disclosures) == 0 {
		s.logger.Info("no disclosures in window", "since", since.Format(domain.DayFormat))
		return 0, nil
	}

	ids := make(map[string]int64)
	trades := make([]domain.Trade, 0, len(disclosures))
	for _, d := range disclosures {
		key := d.Politician.Name + "|" + d.Politician.Chamber
		id, ok := ids[key]
		if !ok {
			id, err = s.politicians.SavePolitician(ctx, d.Politician)
			if err != nil {
				return 0, fmt.Errorf("save politician %s: %w", d.Politician.Name, err)
			}
			ids[key] = id
		}
		tr := d.Trade
		tr.PoliticianID = id
		trades = append(trades, tr)
	}

	inserted, err := s.trades.SaveTrades(ctx, trades)
	if err != nil {
		return inserted, fmt.Errorf("save trades: %w", err)
	}
	s.logger.Info("disclosure scan finished",
		"scraped", len(disclosures), "inserted", inserted, "filers", len(ids))
	return inserted, nil
}
