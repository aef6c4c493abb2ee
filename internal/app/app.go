package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradewatch/internal/config"
	"tradewatch/internal/infrastructure/fec"
	"tradewatch/internal/infrastructure/quotes"
	"tradewatch/internal/infrastructure/scraper"
	"tradewatch/internal/infrastructure/storage"
	"tradewatch/internal/logging"
	"tradewatch/internal/progress"
	"tradewatch/internal/resolve"
	"tradewatch/internal/scanner"
	"tradewatch/internal/usecase"
)

// Application wires configuration to adapters and use cases.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	repo   *storage.Repository
}

// New opens the database and builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	repo, err := storage.Open(cfg.Database.Path, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.Init(ctx, cfg.Sync.SubIDPerCycle); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Application{cfg: cfg, logger: baseLogger, repo: repo}, nil
}

// Close releases the database handles.
func (a *Application) Close() error {
	return a.repo.Close()
}

// Scan scrapes the configured disclosure sites and stores new trades.
func (a *Application) Scan(ctx context.Context) error {
	registry := scanner.NewRegistry()
	registry.Register(scraper.NewHouseScanner(nil))

	source := scraper.NewStrategySource(registry, a.cfg.Sites, a.logger.With("component", "source"))

	scan := usecase.NewDisclosureScan(usecase.DisclosureScanDeps{
		Source:       source,
		Trades:       a.repo,
		Politicians:  a.repo,
		Logger:       a.logger.With("component", "scan"),
		LookbackDays: a.cfg.Sync.ScanLookbackDays,
	})
	_, err := scan.Run(ctx)
	return err
}

// Enrich fills in closing prices for trades not yet attempted.
func (a *Application) Enrich(ctx context.Context) error {
	client := quotes.NewClient(a.cfg.Quotes.BaseURL, a.cfg.Quotes.APIKey, nil,
		a.logger.With("component", "quotes"))

	enricher := usecase.NewPriceEnricher(usecase.PriceEnricherDeps{
		Trades:      a.repo,
		Quotes:      client,
		Progress:    progress.NewConsole("enrich"),
		Logger:      a.logger.With("component", "enrich"),
		Concurrency: a.cfg.Quotes.Concurrency,
		Threshold:   a.cfg.Quotes.BreakerThreshold,
	})
	_, err := enricher.Run(ctx)
	return err
}

// Sync pulls itemized contributions for every tracked politician's
// campaign committees.
func (a *Application) Sync(ctx context.Context) error {
	client := fec.NewClient(a.cfg.FEC.BaseURL, a.cfg.FEC.APIKey, nil,
		a.logger.With("component", "fec"))

	resolver := resolve.NewCommitteeResolver(a.repo, client,
		time.Duration(a.cfg.Sync.RecheckHours)*time.Hour,
		a.logger.With("component", "resolver"))

	syncer := usecase.NewContributionSyncer(usecase.ContributionSyncerDeps{
		Politicians: a.repo,
		Cursors:     a.repo,
		Source:      client,
		Resolver:    resolver,
		Progress:    progress.NewConsole("sync"),
		Logger:      a.logger.With("component", "sync"),
		Concurrency: a.cfg.FEC.Concurrency,
		Threshold:   a.cfg.FEC.BreakerThreshold,
		Cycle:       a.cfg.FEC.Cycle,
		Recheck:     time.Duration(a.cfg.Sync.RecheckHours) * time.Hour,
	})
	_, err := syncer.Run(ctx)
	return err
}
