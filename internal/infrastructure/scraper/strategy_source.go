package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradewatch/internal/config"
	"tradewatch/internal/domain"
	"tradewatch/internal/ports"
	"tradewatch/internal/scanner"
)

// StrategySource implements TradeSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	logger   *slog.Logger
}

var _ ports.TradeSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// FetchSince iterates over configured sites and executes their scanners,
// returning disclosures published on or after since. The Trade rows carry no
// PoliticianID yet; the scan use case resolves filers to database ids.
func (s *StrategySource) FetchSince(ctx context.Context, since time.Time) ([]domain.Disclosure, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("fetch disclosures", "sites", len(s.sites), "since", since.Format(domain.DayFormat))

	var aggregated []domain.Disclosure
	for _, site := range s.sites {
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}

		req := scanner.Request{
			Since:    since,
			SiteName: site.Name,
			Options:  site.Options,
			Pages:    toScannerPages(site.Pages),
		}

		results, err := strategy.Scan(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("scan site %s: %w", site.Name, err)
		}

		s.debug("site produced disclosures", "site", site.Name, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	s.debug("strategy source done", "total_disclosures", len(aggregated))
	return aggregated, nil
}

func toScannerPages(cfg []config.PageConfig) []scanner.Page {
	pages := make([]scanner.Page, 0, len(cfg))
	for _, p := range cfg {
		pages = append(pages, scanner.Page{
			Name: p.Name,
			URL:  p.URL,
		})
	}
	return pages
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
