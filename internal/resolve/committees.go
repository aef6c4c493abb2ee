// Package resolve maps politicians to their campaign committees through a
// three-tier cache: run-scoped memory, the local database, and finally the
// regulatory API. Negative resolutions are cached at every tier with the same
// weight as positive ones so unresolvable filers are not looked up repeatedly.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradewatch/internal/domain"
	"tradewatch/internal/enrich"
	"tradewatch/internal/ports"
)

// DefaultRecheckAge is how long a persisted resolution, positive or negative,
// is trusted before the remote tier is consulted again.
const DefaultRecheckAge = 24 * time.Hour

// CommitteeResolver is the three-tier lookup chain.
type CommitteeResolver struct {
	memory *enrich.Cache[int64, []domain.Committee]
	store  ports.ResolutionStore
	remote ports.CommitteeDirectory
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.CommitteeResolver = (*CommitteeResolver)(nil)

// NewCommitteeResolver wires the persistent and remote tiers. A non-positive
// maxAge falls back to DefaultRecheckAge.
func NewCommitteeResolver(store ports.ResolutionStore, remote ports.CommitteeDirectory, maxAge time.Duration, logger *slog.Logger) *CommitteeResolver {
	if maxAge <= 0 {
		maxAge = DefaultRecheckAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommitteeResolver{
		memory: enrich.NewCache[int64, []domain.Committee](),
		store:  store,
		remote: remote,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// Resolve walks the tiers in order. Each tier populates the one above it on a
// hit, and a remote miss (filer unknown upstream) is persisted and cached as
// an empty result rather than returned as an error.
func (r *CommitteeResolver) Resolve(ctx context.Context, p domain.Politician) ([]domain.Committee, error) {
	if out, ok := r.memory.Lookup(p.ID); ok {
		return out.Value, nil
	}

	links, resolvedAt, err := r.store.CommitteeLinks(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("resolution store lookup for %s: %w", p.Name, err)
	}
	if resolvedAt != nil && r.now().Sub(*resolvedAt) < r.maxAge {
		r.memory.Store(p.ID, asOutcome(links))
		return links, nil
	}

	committees, candidateID, err := r.resolveRemote(ctx, p)
	if err != nil {
		return nil, err
	}

	if err := r.store.SaveResolution(ctx, p.ID, candidateID, committees); err != nil {
		return nil, fmt.Errorf("persist resolution for %s: %w", p.Name, err)
	}
	r.memory.Store(p.ID, asOutcome(committees))

	if len(committees) == 0 {
		r.logger.Info("no committees found upstream, caching empty resolution",
			"politician", p.Name, "state", p.State)
	}
	return committees, nil
}

// CacheSize reports the memory-tier entry count, for diagnostics.
func (r *CommitteeResolver) CacheSize() int {
	return r.memory.Len()
}

func (r *CommitteeResolver) resolveRemote(ctx context.Context, p domain.Politician) ([]domain.Committee, string, error) {
	candidateID := p.FECCandidateID

	if candidateID != "" {
		committees, err := r.remote.CandidateCommittees(ctx, candidateID)
		if err != nil {
			return nil, "", fmt.Errorf("committees for candidate %s: %w", candidateID, err)
		}
		if len(committees) > 0 {
			return committees, candidateID, nil
		}
	}

	found, err := r.remote.SearchCandidate(ctx, p.Name, p.State)
	if err != nil {
		return nil, "", fmt.Errorf("candidate search for %s: %w", p.Name, err)
	}
	if found == "" {
		return nil, candidateID, nil
	}

	committees, err := r.remote.CandidateCommittees(ctx, found)
	if err != nil {
		return nil, "", fmt.Errorf("committees for candidate %s: %w", found, err)
	}
	return committees, found, nil
}

func asOutcome(links []domain.Committee) enrich.Outcome[[]domain.Committee] {
	if len(links) == 0 {
		return enrich.Negative[[]domain.Committee]()
	}
	return enrich.Hit(links)
}
