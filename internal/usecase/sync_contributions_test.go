package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"tradewatch/internal/domain"
	"tradewatch/internal/enrich"
	"tradewatch/internal/infrastructure/storage"
)

type fixedResolver struct {
	committees []domain.Committee
}

func (r fixedResolver) Resolve(ctx context.Context, p domain.Politician) ([]domain.Committee, error) {
	return r.committees, nil
}

type fakeContributionSource struct {
	mu      sync.Mutex
	pages   map[string]domain.ContributionPage // keyed by requested cursor
	cursors []string
	err     error
}

func (f *fakeContributionSource) ContributionsPage(ctx context.Context, committeeID, cursor string, cycle int) (domain.ContributionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	if f.err != nil {
		return domain.ContributionPage{}, f.err
	}
	return f.pages[cursor], nil
}

func (f *fakeContributionSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cursors)
}

func newSyncRepo(t *testing.T) (*storage.Repository, int64) {
	t.Helper()

	repo, err := storage.Open(filepath.Join(t.TempDir(), "tradewatch.db"), nil)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	if err := repo.Init(context.Background(), true); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	pid, err := repo.SavePolitician(context.Background(), domain.Politician{
		Name: "Jane Example", Chamber: "house", State: "TX",
	})
	if err != nil {
		t.Fatalf("save politician: %v", err)
	}
	return repo, pid
}

func record(subID string) domain.Contribution {
	return domain.Contribution{SubID: subID, CommitteeID: "C00123456", Cycle: 2024, Amount: 100}
}

func TestContributionSyncThreePagesThenSkip(t *testing.T) {
	t.Parallel()

	repo, pid := newSyncRepo(t)
	source := &fakeContributionSource{pages: map[string]domain.ContributionPage{
		"":   {Records: []domain.Contribution{record("s1"), record("s2")}, NextCursor: "c2"},
		"c2": {Records: []domain.Contribution{record("s3"), record("s4")}, NextCursor: "c3"},
		"c3": {Records: []domain.Contribution{record("s5"), record("s6")}},
	}}

	deps := ContributionSyncerDeps{
		Politicians: repo,
		Cursors:     repo,
		Source:      source,
		Resolver:    fixedResolver{committees: []domain.Committee{{FECID: "C00123456"}}},
		Cycle:       2024,
	}

	stats, err := NewContributionSyncer(deps).Run(context.Background())
	if err != nil {
		t.Fatalf("first Run error: %v", err)
	}
	if stats.Processed != 1 || stats.Failures != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if source.callCount() != 3 {
		t.Fatalf("expected 3 page fetches, got %d", source.callCount())
	}

	count, err := repo.ContributionCount(context.Background(), "C00123456")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 6 {
		t.Fatalf("expected 6 contributions, got %d", count)
	}

	cursor, err := repo.LoadCursor(context.Background(), domain.SyncPartition{PoliticianID: pid, CommitteeID: "C00123456"})
	if err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	if cursor == nil || !cursor.Complete() || cursor.Position != "" {
		t.Fatalf("partition not marked complete: %+v", cursor)
	}

	// Second run within the recheck window: zero network calls, same rows.
	stats, err = NewContributionSyncer(deps).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if stats.Processed != 0 || source.callCount() != 3 {
		t.Fatalf("completed partition was re-synced: %+v calls=%d", stats, source.callCount())
	}
	count, _ = repo.ContributionCount(context.Background(), "C00123456")
	if count != 6 {
		t.Fatalf("row count changed on idempotent re-run: %d", count)
	}
}

func TestContributionSyncResumesFromPersistedCursor(t *testing.T) {
	t.Parallel()

	repo, pid := newSyncRepo(t)
	part := domain.SyncPartition{PoliticianID: pid, CommitteeID: "C00123456"}

	// A previous run committed page 1 and crashed before finishing.
	if err := repo.SaveContributionsPage(context.Background(), part, domain.ContributionPage{
		Records:    []domain.Contribution{record("s1"), record("s2")},
		NextCursor: "c2",
	}); err != nil {
		t.Fatalf("seed page: %v", err)
	}

	source := &fakeContributionSource{pages: map[string]domain.ContributionPage{
		"c2": {Records: []domain.Contribution{record("s3")}},
	}}

	deps := ContributionSyncerDeps{
		Politicians: repo,
		Cursors:     repo,
		Source:      source,
		Resolver:    fixedResolver{committees: []domain.Committee{{FECID: "C00123456"}}},
		Cycle:       2024,
	}
	if _, err := NewContributionSyncer(deps).Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if len(source.cursors) != 1 || source.cursors[0] != "c2" {
		t.Fatalf("sync did not resume from persisted cursor: %v", source.cursors)
	}
	count, _ := repo.ContributionCount(context.Background(), "C00123456")
	if count != 3 {
		t.Fatalf("expected 3 contributions after resume, got %d", count)
	}
}

func TestContributionSyncCredentialErrorAborts(t *testing.T) {
	t.Parallel()

	repo, pid := newSyncRepo(t)
	source := &fakeContributionSource{err: enrich.Failuref(enrich.FailureConfig, "invalid api key")}

	deps := ContributionSyncerDeps{
		Politicians: repo,
		Cursors:     repo,
		Source:      source,
		Resolver:    fixedResolver{committees: []domain.Committee{{FECID: "C00123456"}}},
		Cycle:       2024,
	}
	_, err := NewContributionSyncer(deps).Run(context.Background())
	if err == nil || errors.Is(err, enrich.ErrTripped) {
		t.Fatalf("expected fatal configuration error, got %v", err)
	}

	cursor, loadErr := repo.LoadCursor(context.Background(), domain.SyncPartition{PoliticianID: pid, CommitteeID: "C00123456"})
	if loadErr != nil {
		t.Fatalf("load cursor: %v", loadErr)
	}
	if cursor != nil {
		t.Fatalf("aborted run must not advance the cursor: %+v", cursor)
	}
}

func TestContributionSyncPartialPagesSurviveMidPaginationFailure(t *testing.T) {
	t.Parallel()

	repo, pid := newSyncRepo(t)
	source := &fakeContributionSource{pages: map[string]domain.ContributionPage{
		"": {Records: []domain.Contribution{record("s1"), record("s2")}, NextCursor: "c2"},
	}}
	failing := &flakySource{inner: source, failOn: 2}

	deps := ContributionSyncerDeps{
		Politicians: repo,
		Cursors:     repo,
		Source:      failing,
		Resolver:    fixedResolver{committees: []domain.Committee{{FECID: "C00123456"}}},
		Cycle:       2024,
		Threshold:   1,
	}
	_, err := NewContributionSyncer(deps).Run(context.Background())
	if !errors.Is(err, enrich.ErrTripped) {
		t.Fatalf("expected breaker trip, got %v", err)
	}

	// Page 1 was committed with its cursor before the failure surfaced.
	cursor, loadErr := repo.LoadCursor(context.Background(), domain.SyncPartition{PoliticianID: pid, CommitteeID: "C00123456"})
	if loadErr != nil {
		t.Fatalf("load cursor: %v", loadErr)
	}
	if cursor == nil || cursor.Position != "c2" || cursor.Complete() {
		t.Fatalf("partial progress not durable: %+v", cursor)
	}
	count, _ := repo.ContributionCount(context.Background(), "C00123456")
	if count != 2 {
		t.Fatalf("expected 2 durable contributions, got %d", count)
	}
}

type flakySource struct {
	mu     sync.Mutex
	inner  *fakeContributionSource
	calls  int
	failOn int
}

func (f *flakySource) ContributionsPage(ctx context.Context, committeeID, cursor string, cycle int) (domain.ContributionPage, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.failOn
	f.mu.Unlock()
	if fail {
		return domain.ContributionPage{}, enrich.Failuref(enrich.FailureUpstream, "gateway timeout")
	}
	return f.inner.ContributionsPage(ctx, committeeID, cursor, cycle)
}
