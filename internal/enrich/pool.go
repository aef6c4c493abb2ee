package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrTripped is returned by Run when the circuit breaker stops the batch.
var ErrTripped = errors.New("circuit breaker tripped")

// Result carries one completed fetch through the result channel. Err and
// Outcome can both be set when a task made partial progress before failing.
type Result[K comparable, V any] struct {
	Key     K
	Outcome Outcome[V]
	Err     error
}

// FetchFunc performs the external work for one key.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (Outcome[V], error)

// ApplyFunc persists one delivered result for all its downstream consumers.
// It runs only inside the single-writer loop and is the sole code path
// allowed to touch the write connection. A returned error is treated as a
// local database failure and aborts the run.
type ApplyFunc[K comparable, V any] func(ctx context.Context, consumers []int64, res Result[K, V]) error

// ProgressFunc receives (done, total, message) updates from the sink loop.
type ProgressFunc func(done, total int, message string)

// Stats summarizes one Run for reporting and exit-status decisions.
type Stats struct {
	Keys      int // unique fetch keys in the batch
	Processed int // results delivered to the sink
	Hits      int
	Negatives int
	Failures  int
	Rows      int // consumer rows written
}

// Pool runs a deduplicated batch of fetch keys through a bounded set of
// concurrent tasks and funnels every result into a single-writer sink loop.
// The sink owns the circuit breaker and all persistence.
type Pool[K comparable, V any] struct {
	fetch   FetchFunc[K, V]
	limit   int64
	breaker *Breaker
	logger  *slog.Logger

	// Progress, when set, is called after every delivered result.
	Progress ProgressFunc
}

// NewPool builds an orchestrator admitting at most limit concurrent fetches.
func NewPool[K comparable, V any](fetch FetchFunc[K, V], limit int, breaker *Breaker, logger *slog.Logger) *Pool[K, V] {
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool[K, V]{fetch: fetch, limit: int64(limit), breaker: breaker, logger: logger}
}

type delivery[K comparable, V any] struct {
	consumers []int64
	res       Result[K, V]
}

// Run executes the batch. Each unique key is fetched once; its result plus
// the consumer ids mapped to it are delivered to apply in arrival order.
// Run returns ErrTripped when the breaker stops the batch, a wrapped fatal
// error on a configuration failure, or nil once the channel drains.
func (p *Pool[K, V]) Run(ctx context.Context, batch map[K][]int64, apply ApplyFunc[K, V]) (Stats, error) {
	stats := Stats{Keys: len(batch)}
	if len(batch) == 0 {
		return stats, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan delivery[K, V])
	sem := semaphore.NewWeighted(p.limit)

	var wg sync.WaitGroup
	for key, consumers := range batch {
		wg.Add(1)
		go func(key K, consumers []int64) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			out, err := p.fetch(ctx, key)
			select {
			case results <- delivery[K, V]{consumers: consumers, res: Result[K, V]{Key: key, Outcome: out, Err: err}}:
			case <-ctx.Done():
			}
		}(key, consumers)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for d := range results {
		if IsFatal(d.res.Err) {
			cancel()
			p.logger.Error("aborting: permanent configuration failure, fix credentials or endpoint before retrying",
				"error", d.res.Err)
			return stats, fmt.Errorf("fatal configuration error: %w", d.res.Err)
		}

		if err := apply(ctx, d.consumers, d.res); err != nil {
			cancel()
			return stats, fmt.Errorf("persist result for %v: %w", d.res.Key, err)
		}
		stats.Processed++
		stats.Rows += len(d.consumers)

		switch {
		case d.res.Err != nil:
			stats.Failures++
			p.breaker.RecordFailure()
		case d.res.Outcome.Found:
			stats.Hits++
			p.breaker.RecordSuccess()
		default:
			// Confirmed-absent still counts against the breaker: a run of
			// them usually means the upstream answer shape drifted.
			stats.Negatives++
			p.breaker.RecordFailure()
		}

		if p.Progress != nil {
			p.Progress(stats.Processed, stats.Keys, fmt.Sprintf("%v", d.res.Key))
		}

		if p.breaker.Tripped() {
			cancel()
			p.logger.Error("circuit breaker tripped, cancelling outstanding fetches",
				"consecutive_failures", p.breaker.Failures(),
				"processed", stats.Processed,
				"keys", stats.Keys)
			return stats, ErrTripped
		}
	}

	return stats, nil
}
