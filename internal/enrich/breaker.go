package enrich

// Breaker counts consecutive failures and trips once the threshold is
// reached. Tripped is terminal for the run. The breaker is owned exclusively
// by the single-writer consumption loop, which serializes all transitions;
// it is deliberately not safe for concurrent use.
type Breaker struct {
	threshold   int
	consecutive int
	tripped     bool
}

// NewBreaker builds a closed breaker that trips at threshold consecutive
// failures. A threshold below one trips on the first failure.
func NewBreaker(threshold int) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{threshold: threshold}
}

// RecordSuccess resets the consecutive-failure counter. A success after the
// breaker has tripped does not untrip it.
func (b *Breaker) RecordSuccess() {
	if b.tripped {
		return
	}
	b.consecutive = 0
}

// RecordFailure increments the counter and trips the breaker once it reaches
// the threshold.
func (b *Breaker) RecordFailure() {
	b.consecutive++
	if b.consecutive >= b.threshold {
		b.tripped = true
	}
}

// Tripped reports whether the breaker has reached its threshold.
func (b *Breaker) Tripped() bool {
	return b.tripped
}

// Failures reports the current consecutive-failure count.
func (b *Breaker) Failures() int {
	return b.consecutive
}
