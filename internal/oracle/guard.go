package oracle

import (
	"fmt"
	"time"
)

// StalenessTimeout is the maximum quote age before a guarded read rejects
// the round. It is a data-staleness policy, not a liveness timeout: the
// only defense against a frozen or compromised feed. Price plausibility is
// not validated here.
const StalenessTimeout = 3 * time.Hour

// StalePriceError reports a guarded read that found a quote older than the
// staleness timeout.
type StalePriceError struct {
	FeedRef   string
	UpdatedAt time.Time
	Age       time.Duration
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("oracle: stale price for feed %q: updated %s ago (max %s)",
		e.FeedRef, e.Age, StalenessTimeout)
}

// Guard wraps a Source and rejects rounds older than StalenessTimeout.
// On success the quote is returned unchanged. Pure read, no side effects.
type Guard struct {
	source Source
	now    func() time.Time
}

// NewGuard creates a staleness guard over source. now may be nil, in which
// case wall-clock time is used; tests inject a fixed clock.
func NewGuard(source Source, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{source: source, now: now}
}

// LatestRound reads the latest quote and fails with *StalePriceError if it
// is older than StalenessTimeout.
func (g *Guard) LatestRound(feedRef string) (Quote, error) {
	q, err := g.source.LatestRound(feedRef)
	if err != nil {
		return Quote{}, err
	}
	age := g.now().Sub(q.UpdatedAt)
	if age > StalenessTimeout {
		return Quote{}, &StalePriceError{FeedRef: feedRef, UpdatedAt: q.UpdatedAt, Age: age}
	}
	return q, nil
}
