// Package oracle wraps external price feeds and enforces the staleness
// policy on reads that convert collateral during liquidation.
package oracle

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Quote is one price-feed round, returned field-for-field as the feed
// reported it. Price is signed and in feed-native decimals (8 assumed);
// interpretation is the converter's concern, not the oracle's.
type Quote struct {
	RoundID         uint64
	Price           *big.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound uint64
}

// Source reads the latest round for a feed reference. Implementations are
// external collaborators (on-chain aggregators, HTTP gateways); the engine
// only ever sees this interface.
type Source interface {
	LatestRound(feedRef string) (Quote, error)
}

// StaticSource is an in-memory Source used by tests, local runs, and
// manual overrides during incident response.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewStaticSource() *StaticSource {
	return &StaticSource{quotes: make(map[string]Quote)}
}

// Set stores a quote under the feed reference, replacing any prior round.
func (s *StaticSource) Set(feedRef string, q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.Price != nil {
		q.Price = new(big.Int).Set(q.Price)
	}
	s.quotes[feedRef] = q
}

// SetPrice is a convenience for the common case: a fresh round at the given
// signed 8-decimal price, updated now.
func (s *StaticSource) SetPrice(feedRef string, price int64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.quotes[feedRef]
	s.quotes[feedRef] = Quote{
		RoundID:         prev.RoundID + 1,
		Price:           big.NewInt(price),
		StartedAt:       now,
		UpdatedAt:       now,
		AnsweredInRound: prev.RoundID + 1,
	}
}

func (s *StaticSource) LatestRound(feedRef string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[feedRef]
	if !ok {
		return Quote{}, fmt.Errorf("oracle: no quote for feed %q", feedRef)
	}
	if q.Price != nil {
		q.Price = new(big.Int).Set(q.Price)
	}
	return q, nil
}
