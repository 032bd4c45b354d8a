// Package event defines the outbound event surface of the vault engine.
// Events are observability output for indexers and downstream consumers;
// the engine's in-memory ledgers remain the source of truth.
package event

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Type discriminates event payloads. The string form doubles as the NATS
// subject segment and the event_type column in the Postgres journal.
type Type string

const (
	TypeCollateralDeposited Type = "collateral_deposited"
	TypeCollateralRedeemed  Type = "collateral_redeemed"
	TypeDebtMinted          Type = "debt_minted"
	TypeDebtBurned          Type = "debt_burned"
	TypeLiquidationExecuted Type = "liquidation_executed"
)

// Event is a single engine occurrence. Amounts are 1e18-scaled decimal
// strings so the wire format is independent of the in-memory integer width.
type Event struct {
	ID        uuid.UUID  `json:"id"`
	Sequence  int64      `json:"sequence"`
	Type      Type       `json:"type"`
	User      uuid.UUID  `json:"user"`
	Asset     string     `json:"asset,omitempty"`
	Amount    string     `json:"amount"`
	From      *uuid.UUID `json:"from,omitempty"`
	To        *uuid.UUID `json:"to,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// IdempotencyKey identifies the event for conflict-free journal writes.
func (e Event) IdempotencyKey() string {
	return e.ID.String()
}

// Sink assigns sequence numbers and fans events into a buffered channel.
// Emission is non-blocking: if the pipeline falls behind, the event is
// dropped and onDrop is invoked. Ledger state never depends on delivery.
type Sink struct {
	ch     chan Event
	seq    atomic.Int64
	onDrop func(Event)
}

// NewSink creates a sink with the given buffer. onDrop may be nil.
func NewSink(buffer int, onDrop func(Event)) *Sink {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Sink{
		ch:     make(chan Event, buffer),
		onDrop: onDrop,
	}
}

// Emit stamps the event with the next sequence number and enqueues it.
func (s *Sink) Emit(e Event) {
	if s == nil {
		return
	}
	e.Sequence = s.seq.Add(1)
	select {
	case s.ch <- e:
	default:
		if s.onDrop != nil {
			s.onDrop(e)
		}
	}
}

// Events exposes the consumer side of the sink.
func (s *Sink) Events() <-chan Event {
	return s.ch
}

// Close closes the underlying channel. Only the owner (after all emitters
// have stopped) may call this.
func (s *Sink) Close() {
	close(s.ch)
}
