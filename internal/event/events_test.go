package event

import (
	"testing"

	"github.com/google/uuid"
)

func TestSinkAssignsMonotonicSequence(t *testing.T) {
	sink := NewSink(16, nil)
	for i := 0; i < 3; i++ {
		sink.Emit(Event{ID: uuid.New(), Type: TypeCollateralDeposited})
	}
	sink.Close()

	var prev int64
	for e := range sink.Events() {
		if e.Sequence <= prev {
			t.Errorf("sequence %d not greater than %d", e.Sequence, prev)
		}
		prev = e.Sequence
	}
	if prev != 3 {
		t.Errorf("last sequence = %d, want 3", prev)
	}
}

func TestSinkDropsWhenFull(t *testing.T) {
	var dropped []Event
	sink := NewSink(1, func(e Event) { dropped = append(dropped, e) })

	sink.Emit(Event{ID: uuid.New(), Type: TypeDebtMinted})
	sink.Emit(Event{ID: uuid.New(), Type: TypeDebtBurned})

	if len(dropped) != 1 {
		t.Fatalf("dropped %d events, want 1", len(dropped))
	}
	if dropped[0].Type != TypeDebtBurned {
		t.Errorf("dropped type = %s, want %s", dropped[0].Type, TypeDebtBurned)
	}
	// Dropped events still consumed a sequence number.
	if dropped[0].Sequence != 2 {
		t.Errorf("dropped sequence = %d, want 2", dropped[0].Sequence)
	}
}

func TestNilSinkEmitIsNoop(t *testing.T) {
	var s *Sink
	s.Emit(Event{ID: uuid.New()})
}
