package events

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectingSink records everything published.
type collectingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *collectingSink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *collectingSink) Close() {}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBusDeliversInOrder(t *testing.T) {
	sink := &collectingSink{}
	bus := NewBus(sink, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Run(ctx)
	}()

	for i := 0; i < 10; i++ {
		bus.Emit(Event{EntityKind: KindDocument, EntityID: "doc", NewState: "pending"})
	}
	cancel()
	<-done

	assert.Equal(t, 10, sink.count())
}

func TestBusDrainsQueuedEventsOnShutdown(t *testing.T) {
	sink := &collectingSink{}
	bus := NewBus(sink, discardLogger())

	// Events enqueued before Run starts must still land: Run drains the
	// inbox after cancellation.
	bus.Emit(Event{EntityKind: KindVerificationRequest, EntityID: "a", NewState: "completed"})
	bus.Emit(Event{EntityKind: KindVerificationRequest, EntityID: "b", NewState: "failed"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bus.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, sink.count())
}

func TestBusEmitNeverBlocks(t *testing.T) {
	sink := &collectingSink{}
	bus := NewBus(sink, discardLogger())

	// Nothing consumes the inbox; oversubscribing it must not deadlock.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			bus.Emit(Event{EntityKind: KindDocument, EntityID: "x", NewState: "pending"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Emit blocked on a full inbox")
	}
}
