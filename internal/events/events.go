// Package events carries the committed-transition stream. The state
// machine emits an event only after a transition is durably applied;
// intermediate states never appear here.
package events

import (
	"context"
	"log/slog"
	"time"
)

// EntityKind names the entity a transition happened on.
type EntityKind string

const (
	KindDocument            EntityKind = "document"
	KindVerificationRequest EntityKind = "verification_request"
)

// Event is one committed state transition.
type Event struct {
	EntityKind EntityKind `json:"entity_kind"`
	EntityID   string     `json:"entity_id"`
	NewState   string     `json:"new_state"`
	At         time.Time  `json:"at"`
}

// Sink delivers events to an external destination.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// NopSink drops events; used when no broker is configured.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }
func (NopSink) Close()                               {}

// Bus decouples emitters from the sink with a buffered inbox so a slow
// broker never blocks a state transition. A full inbox drops the event
// with a log line; the stream is advisory, transitions are the record.
type Bus struct {
	inbox  chan Event
	sink   Sink
	logger *slog.Logger
}

func NewBus(sink Sink, logger *slog.Logger) *Bus {
	return &Bus{
		inbox:  make(chan Event, 256),
		sink:   sink,
		logger: logger,
	}
}

// Emit enqueues an event without blocking.
func (b *Bus) Emit(event Event) {
	select {
	case b.inbox <- event:
	default:
		b.logger.Warn("event inbox full, dropping event",
			"entity_kind", event.EntityKind,
			"entity_id", event.EntityID,
			"new_state", event.NewState,
		)
	}
}

// Run consumes the inbox until ctx is cancelled, then drains what is
// already queued before returning.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return ctx.Err()
		case event := <-b.inbox:
			b.publish(ctx, event)
		}
	}
}

func (b *Bus) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-b.inbox:
			b.publish(ctx, event)
		default:
			return
		}
	}
}

func (b *Bus) publish(ctx context.Context, event Event) {
	if err := b.sink.Publish(ctx, event); err != nil {
		b.logger.ErrorContext(ctx, "failed to publish event",
			"error", err,
			"entity_kind", event.EntityKind,
			"entity_id", event.EntityID,
		)
	}
}
