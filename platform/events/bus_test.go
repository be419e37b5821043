package events

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"whitelabel_crm_backend/platform/logger"
)

type pingEvent struct {
	BaseEvent
}

func (pingEvent) EventName() string { return "test.ping" }

func TestPublishSyncJoinsErrorsAndRecoversPanics(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	var calls atomic.Int32

	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		calls.Add(1)
		return errors.New("first failed")
	}))
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		calls.Add(1)
		panic("boom")
	}))
	bus.Subscribe("test.other", HandlerFunc(func(context.Context, Event) error {
		t.Fatalf("unrelated handler must not run")
		return nil
	}))

	err := bus.PublishSync(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	if err == nil || !strings.Contains(err.Error(), "first failed") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined handler errors, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls.Load())
	}
}

func TestPublishDetachesCancellation(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	var sawCancel atomic.Bool

	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, _ Event) error {
		sawCancel.Store(ctx.Err() != nil)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, pingEvent{BaseEvent: NewBaseEvent()})
	bus.Wait()

	if sawCancel.Load() {
		t.Fatalf("expected handler context to survive publisher cancellation")
	}
}
