package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"whitelabel_crm_backend/internal/events"
	"whitelabel_crm_backend/internal/leadinbox"
	"whitelabel_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRunner) RunPass(context.Context) (leadinbox.PassResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return leadinbox.PassResult{}, f.err
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	triggers []string
	err      error
}

func (f *fakeEnqueuer) EnqueueLeadInboxPass(_ context.Context, trigger string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger)
	return f.err
}

func TestRedisClientOptParsesURL(t *testing.T) {
	opt, err := redisClientOpt("rediss://worker:pw@redis.internal:6380/2", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt.Addr != "redis.internal:6380" || opt.Username != "worker" || opt.Password != "pw" || opt.DB != 2 {
		t.Fatalf("unexpected options %+v", opt)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure TLS config for rediss URL")
	}

	plain, err := redisClientOpt("redis://localhost:6379/0", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plain.TLSConfig != nil {
		t.Fatalf("expected no TLS for redis URL")
	}
}

func TestLeadInboxTaskPayloadIsStablePerTrigger(t *testing.T) {
	first, err := NewLeadInboxProcessTask(LeadInboxProcessPayload{Trigger: TriggerLeadReceived})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := NewLeadInboxProcessTask(LeadInboxProcessPayload{Trigger: TriggerLeadReceived})

	if first.Type() != "leads.inbox.process" || string(first.Payload()) != string(second.Payload()) {
		t.Fatalf("expected identical payloads so unique enqueue can deduplicate")
	}
}

func TestSubscribeLeadInboxNudge(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Discard())
	enqueuer := &fakeEnqueuer{err: errors.New("redis down")}
	SubscribeLeadInboxNudge(bus, enqueuer, logger.Discard())

	err := bus.PublishSync(context.Background(), events.LeadEventReceived{
		BaseEvent:   events.NewBaseEvent(),
		LeadEventID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("enqueue failure must not fail the publisher: %v", err)
	}
	if len(enqueuer.triggers) != 1 || enqueuer.triggers[0] != TriggerLeadReceived {
		t.Fatalf("expected one lead_received nudge, got %v", enqueuer.triggers)
	}
}

func TestWorkerRunsPassForTask(t *testing.T) {
	runner := &fakeRunner{}
	w := &Worker{runner: runner, log: logger.Discard()}
	task, _ := NewLeadInboxProcessTask(LeadInboxProcessPayload{Trigger: TriggerManual})

	if err := w.handleLeadInboxProcess(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.calls != 1 {
		t.Fatalf("expected one pass, got %d", runner.calls)
	}

	err := w.handleLeadInboxProcess(context.Background(), asynq.NewTask(TaskLeadInboxProcess, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected malformed payload to skip retries, got %v", err)
	}
}

func TestNewLeadInboxCronValidatesSchedule(t *testing.T) {
	if _, err := NewLeadInboxCron("every minute", &fakeRunner{}, logger.Discard()); err == nil {
		t.Fatalf("expected invalid schedule to be rejected")
	}
	for _, spec := range []string{"", "@every 30s", "*/5 * * * *"} {
		if _, err := NewLeadInboxCron(spec, &fakeRunner{}, logger.Discard()); err != nil {
			t.Fatalf("expected %q to be accepted: %v", spec, err)
		}
	}
}

func TestLeadInboxCronSkipsAfterShutdown(t *testing.T) {
	runner := &fakeRunner{err: errors.New("database down")}
	c, err := NewLeadInboxCron("", runner, logger.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.runOnce(context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.runOnce(ctx)

	if runner.calls != 1 {
		t.Fatalf("expected exactly one pass, got %d", runner.calls)
	}
}
