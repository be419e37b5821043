package leadinbox

import (
	"context"
	"testing"
	"time"

	"whitelabel_crm_backend/platform/logger"

	"github.com/google/uuid"
)

const testStaleThreshold = 10 * time.Minute

func (f *processorFixture) service() *Service {
	p := f.processor(ProcessorConfig{MaxRetries: 3, Concurrency: 2})
	svc := NewService(f.inbox, p, f.bus, nil, ServiceConfig{
		BatchSize:      10,
		StaleThreshold: testStaleThreshold,
	}, logger.Discard())
	svc.now = f.clock.Now
	return svc
}

func TestRecoverStaleProcessingLeads(t *testing.T) {
	f := newProcessorFixture()
	stale := f.insert(t, "page-1", "ext-stale")
	fresh := f.insert(t, "page-1", "ext-fresh")

	f.inbox.forceProcessing(stale, f.clock.Now().Add(-11*time.Minute))
	f.inbox.forceProcessing(fresh, f.clock.Now().Add(-1*time.Minute))
	f.inbox.leads[stale].RetryCount = 2

	result, err := f.service().RecoverStaleProcessingLeads(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Recovered != 1 || result.LeadIDs[0] != stale {
		t.Fatalf("expected only the stale lead to be recovered, got %+v", result)
	}

	recovered := f.inbox.get(stale)
	if recovered.State != StatePending || recovered.LockedAt != nil || recovered.LockToken != nil {
		t.Fatalf("expected stale lead to be pending and unlocked, got %s", recovered.State)
	}
	if recovered.RetryCount != 2 {
		t.Fatalf("recovery must not touch the retry count, got %d", recovered.RetryCount)
	}
	if f.inbox.get(fresh).State != StateProcessing {
		t.Fatalf("expected fresh lead to stay processing")
	}
}

func TestRunPassRecoversBeforeProcessing(t *testing.T) {
	f := newProcessorFixture()
	f.routes.addPage("page-1")
	stale := f.insert(t, "page-1", "ext-stale")
	f.inbox.forceProcessing(stale, f.clock.Now().Add(-time.Hour))
	f.insert(t, "page-1", "ext-new")

	result, err := f.service().RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Recovered != 1 {
		t.Fatalf("expected one recovered lead, got %d", result.Recovered)
	}
	if result.Batch.Processed != 2 || result.Batch.Succeeded != 2 {
		t.Fatalf("expected recovered lead to be processed in the same pass, got %+v", result.Batch)
	}
	if result.Stats.ByState[StateCompleted] != 2 || result.Stats.ByState[StatePending] != 0 {
		t.Fatalf("unexpected stats %+v", result.Stats.ByState)
	}
}

func TestRunPassReturnsInfrastructureErrors(t *testing.T) {
	f := newProcessorFixture()
	f.inbox.claimErr = context.DeadlineExceeded

	if _, err := f.service().RunPass(context.Background()); err == nil {
		t.Fatalf("expected claim failure to fail the pass")
	}
}

func TestGetProcessingStats(t *testing.T) {
	f := newProcessorFixture()
	f.routes.addPage("page-1")
	f.insert(t, "page-1", "ext-ok")
	failed := f.insert(t, "page-unknown", "ext-noroute")

	svc := f.service()
	if _, err := svc.ProcessPendingLeads(context.Background(), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.insert(t, "page-1", "ext-waiting")
	f.clock.Advance(90 * time.Second)

	stats, err := svc.GetProcessingStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, state := range AllStates {
		if _, ok := stats.ByState[state]; !ok {
			t.Fatalf("expected state %s to be present in stats", state)
		}
	}
	if stats.Total != 3 || stats.ByState[StateCompleted] != 1 || stats.ByState[StateFailed] != 1 || stats.ByState[StatePending] != 1 {
		t.Fatalf("unexpected counts %+v", stats.ByState)
	}
	if stats.ByPlatform[testPlatform][StateFailed] != 1 || stats.ByPlatform[testPlatform][StateProcessing] != 0 {
		t.Fatalf("unexpected platform counts %+v", stats.ByPlatform)
	}
	if stats.OldestPendingAgeSeconds == nil || *stats.OldestPendingAgeSeconds != 90 {
		t.Fatalf("unexpected oldest pending age %v", stats.OldestPendingAgeSeconds)
	}
	if len(stats.RecentErrors) != 1 || stats.RecentErrors[0].ID != failed || stats.RecentErrors[0].ExternalLeadID != "ext-noroute" {
		t.Fatalf("unexpected recent errors %+v", stats.RecentErrors)
	}
}

func TestGetProcessingStatsEmptyInbox(t *testing.T) {
	f := newProcessorFixture()

	stats, err := f.service().GetProcessingStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats.ByState) != len(AllStates) || stats.Total != 0 {
		t.Fatalf("expected zeroed state counts, got %+v", stats.ByState)
	}
	if stats.OldestPendingAgeSeconds != nil {
		t.Fatalf("expected no pending age for empty inbox")
	}
}

func TestReceiveLeadPublishesOnlyNewLeads(t *testing.T) {
	f := newProcessorFixture()
	svc := f.service()
	lead := NewLeadEvent{
		OrganizationID: f.orgID,
		SourcePlatform: testPlatform,
		SourcePageID:   "page-1",
		ExternalLeadID: " ext-1 ",
	}

	first, err := svc.ReceiveLead(context.Background(), lead)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.ReceiveLead(context.Background(), lead)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Duplicate || !second.Duplicate || first.ID != second.ID {
		t.Fatalf("expected second delivery to be a duplicate of the first")
	}
	if f.bus.count("leadinbox.lead.received") != 1 {
		t.Fatalf("expected exactly one LeadEventReceived event")
	}

	known, err := svc.IsKnownLead(context.Background(), f.orgID, testPlatform, "ext-1")
	if err != nil || !known {
		t.Fatalf("expected trimmed external id to be known, got %v (%v)", known, err)
	}
}

func TestReceiveLeadRejectsIncompleteLead(t *testing.T) {
	f := newProcessorFixture()

	_, err := f.service().ReceiveLead(context.Background(), NewLeadEvent{OrganizationID: uuid.Nil, SourcePlatform: testPlatform, ExternalLeadID: "x"})
	if err == nil {
		t.Fatalf("expected missing organization to be rejected")
	}
}
