package leadinbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"whitelabel_crm_backend/internal/events"
	"whitelabel_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// ServiceConfig holds the pass settings.
type ServiceConfig struct {
	BatchSize        int
	StaleThreshold   time.Duration
	RecentErrorLimit int
}

// PassResult is the summary of one recover, process, stats pass.
type PassResult struct {
	Recovered int
	Batch     BatchResult
	Stats     ProcessingStats
	Duration  time.Duration
}

// Service is the lead inbox entry point for the webhook, the scheduler and the HTTP trigger.
type Service struct {
	inbox     Inbox
	processor *Processor
	bus       events.Bus
	metrics   Metrics
	log       *logger.Logger
	cfg       ServiceConfig
	now       func() time.Time
}

// NewService creates a lead inbox service. bus and metrics may be nil.
func NewService(inbox Inbox, processor *Processor, bus events.Bus, metrics Metrics, cfg ServiceConfig, log *logger.Logger) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.RecentErrorLimit <= 0 {
		cfg.RecentErrorLimit = DefaultRecentErrorLimit
	}
	return &Service{
		inbox:     inbox,
		processor: processor,
		bus:       bus,
		metrics:   metrics,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ReceiveLead stores a lead delivered by a platform. Duplicate deliveries of the same
// external lead id are acknowledged without creating new work.
func (s *Service) ReceiveLead(ctx context.Context, lead NewLeadEvent) (InsertResult, error) {
	lead.ExternalLeadID = strings.TrimSpace(lead.ExternalLeadID)
	if lead.OrganizationID == uuid.Nil || lead.ExternalLeadID == "" || lead.SourcePlatform == "" {
		return InsertResult{}, fmt.Errorf("lead event requires organization, platform and external lead id")
	}

	result, err := s.inbox.Insert(ctx, lead)
	if err != nil {
		return InsertResult{}, err
	}

	if result.Duplicate {
		s.log.Info("duplicate lead delivery ignored",
			"lead_id", result.ID.String(),
			"external_lead_id", lead.ExternalLeadID,
		)
		return result, nil
	}

	s.log.LeadTransition(result.ID.String(), lead.ExternalLeadID, "", string(StatePending), "received")
	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadEventReceived{
			BaseEvent:      events.NewBaseEvent(),
			LeadEventID:    result.ID,
			OrganizationID: lead.OrganizationID,
			SourcePlatform: lead.SourcePlatform,
			ExternalLeadID: lead.ExternalLeadID,
		})
	}
	return result, nil
}

// IsKnownLead reports whether the external lead was already received.
func (s *Service) IsKnownLead(ctx context.Context, orgID uuid.UUID, platform, externalLeadID string) (bool, error) {
	return s.inbox.Exists(ctx, orgID, platform, externalLeadID)
}

// ProcessPendingLeads runs one batch with the given size.
func (s *Service) ProcessPendingLeads(ctx context.Context, batchSize int) (BatchResult, error) {
	return s.processor.ProcessPendingLeads(ctx, batchSize)
}

// RunPass recovers stale leads, processes one batch and collects stats, in that order.
// Lead level failures are part of the result; an error means the inbox itself could
// not be read or written.
func (s *Service) RunPass(ctx context.Context) (PassResult, error) {
	start := s.now()
	ctx = context.WithValue(ctx, logger.PassIDKey, uuid.NewString())
	log := s.log.WithContext(ctx)

	result, err := s.runPass(ctx)
	result.Duration = s.now().Sub(start)
	s.metrics.ObservePass(result.Duration, err)
	if err != nil {
		log.Error("lead inbox pass failed", "error", err)
		return result, err
	}

	for _, state := range AllStates {
		s.metrics.SetInboxDepth(string(state), result.Stats.ByState[state])
	}

	log.Info("lead inbox pass finished",
		"recovered", result.Recovered,
		"processed", result.Batch.Processed,
		"succeeded", result.Batch.Succeeded,
		"failed", result.Batch.Failed,
		"retried", result.Batch.Retried,
		"timed_out", result.Batch.TimedOut,
		"pending", result.Stats.ByState[StatePending],
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *Service) runPass(ctx context.Context) (PassResult, error) {
	var result PassResult

	recovery, err := s.RecoverStaleProcessingLeads(ctx)
	if err != nil {
		return result, fmt.Errorf("recover stale leads: %w", err)
	}
	result.Recovered = recovery.Recovered
	s.metrics.ObserveRecovered(recovery.Recovered)
	if recovery.Recovered > 0 {
		s.log.WithContext(ctx).Warn("released stale processing leads", "count", recovery.Recovered)
	}

	batch, err := s.processor.ProcessPendingLeads(ctx, s.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("process pending leads: %w", err)
	}
	result.Batch = batch

	stats, err := s.GetProcessingStats(ctx)
	if err != nil {
		return result, fmt.Errorf("collect processing stats: %w", err)
	}
	result.Stats = stats
	return result, nil
}
