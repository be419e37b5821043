package leadinbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"whitelabel_crm_backend/internal/contacts"
	"whitelabel_crm_backend/internal/events"
	"whitelabel_crm_backend/internal/normalize"
	"whitelabel_crm_backend/internal/routing"
	"whitelabel_crm_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const maxStoredErrorLength = 2000

// DefaultLeadTimeout bounds one lead when ProcessorConfig leaves LeadTimeout unset.
const DefaultLeadTimeout = 30 * time.Second

// Outcome of one lead within a batch. Also used as the metrics label.
const (
	OutcomeCompleted  = "completed"
	OutcomeDuplicate  = "duplicate"
	OutcomeRetried    = "retried"
	OutcomeFailed     = "failed"
	OutcomeTimedOut   = "timed_out"
	OutcomeClaimLost  = "claim_lost"
	OutcomeUnrecorded = "unrecorded"
)

// RouteResolver finds the routing rule and field mappings for a lead.
type RouteResolver interface {
	MatchRoute(ctx context.Context, orgID uuid.UUID, pageID, formID string) (routing.Rule, error)
	MappingsForRule(ctx context.Context, ruleID uuid.UUID) ([]normalize.Mapping, error)
}

// ContactStore is the CRM store a routed lead is written to.
type ContactStore interface {
	FindByExternalLeadID(ctx context.Context, orgID uuid.UUID, platform, externalLeadID string) (uuid.UUID, bool, error)
	CreateFromLead(ctx context.Context, lead contacts.LeadContact) (contacts.Result, error)
}

// ProcessorConfig bounds one batch.
type ProcessorConfig struct {
	MaxRetries  int
	LeadTimeout time.Duration
	Concurrency int
}

// BatchResult summarizes one batch. Failed counts every claimed lead that did not
// succeed; Retried and TimedOut break part of it down.
type BatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	TimedOut  int `json:"timedOut"`
}

func (r *BatchResult) add(outcome string) {
	switch outcome {
	case OutcomeCompleted, OutcomeDuplicate:
		r.Succeeded++
		return
	case OutcomeRetried:
		r.Retried++
	case OutcomeTimedOut:
		r.TimedOut++
	}
	r.Failed++
}

// Processor claims pending leads and routes each one into the CRM independently.
type Processor struct {
	inbox      Inbox
	routes     RouteResolver
	contacts   ContactStore
	normalizer *normalize.Normalizer
	bus        events.Bus
	metrics    Metrics
	log        *logger.Logger
	cfg        ProcessorConfig
	now        func() time.Time
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithEventBus publishes LeadRouted and LeadFailed events.
func WithEventBus(bus events.Bus) ProcessorOption {
	return func(p *Processor) { p.bus = bus }
}

// WithMetrics records per-lead outcomes.
func WithMetrics(m Metrics) ProcessorOption {
	return func(p *Processor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithClock replaces time.Now for duration measurements.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a processor.
func NewProcessor(inbox Inbox, routes RouteResolver, store ContactStore, normalizer *normalize.Normalizer, cfg ProcessorConfig, log *logger.Logger, opts ...ProcessorOption) *Processor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.LeadTimeout <= 0 {
		cfg.LeadTimeout = DefaultLeadTimeout
	}
	p := &Processor{
		inbox:      inbox,
		routes:     routes,
		contacts:   store,
		normalizer: normalizer,
		metrics:    noopMetrics{},
		log:        log,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessPendingLeads claims up to batchSize of the oldest pending leads and processes
// them in parallel. Failures of single leads are recorded on those leads and never
// abort the batch; only a failed claim returns an error.
func (p *Processor) ProcessPendingLeads(ctx context.Context, batchSize int) (BatchResult, error) {
	if batchSize < 1 {
		return BatchResult{}, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	leads, err := p.inbox.ClaimPending(ctx, batchSize)
	if err != nil {
		return BatchResult{}, err
	}

	outcomes := make([]string, len(leads))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, lead := range leads {
		g.Go(func() error {
			outcomes[i] = p.processLead(ctx, lead)
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{Processed: len(leads)}
	for _, outcome := range outcomes {
		result.add(outcome)
	}
	return result, nil
}

type attemptResult struct {
	contactID uuid.UUID
	ruleID    *uuid.UUID
	duplicate bool
	err       error
}

func (p *Processor) processLead(ctx context.Context, lead LeadEvent) string {
	start := p.now()
	log := p.log.With("lead_id", lead.ID.String(), "external_lead_id", lead.ExternalLeadID)

	if lead.LockToken == nil {
		log.Error("claimed lead has no lock token")
		return OutcomeUnrecorded
	}

	leadCtx, cancel := context.WithTimeout(ctx, p.cfg.LeadTimeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		done <- p.attempt(leadCtx, lead)
	}()

	var res attemptResult
	select {
	case res = <-done:
	case <-leadCtx.Done():
	}

	// A timed out lead is left in processing; stale-lock recovery releases it.
	if leadCtx.Err() != nil && (res.err != nil || res.contactID == uuid.Nil) {
		log.Warn("lead processing timed out", "timeout", p.cfg.LeadTimeout.String())
		p.metrics.ObserveLead(OutcomeTimedOut, p.now().Sub(start))
		return OutcomeTimedOut
	}

	outcome := p.finish(ctx, lead, res)
	p.metrics.ObserveLead(outcome, p.now().Sub(start))
	return outcome
}

// attempt does the routing work for one lead without touching its inbox state.
func (p *Processor) attempt(ctx context.Context, lead LeadEvent) (res attemptResult) {
	defer func() {
		if r := recover(); r != nil {
			res = attemptResult{err: fmt.Errorf("panic while processing lead: %v", r)}
		}
	}()

	// The external lead id, not the inbox row id, identifies the lead downstream.
	contactID, found, err := p.contacts.FindByExternalLeadID(ctx, lead.OrganizationID, lead.SourcePlatform, lead.ExternalLeadID)
	if err != nil {
		return attemptResult{err: fmt.Errorf("check existing contact: %w", err)}
	}
	if found {
		return attemptResult{contactID: contactID, duplicate: true}
	}

	rule, err := p.routes.MatchRoute(ctx, lead.OrganizationID, lead.SourcePageID, lead.SourceFormID)
	if err != nil {
		return attemptResult{err: err}
	}

	mappings, err := p.routes.MappingsForRule(ctx, rule.ID)
	if err != nil {
		return attemptResult{err: fmt.Errorf("load field mappings: %w", err)}
	}

	payload, notes := p.normalizer.Normalize(lead.RawFields, mappings)

	created, err := p.contacts.CreateFromLead(ctx, contacts.LeadContact{
		OrganizationID: lead.OrganizationID,
		SourcePlatform: lead.SourcePlatform,
		ExternalLeadID: lead.ExternalLeadID,
		Payload:        payload,
		Notes:          notes,
		PipelineID:     rule.TargetPipelineID,
		StageID:        rule.TargetStageID,
		AssigneeID:     rule.AssigneeID,
	})
	if err != nil {
		return attemptResult{err: fmt.Errorf("create contact: %w", err)}
	}

	ruleID := rule.ID
	return attemptResult{contactID: created.ContactID, ruleID: &ruleID, duplicate: !created.Created}
}

// finish records the attempt on the lead.
func (p *Processor) finish(ctx context.Context, lead LeadEvent, res attemptResult) string {
	token := *lead.LockToken

	switch {
	case res.err == nil:
		if err := p.inbox.MarkCompleted(ctx, lead.ID, token, res.contactID); err != nil {
			return p.transitionFailed(lead, err)
		}
		reason := ""
		if res.duplicate {
			reason = "already represented downstream"
		}
		p.log.LeadTransition(lead.ID.String(), lead.ExternalLeadID, string(StateProcessing), string(StateCompleted), reason)
		p.publish(ctx, events.LeadRouted{
			BaseEvent:      events.NewBaseEvent(),
			LeadEventID:    lead.ID,
			OrganizationID: lead.OrganizationID,
			SourcePlatform: lead.SourcePlatform,
			ContactID:      res.contactID,
			RoutingRuleID:  res.ruleID,
			Duplicate:      res.duplicate,
		})
		if res.duplicate {
			return OutcomeDuplicate
		}
		return OutcomeCompleted

	case errors.Is(res.err, routing.ErrNoRoute):
		message := truncateError(res.err.Error())
		if err := p.inbox.MarkFailed(ctx, lead.ID, token, message); err != nil {
			return p.transitionFailed(lead, err)
		}
		p.log.LeadTransition(lead.ID.String(), lead.ExternalLeadID, string(StateProcessing), string(StateFailed), message)
		p.publishFailed(ctx, lead, message)
		return OutcomeFailed

	default:
		message := truncateError(res.err.Error())
		state, err := p.inbox.MarkRetry(ctx, lead.ID, token, message, p.cfg.MaxRetries)
		if err != nil {
			return p.transitionFailed(lead, err)
		}
		p.log.LeadTransition(lead.ID.String(), lead.ExternalLeadID, string(StateProcessing), string(state), message)
		if state == StateFailed {
			p.publishFailed(ctx, lead, message)
			return OutcomeFailed
		}
		return OutcomeRetried
	}
}

func (p *Processor) transitionFailed(lead LeadEvent, err error) string {
	if errors.Is(err, ErrLeadNotClaimed) {
		p.log.Info("lead claim lost before its result was recorded",
			"lead_id", lead.ID.String(),
			"external_lead_id", lead.ExternalLeadID,
		)
		return OutcomeClaimLost
	}
	// The lead stays in processing until stale-lock recovery releases it.
	p.log.DatabaseError("leadinbox.transition", err)
	return OutcomeUnrecorded
}

func (p *Processor) publishFailed(ctx context.Context, lead LeadEvent, reason string) {
	p.publish(ctx, events.LeadFailed{
		BaseEvent:      events.NewBaseEvent(),
		LeadEventID:    lead.ID,
		OrganizationID: lead.OrganizationID,
		SourcePlatform: lead.SourcePlatform,
		Reason:         reason,
	})
}

func (p *Processor) publish(ctx context.Context, event events.Event) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, event)
}

func truncateError(message string) string {
	if len(message) <= maxStoredErrorLength {
		return message
	}
	return strings.ToValidUTF8(message[:maxStoredErrorLength], "")
}
