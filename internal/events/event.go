// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"whitelabel_crm_backend/platform/events"
	"whitelabel_crm_backend/platform/logger"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates the process-local bus the lead pipeline publishes on.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Lead Inbox Domain Events
// =============================================================================

// LeadEventReceived is published when a webhook delivery stored a new pending lead.
type LeadEventReceived struct {
	BaseEvent
	LeadEventID    uuid.UUID `json:"leadEventId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	SourcePlatform string    `json:"sourcePlatform"`
	ExternalLeadID string    `json:"externalLeadId"`
}

func (e LeadEventReceived) EventName() string { return "leadinbox.lead.received" }

// LeadRouted is published when a lead produced (or matched) a contact and pipeline entry.
type LeadRouted struct {
	BaseEvent
	LeadEventID    uuid.UUID  `json:"leadEventId"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	SourcePlatform string     `json:"sourcePlatform"`
	ContactID      uuid.UUID  `json:"contactId"`
	RoutingRuleID  *uuid.UUID `json:"routingRuleId,omitempty"`
	Duplicate      bool       `json:"duplicate"`
}

func (e LeadRouted) EventName() string { return "leadinbox.lead.routed" }

// LeadFailed is published when a lead reached the terminal failed state.
type LeadFailed struct {
	BaseEvent
	LeadEventID    uuid.UUID `json:"leadEventId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	SourcePlatform string    `json:"sourcePlatform"`
	Reason         string    `json:"reason"`
}

func (e LeadFailed) EventName() string { return "leadinbox.lead.failed" }
