package metaleads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whitelabel_crm_backend/internal/leadinbox"
	"whitelabel_crm_backend/internal/routing"
	"whitelabel_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// PageConnectionStore resolves a page to its organization and access token.
type PageConnectionStore interface {
	GetActiveConnection(ctx context.Context, pageID string) (PageConnection, error)
}

// LeadFetcher loads lead content from the Graph API.
type LeadFetcher interface {
	FetchLead(ctx context.Context, leadgenID, accessToken string) (GraphLead, error)
}

// LeadReceiver stores received leads. Satisfied by leadinbox.Service.
type LeadReceiver interface {
	IsKnownLead(ctx context.Context, orgID uuid.UUID, platform, externalLeadID string) (bool, error)
	ReceiveLead(ctx context.Context, lead leadinbox.NewLeadEvent) (leadinbox.InsertResult, error)
}

// DeliveryResult summarises one webhook delivery.
type DeliveryResult struct {
	Received   int `json:"received"`
	Duplicates int `json:"duplicates"`
	Ignored    int `json:"ignored"`
}

// Service turns webhook deliveries into pending inbox leads.
type Service struct {
	connections PageConnectionStore
	graph       LeadFetcher
	inbox       LeadReceiver
	log         *logger.Logger
}

// NewService creates a new Meta leads service.
func NewService(connections PageConnectionStore, graph LeadFetcher, inbox LeadReceiver, log *logger.Logger) *Service {
	return &Service{connections: connections, graph: graph, inbox: inbox, log: log}
}

// HandleDelivery stores every leadgen change of a delivery. It returns an error only
// for infrastructure failures, so Meta redelivers the whole batch; leads already
// stored are skipped on the redelivery. Leads the Graph API refuses for good are
// counted as ignored and do not block the rest of the delivery.
func (s *Service) HandleDelivery(ctx context.Context, payload WebhookPayload) (DeliveryResult, error) {
	var result DeliveryResult
	if payload.Object != ObjectPage {
		s.log.Info("meta webhook object ignored", "object", payload.Object)
		return result, nil
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != FieldLeadgen {
				continue
			}
			if err := s.receiveChange(ctx, entry, change.Value, &result); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

func (s *Service) receiveChange(ctx context.Context, entry WebhookEntry, change LeadgenChange, result *DeliveryResult) error {
	leadgenID := strings.TrimSpace(change.LeadgenID)
	pageID := strings.TrimSpace(change.PageID)
	if pageID == "" {
		pageID = entry.ID
	}
	if leadgenID == "" || pageID == "" {
		s.log.Warn("meta leadgen change without lead or page id", "page_id", pageID)
		result.Ignored++
		return nil
	}

	conn, err := s.connections.GetActiveConnection(ctx, pageID)
	if errors.Is(err, ErrPageNotConnected) {
		s.log.Warn("lead for unconnected page ignored", "page_id", pageID, "external_lead_id", leadgenID)
		result.Ignored++
		return nil
	}
	if err != nil {
		return err
	}

	known, err := s.inbox.IsKnownLead(ctx, conn.OrganizationID, routing.PlatformFacebook, leadgenID)
	if err != nil {
		return fmt.Errorf("check known lead: %w", err)
	}
	if known {
		result.Duplicates++
		return nil
	}

	lead, err := s.graph.FetchLead(ctx, leadgenID, conn.AccessToken)
	if errors.Is(err, ErrGraphRejected) {
		s.log.Warn("lead rejected by graph api, skipped", "page_id", pageID, "external_lead_id", leadgenID, "error", err)
		result.Ignored++
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch lead %s: %w", leadgenID, err)
	}

	formID := strings.TrimSpace(lead.FormID)
	if formID == "" {
		formID = strings.TrimSpace(change.FormID)
	}

	inserted, err := s.inbox.ReceiveLead(ctx, leadinbox.NewLeadEvent{
		OrganizationID: conn.OrganizationID,
		SourcePlatform: routing.PlatformFacebook,
		SourcePageID:   pageID,
		SourceFormID:   formID,
		ExternalLeadID: leadgenID,
		RawFields:      ToRawFields(lead.FieldData),
	})
	if err != nil {
		return fmt.Errorf("store lead %s: %w", leadgenID, err)
	}
	if inserted.Duplicate {
		result.Duplicates++
		return nil
	}
	result.Received++
	return nil
}
