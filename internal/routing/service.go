package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whitelabel_crm_backend/internal/normalize"
	"whitelabel_crm_backend/platform/apperr"
	"whitelabel_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// RuleStore is the persistence the routing service needs.
type RuleStore interface {
	ListActiveRulesForPage(ctx context.Context, orgID uuid.UUID, pageID string) ([]Rule, error)
	ListRules(ctx context.Context, orgID uuid.UUID) ([]Rule, error)
	GetRule(ctx context.Context, orgID, ruleID uuid.UUID) (Rule, error)
	CreateRule(ctx context.Context, rule Rule) (Rule, error)
	DeactivateRule(ctx context.Context, orgID, ruleID uuid.UUID) error
	ListMappings(ctx context.Context, ruleID uuid.UUID) ([]FieldMapping, error)
	ReplaceMappings(ctx context.Context, ruleID uuid.UUID, mappings []FieldMapping) ([]FieldMapping, error)
}

// CreateRuleInput describes a new routing rule.
type CreateRuleInput struct {
	Name             string
	SourcePlatform   string
	SourcePageID     string
	SourceFormID     *string
	TargetPipelineID uuid.UUID
	TargetStageID    uuid.UUID
	AssigneeID       *uuid.UUID
}

// MappingInput is one entry of a mapping replacement.
type MappingInput struct {
	SourceFieldKey string
	TargetField    string
	Transform      string
}

// Service reads routing configuration for the lead pipeline and manages it for admins.
type Service struct {
	store RuleStore
	log   *logger.Logger
}

// NewService creates a routing service.
func NewService(store RuleStore, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// MatchRoute returns the rule that handles a lead from pageID/formID, or an error
// wrapping ErrNoRoute. Store failures are returned as-is so callers retry them.
func (s *Service) MatchRoute(ctx context.Context, orgID uuid.UUID, pageID, formID string) (Rule, error) {
	rules, err := s.store.ListActiveRulesForPage(ctx, orgID, pageID)
	if err != nil {
		return Rule{}, err
	}

	match, err := MatchRoute(rules, pageID, formID)
	if err != nil {
		return Rule{}, err
	}
	if match.Ambiguous {
		s.log.Warn("ambiguous routing rules, using oldest",
			"organization_id", orgID,
			"page_id", pageID,
			"form_id", formID,
			"rule_id", match.Rule.ID,
		)
	}
	return match.Rule, nil
}

// MappingsForRule returns the normalizer mappings of a rule.
func (s *Service) MappingsForRule(ctx context.Context, ruleID uuid.UUID) ([]normalize.Mapping, error) {
	mappings, err := s.store.ListMappings(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	return ToNormalizeMappings(mappings), nil
}

// ListRules returns all rules of the organization.
func (s *Service) ListRules(ctx context.Context, orgID uuid.UUID) ([]Rule, error) {
	rules, err := s.store.ListRules(ctx, orgID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list routing rules", err).WithOp("routing.ListRules")
	}
	return rules, nil
}

// CreateRule validates and stores a new active rule.
func (s *Service) CreateRule(ctx context.Context, orgID uuid.UUID, input CreateRuleInput) (Rule, error) {
	if input.TargetPipelineID == uuid.Nil || input.TargetStageID == uuid.Nil {
		return Rule{}, apperr.Validation("targetPipelineId and targetStageId are required")
	}
	pageID := strings.TrimSpace(input.SourcePageID)
	if pageID == "" {
		return Rule{}, apperr.Validation("sourcePageId is required")
	}

	var formID *string
	if input.SourceFormID != nil {
		if trimmed := strings.TrimSpace(*input.SourceFormID); trimmed != "" {
			formID = &trimmed
		}
	}

	platform := input.SourcePlatform
	if platform == "" {
		platform = PlatformFacebook
	}

	rule, err := s.store.CreateRule(ctx, Rule{
		OrganizationID:   orgID,
		Name:             strings.TrimSpace(input.Name),
		SourcePlatform:   platform,
		SourcePageID:     pageID,
		SourceFormID:     formID,
		TargetPipelineID: input.TargetPipelineID,
		TargetStageID:    input.TargetStageID,
		AssigneeID:       input.AssigneeID,
	})
	if errors.Is(err, ErrDuplicateRule) {
		return Rule{}, apperr.Conflict(ErrDuplicateRule.Error())
	}
	if err != nil {
		return Rule{}, apperr.Wrap(apperr.KindInternal, "failed to create routing rule", err).WithOp("routing.CreateRule")
	}

	s.log.Info("routing rule created",
		"organization_id", orgID,
		"rule_id", rule.ID,
		"page_id", rule.SourcePageID,
		"wildcard", rule.IsWildcard(),
	)
	return rule, nil
}

// DeactivateRule stops a rule from matching new leads.
func (s *Service) DeactivateRule(ctx context.Context, orgID, ruleID uuid.UUID) error {
	err := s.store.DeactivateRule(ctx, orgID, ruleID)
	if errors.Is(err, ErrRuleNotFound) {
		return apperr.NotFound(ErrRuleNotFound.Error())
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to deactivate routing rule", err).WithOp("routing.DeactivateRule")
	}
	return nil
}

// ListMappings returns the stored mappings of a rule owned by the organization.
func (s *Service) ListMappings(ctx context.Context, orgID, ruleID uuid.UUID) ([]FieldMapping, error) {
	if err := s.ensureRule(ctx, orgID, ruleID); err != nil {
		return nil, err
	}
	mappings, err := s.store.ListMappings(ctx, ruleID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list field mappings", err).WithOp("routing.ListMappings")
	}
	return mappings, nil
}

// ReplaceMappings swaps the mapping set of a rule after checking the mapping invariants:
// unique source keys, and targets from the fixed contact field set.
func (s *Service) ReplaceMappings(ctx context.Context, orgID, ruleID uuid.UUID, inputs []MappingInput) ([]FieldMapping, error) {
	mappings, err := validateMappings(inputs)
	if err != nil {
		return nil, err
	}
	if err := s.ensureRule(ctx, orgID, ruleID); err != nil {
		return nil, err
	}

	stored, err := s.store.ReplaceMappings(ctx, ruleID, mappings)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to save field mappings", err).WithOp("routing.ReplaceMappings")
	}
	return stored, nil
}

func (s *Service) ensureRule(ctx context.Context, orgID, ruleID uuid.UUID) error {
	_, err := s.store.GetRule(ctx, orgID, ruleID)
	if errors.Is(err, ErrRuleNotFound) {
		return apperr.NotFound(ErrRuleNotFound.Error())
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to load routing rule", err).WithOp("routing.ensureRule")
	}
	return nil
}

func validateMappings(inputs []MappingInput) ([]FieldMapping, error) {
	seen := make(map[string]struct{}, len(inputs))
	mappings := make([]FieldMapping, 0, len(inputs))

	for _, in := range inputs {
		key := strings.TrimSpace(in.SourceFieldKey)
		if key == "" {
			return nil, apperr.Validation("sourceFieldKey is required")
		}
		if _, dup := seen[key]; dup {
			return nil, apperr.Validation(fmt.Sprintf("sourceFieldKey %q is mapped more than once", key)).
				WithDetails(map[string]string{"sourceFieldKey": key})
		}
		seen[key] = struct{}{}

		if in.TargetField != "" && !normalize.IsContactField(in.TargetField) {
			return nil, apperr.Validation(fmt.Sprintf("targetField %q is not a contact field", in.TargetField))
		}
		if !normalize.IsKnownTransform(in.Transform) {
			return nil, apperr.Validation(fmt.Sprintf("transform %q is not supported", in.Transform))
		}

		mappings = append(mappings, FieldMapping{
			SourceFieldKey: key,
			TargetField:    in.TargetField,
			Transform:      in.Transform,
		})
	}
	return mappings, nil
}
