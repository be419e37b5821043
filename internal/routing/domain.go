// Package routing owns the tenant configuration that decides where a platform lead goes:
// routing rules per page/form and the field mappings attached to each rule.
package routing

import (
	"errors"
	"time"

	"whitelabel_crm_backend/internal/normalize"

	"github.com/google/uuid"
)

// PlatformFacebook is the source platform for Meta lead ads.
const PlatformFacebook = "facebook"

var (
	// ErrNoRoute means no active rule covers the page/form pair. Retrying will not help.
	ErrNoRoute = errors.New("no routing rule configured")
	// ErrRuleNotFound is returned when a rule id does not exist for the organization.
	ErrRuleNotFound = errors.New("routing rule not found")
)

// Rule sends leads from one page (and optionally one form) to a pipeline stage.
// A nil SourceFormID makes the rule the page's wildcard fallback.
type Rule struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	Name             string
	SourcePlatform   string
	SourcePageID     string
	SourceFormID     *string
	TargetPipelineID uuid.UUID
	TargetStageID    uuid.UUID
	AssigneeID       *uuid.UUID
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsWildcard reports whether the rule applies to every form of its page.
func (r Rule) IsWildcard() bool {
	return r.SourceFormID == nil
}

// FieldMapping maps one form field key of a rule to a contact field.
type FieldMapping struct {
	ID             uuid.UUID
	RoutingRuleID  uuid.UUID
	SourceFieldKey string
	TargetField    string
	Transform      string
	CreatedAt      time.Time
}

// ToNormalizeMappings converts stored mappings to the normalizer's input.
func ToNormalizeMappings(mappings []FieldMapping) []normalize.Mapping {
	result := make([]normalize.Mapping, len(mappings))
	for i, m := range mappings {
		result[i] = normalize.Mapping{
			SourceFieldKey: m.SourceFieldKey,
			TargetField:    normalize.ContactField(m.TargetField),
			Transform:      normalize.Transform(m.Transform),
		}
	}
	return result
}
