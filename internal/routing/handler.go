package routing

import (
	"net/http"
	"time"

	"whitelabel_crm_backend/platform/httpkit"
	"whitelabel_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errNoOrgContext   = "no organization context"
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
	errInvalidRuleID  = "invalid rule ID"
)

// Handler serves the admin routing configuration endpoints.
type Handler struct {
	service *Service
	val     *validator.Validator
}

// NewHandler creates a new routing handler.
func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// CreateRuleRequest is the request body for creating a routing rule.
type CreateRuleRequest struct {
	Name             string  `json:"name" validate:"required,min=1,max=200"`
	SourcePlatform   string  `json:"sourcePlatform" validate:"omitempty,oneof=facebook"`
	SourcePageID     string  `json:"sourcePageId" validate:"required,max=100"`
	SourceFormID     *string `json:"sourceFormId" validate:"omitempty,max=100"`
	TargetPipelineID string  `json:"targetPipelineId" validate:"required,uuid"`
	TargetStageID    string  `json:"targetStageId" validate:"required,uuid"`
	AssigneeID       *string `json:"assigneeId" validate:"omitempty,uuid"`
}

// MappingRequest is one field mapping in a replace request.
type MappingRequest struct {
	SourceFieldKey string `json:"sourceFieldKey" validate:"required,max=200"`
	TargetField    string `json:"targetField" validate:"omitempty,contactfield"`
	Transform      string `json:"transform" validate:"omitempty,leadtransform"`
}

// ReplaceMappingsRequest replaces every mapping of a rule.
type ReplaceMappingsRequest struct {
	Mappings []MappingRequest `json:"mappings" validate:"max=200,unique=SourceFieldKey,dive"`
}

// RuleResponse is the JSON shape of a routing rule.
type RuleResponse struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	SourcePlatform   string     `json:"sourcePlatform"`
	SourcePageID     string     `json:"sourcePageId"`
	SourceFormID     *string    `json:"sourceFormId"`
	TargetPipelineID uuid.UUID  `json:"targetPipelineId"`
	TargetStageID    uuid.UUID  `json:"targetStageId"`
	AssigneeID       *uuid.UUID `json:"assigneeId"`
	IsActive         bool       `json:"isActive"`
	CreatedAt        string     `json:"createdAt"`
}

// MappingResponse is the JSON shape of a field mapping.
type MappingResponse struct {
	ID             uuid.UUID `json:"id"`
	SourceFieldKey string    `json:"sourceFieldKey"`
	TargetField    string    `json:"targetField"`
	Transform      string    `json:"transform"`
}

// HandleListRules lists the organization's routing rules.
// GET /api/v1/admin/routing-rules
func (h *Handler) HandleListRules(c *gin.Context) {
	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}

	rules, err := h.service.ListRules(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]RuleResponse, len(rules))
	for i, rule := range rules {
		result[i] = toRuleResponse(rule)
	}
	httpkit.OK(c, result)
}

// HandleCreateRule creates a routing rule.
// POST /api/v1/admin/routing-rules
func (h *Handler) HandleCreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}

	input := CreateRuleInput{
		Name:             req.Name,
		SourcePlatform:   req.SourcePlatform,
		SourcePageID:     req.SourcePageID,
		SourceFormID:     req.SourceFormID,
		TargetPipelineID: uuid.MustParse(req.TargetPipelineID),
		TargetStageID:    uuid.MustParse(req.TargetStageID),
	}
	if req.AssigneeID != nil {
		assignee := uuid.MustParse(*req.AssigneeID)
		input.AssigneeID = &assignee
	}

	rule, err := h.service.CreateRule(c.Request.Context(), tenantID, input)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, toRuleResponse(rule))
}

// HandleDeactivateRule deactivates a routing rule.
// DELETE /api/v1/admin/routing-rules/:ruleId
func (h *Handler) HandleDeactivateRule(c *gin.Context) {
	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}
	ruleID, ok := h.parseRuleID(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.service.DeactivateRule(c.Request.Context(), tenantID, ruleID)) {
		return
	}

	c.Status(http.StatusNoContent)
}

// HandleListMappings lists the field mappings of a rule.
// GET /api/v1/admin/routing-rules/:ruleId/mappings
func (h *Handler) HandleListMappings(c *gin.Context) {
	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}
	ruleID, ok := h.parseRuleID(c)
	if !ok {
		return
	}

	mappings, err := h.service.ListMappings(c.Request.Context(), tenantID, ruleID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toMappingResponses(mappings))
}

// HandleReplaceMappings replaces the field mappings of a rule.
// PUT /api/v1/admin/routing-rules/:ruleId/mappings
func (h *Handler) HandleReplaceMappings(c *gin.Context) {
	var req ReplaceMappingsRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	tenantID, ok := h.getTenantID(c)
	if !ok {
		return
	}
	ruleID, ok := h.parseRuleID(c)
	if !ok {
		return
	}

	inputs := make([]MappingInput, len(req.Mappings))
	for i, m := range req.Mappings {
		inputs[i] = MappingInput{SourceFieldKey: m.SourceFieldKey, TargetField: m.TargetField, Transform: m.Transform}
	}

	mappings, err := h.service.ReplaceMappings(c.Request.Context(), tenantID, ruleID, inputs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toMappingResponses(mappings))
}

func (h *Handler) getTenantID(c *gin.Context) (uuid.UUID, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.UUID{}, false
	}
	tenantID := identity.TenantID()
	if tenantID == nil {
		httpkit.Error(c, http.StatusForbidden, errNoOrgContext, nil)
		return uuid.UUID{}, false
	}
	return *tenantID, true
}

func (h *Handler) parseRuleID(c *gin.Context) (uuid.UUID, bool) {
	ruleID, err := uuid.Parse(c.Param("ruleId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRuleID, nil)
		return uuid.UUID{}, false
	}
	return ruleID, true
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, validator.FieldErrors(err))
		return false
	}
	return true
}

func toRuleResponse(rule Rule) RuleResponse {
	return RuleResponse{
		ID:               rule.ID,
		Name:             rule.Name,
		SourcePlatform:   rule.SourcePlatform,
		SourcePageID:     rule.SourcePageID,
		SourceFormID:     rule.SourceFormID,
		TargetPipelineID: rule.TargetPipelineID,
		TargetStageID:    rule.TargetStageID,
		AssigneeID:       rule.AssigneeID,
		IsActive:         rule.IsActive,
		CreatedAt:        rule.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toMappingResponses(mappings []FieldMapping) []MappingResponse {
	result := make([]MappingResponse, len(mappings))
	for i, m := range mappings {
		result[i] = MappingResponse{
			ID:             m.ID,
			SourceFieldKey: m.SourceFieldKey,
			TargetField:    m.TargetField,
			Transform:      m.Transform,
		}
	}
	return result
}
