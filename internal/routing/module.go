package routing

import (
	apphttp "whitelabel_crm_backend/internal/http"
	"whitelabel_crm_backend/platform/logger"
	"whitelabel_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the routing bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates the routing module. It registers the contactfield and
// leadtransform validation tags on val.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) (*Module, error) {
	if err := RegisterValidations(val); err != nil {
		return nil, err
	}

	service := NewService(NewRepository(pool), log)
	return &Module{
		handler: NewHandler(service, val),
		service: service,
	}, nil
}

// Service exposes the routing service to the lead inbox processor.
func (m *Module) Service() *Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "routing"
}

// RegisterRoutes mounts the admin routing configuration routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	rules := ctx.Admin.Group("/routing-rules")
	rules.GET("", m.handler.HandleListRules)
	rules.POST("", m.handler.HandleCreateRule)
	rules.DELETE("/:ruleId", m.handler.HandleDeactivateRule)
	rules.GET("/:ruleId/mappings", m.handler.HandleListMappings)
	rules.PUT("/:ruleId/mappings", m.handler.HandleReplaceMappings)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
