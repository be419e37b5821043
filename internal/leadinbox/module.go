package leadinbox

import (
	"whitelabel_crm_backend/internal/events"
	apphttp "whitelabel_crm_backend/internal/http"
	"whitelabel_crm_backend/internal/normalize"
	"whitelabel_crm_backend/platform/config"
	"whitelabel_crm_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig is the configuration the lead inbox reads.
type ModuleConfig interface {
	config.LeadInboxConfig
	config.PhoneConfig
}

// Module is the lead inbox bounded context module implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule wires the inbox repository, processor and service. metrics may be nil.
func NewModule(pool *pgxpool.Pool, routes RouteResolver, store ContactStore, bus events.Bus, metrics Metrics, cfg ModuleConfig, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	normalizer := normalize.NewNormalizer(normalize.NewEngine(cfg.GetPhoneDefaultRegion()))

	processor := NewProcessor(repo, routes, store, normalizer, ProcessorConfig{
		MaxRetries:  cfg.GetLeadMaxRetries(),
		LeadTimeout: cfg.GetLeadTimeout(),
		Concurrency: cfg.GetLeadConcurrency(),
	}, log, WithEventBus(bus), WithMetrics(metrics))

	service := NewService(repo, processor, bus, metrics, ServiceConfig{
		BatchSize:      cfg.GetLeadBatchSize(),
		StaleThreshold: cfg.GetLeadStaleThreshold(),
	}, log)

	return &Module{
		service: service,
		handler: NewHandler(service, service, cfg, log),
	}
}

// Service exposes the inbox service to the webhook and the scheduler.
func (m *Module) Service() *Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leadinbox"
}

// RegisterRoutes mounts the trigger and stats routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Shared-secret auth, no JWT
	ctx.V1.GET("/cron/process-leads", m.handler.HandleProcessLeads)
	ctx.V1.POST("/cron/process-leads", m.handler.HandleProcessLeads)

	ctx.Admin.GET("/lead-inbox/stats", m.handler.HandleGetStats)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
