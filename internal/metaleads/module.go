package metaleads

import (
	apphttp "whitelabel_crm_backend/internal/http"
	"whitelabel_crm_backend/platform/config"
	"whitelabel_crm_backend/platform/httpkit"
	"whitelabel_crm_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the Meta lead ads webhook module implementing http.Module.
type Module struct {
	handler   *Handler
	appSecret string
	limiter   *httpkit.IPRateLimiter
	log       *logger.Logger
}

// NewModule wires the page connection repository, the Graph client and the service.
func NewModule(pool *pgxpool.Pool, inbox LeadReceiver, cfg config.MetaConfig, log *logger.Logger) *Module {
	graph := NewGraphClient(GraphConfig{
		BaseURL: cfg.GetMetaGraphBaseURL(),
		Version: cfg.GetMetaGraphVersion(),
		Timeout: cfg.GetMetaGraphTimeout(),
	}, log)
	service := NewService(NewRepository(pool), graph, inbox, log)

	return &Module{
		handler:   NewHandler(service, cfg.GetMetaVerifyToken(), log),
		appSecret: cfg.GetMetaAppSecret(),
		limiter:   httpkit.NewWebhookRateLimiter(log),
		log:       log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "metaleads"
}

// RegisterRoutes mounts the public webhook routes (signature auth, no JWT).
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook/meta")
	group.Use(m.limiter.RateLimit())
	group.GET("", m.handler.HandleVerify)
	group.POST("", SignatureMiddleware(m.appSecret, m.log), m.handler.HandleDelivery)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
