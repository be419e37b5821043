package leadinbox

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"whitelabel_crm_backend/platform/httpkit"
	"whitelabel_crm_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	// CronSecretHeader carries the trigger secret for schedulers that cannot set Authorization.
	CronSecretHeader = "X-Cron-Secret"

	errUnauthorized = "unauthorized"
)

// PassRunner runs one lead inbox pass.
type PassRunner interface {
	RunPass(ctx context.Context) (PassResult, error)
}

// StatsReader reads the inbox stats.
type StatsReader interface {
	GetProcessingStats(ctx context.Context) (ProcessingStats, error)
}

// TriggerConfig decides how the trigger endpoint authenticates.
type TriggerConfig interface {
	GetCronSecret() string
	IsProduction() bool
}

// TriggerResponse is returned by a successful trigger.
type TriggerResponse struct {
	Success    bool            `json:"success"`
	Processed  int             `json:"processed"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Retried    int             `json:"retried"`
	TimedOut   int             `json:"timedOut"`
	Recovered  int             `json:"recovered"`
	Stats      ProcessingStats `json:"stats"`
	DurationMs int64           `json:"durationMs"`
	Timestamp  string          `json:"timestamp"`
}

// TriggerErrorResponse is returned when the trigger is rejected or the pass fails.
type TriggerErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// Handler serves the scheduled-job trigger and the admin stats endpoint.
type Handler struct {
	runner PassRunner
	stats  StatsReader
	cfg    TriggerConfig
	log    *logger.Logger
	now    func() time.Time
}

// NewHandler creates a lead inbox handler.
func NewHandler(runner PassRunner, stats StatsReader, cfg TriggerConfig, log *logger.Logger) *Handler {
	return &Handler{runner: runner, stats: stats, cfg: cfg, log: log, now: time.Now}
}

// HandleProcessLeads runs one pass for an external scheduler. GET and POST behave the same.
// GET|POST /api/v1/cron/process-leads
func (h *Handler) HandleProcessLeads(c *gin.Context) {
	if !h.authorized(c) {
		h.log.Warn("rejected lead processing trigger", "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, TriggerErrorResponse{
			Success:   false,
			Error:     errUnauthorized,
			Timestamp: h.timestamp(),
		})
		return
	}

	result, err := h.runner.RunPass(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, TriggerErrorResponse{
			Success:   false,
			Error:     err.Error(),
			Timestamp: h.timestamp(),
		})
		return
	}

	c.JSON(http.StatusOK, TriggerResponse{
		Success:    true,
		Processed:  result.Batch.Processed,
		Succeeded:  result.Batch.Succeeded,
		Failed:     result.Batch.Failed,
		Retried:    result.Batch.Retried,
		TimedOut:   result.Batch.TimedOut,
		Recovered:  result.Recovered,
		Stats:      result.Stats,
		DurationMs: result.Duration.Milliseconds(),
		Timestamp:  h.timestamp(),
	})
}

// HandleGetStats returns the inbox stats for operators.
// GET /api/v1/admin/lead-inbox/stats
func (h *Handler) HandleGetStats(c *gin.Context) {
	stats, err := h.stats.GetProcessingStats(c.Request.Context())
	if err != nil {
		h.log.DatabaseError("leadinbox.stats", err)
		httpkit.Error(c, http.StatusInternalServerError, "failed to load lead inbox stats", nil)
		return
	}
	httpkit.OK(c, stats)
}

// authorized checks the shared secret. Without a configured secret the endpoint is
// open outside production and closed in production.
func (h *Handler) authorized(c *gin.Context) bool {
	secret := h.cfg.GetCronSecret()
	if secret == "" {
		return !h.cfg.IsProduction()
	}

	provided, ok := httpkit.ExtractBearerToken(c.GetHeader("Authorization"))
	if !ok {
		provided = strings.TrimSpace(c.GetHeader(CronSecretHeader))
	}
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) == 1
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}
