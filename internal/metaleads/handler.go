package metaleads

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"whitelabel_crm_backend/platform/httpkit"
	"whitelabel_crm_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const modeSubscribe = "subscribe"

// Handler handles the Meta webhook endpoints.
type Handler struct {
	service     *Service
	verifyToken string
	log         *logger.Logger
}

// NewHandler creates a new Meta webhook handler.
func NewHandler(service *Service, verifyToken string, log *logger.Logger) *Handler {
	return &Handler{service: service, verifyToken: verifyToken, log: log}
}

// HandleVerify answers the subscription handshake by echoing hub.challenge.
// GET /api/v1/webhook/meta
func (h *Handler) HandleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != modeSubscribe || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		httpkit.Error(c, http.StatusForbidden, "verification failed", nil)
		return
	}
	c.String(http.StatusOK, challenge)
}

// HandleDelivery stores the leads of a signed delivery.
// POST /api/v1/webhook/meta
func (h *Handler) HandleDelivery(c *gin.Context) {
	body, ok := c.Get(rawBodyKey)
	raw, isBytes := body.([]byte)
	if !ok || !isBytes {
		httpkit.Error(c, http.StatusUnauthorized, "invalid signature", nil)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	result, err := h.service.HandleDelivery(c.Request.Context(), payload)
	if err != nil {
		h.log.HTTPError(c.Request.Method, c.Request.URL.Path, http.StatusInternalServerError, err, c.ClientIP())
		httpkit.Error(c, http.StatusInternalServerError, "failed to store leads", nil)
		return
	}
	httpkit.OK(c, result)
}
