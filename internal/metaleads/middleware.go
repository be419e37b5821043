package metaleads

import (
	"bytes"
	"io"
	"net/http"

	"whitelabel_crm_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	rawBodyKey   = "metaRawBody"
	maxBodyBytes = 1 << 20
)

// SignatureMiddleware verifies X-Hub-Signature-256 and keeps the raw body on the
// gin context for the handler.
func SignatureMiddleware(appSecret string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}

		if !VerifySignature(body, c.GetHeader(SignatureHeader), appSecret) {
			log.Warn("meta webhook signature rejected", "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Set(rawBodyKey, body)
		c.Next()
	}
}
