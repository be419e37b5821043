package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"whitelabel_crm_backend/internal/events"
	"whitelabel_crm_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func readValue(t *testing.T, metric prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := metric.Write(&out); err != nil {
		t.Fatalf("read metric: %v", err)
	}
	if out.Gauge != nil {
		return out.GetGauge().GetValue()
	}
	return out.GetCounter().GetValue()
}

func TestLeadObservations(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveLead("completed", 20*time.Millisecond)
	m.ObserveLead("completed", 30*time.Millisecond)
	m.ObserveLead("retried", time.Second)
	m.ObserveRecovered(2)
	m.ObservePass(time.Second, nil)
	m.ObservePass(time.Second, errors.New("claim failed"))
	m.SetInboxDepth("pending", 7)

	if got := readValue(t, m.LeadsProcessed.WithLabelValues("completed")); got != 2 {
		t.Fatalf("expected 2 completed leads, got %v", got)
	}
	if got := readValue(t, m.LeadsRecovered); got != 2 {
		t.Fatalf("expected 2 recovered leads, got %v", got)
	}
	if got := readValue(t, m.PassesTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed pass, got %v", got)
	}
	if got := readValue(t, m.InboxDepth.WithLabelValues("pending")); got != 7 {
		t.Fatalf("expected pending depth 7, got %v", got)
	}
}

func TestSubscribeCountsLeadEvents(t *testing.T) {
	m := New(prometheus.NewRegistry())
	bus := events.NewInMemoryBus(logger.Discard())
	m.Subscribe(bus)

	ctx := context.Background()
	if err := bus.PublishSync(ctx, events.LeadRouted{BaseEvent: events.NewBaseEvent()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := bus.PublishSync(ctx, events.LeadFailed{BaseEvent: events.NewBaseEvent(), Reason: "no route"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readValue(t, m.LeadEvents.WithLabelValues("leadinbox.lead.routed")); got != 1 {
		t.Fatalf("expected one routed event, got %v", got)
	}
	if got := readValue(t, m.LeadEvents.WithLabelValues("leadinbox.lead.failed")); got != 1 {
		t.Fatalf("expected one failed event, got %v", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `http_requests_total{method="GET",path="/api/health",status="200"} 1`) {
		t.Fatalf("expected health request to be counted, got:\n%s", rec.Body.String())
	}
}
