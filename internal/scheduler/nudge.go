package scheduler

import (
	"context"

	"whitelabel_crm_backend/internal/events"
	"whitelabel_crm_backend/platform/logger"
)

// SubscribeLeadInboxNudge enqueues a lead inbox pass whenever a new lead is received,
// so it is routed within seconds instead of at the next cron tick. Enqueue failures
// are logged only: the lead is already stored and the cron pass will pick it up.
func SubscribeLeadInboxNudge(bus events.Bus, enqueuer LeadPassEnqueuer, log *logger.Logger) {
	bus.Subscribe(events.LeadEventReceived{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		received, ok := event.(events.LeadEventReceived)
		if !ok {
			return nil
		}
		if err := enqueuer.EnqueueLeadInboxPass(ctx, TriggerLeadReceived); err != nil {
			log.Warn("lead inbox nudge enqueue failed",
				"lead_id", received.LeadEventID.String(),
				"error", err,
			)
		}
		return nil
	}))
}
