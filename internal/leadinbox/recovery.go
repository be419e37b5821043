package leadinbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecoveryResult reports a stale-lock sweep.
type RecoveryResult struct {
	Recovered int         `json:"recovered"`
	LeadIDs   []uuid.UUID `json:"leadIds,omitempty"`
}

// RecoverStaleProcessingLeads puts leads that have been processing for longer than the
// staleness threshold back to pending. Their retry count is not touched: a crashed or
// stuck worker is not a failed attempt.
func (s *Service) RecoverStaleProcessingLeads(ctx context.Context) (RecoveryResult, error) {
	return recoverStale(ctx, s.inbox, s.cfg.StaleThreshold)
}

func recoverStale(ctx context.Context, inbox Inbox, threshold time.Duration) (RecoveryResult, error) {
	if threshold <= 0 {
		return RecoveryResult{}, fmt.Errorf("stale threshold must be positive, got %s", threshold)
	}
	ids, err := inbox.RecoverStale(ctx, threshold)
	if err != nil {
		return RecoveryResult{}, err
	}
	return RecoveryResult{Recovered: len(ids), LeadIDs: ids}, nil
}
