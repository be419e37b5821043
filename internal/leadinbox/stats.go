package leadinbox

import (
	"context"
)

// DefaultRecentErrorLimit bounds the error list in ProcessingStats.
const DefaultRecentErrorLimit = 10

// ProcessingStats is the operator view of the inbox.
type ProcessingStats struct {
	Total                   int                      `json:"total"`
	ByState                 map[State]int            `json:"byState"`
	ByPlatform              map[string]map[State]int `json:"byPlatform"`
	OldestPendingAgeSeconds *int64                   `json:"oldestPendingAgeSeconds"`
	RecentErrors            []RecentError            `json:"recentErrors"`
}

// GetProcessingStats reads counts per state and platform, the age of the oldest pending
// lead and the most recent errors. It has no side effects.
func (s *Service) GetProcessingStats(ctx context.Context) (ProcessingStats, error) {
	return collectStats(ctx, s.inbox, s.cfg.RecentErrorLimit)
}

func collectStats(ctx context.Context, inbox Inbox, recentErrorLimit int) (ProcessingStats, error) {
	byState, err := inbox.CountByState(ctx)
	if err != nil {
		return ProcessingStats{}, err
	}

	stats := ProcessingStats{
		ByState:    make(map[State]int, len(AllStates)),
		ByPlatform: make(map[string]map[State]int),
	}
	for _, state := range AllStates {
		stats.ByState[state] = byState[state]
		stats.Total += byState[state]
	}

	platformCounts, err := inbox.CountByPlatformState(ctx)
	if err != nil {
		return ProcessingStats{}, err
	}
	for _, row := range platformCounts {
		counts, ok := stats.ByPlatform[row.Platform]
		if !ok {
			counts = make(map[State]int, len(AllStates))
			for _, state := range AllStates {
				counts[state] = 0
			}
			stats.ByPlatform[row.Platform] = counts
		}
		counts[row.State] = row.Count
	}

	age, err := inbox.OldestPendingAge(ctx)
	if err != nil {
		return ProcessingStats{}, err
	}
	if age != nil {
		seconds := int64(age.Seconds())
		stats.OldestPendingAgeSeconds = &seconds
	}

	if recentErrorLimit <= 0 {
		recentErrorLimit = DefaultRecentErrorLimit
	}
	stats.RecentErrors, err = inbox.RecentErrors(ctx, recentErrorLimit)
	if err != nil {
		return ProcessingStats{}, err
	}
	return stats, nil
}
