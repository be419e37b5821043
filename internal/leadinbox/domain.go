// Package leadinbox stores platform leads until they are routed into the CRM and runs
// the processing passes: stale-lock recovery, batch processing and stats.
package leadinbox

import (
	"context"
	"errors"
	"time"

	"whitelabel_crm_backend/internal/normalize"

	"github.com/google/uuid"
)

// State is the processing state of a lead event.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// AllStates lists every state in lifecycle order.
var AllStates = []State{StatePending, StateProcessing, StateCompleted, StateFailed}

// ErrLeadNotClaimed is returned by a transition when the lead is no longer held by the
// caller's claim, typically because recovery released it and another pass reclaimed it.
var ErrLeadNotClaimed = errors.New("lead event is no longer claimed by this worker")

// LeadEvent is one platform lead waiting for, or done with, processing.
type LeadEvent struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	SourcePlatform string
	SourcePageID   string
	SourceFormID   string
	ExternalLeadID string
	RawFields      []normalize.RawField
	State          State
	RetryCount     int
	LastError      *string
	LockedAt       *time.Time
	LockToken      *uuid.UUID
	ContactID      *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewLeadEvent is the input for storing a freshly received lead.
type NewLeadEvent struct {
	OrganizationID uuid.UUID
	SourcePlatform string
	SourcePageID   string
	SourceFormID   string
	ExternalLeadID string
	RawFields      []normalize.RawField
}

// InsertResult reports whether a received lead was new.
type InsertResult struct {
	ID        uuid.UUID
	Duplicate bool
}

// PlatformStateCount is one row of the per-platform breakdown.
type PlatformStateCount struct {
	Platform string
	State    State
	Count    int
}

// RecentError describes a lead whose last attempt failed.
type RecentError struct {
	ID             uuid.UUID `json:"id"`
	ExternalLeadID string    `json:"externalLeadId"`
	SourcePlatform string    `json:"sourcePlatform"`
	State          State     `json:"state"`
	RetryCount     int       `json:"retryCount"`
	LastError      string    `json:"lastError"`
	AgeSeconds     int64     `json:"ageSeconds"`
}

// Inbox is the persistent lead inbox. Every transition out of processing is fenced by
// the claim token handed out by ClaimPending and fails with ErrLeadNotClaimed when
// the claim was lost.
type Inbox interface {
	Insert(ctx context.Context, lead NewLeadEvent) (InsertResult, error)
	Exists(ctx context.Context, orgID uuid.UUID, platform, externalLeadID string) (bool, error)
	ClaimPending(ctx context.Context, limit int) ([]LeadEvent, error)
	MarkCompleted(ctx context.Context, id, token, contactID uuid.UUID) error
	MarkRetry(ctx context.Context, id, token uuid.UUID, lastError string, maxRetries int) (State, error)
	MarkFailed(ctx context.Context, id, token uuid.UUID, lastError string) error
	RecoverStale(ctx context.Context, threshold time.Duration) ([]uuid.UUID, error)
	CountByState(ctx context.Context) (map[State]int, error)
	CountByPlatformState(ctx context.Context) ([]PlatformStateCount, error)
	OldestPendingAge(ctx context.Context) (*time.Duration, error)
	RecentErrors(ctx context.Context, limit int) ([]RecentError, error)
}
