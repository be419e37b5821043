package leadinbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertLeadQuery = `
		INSERT INTO lead_events (organization_id, source_platform, source_page_id, source_form_id, external_lead_id, raw_fields)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id, source_platform, external_lead_id) DO NOTHING
		RETURNING id`

const findLeadIDQuery = `
		SELECT id FROM lead_events
		WHERE organization_id = $1 AND source_platform = $2 AND external_lead_id = $3`

const claimPendingQuery = `
		WITH claimable AS (
			SELECT id
			FROM lead_events
			WHERE state = 'pending'
			ORDER BY created_at ASC, id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE lead_events le
		SET state = 'processing', locked_at = now(), lock_token = gen_random_uuid(), updated_at = now()
		FROM claimable
		WHERE le.id = claimable.id AND le.state = 'pending'
		RETURNING le.id, le.organization_id, le.source_platform, le.source_page_id, le.source_form_id, le.external_lead_id,
			le.raw_fields, le.state, le.retry_count, le.last_error, le.locked_at, le.lock_token, le.contact_id, le.created_at, le.updated_at`

const markCompletedQuery = `
		UPDATE lead_events
		SET state = 'completed', contact_id = $3, last_error = NULL, locked_at = NULL, lock_token = NULL, updated_at = now()
		WHERE id = $1 AND state = 'processing' AND lock_token = $2`

// The retry count only grows on the requeue branch, so a lead that always fails is
// requeued exactly maxRetries times before it lands in failed.
const markRetryQuery = `
		UPDATE lead_events
		SET state = CASE WHEN retry_count >= $4 THEN 'failed' ELSE 'pending' END,
			retry_count = CASE WHEN retry_count >= $4 THEN retry_count ELSE retry_count + 1 END,
			last_error = $3, locked_at = NULL, lock_token = NULL, updated_at = now()
		WHERE id = $1 AND state = 'processing' AND lock_token = $2
		RETURNING state`

const markFailedQuery = `
		UPDATE lead_events
		SET state = 'failed', last_error = $3, locked_at = NULL, lock_token = NULL, updated_at = now()
		WHERE id = $1 AND state = 'processing' AND lock_token = $2`

const recoverStaleQuery = `
		UPDATE lead_events
		SET state = 'pending', locked_at = NULL, lock_token = NULL, updated_at = now()
		WHERE state = 'processing' AND locked_at < now() - make_interval(secs => $1)
		RETURNING id`

const countByStateQuery = `
		SELECT state, COUNT(*) FROM lead_events GROUP BY state`

const countByPlatformStateQuery = `
		SELECT source_platform, state, COUNT(*) FROM lead_events GROUP BY source_platform, state ORDER BY source_platform, state`

const oldestPendingQuery = `
		SELECT EXTRACT(EPOCH FROM (now() - MIN(created_at)))::float8
		FROM lead_events
		WHERE state = 'pending'`

const recentErrorsQuery = `
		SELECT id, external_lead_id, source_platform, state, retry_count, last_error,
			EXTRACT(EPOCH FROM (now() - created_at))::bigint
		FROM lead_events
		WHERE last_error IS NOT NULL AND state IN ('pending', 'failed')
		ORDER BY updated_at DESC
		LIMIT $1`

// Repository is the Postgres lead inbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new lead inbox repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Inbox = (*Repository)(nil)

// Insert stores a pending lead. A lead already stored for the same organization,
// platform and external id is left untouched whatever its state.
func (r *Repository) Insert(ctx context.Context, lead NewLeadEvent) (InsertResult, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, insertLeadQuery,
		lead.OrganizationID, lead.SourcePlatform, lead.SourcePageID, lead.SourceFormID, lead.ExternalLeadID, lead.RawFields,
	).Scan(&id)
	if err == nil {
		return InsertResult{ID: id}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return InsertResult{}, fmt.Errorf("insert lead event: %w", err)
	}

	if err := r.pool.QueryRow(ctx, findLeadIDQuery, lead.OrganizationID, lead.SourcePlatform, lead.ExternalLeadID).Scan(&id); err != nil {
		return InsertResult{}, fmt.Errorf("load duplicate lead event: %w", err)
	}
	return InsertResult{ID: id, Duplicate: true}, nil
}

// Exists reports whether the external lead is already in the inbox.
func (r *Repository) Exists(ctx context.Context, orgID uuid.UUID, platform, externalLeadID string) (bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, findLeadIDQuery, orgID, platform, externalLeadID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check lead event: %w", err)
	}
	return true, nil
}

// ClaimPending moves up to limit of the oldest pending leads to processing and returns
// them with fresh claim tokens. Rows locked by a concurrent claim are skipped.
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]LeadEvent, error) {
	rows, err := r.pool.Query(ctx, claimPendingQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending leads: %w", err)
	}
	defer rows.Close()

	leads := make([]LeadEvent, 0, limit)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed lead: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim pending leads: %w", err)
	}

	// UPDATE ... RETURNING does not keep the CTE order.
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].CreatedAt.Before(leads[j].CreatedAt)
	})
	return leads, nil
}

// MarkCompleted records the contact and finishes the lead.
func (r *Repository) MarkCompleted(ctx context.Context, id, token, contactID uuid.UUID) error {
	return r.fencedExec(ctx, "mark lead completed", markCompletedQuery, id, token, contactID)
}

// MarkRetry requeues the lead, or fails it once maxRetries requeues were spent.
// It returns the state the lead ended up in.
func (r *Repository) MarkRetry(ctx context.Context, id, token uuid.UUID, lastError string, maxRetries int) (State, error) {
	var state string
	err := r.pool.QueryRow(ctx, markRetryQuery, id, token, lastError, maxRetries).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrLeadNotClaimed
	}
	if err != nil {
		return "", fmt.Errorf("mark lead retry: %w", err)
	}
	return State(state), nil
}

// MarkFailed fails the lead without touching its retry count.
func (r *Repository) MarkFailed(ctx context.Context, id, token uuid.UUID, lastError string) error {
	return r.fencedExec(ctx, "mark lead failed", markFailedQuery, id, token, lastError)
}

// RecoverStale releases leads that have been processing for longer than threshold.
// The retry count is left alone.
func (r *Repository) RecoverStale(ctx context.Context, threshold time.Duration) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, recoverStaleQuery, threshold.Seconds())
	if err != nil {
		return nil, fmt.Errorf("recover stale leads: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recovered lead: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByState returns the number of leads per state. States without leads are absent.
func (r *Repository) CountByState(ctx context.Context) (map[State]int, error) {
	rows, err := r.pool.Query(ctx, countByStateQuery)
	if err != nil {
		return nil, fmt.Errorf("count leads by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		counts[State(state)] = count
	}
	return counts, rows.Err()
}

// CountByPlatformState returns lead counts grouped by source platform and state.
func (r *Repository) CountByPlatformState(ctx context.Context) ([]PlatformStateCount, error) {
	rows, err := r.pool.Query(ctx, countByPlatformStateQuery)
	if err != nil {
		return nil, fmt.Errorf("count leads by platform: %w", err)
	}
	defer rows.Close()

	result := make([]PlatformStateCount, 0)
	for rows.Next() {
		var row PlatformStateCount
		var state string
		if err := rows.Scan(&row.Platform, &state, &row.Count); err != nil {
			return nil, fmt.Errorf("scan platform count: %w", err)
		}
		row.State = State(state)
		result = append(result, row)
	}
	return result, rows.Err()
}

// OldestPendingAge returns how long the oldest pending lead has waited, or nil when
// nothing is pending.
func (r *Repository) OldestPendingAge(ctx context.Context) (*time.Duration, error) {
	var seconds *float64
	if err := r.pool.QueryRow(ctx, oldestPendingQuery).Scan(&seconds); err != nil {
		return nil, fmt.Errorf("oldest pending lead: %w", err)
	}
	if seconds == nil {
		return nil, nil
	}
	age := time.Duration(*seconds * float64(time.Second))
	return &age, nil
}

// RecentErrors returns the most recently updated leads that carry an error, newest first.
func (r *Repository) RecentErrors(ctx context.Context, limit int) ([]RecentError, error) {
	rows, err := r.pool.Query(ctx, recentErrorsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("recent lead errors: %w", err)
	}
	defer rows.Close()

	result := make([]RecentError, 0, limit)
	for rows.Next() {
		var item RecentError
		var state string
		if err := rows.Scan(&item.ID, &item.ExternalLeadID, &item.SourcePlatform, &state, &item.RetryCount, &item.LastError, &item.AgeSeconds); err != nil {
			return nil, fmt.Errorf("scan recent error: %w", err)
		}
		item.State = State(state)
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *Repository) fencedExec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotClaimed
	}
	return nil
}

func scanLead(row pgx.Row) (LeadEvent, error) {
	var lead LeadEvent
	var state string
	err := row.Scan(
		&lead.ID, &lead.OrganizationID, &lead.SourcePlatform, &lead.SourcePageID, &lead.SourceFormID, &lead.ExternalLeadID,
		&lead.RawFields, &state, &lead.RetryCount, &lead.LastError, &lead.LockedAt, &lead.LockToken, &lead.ContactID,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	lead.State = State(state)
	return lead, err
}
