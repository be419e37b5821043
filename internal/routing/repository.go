package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateRule is returned when an active rule already covers the same page/form.
var ErrDuplicateRule = errors.New("an active routing rule already exists for this page and form")

const ruleColumns = `id, organization_id, name, source_platform, source_page_id, source_form_id,
		target_pipeline_id, target_stage_id, assignee_id, is_active, created_at, updated_at`

const listRulesForPageQuery = `
		SELECT ` + ruleColumns + `
		FROM routing_rules
		WHERE organization_id = $1 AND source_page_id = $2 AND is_active = true
		ORDER BY created_at ASC, id ASC`

const listRulesQuery = `
		SELECT ` + ruleColumns + `
		FROM routing_rules
		WHERE organization_id = $1
		ORDER BY created_at DESC`

const getRuleQuery = `
		SELECT ` + ruleColumns + `
		FROM routing_rules
		WHERE id = $1 AND organization_id = $2`

const insertRuleQuery = `
		INSERT INTO routing_rules (organization_id, name, source_platform, source_page_id, source_form_id,
			target_pipeline_id, target_stage_id, assignee_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + ruleColumns

const deactivateRuleQuery = `
		UPDATE routing_rules
		SET is_active = false, updated_at = now()
		WHERE id = $1 AND organization_id = $2`

const listMappingsQuery = `
		SELECT id, routing_rule_id, source_field_key, target_field, transform, created_at
		FROM field_mappings
		WHERE routing_rule_id = $1
		ORDER BY created_at ASC, source_field_key ASC`

// Repository provides data access for routing rules and field mappings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new routing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActiveRulesForPage returns the active rules of one page, oldest first.
func (r *Repository) ListActiveRulesForPage(ctx context.Context, orgID uuid.UUID, pageID string) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, listRulesForPageQuery, orgID, pageID)
	if err != nil {
		return nil, fmt.Errorf("list routing rules for page: %w", err)
	}
	return collectRules(rows)
}

// ListRules returns every rule of the organization, newest first.
func (r *Repository) ListRules(ctx context.Context, orgID uuid.UUID) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, listRulesQuery, orgID)
	if err != nil {
		return nil, fmt.Errorf("list routing rules: %w", err)
	}
	return collectRules(rows)
}

// GetRule loads one rule scoped to the organization.
func (r *Repository) GetRule(ctx context.Context, orgID, ruleID uuid.UUID) (Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, getRuleQuery, ruleID, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrRuleNotFound
	}
	if err != nil {
		return Rule{}, fmt.Errorf("get routing rule: %w", err)
	}
	return rule, nil
}

// CreateRule inserts an active rule. The partial unique indexes reject a second
// active wildcard or exact rule for the same page/form.
func (r *Repository) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	created, err := scanRule(r.pool.QueryRow(ctx, insertRuleQuery,
		rule.OrganizationID, rule.Name, rule.SourcePlatform, rule.SourcePageID, rule.SourceFormID,
		rule.TargetPipelineID, rule.TargetStageID, rule.AssigneeID,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return Rule{}, ErrDuplicateRule
		}
		return Rule{}, fmt.Errorf("create routing rule: %w", err)
	}
	return created, nil
}

// DeactivateRule marks a rule inactive. Leads already routed by it are unaffected.
func (r *Repository) DeactivateRule(ctx context.Context, orgID, ruleID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deactivateRuleQuery, ruleID, orgID)
	if err != nil {
		return fmt.Errorf("deactivate routing rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ListMappings returns the field mappings of a rule.
func (r *Repository) ListMappings(ctx context.Context, ruleID uuid.UUID) ([]FieldMapping, error) {
	rows, err := r.pool.Query(ctx, listMappingsQuery, ruleID)
	if err != nil {
		return nil, fmt.Errorf("list field mappings: %w", err)
	}
	defer rows.Close()

	result := make([]FieldMapping, 0)
	for rows.Next() {
		var m FieldMapping
		if err := rows.Scan(&m.ID, &m.RoutingRuleID, &m.SourceFieldKey, &m.TargetField, &m.Transform, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan field mapping: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ReplaceMappings swaps the full mapping set of a rule in one transaction.
func (r *Repository) ReplaceMappings(ctx context.Context, ruleID uuid.UUID, mappings []FieldMapping) ([]FieldMapping, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM field_mappings WHERE routing_rule_id = $1`, ruleID); err != nil {
		return nil, fmt.Errorf("clear field mappings: %w", err)
	}

	for _, m := range mappings {
		if _, err := tx.Exec(ctx, `
			INSERT INTO field_mappings (routing_rule_id, source_field_key, target_field, transform)
			VALUES ($1, $2, $3, $4)
		`, ruleID, m.SourceFieldKey, m.TargetField, m.Transform); err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("duplicate source field key %q: %w", m.SourceFieldKey, err)
			}
			return nil, fmt.Errorf("insert field mapping: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return r.ListMappings(ctx, ruleID)
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	defer rows.Close()

	result := make([]Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routing rule: %w", err)
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func scanRule(row pgx.Row) (Rule, error) {
	var rule Rule
	err := row.Scan(
		&rule.ID, &rule.OrganizationID, &rule.Name, &rule.SourcePlatform, &rule.SourcePageID, &rule.SourceFormID,
		&rule.TargetPipelineID, &rule.TargetStageID, &rule.AssigneeID, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt,
	)
	return rule, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
