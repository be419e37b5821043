// Package contacts is the CRM side of lead ingestion: it turns a normalized lead into a
// contact, a pipeline entry and an external lead link, all in one transaction.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whitelabel_crm_backend/internal/normalize"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LeadContact is everything needed to represent one platform lead in the CRM.
type LeadContact struct {
	OrganizationID uuid.UUID
	SourcePlatform string
	ExternalLeadID string
	Payload        normalize.ContactPayload
	Notes          string
	PipelineID     uuid.UUID
	StageID        uuid.UUID
	AssigneeID     *uuid.UUID
}

// Result reports which contact represents the lead.
type Result struct {
	ContactID uuid.UUID
	// Created is false when the external lead was already linked to a contact.
	Created bool
}

const findByExternalLeadQuery = `
		SELECT contact_id
		FROM contact_lead_sources
		WHERE organization_id = $1 AND source_platform = $2 AND external_lead_id = $3`

const findExistingContactQuery = `
		SELECT id
		FROM contacts
		WHERE organization_id = $1
			AND (($2 <> '' AND lower(email) = lower($2)) OR ($3 <> '' AND phone = $3))
		ORDER BY created_at ASC
		LIMIT 1`

const insertContactQuery = `
		INSERT INTO contacts (organization_id, first_name, last_name, full_name, email, phone, company, job_title,
			street, city, zip_code, state, country, website, notes)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
			NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''))
		RETURNING id`

// Existing values win; the lead only fills gaps. Notes accumulate.
const mergeContactQuery = `
		UPDATE contacts SET
			first_name = COALESCE(NULLIF(first_name, ''), NULLIF($2, '')),
			last_name  = COALESCE(NULLIF(last_name, ''), NULLIF($3, '')),
			full_name  = COALESCE(NULLIF(full_name, ''), NULLIF($4, '')),
			email      = COALESCE(NULLIF(email, ''), NULLIF($5, '')),
			phone      = COALESCE(NULLIF(phone, ''), NULLIF($6, '')),
			company    = COALESCE(NULLIF(company, ''), NULLIF($7, '')),
			job_title  = COALESCE(NULLIF(job_title, ''), NULLIF($8, '')),
			street     = COALESCE(NULLIF(street, ''), NULLIF($9, '')),
			city       = COALESCE(NULLIF(city, ''), NULLIF($10, '')),
			zip_code   = COALESCE(NULLIF(zip_code, ''), NULLIF($11, '')),
			state      = COALESCE(NULLIF(state, ''), NULLIF($12, '')),
			country    = COALESCE(NULLIF(country, ''), NULLIF($13, '')),
			website    = COALESCE(NULLIF(website, ''), NULLIF($14, '')),
			notes      = CASE
				WHEN NULLIF($15, '') IS NULL THEN notes
				WHEN NULLIF(notes, '') IS NULL THEN $15
				ELSE notes || E'\n\n' || $15
			END,
			updated_at = now()
		WHERE id = $1`

const insertLeadSourceQuery = `
		INSERT INTO contact_lead_sources (organization_id, contact_id, source_platform, external_lead_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, source_platform, external_lead_id) DO NOTHING`

const insertPipelineEntryQuery = `
		INSERT INTO pipeline_entries (organization_id, contact_id, pipeline_id, stage_id, assignee_id, source)
		VALUES ($1, $2, $3, $4, $5, $6)`

// Store persists leads as CRM contacts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a contact store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FindByExternalLeadID returns the contact already linked to the external lead, if any.
func (s *Store) FindByExternalLeadID(ctx context.Context, orgID uuid.UUID, platform, externalLeadID string) (uuid.UUID, bool, error) {
	var contactID uuid.UUID
	err := s.pool.QueryRow(ctx, findByExternalLeadQuery, orgID, platform, externalLeadID).Scan(&contactID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find contact by external lead: %w", err)
	}
	return contactID, true, nil
}

// CreateFromLead upserts the contact (matched by email or phone within the organization),
// links the external lead id and places the contact in the target pipeline stage.
// If another worker linked the same external lead first, the transaction is rolled
// back and that contact is returned with Created=false.
func (s *Store) CreateFromLead(ctx context.Context, lead LeadContact) (Result, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("begin contact tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	values := contactValues(lead.Payload, lead.Notes)

	var contactID uuid.UUID
	err = tx.QueryRow(ctx, findExistingContactQuery, lead.OrganizationID, values.email, values.phone).Scan(&contactID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if err := tx.QueryRow(ctx, insertContactQuery, values.args(lead.OrganizationID)...).Scan(&contactID); err != nil {
			return Result{}, fmt.Errorf("insert contact: %w", err)
		}
	case err != nil:
		return Result{}, fmt.Errorf("find existing contact: %w", err)
	default:
		if _, err := tx.Exec(ctx, mergeContactQuery, values.args(contactID)...); err != nil {
			return Result{}, fmt.Errorf("merge contact: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, insertLeadSourceQuery, lead.OrganizationID, contactID, lead.SourcePlatform, lead.ExternalLeadID)
	if err != nil {
		return Result{}, fmt.Errorf("link external lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		existing, found, err := s.FindByExternalLeadID(ctx, lead.OrganizationID, lead.SourcePlatform, lead.ExternalLeadID)
		if err != nil {
			return Result{}, err
		}
		if !found {
			return Result{}, fmt.Errorf("external lead %s link vanished after conflict", lead.ExternalLeadID)
		}
		return Result{ContactID: existing, Created: false}, nil
	}

	if _, err := tx.Exec(ctx, insertPipelineEntryQuery,
		lead.OrganizationID, contactID, lead.PipelineID, lead.StageID, lead.AssigneeID, lead.SourcePlatform,
	); err != nil {
		return Result{}, fmt.Errorf("insert pipeline entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit contact tx: %w", err)
	}
	return Result{ContactID: contactID, Created: true}, nil
}

type contactRow struct {
	firstName, lastName, fullName, email, phone, company, jobTitle string
	street, city, zipCode, state, country, website, notes          string
}

func (r contactRow) args(id uuid.UUID) []any {
	return []any{
		id, r.firstName, r.lastName, r.fullName, r.email, r.phone, r.company, r.jobTitle,
		r.street, r.city, r.zipCode, r.state, r.country, r.website, r.notes,
	}
}

// contactValues flattens the payload. A lead form that only asks for full_name still
// yields first and last names.
func contactValues(p normalize.ContactPayload, notes string) contactRow {
	row := contactRow{
		firstName: strings.TrimSpace(p.Get(normalize.FieldFirstName)),
		lastName:  strings.TrimSpace(p.Get(normalize.FieldLastName)),
		fullName:  strings.TrimSpace(p.Get(normalize.FieldFullName)),
		email:     strings.TrimSpace(p.Get(normalize.FieldEmail)),
		phone:     strings.TrimSpace(p.Get(normalize.FieldPhone)),
		company:   p.Get(normalize.FieldCompany),
		jobTitle:  p.Get(normalize.FieldJobTitle),
		street:    p.Get(normalize.FieldStreet),
		city:      p.Get(normalize.FieldCity),
		zipCode:   p.Get(normalize.FieldZipCode),
		state:     p.Get(normalize.FieldState),
		country:   p.Get(normalize.FieldCountry),
		website:   p.Get(normalize.FieldWebsite),
		notes:     normalize.ContactNotes(p, notes),
	}

	if row.fullName != "" && row.firstName == "" && row.lastName == "" {
		row.firstName, row.lastName = splitFullName(row.fullName)
	}
	if row.fullName == "" && (row.firstName != "" || row.lastName != "") {
		row.fullName = strings.TrimSpace(row.firstName + " " + row.lastName)
	}
	return row
}

func splitFullName(fullName string) (string, string) {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
