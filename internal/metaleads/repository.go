package metaleads

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const getActiveConnectionQuery = `
		SELECT id, organization_id, page_id, page_name, access_token, is_active, created_at, updated_at
		FROM meta_page_connections
		WHERE page_id = $1 AND is_active = true`

// Repository provides read access to connected Meta pages.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new page connection repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetActiveConnection returns the active connection for a page.
func (r *Repository) GetActiveConnection(ctx context.Context, pageID string) (PageConnection, error) {
	var conn PageConnection
	err := r.pool.QueryRow(ctx, getActiveConnectionQuery, pageID).Scan(
		&conn.ID, &conn.OrganizationID, &conn.PageID, &conn.PageName, &conn.AccessToken,
		&conn.IsActive, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PageConnection{}, ErrPageNotConnected
	}
	if err != nil {
		return PageConnection{}, fmt.Errorf("load page connection: %w", err)
	}
	return conn, nil
}
