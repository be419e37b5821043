// Package metaleads receives Facebook/Instagram lead ads from the Meta webhook.
// It verifies deliveries, resolves the connected page, fetches the lead from the
// Graph API and stores it in the lead inbox. Routing happens later in leadinbox.
package metaleads

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// ObjectPage is the webhook object type for page subscriptions.
	ObjectPage = "page"
	// FieldLeadgen is the change field Meta sends for a new lead.
	FieldLeadgen = "leadgen"
)

var ErrPageNotConnected = errors.New("meta page is not connected")

// PageConnection links a Facebook page to an organization. Rows are written by the
// OAuth connect flow; the webhook only reads them.
type PageConnection struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	PageID         string
	PageName       string
	AccessToken    string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebhookPayload is the body Meta posts to the subscription callback.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry groups the changes for one page.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Time    int64           `json:"time"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange is a single subscribed field change.
type WebhookChange struct {
	Field string        `json:"field"`
	Value LeadgenChange `json:"value"`
}

// LeadgenChange identifies a new lead. The lead content itself has to be fetched.
type LeadgenChange struct {
	LeadgenID   string `json:"leadgen_id"`
	PageID      string `json:"page_id"`
	FormID      string `json:"form_id"`
	AdID        string `json:"ad_id"`
	CreatedTime int64  `json:"created_time"`
}

// GraphLead is a lead as returned by the Graph API.
type GraphLead struct {
	ID          string       `json:"id"`
	CreatedTime string       `json:"created_time"`
	FormID      string       `json:"form_id"`
	AdID        string       `json:"ad_id"`
	FieldData   []FieldDatum `json:"field_data"`
}

// FieldDatum is one answered form question.
type FieldDatum struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}
