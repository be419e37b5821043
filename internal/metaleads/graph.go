package metaleads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whitelabel_crm_backend/platform/logger"

	"github.com/cenkalti/backoff/v4"
)

const (
	leadFields            = "id,created_time,field_data,form_id,ad_id"
	defaultGraphRetries   = 3
	defaultGraphInitial   = 500 * time.Millisecond
	maxGraphResponseBytes = 1 << 20
)

// ErrGraphRejected is returned when the Graph API refuses the request for good,
// for example an expired page token or a deleted lead.
var ErrGraphRejected = errors.New("graph api rejected lead request")

// GraphConfig configures the Graph API client.
type GraphConfig struct {
	BaseURL         string
	Version         string
	Timeout         time.Duration
	MaxRetries      uint64
	InitialInterval time.Duration
}

// GraphClient fetches leads from the Meta Graph API.
type GraphClient struct {
	http *http.Client
	cfg  GraphConfig
	log  *logger.Logger
}

type graphErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// NewGraphClient creates a Graph API client.
func NewGraphClient(cfg GraphConfig, log *logger.Logger) *GraphClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultGraphRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaultGraphInitial
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GraphClient{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
		log:  log,
	}
}

// FetchLead loads a lead by its leadgen id. Network errors, 429 and 5xx responses are
// retried with exponential backoff; other 4xx responses fail immediately.
// The page token travels in the Authorization header so it never appears in a URL.
func (g *GraphClient) FetchLead(ctx context.Context, leadgenID, accessToken string) (GraphLead, error) {
	endpoint := fmt.Sprintf("%s/%s/%s?%s", g.cfg.BaseURL, g.cfg.Version, url.PathEscape(leadgenID), url.Values{
		"fields": {leadFields},
	}.Encode())

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.cfg.InitialInterval

	var lead GraphLead
	operation := func() error {
		var err error
		lead, err = g.fetchOnce(ctx, endpoint, accessToken)
		return err
	}
	notify := func(err error, wait time.Duration) {
		g.log.Warn("graph lead fetch failed, retrying", "leadgen_id", leadgenID, "error", err, "wait", wait.String())
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, g.cfg.MaxRetries), ctx), notify); err != nil {
		return GraphLead{}, err
	}
	return lead, nil
}

func (g *GraphClient) fetchOnce(ctx context.Context, endpoint, accessToken string) (GraphLead, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return GraphLead{}, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.http.Do(req)
	if err != nil {
		return GraphLead{}, fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGraphResponseBytes))
	if err != nil {
		return GraphLead{}, fmt.Errorf("read graph response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("graph api status %d: %s", resp.StatusCode, graphErrorMessage(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return GraphLead{}, err
		}
		return GraphLead{}, backoff.Permanent(fmt.Errorf("%w: %w", ErrGraphRejected, err))
	}

	var lead GraphLead
	if err := json.Unmarshal(body, &lead); err != nil {
		return GraphLead{}, backoff.Permanent(fmt.Errorf("decode graph lead: %w", err))
	}
	return lead, nil
}

func graphErrorMessage(body []byte) string {
	var parsed graphErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(body))
}
