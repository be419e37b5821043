package leadinbox

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"whitelabel_crm_backend/internal/contacts"
	"whitelabel_crm_backend/internal/events"
	"whitelabel_crm_backend/internal/normalize"
	"whitelabel_crm_backend/internal/routing"

	"github.com/google/uuid"
)

// memoryInbox mirrors the SQL state machine of Repository.
type memoryInbox struct {
	mu       sync.Mutex
	leads    map[uuid.UUID]*LeadEvent
	now      func() time.Time
	claimErr error
	requeues map[uuid.UUID]int
}

func newMemoryInbox(now func() time.Time) *memoryInbox {
	return &memoryInbox{
		leads:    make(map[uuid.UUID]*LeadEvent),
		now:      now,
		requeues: make(map[uuid.UUID]int),
	}
}

func (m *memoryInbox) Insert(_ context.Context, lead NewLeadEvent) (InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.leads {
		if existing.OrganizationID == lead.OrganizationID && existing.SourcePlatform == lead.SourcePlatform && existing.ExternalLeadID == lead.ExternalLeadID {
			return InsertResult{ID: existing.ID, Duplicate: true}, nil
		}
	}

	now := m.now()
	event := &LeadEvent{
		ID:             uuid.New(),
		OrganizationID: lead.OrganizationID,
		SourcePlatform: lead.SourcePlatform,
		SourcePageID:   lead.SourcePageID,
		SourceFormID:   lead.SourceFormID,
		ExternalLeadID: lead.ExternalLeadID,
		RawFields:      lead.RawFields,
		State:          StatePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.leads[event.ID] = event
	return InsertResult{ID: event.ID}, nil
}

func (m *memoryInbox) Exists(_ context.Context, orgID uuid.UUID, platform, externalLeadID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.leads {
		if existing.OrganizationID == orgID && existing.SourcePlatform == platform && existing.ExternalLeadID == externalLeadID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryInbox) ClaimPending(_ context.Context, limit int) ([]LeadEvent, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]*LeadEvent, 0)
	for _, lead := range m.leads {
		if lead.State == StatePending {
			pending = append(pending, lead)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	claimed := make([]LeadEvent, 0, len(pending))
	for _, lead := range pending {
		m.claimLocked(lead)
		claimed = append(claimed, *lead)
	}
	return claimed, nil
}

func (m *memoryInbox) claimLocked(lead *LeadEvent) {
	now := m.now()
	token := uuid.New()
	lead.State = StateProcessing
	lead.LockedAt = &now
	lead.LockToken = &token
}

func (m *memoryInbox) fenced(id, token uuid.UUID) (*LeadEvent, error) {
	lead, ok := m.leads[id]
	if !ok || lead.State != StateProcessing || lead.LockToken == nil || *lead.LockToken != token {
		return nil, ErrLeadNotClaimed
	}
	return lead, nil
}

func (m *memoryInbox) MarkCompleted(_ context.Context, id, token, contactID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, err := m.fenced(id, token)
	if err != nil {
		return err
	}
	lead.State = StateCompleted
	lead.ContactID = &contactID
	lead.LastError = nil
	lead.LockedAt, lead.LockToken = nil, nil
	return nil
}

func (m *memoryInbox) MarkRetry(_ context.Context, id, token uuid.UUID, lastError string, maxRetries int) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, err := m.fenced(id, token)
	if err != nil {
		return "", err
	}
	if lead.RetryCount >= maxRetries {
		lead.State = StateFailed
	} else {
		lead.State = StatePending
		lead.RetryCount++
		m.requeues[id]++
	}
	lead.LastError = &lastError
	lead.LockedAt, lead.LockToken = nil, nil
	lead.UpdatedAt = m.now()
	return lead.State, nil
}

func (m *memoryInbox) MarkFailed(_ context.Context, id, token uuid.UUID, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, err := m.fenced(id, token)
	if err != nil {
		return err
	}
	lead.State = StateFailed
	lead.LastError = &lastError
	lead.LockedAt, lead.LockToken = nil, nil
	lead.UpdatedAt = m.now()
	return nil
}

func (m *memoryInbox) RecoverStale(_ context.Context, threshold time.Duration) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-threshold)
	ids := make([]uuid.UUID, 0)
	for _, lead := range m.leads {
		if lead.State == StateProcessing && lead.LockedAt != nil && lead.LockedAt.Before(cutoff) {
			lead.State = StatePending
			lead.LockedAt, lead.LockToken = nil, nil
			ids = append(ids, lead.ID)
		}
	}
	return ids, nil
}

func (m *memoryInbox) CountByState(context.Context) (map[State]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[State]int)
	for _, lead := range m.leads {
		counts[lead.State]++
	}
	return counts, nil
}

func (m *memoryInbox) CountByPlatformState(context.Context) ([]PlatformStateCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grouped := make(map[[2]string]int)
	for _, lead := range m.leads {
		grouped[[2]string{lead.SourcePlatform, string(lead.State)}]++
	}
	result := make([]PlatformStateCount, 0, len(grouped))
	for key, count := range grouped {
		result = append(result, PlatformStateCount{Platform: key[0], State: State(key[1]), Count: count})
	}
	return result, nil
}

func (m *memoryInbox) OldestPendingAge(context.Context) (*time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *time.Time
	for _, lead := range m.leads {
		if lead.State == StatePending && (oldest == nil || lead.CreatedAt.Before(*oldest)) {
			created := lead.CreatedAt
			oldest = &created
		}
	}
	if oldest == nil {
		return nil, nil
	}
	age := m.now().Sub(*oldest)
	return &age, nil
}

func (m *memoryInbox) RecentErrors(_ context.Context, limit int) ([]RecentError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]RecentError, 0)
	for _, lead := range m.leads {
		if lead.LastError == nil || (lead.State != StatePending && lead.State != StateFailed) {
			continue
		}
		result = append(result, RecentError{
			ID:             lead.ID,
			ExternalLeadID: lead.ExternalLeadID,
			SourcePlatform: lead.SourcePlatform,
			State:          lead.State,
			RetryCount:     lead.RetryCount,
			LastError:      *lead.LastError,
			AgeSeconds:     int64(m.now().Sub(lead.CreatedAt).Seconds()),
		})
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *memoryInbox) get(id uuid.UUID) LeadEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.leads[id]
}

// forceProcessing puts a lead in processing as if a worker claimed it at lockedAt.
func (m *memoryInbox) forceProcessing(id uuid.UUID, lockedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := uuid.New()
	lead := m.leads[id]
	lead.State = StateProcessing
	lead.LockedAt = &lockedAt
	lead.LockToken = &token
}

// reclaim simulates recovery releasing the lead and another pass claiming it again.
func (m *memoryInbox) reclaim(orgID uuid.UUID, externalLeadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lead := range m.leads {
		if lead.OrganizationID == orgID && lead.ExternalLeadID == externalLeadID {
			m.claimLocked(lead)
		}
	}
}

type fakeRoutes struct {
	rules       map[string]routing.Rule
	mappings    []normalize.Mapping
	panicOnPage string
}

func newFakeRoutes() *fakeRoutes {
	return &fakeRoutes{
		rules: make(map[string]routing.Rule),
		mappings: []normalize.Mapping{
			{SourceFieldKey: "email", TargetField: normalize.FieldEmail, Transform: normalize.TransformLowercase},
			{SourceFieldKey: "full_name", TargetField: normalize.FieldFullName, Transform: normalize.TransformNameCapitalize},
		},
	}
}

func (f *fakeRoutes) addPage(pageID string) routing.Rule {
	rule := routing.Rule{
		ID:               uuid.New(),
		SourcePageID:     pageID,
		TargetPipelineID: uuid.New(),
		TargetStageID:    uuid.New(),
		IsActive:         true,
	}
	f.rules[pageID] = rule
	return rule
}

func (f *fakeRoutes) MatchRoute(_ context.Context, _ uuid.UUID, pageID, formID string) (routing.Rule, error) {
	rule, ok := f.rules[pageID]
	if !ok {
		_, err := routing.MatchRoute(nil, pageID, formID)
		return routing.Rule{}, err
	}
	if pageID == f.panicOnPage {
		panic("malformed field data")
	}
	return rule, nil
}

func (f *fakeRoutes) MappingsForRule(context.Context, uuid.UUID) ([]normalize.Mapping, error) {
	return f.mappings, nil
}

type fakeContacts struct {
	mu        sync.Mutex
	byExt     map[string]uuid.UUID
	created   []contacts.LeadContact
	createErr error
	onCreate  func(ctx context.Context, lead contacts.LeadContact) error
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{byExt: make(map[string]uuid.UUID)}
}

func (f *fakeContacts) FindByExternalLeadID(_ context.Context, _ uuid.UUID, _ string, externalLeadID string) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byExt[externalLeadID]
	return id, ok, nil
}

func (f *fakeContacts) CreateFromLead(ctx context.Context, lead contacts.LeadContact) (contacts.Result, error) {
	if f.onCreate != nil {
		if err := f.onCreate(ctx, lead); err != nil {
			return contacts.Result{}, err
		}
	}
	if f.createErr != nil {
		return contacts.Result{}, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byExt[lead.ExternalLeadID]; ok {
		return contacts.Result{ContactID: id}, nil
	}
	id := uuid.New()
	f.byExt[lead.ExternalLeadID] = id
	f.created = append(f.created, lead)
	return contacts.Result{ContactID: id, Created: true}, nil
}

func (f *fakeContacts) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.published {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errContactStoreDown = errors.New("contact store unavailable")
