package routing

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func strPtr(v string) *string { return &v }

func newRule(pageID string, formID *string, createdAt time.Time) Rule {
	return Rule{
		ID:               uuid.New(),
		OrganizationID:   uuid.New(),
		SourcePlatform:   PlatformFacebook,
		SourcePageID:     pageID,
		SourceFormID:     formID,
		TargetPipelineID: uuid.New(),
		TargetStageID:    uuid.New(),
		IsActive:         true,
		CreatedAt:        createdAt,
	}
}

func TestMatchRoutePrefersExactFormOverNewerWildcard(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exact := newRule("page-1", strPtr("form-F"), base)
	wildcard := newRule("page-1", nil, base.Add(time.Hour))

	match, err := MatchRoute([]Rule{wildcard, exact}, "page-1", "form-F")
	if err != nil {
		t.Fatalf("expected a match, got %v", err)
	}
	if match.Rule.ID != exact.ID {
		t.Fatalf("expected exact form rule to win")
	}
	if match.Ambiguous {
		t.Fatalf("expected unambiguous match")
	}
}

func TestMatchRoutePrefersExactFormOverOlderWildcard(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	wildcard := newRule("page-1", nil, base)
	exact := newRule("page-1", strPtr("form-F"), base.Add(time.Hour))

	match, err := MatchRoute([]Rule{wildcard, exact}, "page-1", "form-F")
	if err != nil {
		t.Fatalf("expected a match, got %v", err)
	}
	if match.Rule.ID != exact.ID {
		t.Fatalf("expected exact form rule to win")
	}
}

func TestMatchRouteFallsBackToWildcard(t *testing.T) {
	now := time.Now()
	wildcard := newRule("page-1", nil, now)
	other := newRule("page-1", strPtr("form-A"), now)

	match, err := MatchRoute([]Rule{other, wildcard}, "page-1", "form-B")
	if err != nil {
		t.Fatalf("expected wildcard match, got %v", err)
	}
	if match.Rule.ID != wildcard.ID {
		t.Fatalf("expected wildcard rule")
	}
}

func TestMatchRouteIgnoresInactiveRules(t *testing.T) {
	now := time.Now()
	exact := newRule("page-1", strPtr("form-F"), now)
	exact.IsActive = false
	wildcard := newRule("page-1", nil, now)
	wildcard.IsActive = false

	_, err := MatchRoute([]Rule{exact, wildcard}, "page-1", "form-F")
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestMatchRouteInactiveExactFallsBackToActiveWildcard(t *testing.T) {
	now := time.Now()
	exact := newRule("page-1", strPtr("form-F"), now)
	exact.IsActive = false
	wildcard := newRule("page-1", nil, now)

	match, err := MatchRoute([]Rule{exact, wildcard}, "page-1", "form-F")
	if err != nil {
		t.Fatalf("expected wildcard match, got %v", err)
	}
	if match.Rule.ID != wildcard.ID {
		t.Fatalf("expected active wildcard rule")
	}
}

func TestMatchRouteNoRouteMessageNamesPageAndForm(t *testing.T) {
	rules := []Rule{newRule("page-2", nil, time.Now())}

	_, err := MatchRoute(rules, "page-1", "form-9")
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
	want := "no routing rule configured for page page-1 form form-9"
	if err.Error() != want {
		t.Fatalf("unexpected message %q, want %q", err.Error(), want)
	}
}

func TestMatchRouteEmptyFormOnlyMatchesWildcard(t *testing.T) {
	now := time.Now()
	exact := newRule("page-1", strPtr("form-F"), now)

	if _, err := MatchRoute([]Rule{exact}, "page-1", ""); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute for lead without form, got %v", err)
	}
}

func TestMatchRouteDuplicateWildcardsPickOldest(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := newRule("page-1", nil, base.Add(time.Minute))
	older := newRule("page-1", nil, base)

	match, err := MatchRoute([]Rule{newer, older}, "page-1", "form-X")
	if err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if match.Rule.ID != older.ID {
		t.Fatalf("expected oldest duplicate to win")
	}
	if !match.Ambiguous {
		t.Fatalf("expected duplicate wildcards to be flagged ambiguous")
	}
}
