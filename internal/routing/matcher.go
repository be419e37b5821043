package routing

import (
	"fmt"
	"sort"
)

// Match is the outcome of MatchRoute.
type Match struct {
	Rule Rule
	// Ambiguous is set when more than one active rule tied at the winning precedence.
	// The partial unique indexes prevent this; the oldest rule is chosen if it happens anyway.
	Ambiguous bool
}

// MatchRoute picks the rule for a lead from pageID/formID out of rules.
// An active rule for exactly formID wins over the page's active wildcard rule.
// Inactive rules and rules for other pages are ignored. When nothing matches the
// error wraps ErrNoRoute.
func MatchRoute(rules []Rule, pageID, formID string) (Match, error) {
	var exact, wildcard []Rule
	for _, rule := range rules {
		if !rule.IsActive || rule.SourcePageID != pageID {
			continue
		}
		switch {
		case rule.IsWildcard():
			wildcard = append(wildcard, rule)
		case formID != "" && *rule.SourceFormID == formID:
			exact = append(exact, rule)
		}
	}

	if len(exact) > 0 {
		return pickOldest(exact), nil
	}
	if len(wildcard) > 0 {
		return pickOldest(wildcard), nil
	}
	return Match{}, fmt.Errorf("%w for page %s form %s", ErrNoRoute, pageID, formID)
}

func pickOldest(candidates []Rule) Match {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID.String() < candidates[j].ID.String()
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return Match{Rule: candidates[0], Ambiguous: len(candidates) > 1}
}
