package routing

import (
	"strings"
	"testing"
)

func TestListRulesForPageQueryOnlyReadsActiveTenantRules(t *testing.T) {
	query := strings.ToLower(listRulesForPageQuery)

	requiredFragments := []string{
		"from routing_rules",
		"where organization_id = $1",
		"source_page_id = $2",
		"is_active = true",
		"order by created_at asc",
	}

	for _, fragment := range requiredFragments {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected query fragment %q to be present", fragment)
		}
	}
}

func TestRuleMutationsAreTenantScoped(t *testing.T) {
	for name, query := range map[string]string{
		"get":        getRuleQuery,
		"deactivate": deactivateRuleQuery,
	} {
		if !strings.Contains(strings.ToLower(query), "organization_id = $2") {
			t.Fatalf("%s query must be scoped to the organization", name)
		}
	}
}
