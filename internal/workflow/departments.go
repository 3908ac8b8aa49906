package workflow

import "sort"

// Departments always required for stage-1 review regardless of deal content:
// mandatory financial and margin oversight.
const (
	DepartmentFinance = "finance"
	DepartmentTrading = "trading"
)

// Reason tags recorded against a required department.
const (
	ReasonFinancialOversight = "mandatory_financial_oversight"
	ReasonMarginReview       = "mandatory_margin_review"
	reasonIncentivePrefix    = "incentive:"
)

// DefaultCategoryDepartments is the built-in incentive category to reviewing
// department table. Deployments override it through configuration.
var DefaultCategoryDepartments = map[string]string{
	"marketing_support":  "marketing",
	"creative_services":  "creative",
	"research_data":      "research",
	"event_sponsorship":  "events",
	"content_production": "content",
	"tech_integration":   "technology",
}

// RequiredDepartments computes the stage-1 department review set for a deal
// from its incentive categories. Finance and trading are always included;
// each category mapping to a department adds that department exactly once.
// Legal is never part of this set; legal involvement starts at
// contract_drafting, outside stage-1 aggregation.
//
// The returned map is department -> reason tags.
func RequiredDepartments(incentiveCategories []string, categoryDepartments map[string]string) map[string][]string {
	if categoryDepartments == nil {
		categoryDepartments = DefaultCategoryDepartments
	}

	required := map[string][]string{
		DepartmentFinance: {ReasonFinancialOversight},
		DepartmentTrading: {ReasonMarginReview},
	}

	for _, category := range incentiveCategories {
		dept, ok := categoryDepartments[category]
		if !ok || dept == DepartmentLegal {
			continue
		}
		tag := reasonIncentivePrefix + category
		if hasTag(required[dept], tag) {
			continue
		}
		required[dept] = append(required[dept], tag)
	}

	return required
}

// SortedDepartments returns the keys of a required-department set in stable
// order, so approval rounds are created deterministically.
func SortedDepartments(required map[string][]string) []string {
	depts := make([]string, 0, len(required))
	for d := range required {
		depts = append(depts, d)
	}
	sort.Strings(depts)
	return depts
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
