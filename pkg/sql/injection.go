// Package sql inspects visitor-supplied text that ends up as a query parameter.
// Every query the engine issues is parameterized; detection here only feeds
// the security audit log.
package sql

import (
	"maps"
	"slices"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/facilitymap/facility-engine/pkg/models"
)

// InjectionCheckResult contains the result of an injection check on a value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Field       string // Name of the field that failed the check
	Value       string // The value that was checked
}

// CheckValueForInjection uses libinjection to detect SQL injection patterns
// in value. Returns nil if no injection is detected.
//
// Example:
//
//	result := CheckValueForInjection("search", "'; DROP TABLE facilities--")
//	// result.IsSQLi == true
//	// result.Field == "search"
func CheckValueForInjection(field, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Field:       field,
		Value:       value,
	}
}

// CheckFilterCriteria checks every free-text value of raw filter criteria:
// the search term and the taxonomy and bounds values before they are coerced
// to numbers. Returns one result per flagged value.
func CheckFilterCriteria(criteria models.FilterCriteria) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	add := func(field, value string) {
		if r := CheckValueForInjection(field, value); r != nil {
			results = append(results, r)
		}
	}

	add("search", criteria.Search)
	add("orderby", criteria.OrderBy)
	for _, taxonomyType := range slices.Sorted(maps.Keys(criteria.Taxonomies)) {
		for _, v := range criteria.Taxonomies[taxonomyType] {
			add(taxonomyType, v)
		}
	}
	for _, side := range []string{"north", "south", "east", "west"} {
		add(side, criteria.Bounds[side])
	}
	return results
}
