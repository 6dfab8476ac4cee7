package sql

import (
	"testing"

	"github.com/facilitymap/facility-engine/pkg/models"
)

func TestCheckValueForInjection(t *testing.T) {
	tests := []struct {
		name            string
		value           string
		expectInjection bool
	}{
		{name: "empty", value: "", expectInjection: false},
		{name: "plain search", value: "outpatient rehab", expectInjection: false},
		{name: "numeric id", value: "12345", expectInjection: false},
		{name: "apostrophe in name", value: "O'Brien", expectInjection: false},
		{name: "classic tautology", value: "' OR '1'='1", expectInjection: true},
		{name: "stacked drop", value: "'; DROP TABLE users--", expectInjection: true},
		{name: "union select", value: "1 UNION SELECT * FROM passwords", expectInjection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckValueForInjection("search", tt.value)
			if tt.expectInjection {
				if result == nil {
					t.Fatalf("expected injection to be detected for %q", tt.value)
				}
				if !result.IsSQLi || result.Fingerprint == "" || result.Field != "search" {
					t.Errorf("unexpected result: %+v", result)
				}
				return
			}
			if result != nil {
				t.Errorf("expected no injection for %q, got fingerprint %q", tt.value, result.Fingerprint)
			}
		})
	}
}

func TestCheckFilterCriteria(t *testing.T) {
	criteria := models.FilterCriteria{
		Search: "detox",
		Taxonomies: map[string][]string{
			"features":  {"1", "2"},
			"therapies": {"1 UNION SELECT * FROM passwords"},
		},
		Bounds: map[string]string{"north": "' OR '1'='1", "south": "10"},
	}

	results := CheckFilterCriteria(criteria)
	if len(results) != 2 {
		t.Fatalf("expected 2 flagged values, got %d", len(results))
	}
	if results[0].Field != "therapies" {
		t.Errorf("expected therapies flagged first, got %s", results[0].Field)
	}
	if results[1].Field != "north" {
		t.Errorf("expected north flagged second, got %s", results[1].Field)
	}
}

func TestCheckFilterCriteria_Clean(t *testing.T) {
	results := CheckFilterCriteria(models.FilterCriteria{Search: "sober living", OrderBy: "name"})
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
