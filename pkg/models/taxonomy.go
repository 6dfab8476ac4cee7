package models

import (
	"strings"
	"time"

	"github.com/jinzhu/inflection"
)

// Taxonomy type names. The order of TaxonomyTypes is canonical: filter UIs
// and cache keys derived from the type list depend on it being stable.
const (
	TaxonomyLevelsOfCare       = "levels_of_care"
	TaxonomyFeatures           = "features"
	TaxonomyTherapies          = "therapies"
	TaxonomyEnvironment        = "environment"
	TaxonomyLocation           = "location"
	TaxonomyInsuranceProviders = "insurance_providers"
)

// TaxonomyTypes lists every supported taxonomy type in canonical order.
var TaxonomyTypes = []string{
	TaxonomyLevelsOfCare,
	TaxonomyFeatures,
	TaxonomyTherapies,
	TaxonomyEnvironment,
	TaxonomyLocation,
	TaxonomyInsuranceProviders,
}

var taxonomyLabels = map[string]string{
	TaxonomyLevelsOfCare:       "Levels of Care",
	TaxonomyFeatures:           "Features",
	TaxonomyTherapies:          "Therapies",
	TaxonomyEnvironment:        "Environment",
	TaxonomyLocation:           "Location",
	TaxonomyInsuranceProviders: "Insurance Providers",
}

// IsTaxonomyType reports whether name is one of the supported taxonomy types.
func IsTaxonomyType(name string) bool {
	_, ok := taxonomyLabels[name]
	return ok
}

// TaxonomyLabel returns the plural display label for a taxonomy type.
func TaxonomyLabel(taxonomyType string) string {
	if label, ok := taxonomyLabels[taxonomyType]; ok {
		return label
	}
	return taxonomyType
}

// TaxonomySingularLabel returns the singular display label, e.g.
// "Levels of Care" -> "Level of Care", "Insurance Providers" -> "Insurance Provider".
func TaxonomySingularLabel(taxonomyType string) string {
	label := TaxonomyLabel(taxonomyType)
	if head, tail, found := strings.Cut(label, " of "); found {
		return inflection.Singular(head) + " of " + tail
	}
	words := strings.Fields(label)
	if len(words) == 0 {
		return label
	}
	words[len(words)-1] = inflection.Singular(words[len(words)-1])
	return strings.Join(words, " ")
}

// TaxonomyItem is one tag within a taxonomy type.
// Stored in the taxonomy_items table, discriminated by taxonomy_type.
type TaxonomyItem struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaxonomyItemSummary is the display subset of a TaxonomyItem used in
// filter options and formatted facilities.
type TaxonomyItemSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Summary returns the display subset of the item.
func (t *TaxonomyItem) Summary() TaxonomyItemSummary {
	return TaxonomyItemSummary{ID: t.ID, Name: t.Name, Slug: t.Slug}
}

// TaxonomyFilter is the per-type structure consumed by filter UIs.
type TaxonomyFilter struct {
	Type          string                `json:"type"`
	Label         string                `json:"label"`
	SingularLabel string                `json:"singular_label"`
	Items         []TaxonomyItemSummary `json:"items"`
}

// TaxonomySet maps taxonomy type to the item IDs a facility is tagged with.
type TaxonomySet map[string][]int64

// Clone returns a deep copy of the set.
func (s TaxonomySet) Clone() TaxonomySet {
	out := make(TaxonomySet, len(s))
	for k, ids := range s {
		out[k] = append([]int64(nil), ids...)
	}
	return out
}

// Contains reports whether the set holds id under taxonomyType.
func (s TaxonomySet) Contains(taxonomyType string, id int64) bool {
	for _, v := range s[taxonomyType] {
		if v == id {
			return true
		}
	}
	return false
}
