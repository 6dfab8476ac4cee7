package services

import (
	"html"

	"github.com/microcosm-cc/bluemonday"

	"github.com/facilitymap/facility-engine/pkg/models"
)

// TaxonomyIndex resolves item IDs to display data, per taxonomy type.
type TaxonomyIndex map[string]map[int64]models.TaxonomyItemSummary

// newTaxonomyIndex builds an index from filter options.
func newTaxonomyIndex(filters []models.TaxonomyFilter) TaxonomyIndex {
	index := make(TaxonomyIndex, len(filters))
	for _, f := range filters {
		items := make(map[int64]models.TaxonomyItemSummary, len(f.Items))
		for _, item := range f.Items {
			items[item.ID] = item
		}
		index[f.Type] = items
	}
	return index
}

// formatFacility prepares a stored facility for display. Text is escaped,
// the description is re-sanitized, URLs that no longer validate are
// dropped, and taxonomy IDs are resolved. IDs of deleted items stay in IDs
// but are omitted from Details and Names.
func formatFacility(f *models.Facility, index TaxonomyIndex, policy *bluemonday.Policy) *models.FormattedFacility {
	out := &models.FormattedFacility{
		ID:          f.ID,
		Name:        html.EscapeString(f.Name),
		Address:     html.EscapeString(f.Address),
		Lat:         f.Lat,
		Lng:         f.Lng,
		Phone:       html.EscapeString(f.Phone),
		Description: policy.Sanitize(f.Description),
		Images:      make([]string, 0, len(f.Images)),
		Taxonomies:  make(map[string]models.FacilityTaxonomy, len(models.TaxonomyTypes)),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}

	if isWebURL(f.Website) {
		out.Website = f.Website
	}
	if isImageURL(f.CustomPinImage) {
		out.CustomPinImage = f.CustomPinImage
	}
	for _, img := range f.Images {
		if isImageURL(img) {
			out.Images = append(out.Images, img)
		}
	}

	for _, taxonomyType := range models.TaxonomyTypes {
		ids := f.Taxonomies[taxonomyType]
		t := models.FacilityTaxonomy{
			IDs:     append([]int64{}, ids...),
			Details: make([]models.TaxonomyItemSummary, 0, len(ids)),
			Names:   make([]string, 0, len(ids)),
		}
		for _, id := range ids {
			item, ok := index[taxonomyType][id]
			if !ok {
				continue
			}
			item.Name = html.EscapeString(item.Name)
			t.Details = append(t.Details, item)
			t.Names = append(t.Names, item.Name)
		}
		out.Taxonomies[taxonomyType] = t
	}
	return out
}
