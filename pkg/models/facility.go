// Package models contains the domain types of the facility directory.
package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/jsonutil"
)

// Facility is a physical location record as persisted.
// Stored in the facilities table; taxonomy membership lives in facility_taxonomies.
type Facility struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Address        string      `json:"address"`
	Lat            float64     `json:"lat"`
	Lng            float64     `json:"lng"`
	Phone          string      `json:"phone,omitempty"`
	Website        string      `json:"website,omitempty"`
	Description    string      `json:"description,omitempty"`
	Taxonomies     TaxonomySet `json:"taxonomies"`
	CustomPinImage string      `json:"custom_pin_image,omitempty"`
	Images         []string    `json:"images"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// FacilityInput is the raw, unvalidated payload of an add or update.
// Update is a full overwrite: absent optional fields are cleared.
type FacilityInput struct {
	Name           string              `json:"name"`
	Address        string              `json:"address"`
	Lat            *float64            `json:"lat"`
	Lng            *float64            `json:"lng"`
	Phone          string              `json:"phone,omitempty"`
	Website        string              `json:"website,omitempty"`
	Description    string              `json:"description,omitempty"`
	Taxonomies     map[string][]string `json:"taxonomies,omitempty"`
	CustomPinImage string              `json:"custom_pin_image,omitempty"`
	Images         []string            `json:"images,omitempty"`

	// ExpectedUpdatedAt, when set on update, makes the write conditional on
	// the stored updated_at still matching it.
	ExpectedUpdatedAt *time.Time `json:"expected_updated_at,omitempty"`
}

// UnmarshalJSON accepts taxonomy IDs and coordinates as strings or numbers,
// so {"features": [1, 2]} and {"features": ["1", "2"]} decode the same.
// A coordinate that is not a number fails with a ValidationError naming it.
func (in *FacilityInput) UnmarshalJSON(data []byte) error {
	type plain FacilityInput
	aux := struct {
		*plain
		Lat        json.RawMessage                `json:"lat"`
		Lng        json.RawMessage                `json:"lng"`
		Taxonomies map[string]jsonutil.StringList `json:"taxonomies,omitempty"`
	}{plain: (*plain)(in)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if in.Lat, err = parseCoordinate("lat", aux.Lat); err != nil {
		return err
	}
	if in.Lng, err = parseCoordinate("lng", aux.Lng); err != nil {
		return err
	}

	in.Taxonomies = nil
	if aux.Taxonomies != nil {
		in.Taxonomies = make(map[string][]string, len(aux.Taxonomies))
		for taxonomyType, ids := range aux.Taxonomies {
			in.Taxonomies[taxonomyType] = []string(ids)
		}
	}
	return nil
}

// parseCoordinate returns nil for an absent or null value so the caller can
// report the field as required.
func parseCoordinate(field string, raw json.RawMessage) (*float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(jsonutil.FlexibleStringValue(raw), 64)
	if err != nil {
		return nil, apperrors.NewValidationError(field, "must be a number")
	}
	return &v, nil
}

// FacilityTaxonomy is the resolved display data of one taxonomy type on a
// formatted facility. IDs keeps every stored reference; Details and Names
// only contain items that still exist.
type FacilityTaxonomy struct {
	IDs     []int64               `json:"ids"`
	Details []TaxonomyItemSummary `json:"details"`
	Names   []string              `json:"names"`
}

// FormattedFacility is a facility enriched with resolved taxonomy data and
// sanitized for display.
type FormattedFacility struct {
	ID             int64                       `json:"id"`
	Name           string                      `json:"name"`
	Address        string                      `json:"address"`
	Lat            float64                     `json:"lat"`
	Lng            float64                     `json:"lng"`
	Phone          string                      `json:"phone,omitempty"`
	Website        string                      `json:"website,omitempty"`
	Description    string                      `json:"description,omitempty"`
	CustomPinImage string                      `json:"custom_pin_image,omitempty"`
	Images         []string                    `json:"images"`
	Taxonomies     map[string]FacilityTaxonomy `json:"taxonomies"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}
