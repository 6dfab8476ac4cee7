package services

import (
	"fmt"
	"math"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/models"
)

const (
	maxTextLength        = 255
	maxPhoneLength       = 50
	maxURLLength         = 2048
	maxDescriptionLength = 65535
	maxFacilityImages    = 5
)

var (
	phonePattern = regexp.MustCompile(`^[0-9+\-(). ]+$`)

	allowedImageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
	}
)

// newDescriptionPolicy returns the HTML subset allowed in facility descriptions.
func newDescriptionPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// validateFacilityInput checks every field in a fixed order and returns the
// first failure as a ValidationError. On success the returned facility has
// trimmed text, a sanitized description and parsed (unverified) taxonomy IDs.
func validateFacilityInput(in *models.FacilityInput, policy *bluemonday.Policy) (*models.Facility, error) {
	if in == nil {
		return nil, apperrors.NewValidationError("name", "is required")
	}

	f := &models.Facility{
		Name:    strings.TrimSpace(in.Name),
		Address: strings.TrimSpace(in.Address),
		Phone:   strings.TrimSpace(in.Phone),
		Website: strings.TrimSpace(in.Website),
	}

	if err := requireText("name", f.Name); err != nil {
		return nil, err
	}
	if err := requireText("address", f.Address); err != nil {
		return nil, err
	}

	if in.Lat == nil {
		return nil, apperrors.NewValidationError("lat", "is required")
	}
	if math.IsNaN(*in.Lat) || !validLat(*in.Lat) {
		return nil, apperrors.NewValidationError("lat", "must be between -90 and 90")
	}
	if in.Lng == nil {
		return nil, apperrors.NewValidationError("lng", "is required")
	}
	if math.IsNaN(*in.Lng) || !validLng(*in.Lng) {
		return nil, apperrors.NewValidationError("lng", "must be between -180 and 180")
	}
	f.Lat, f.Lng = *in.Lat, *in.Lng

	if f.Phone != "" {
		if len(f.Phone) > maxPhoneLength || !phonePattern.MatchString(f.Phone) {
			return nil, apperrors.NewValidationError("phone", "may only contain digits, spaces and + - ( ) .")
		}
	}

	if f.Website != "" && !isWebURL(f.Website) {
		return nil, apperrors.NewValidationError("website", "must be an absolute http or https URL")
	}

	f.Description = strings.TrimSpace(policy.Sanitize(in.Description))
	if utf8.RuneCountInString(f.Description) > maxDescriptionLength {
		return nil, apperrors.NewValidationError("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}

	f.CustomPinImage = strings.TrimSpace(in.CustomPinImage)
	if f.CustomPinImage != "" && !isImageURL(f.CustomPinImage) {
		return nil, apperrors.NewValidationError("custom_pin_image", "must be an http or https URL to a jpg, jpeg, png, gif, webp or svg file")
	}

	images := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	if len(images) > maxFacilityImages {
		return nil, apperrors.NewValidationError("images", fmt.Sprintf("at most %d images are allowed", maxFacilityImages))
	}
	for _, img := range images {
		if !isImageURL(img) {
			return nil, apperrors.NewValidationError("images", fmt.Sprintf("%q is not an allowed image URL", img))
		}
	}
	f.Images = images

	f.Taxonomies = parseTaxonomyInput(in.Taxonomies)
	return f, nil
}

func requireText(field, value string) error {
	if value == "" {
		return apperrors.NewValidationError(field, "is required")
	}
	if utf8.RuneCountInString(value) > maxTextLength {
		return apperrors.NewValidationError(field, fmt.Sprintf("must be at most %d characters", maxTextLength))
	}
	return nil
}

// parseTaxonomyInput keeps known types and positive numeric IDs, in input
// order without duplicates. Existence is checked separately.
func parseTaxonomyInput(raw map[string][]string) models.TaxonomySet {
	set := make(models.TaxonomySet)
	for _, taxonomyType := range models.TaxonomyTypes {
		ids := dedupeIDs(parseIDList(raw[taxonomyType]))
		if len(ids) > 0 {
			set[taxonomyType] = ids
		}
	}
	return set
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func isWebURL(raw string) bool {
	if len(raw) > maxURLLength {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isImageURL(raw string) bool {
	if !isWebURL(raw) {
		return false
	}
	u, _ := url.Parse(raw)
	return allowedImageExtensions[strings.ToLower(path.Ext(u.Path))]
}
