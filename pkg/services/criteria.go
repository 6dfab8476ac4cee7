package services

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/facilitymap/facility-engine/pkg/cache"
	"github.com/facilitymap/facility-engine/pkg/models"
)

// NormalizeCriteria turns raw filter criteria into their canonical query.
// Malformed entries are dropped, never rejected: unknown taxonomy types,
// non-numeric or non-positive IDs, and incomplete or out-of-range bounds
// simply stop filtering. Equivalent criteria normalize to equal queries.
func NormalizeCriteria(c models.FilterCriteria) models.FacilityQuery {
	q := models.FacilityQuery{
		Search:     strings.TrimSpace(c.Search),
		Taxonomies: normalizeTaxonomyFilter(c.Taxonomies),
		Bounds:     normalizeBounds(c.Bounds),
		OrderBy:    models.FacilityOrderName,
		Limit:      c.Limit,
		Offset:     c.Offset,
	}

	switch orderBy := strings.ToLower(strings.TrimSpace(c.OrderBy)); orderBy {
	case models.FacilityOrderName, models.FacilityOrderCreatedAt, models.FacilityOrderUpdatedAt, models.FacilityOrderID:
		q.OrderBy = orderBy
	}
	q.Descending = strings.EqualFold(strings.TrimSpace(c.Order), "desc")

	if q.Limit <= 0 || q.Limit > models.MaxFacilityResults {
		q.Limit = models.MaxFacilityResults
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// normalizeTaxonomyFilter keeps known types only. Each value may itself be
// a comma-separated list. IDs are sorted and de-duplicated; types left with
// no IDs are removed.
func normalizeTaxonomyFilter(raw map[string][]string) map[string][]int64 {
	out := make(map[string][]int64)
	for _, taxonomyType := range models.TaxonomyTypes {
		ids := parseIDList(raw[taxonomyType])
		if len(ids) == 0 {
			continue
		}
		slices.Sort(ids)
		out[taxonomyType] = slices.Compact(ids)
	}
	return out
}

// parseIDList extracts positive integer IDs, in input order, from values
// that may contain comma-separated lists.
func parseIDList(values []string) []int64 {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || id <= 0 {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids
}

// normalizeBounds requires all four sides, numeric and in range, with
// south <= north. West > east is kept: the box crosses the antimeridian.
func normalizeBounds(raw map[string]string) *models.Bounds {
	if len(raw) == 0 {
		return nil
	}

	var sides [4]float64
	for i, name := range []string{"north", "south", "east", "west"} {
		v, ok := raw[name]
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		sides[i] = f
	}

	b := &models.Bounds{North: sides[0], South: sides[1], East: sides[2], West: sides[3]}
	if !validLat(b.North) || !validLat(b.South) || !validLng(b.East) || !validLng(b.West) {
		return nil
	}
	if b.South > b.North {
		return nil
	}
	return b
}

func validLat(v float64) bool { return v >= -90 && v <= 90 }
func validLng(v float64) bool { return v >= -180 && v <= 180 }

// listCacheKey is the facilities-group key for one normalized query.
func listCacheKey(q models.FacilityQuery) (string, error) {
	return cache.HashKey("list", q)
}

// countCacheKey ignores ordering and paging, which do not change a count.
func countCacheKey(q models.FacilityQuery) (string, error) {
	q.OrderBy, q.Descending, q.Limit, q.Offset = "", false, 0, 0
	return cache.HashKey("count", q)
}
