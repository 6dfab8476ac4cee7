package models

// MaxFacilityResults is the hard cap on facilities returned by one query,
// regardless of the requested limit.
const MaxFacilityResults = 1000

// Facility order fields accepted from callers.
const (
	FacilityOrderName      = "name"
	FacilityOrderCreatedAt = "created_at"
	FacilityOrderUpdatedAt = "updated_at"
	FacilityOrderID        = "id"
)

// FilterCriteria is the raw, caller-supplied filter set (typically straight
// from query parameters). It is normalized into a FacilityQuery before use;
// malformed entries are dropped rather than rejected.
type FilterCriteria struct {
	Search     string              `json:"search,omitempty"`
	Taxonomies map[string][]string `json:"taxonomies,omitempty"`
	Bounds     map[string]string   `json:"bounds,omitempty"`
	OrderBy    string              `json:"orderby,omitempty"`
	Order      string              `json:"order,omitempty"`
	Limit      int                 `json:"limit,omitempty"`
	Offset     int                 `json:"offset,omitempty"`
}

// Bounds is a geographic bounding box. West > East means the box crosses
// the antimeridian.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// CrossesAntimeridian reports whether the box wraps past longitude 180.
func (b Bounds) CrossesAntimeridian() bool {
	return b.West > b.East
}

// Contains reports whether the point lies inside the box (edges inclusive).
func (b Bounds) Contains(lat, lng float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	if b.CrossesAntimeridian() {
		return lng >= b.West || lng <= b.East
	}
	return lng >= b.West && lng <= b.East
}

// FacilityQuery is the normalized, canonical form of FilterCriteria.
// Its JSON encoding is deterministic and is used to derive cache keys.
type FacilityQuery struct {
	Search     string             `json:"search"`
	Taxonomies map[string][]int64 `json:"taxonomies"`
	Bounds     *Bounds            `json:"bounds"`
	OrderBy    string             `json:"orderby"`
	Descending bool               `json:"desc"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}
