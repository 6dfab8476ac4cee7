package models

// MapSettings are the global widget settings. Changing them only affects
// frontend payloads, never facility or taxonomy data.
type MapSettings struct {
	DefaultLat      float64 `json:"default_lat"`
	DefaultLng      float64 `json:"default_lng"`
	DefaultZoom     int     `json:"default_zoom"`
	ClusterMarkers  bool    `json:"cluster_markers"`
	DefaultPinImage string  `json:"default_pin_image,omitempty"`
	ListPageSize    int     `json:"list_page_size"`
}

// DefaultMapSettings returns the settings used until an operator saves their own.
func DefaultMapSettings() MapSettings {
	return MapSettings{
		DefaultLat:     39.8283,
		DefaultLng:     -98.5795,
		DefaultZoom:    4,
		ClusterMarkers: true,
		ListPageSize:   20,
	}
}

// WidgetData is the initial payload the public map-and-list widget loads.
type WidgetData struct {
	Settings   MapSettings          `json:"settings"`
	Filters    []TaxonomyFilter     `json:"filters"`
	Facilities []*FormattedFacility `json:"facilities"`
	Total      int                  `json:"total"`
}
