package geo

import "math"

// Source records which lookup produced a Location.
type Source string

const (
	SourceOracle Source = "oracle"
	SourceGeoIP  Source = "geoip"
	SourceStatic Source = "static"
)

// Location is a coarse geolocation of an IP address.
// Latitude and Longitude are nil when the provider returned no coordinates.
type Location struct {
	Country   string   `json:"country,omitempty"`
	City      string   `json:"city,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Source    Source   `json:"source,omitempty"`
}

// NewLocation returns a Location with both coordinates set.
func NewLocation(country, city string, lat, lon float64, source Source) *Location {
	return &Location{
		Country:   country,
		City:      city,
		Latitude:  &lat,
		Longitude: &lon,
		Source:    source,
	}
}

// HasCoordinates reports whether l carries a usable latitude/longitude pair.
func (l *Location) HasCoordinates() bool {
	if l == nil || l.Latitude == nil || l.Longitude == nil {
		return false
	}
	lat, lon := *l.Latitude, *l.Longitude
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// HasCity reports whether l names a city.
func (l *Location) HasCity() bool {
	return l != nil && l.City != ""
}

// IsEmpty reports whether l carries neither a country nor coordinates.
func (l *Location) IsEmpty() bool {
	return l == nil || (l.Country == "" && l.City == "" && !l.HasCoordinates())
}

// DistanceTo returns the great-circle distance to other in kilometres.
// ok is false when either side lacks coordinates.
func (l *Location) DistanceTo(other *Location) (km float64, ok bool) {
	if !l.HasCoordinates() || !other.HasCoordinates() {
		return 0, false
	}
	return DistanceKm(*l.Latitude, *l.Longitude, *other.Latitude, *other.Longitude), true
}

// Columns flattens l into the nullable columns used by the stores
func (l *Location) Columns() (country, city, timezone string, lat, lon *float64, source string) {
	if l == nil {
		return "", "", "", nil, nil, ""
	}
	return l.Country, l.City, l.Timezone, l.Latitude, l.Longitude, string(l.Source)
}

// FromColumns rebuilds a Location from store columns, nil when all are empty
func FromColumns(country, city, timezone string, lat, lon *float64, source string) *Location {
	loc := &Location{
		Country:   country,
		City:      city,
		Timezone:  timezone,
		Latitude:  lat,
		Longitude: lon,
		Source:    Source(source),
	}
	if loc.IsEmpty() && timezone == "" {
		return nil
	}
	return loc
}
