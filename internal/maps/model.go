package maps

// Coordinate is a (longitude, latitude) pair.
type Coordinate struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// GeoIntent is an Intent whose places have been resolved to coordinates.
type GeoIntent struct {
	Origin      Coordinate `json:"origin"`
	Destination Coordinate `json:"destination"`
	// PreferenceCode is the router's gc value: 0 cheapest, 1 fastest or no preference.
	PreferenceCode int `json:"gc"`
}
