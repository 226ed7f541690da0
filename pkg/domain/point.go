package domain

import dErrors "hemolink/pkg/domain-errors"

// Point is a WGS84 coordinate. Latitude in [-90, 90], longitude in
// [-180, 180], degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ParsePoint validates raw coordinates from external input.
func ParsePoint(lat, lng float64) (Point, error) {
	if lat < -90 || lat > 90 {
		return Point{}, dErrors.New(dErrors.CodeInvalidInput, "latitude out of range")
	}
	if lng < -180 || lng > 180 {
		return Point{}, dErrors.New(dErrors.CodeInvalidInput, "longitude out of range")
	}
	return Point{Lat: lat, Lng: lng}, nil
}
