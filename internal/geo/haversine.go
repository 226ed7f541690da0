package geo

import (
	"math"

	"hemolink/pkg/domain"
)

// earthRadiusM is the mean spherical Earth radius. Haversine on a sphere is
// accurate to ~0.5% versus geodesic distance, which is well inside the
// tolerance of donor search (this is not navigation).
const earthRadiusM = 6371000.0

// DistanceM returns the great-circle distance between two points in meters.
func DistanceM(a, b domain.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}
