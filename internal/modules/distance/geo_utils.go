// README: Great-circle distance and rounding helpers used by the fallback estimate.
package distance

import "math"

const (
	earthRadiusKm = 6371.0
	// roadFactor approximates road distance from straight-line distance.
	roadFactor = 1.3
	// fallbackMinPerKm is the assumed pace when no routing data is available.
	fallbackMinPerKm = 3.0
)

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push a just past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// roundHalfUp rounds to the nearest integer, ties toward +Inf.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// roundTenth rounds to one decimal place with roundHalfUp.
func roundTenth(x float64) float64 {
	return roundHalfUp(x*10) / 10
}
