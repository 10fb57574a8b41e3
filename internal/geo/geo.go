// Package geo computes distances between positions on the Earth.
package geo

import "math"

// EarthRadius is the mean Earth radius in meters used by Distance.
const EarthRadius = 6_371_000.0

// Point is a position on the Earth's surface
type Point struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`   // Latitude in degrees
	Longitude float64 `yaml:"longitude" json:"longitude"` // Longitude in degrees
}

// Distance returns the great-circle distance between a and b in meters
// using the haversine formula.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadius * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
