package service

import (
	"math"
)

// Fare parameters. Estimates only — final fare settlement is out of scope.
const (
	baseFare    = 30.0
	perKmRate   = 15.0
	perMinRate  = 1.2
	minimumFare = 45.0

	// straight-line distance scaled up to approximate road distance
	roadFactor = 1.3
	// assumed average city speed for duration estimates
	avgSpeedKmh = 25.0
)

type FareEstimator interface {
	Estimate(pickupLat, pickupLng, dropoffLat, dropoffLng float64) float64
	EstimateDistance(pickupLat, pickupLng, dropoffLat, dropoffLng float64) float64
}

type fareEstimator struct{}

func NewFareEstimator() FareEstimator {
	return &fareEstimator{}
}

func (e *fareEstimator) Estimate(pickupLat, pickupLng, dropoffLat, dropoffLng float64) float64 {
	distanceKm := e.EstimateDistance(pickupLat, pickupLng, dropoffLat, dropoffLng)
	durationMins := estimateDuration(distanceKm)

	total := baseFare + distanceKm*perKmRate + float64(durationMins)*perMinRate
	if total < minimumFare {
		total = minimumFare
	}
	return round(total)
}

func (e *fareEstimator) EstimateDistance(pickupLat, pickupLng, dropoffLat, dropoffLng float64) float64 {
	return round(haversineDistance(pickupLat, pickupLng, dropoffLat, dropoffLng) * roadFactor)
}

func estimateDuration(distanceKm float64) int {
	durationMins := int(math.Ceil(distanceKm / avgSpeedKmh * 60))
	if durationMins < 5 {
		durationMins = 5
	}
	return durationMins
}

// haversineDistance calculates the distance between two points on Earth
func haversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadius = 6371 // km

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

func round(f float64) float64 {
	return math.Round(f*100) / 100
}
