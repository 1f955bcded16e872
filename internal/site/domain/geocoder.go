package domain

import "context"

// GeoResult is a resolved address: a (province, district) pair and, when the
// provider returned them, coordinates.
type GeoResult struct {
	Province  string
	District  string
	Latitude  *float64
	Longitude *float64
	// Parsed marks a result built from the address text alone because the
	// provider found nothing.
	Parsed bool
}

//go:generate mockgen -source=geocoder.go -destination=../mock/geocoder.go -package=mock

// Geocoder resolves free-text addresses. A nil result with a nil error
// means the provider found no match.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeoResult, error)
}
