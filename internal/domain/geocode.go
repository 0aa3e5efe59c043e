package domain

import (
	"context"
	"log/slog"
)

// Geocoding outcomes reported by EnrichWithGeocoding.
const (
	GeoForward  = "forward"
	GeoReverse  = "reverse"
	GeoOriginal = "original"
	GeoFailed   = "failed"
	GeoSkipped  = ""
)

// GeocodingResult is one provider match. Confidence is in [0, 1].
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64
}

// Geocoder looks up places in both directions. Implementations return a zero
// result, not an error, when nothing matches.
type Geocoder interface {
	ForwardGeocode(ctx context.Context, place string) (GeocodingResult, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// EnrichWithGeocoding fills in whichever half of a candidate's location is
// missing: coordinates for a named place, or a place name for bare
// coordinates. A nil geocoder or a failed lookup leaves the candidate as it
// was; geocoding never blocks ingestion.
func EnrichWithGeocoding(ctx context.Context, c Candidate, geocoder Geocoder, logger *slog.Logger) (Candidate, string) {
	if geocoder == nil {
		return c, GeoSkipped
	}

	hasCoords := c.Latitude != nil && c.Longitude != nil
	hasName := c.Location != ""

	switch {
	case hasCoords && hasName:
		return c, GeoOriginal

	case hasName:
		result, err := geocoder.ForwardGeocode(ctx, c.Location)
		if err != nil {
			logger.Warn("forward geocoding failed",
				"source", c.Source,
				"location", c.Location,
				"error", err,
			)
			return c, GeoFailed
		}
		if result.Lat == 0 && result.Lon == 0 {
			return c, GeoOriginal
		}
		c.Latitude = Float64Ptr(result.Lat)
		c.Longitude = Float64Ptr(result.Lon)
		return c, GeoForward

	case hasCoords:
		result, err := geocoder.ReverseGeocode(ctx, *c.Latitude, *c.Longitude)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"source", c.Source,
				"lat", *c.Latitude,
				"lon", *c.Longitude,
				"error", err,
			)
			return c, GeoFailed
		}
		if result.PlaceName == "" {
			return c, GeoOriginal
		}
		c.Location = result.PlaceName
		return c, GeoReverse
	}

	return c, GeoOriginal
}
