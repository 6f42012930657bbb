package domain

import (
	"context"
	"log/slog"
)

// Geocoding outcomes recorded in GeoSource.
const (
	GeoSourceForward  = "forward"
	GeoSourceReverse  = "reverse"
	GeoSourceOriginal = "original"
	GeoSourceFailed   = "failed"
)

// EnrichWithGeocoding attempts to enrich a report with geocoding data.
// If geocoder is nil the report is returned untouched; if geocoding fails the
// report keeps its original location and GeoSource says so.
func EnrichWithGeocoding(ctx context.Context, report AirQualityReport, geocoder Geocoder, logger *slog.Logger) AirQualityReport {
	if geocoder == nil {
		return report
	}

	// Forward geocode: site label → coordinates (when coords are missing).
	if !report.HasCoordinates() && hasNamedSite(report) {
		result, err := geocoder.ForwardGeocode(ctx, report.SiteName)
		if err != nil {
			logger.Warn("forward geocoding failed",
				"report_id", report.ID,
				"site", report.SiteName,
				"error", err,
			)
			report.GeoSource = GeoSourceFailed
			return report
		}
		if result.Lat != 0 || result.Lon != 0 {
			report.Geo = Geo{Lat: result.Lat, Lon: result.Lon}
			report.FormattedAddress = result.FormattedAddress
			report.PlaceName = result.PlaceName
			report.GeoConfidence = result.Confidence
			report.GeoSource = GeoSourceForward
			return report
		}
		report.GeoSource = GeoSourceOriginal
		return report
	}

	// Reverse geocode: coordinates → place details (when coords are present).
	if report.HasCoordinates() {
		result, err := geocoder.ReverseGeocode(ctx, report.Geo.Lat, report.Geo.Lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"report_id", report.ID,
				"lat", report.Geo.Lat,
				"lon", report.Geo.Lon,
				"error", err,
			)
			report.GeoSource = GeoSourceFailed
			return report
		}
		if result.FormattedAddress != "" {
			report.FormattedAddress = result.FormattedAddress
			report.PlaceName = result.PlaceName
			report.GeoConfidence = result.Confidence
			report.GeoSource = GeoSourceReverse
			if report.SiteNameSource == SiteNameFromCoordinates && result.PlaceName != "" {
				report.SiteName = result.PlaceName
			}
			return report
		}
		report.GeoSource = GeoSourceOriginal
		return report
	}

	report.GeoSource = GeoSourceOriginal
	return report
}

// hasNamedSite reports whether the site label is a real place name rather
// than a fallback.
func hasNamedSite(r AirQualityReport) bool {
	switch r.SiteNameSource {
	case SiteNameFromSite, SiteNameFromWeather, SiteNameFromGroundCity, SiteNameFromGroundPlace:
		return r.SiteName != ""
	default:
		return false
	}
}
