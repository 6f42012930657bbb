package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/aqi"
	"github.com/couchcryptid/air-quality-etl/internal/forecast"
)

// maxGroundSamples caps how many ground readings feed the forecast.
const maxGroundSamples = 6

// ParseRawEvent deserializes a RawEvent's value into an AirQualityReport.
// Only malformed JSON is an error; missing or unparsable fields are left unset.
func ParseRawEvent(raw RawEvent) (AirQualityReport, error) {
	var sample RawSample
	if err := json.Unmarshal(raw.Value, &sample); err != nil {
		return AirQualityReport{}, fmt.Errorf("parse raw event: %w", err)
	}

	lat, _ := aqi.ParseConcentration(sample.Site.Lat)
	lon, _ := aqi.ParseConcentration(sample.Site.Lon)
	observedAt := observationTime(raw.Timestamp, sample.Hourly)

	report := AirQualityReport{
		ID:         generateID(lat, lon, observedAt),
		Geo:        Geo{Lat: lat, Lon: lon},
		ObservedAt: observedAt,
		Hourly:     parseHourly(sample.Hourly),
		Warnings:   warningSources(sample.Warnings),
		RawPayload: raw.Value,
	}
	report.SiteName, report.SiteNameSource = siteLabel(sample, report.Geo)
	report.Pollutants, report.PM25Source = currentPollutants(sample)
	report.Conditions = currentConditions(sample)
	report.ForecastInputs = forecastInputs(sample, report.Hourly)

	return report, nil
}

// EnrichReport derives the AQI, its category, the hourly AQI series and the
// blended forecast, and assigns an hourly time bucket.
func EnrichReport(report AirQualityReport) AirQualityReport {
	if report.Pollutants.PM25 != nil {
		report.AQI = aqi.FromConcentration(*report.Pollutants.PM25)
	} else {
		report.AQI = aqi.Value{}
	}
	report.Category = aqi.CategoryOf(report.AQI)
	report.Advice = aqi.Advice(report.AQI)
	report.Alert = aqi.IsAlert(report.AQI)

	for i := range report.Hourly {
		report.Hourly[i].AQI = aqi.PM25ToAQI(report.Hourly[i].PM25)
	}

	est := forecast.Blend(report.ForecastInputs)
	report.Forecast = Forecast{
		PM25:             est.Value,
		AQI:              ForecastAQI(est.Value),
		GroundSamples:    len(report.ForecastInputs.GroundVals),
		SatelliteSamples: len(report.ForecastInputs.SatVals),
		WindFactor:       est.WindFactor,
		RainFactor:       est.RainFactor,
	}

	report.TimeBucket = deriveTimeBucket(report.ObservedAt)
	report.ProcessedAt = clock.Now()
	return report
}

// numeric parses a numeric-like payload field, nil when not reported.
func numeric(v any) *float64 {
	f, ok := aqi.ParseConcentration(v)
	if !ok {
		return nil
	}
	return &f
}

// observationTime uses the newest hourly entry's timestamp, falling back to
// the Kafka message time.
func observationTime(fallback time.Time, hourly []RawHourly) time.Time {
	if len(hourly) > 0 {
		if t, ok := parseTime(hourly[0].Time); ok {
			return t
		}
	}
	if fallback.IsZero() {
		return time.Time{}
	}
	return fallback.UTC()
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseHourly(hourly []RawHourly) []HourlyPoint {
	if len(hourly) == 0 {
		return nil
	}
	points := make([]HourlyPoint, 0, len(hourly))
	for _, h := range hourly {
		t, _ := parseTime(h.Time)
		points = append(points, HourlyPoint{Time: t, PM25: numeric(h.PM25)})
	}
	return points
}

// groundPM25 returns up to limit "pm25" values from the first station's
// measurements, in payload order. Other stations and parameter spellings are
// ignored.
func groundPM25(g *RawGround, limit int) []float64 {
	if g == nil || len(g.Results) == 0 {
		return nil
	}
	var vals []float64
	for _, m := range g.Results[0].Measurements {
		if m.Parameter != "pm25" {
			continue
		}
		if v := numeric(m.Value); v != nil {
			vals = append(vals, *v)
			if len(vals) == limit {
				break
			}
		}
	}
	return vals
}

func currentPollutants(sample RawSample) (Pollutants, string) {
	var p Pollutants
	source := ""
	if len(sample.Hourly) > 0 {
		h := sample.Hourly[0]
		p = Pollutants{
			PM25: numeric(h.PM25),
			NO2:  numeric(h.NO2),
			O3:   numeric(h.O3),
			PM10: numeric(h.PM10),
			CO:   numeric(h.CO),
		}
		if p.PM25 != nil {
			source = PM25FromSatellite
		}
	}
	if p.PM25 == nil {
		if ground := groundPM25(sample.Ground, 1); len(ground) > 0 {
			p.PM25 = &ground[0]
			source = PM25FromGround
		}
	}
	return p, source
}

func currentConditions(sample RawSample) Conditions {
	var c Conditions
	if len(sample.Hourly) > 0 {
		h := sample.Hourly[0]
		c.TemperatureC = numeric(h.Temperature)
		c.HumidityPct = numeric(h.Humidity)
		c.WindSpeedMS = numeric(h.WindSpeed)
	}
	if w := sample.Weather; w != nil {
		if c.TemperatureC == nil && w.Main != nil {
			c.TemperatureC = w.Main.Temp
		}
		if c.HumidityPct == nil && w.Main != nil {
			c.HumidityPct = w.Main.Humidity
		}
		if c.WindSpeedMS == nil {
			if speed, src := weatherOf(w).SpeedSource(); src != "" {
				c.WindSpeedMS = &speed
			}
		}
	}
	return c
}

func weatherOf(w *RawWeather) forecast.Weather {
	if w == nil {
		return forecast.Weather{}
	}
	return forecast.Weather{WindSpeed: w.WindSpeed, Wind: w.Wind, Rain: w.Rain}
}

func forecastInputs(sample RawSample, hourly []HourlyPoint) forecast.Inputs {
	in := forecast.Inputs{
		GroundVals: groundPM25(sample.Ground, maxGroundSamples),
		Weather:    weatherOf(sample.Weather),
	}
	for _, h := range hourly {
		if h.PM25 != nil {
			in.SatVals = append(in.SatVals, *h.PM25)
		}
	}
	return in
}

// siteLabel picks a display name for the sample and reports where it came from.
func siteLabel(sample RawSample, geo Geo) (string, string) {
	if name := strings.TrimSpace(sample.Site.Name); name != "" {
		return name, SiteNameFromSite
	}
	if sample.Weather != nil {
		if name := strings.TrimSpace(sample.Weather.Name); name != "" {
			return name, SiteNameFromWeather
		}
	}
	if sample.Ground != nil && len(sample.Ground.Results) > 0 {
		first := sample.Ground.Results[0]
		if city := strings.TrimSpace(first.City); city != "" {
			return city, SiteNameFromGroundCity
		}
		if loc := strings.TrimSpace(first.Location); loc != "" {
			return loc, SiteNameFromGroundPlace
		}
	}
	if geo.Lat != 0 || geo.Lon != 0 {
		return fmt.Sprintf("%.4f, %.4f", geo.Lat, geo.Lon), SiteNameFromCoordinates
	}
	return "Unknown location", SiteNameUnknown
}

func warningSources(warnings []RawWarning) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if w.Source != "" {
			out = append(out, w.Source)
		}
	}
	return out
}

// generateID produces a deterministic ID from the sample's key fields.
// Reprocessing the same raw sample yields the same ID.
func generateID(lat, lon float64, observedAt time.Time) string {
	ts := ""
	if !observedAt.IsZero() {
		ts = observedAt.UTC().Format(time.RFC3339)
	}
	input := fmt.Sprintf("%.4f|%.4f|%s", lat, lon, ts)
	hash := sha256.Sum256([]byte(input))
	return "aq-" + hex.EncodeToString(hash[:8])
}

// ForecastAQI is the index of a forecast estimate as displayed, that is
// rounded half up to a whole µg/m³.
func ForecastAQI(estimate float64) aqi.Value {
	return aqi.FromConcentration(math.Floor(estimate + 0.5))
}

// deriveTimeBucket truncates the observation time to the hour in UTC.
// Returns zero time if the input is zero.
func deriveTimeBucket(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Hour)
}
