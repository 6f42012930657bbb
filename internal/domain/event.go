package domain

import (
	"context"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/aqi"
	"github.com/couchcryptid/air-quality-etl/internal/forecast"
)

// RawSample is the aggregator record published by the collector.
type RawSample struct {
	Site     RawSite      `json:"site"`
	Hourly   []RawHourly  `json:"hourly"`
	Ground   *RawGround   `json:"ground"`
	Weather  *RawWeather  `json:"weather"`
	Warnings []RawWarning `json:"warnings,omitempty"`
}

// RawSite identifies the sampled point.
type RawSite struct {
	Lat  any    `json:"lat"`
	Lon  any    `json:"lon"`
	Name string `json:"name"`
}

// RawHourly is one hour of satellite/proxy pollutant data plus local weather.
// Values are numeric-like and may be missing.
type RawHourly struct {
	Time        string `json:"time"`
	PM25        any    `json:"PM25"`
	NO2         any    `json:"NO2"`
	O3          any    `json:"O3"`
	PM10        any    `json:"PM10"`
	CO          any    `json:"CO"`
	Temperature any    `json:"Temperature"`
	Humidity    any    `json:"Humidity"`
	WindSpeed   any    `json:"Wind_Speed"`
}

// RawGround holds nearby ground-station results.
type RawGround struct {
	Results []RawGroundResult `json:"results"`
}

// RawGroundResult is one monitoring station.
type RawGroundResult struct {
	City         string           `json:"city"`
	Location     string           `json:"location"`
	Measurements []RawMeasurement `json:"measurements"`
}

// RawMeasurement is one station reading, e.g. {"parameter":"pm25","value":12.4}.
type RawMeasurement struct {
	Parameter string `json:"parameter"`
	Value     any    `json:"value"`
}

// RawWeather is the weather provider's current-conditions record. Wind speed
// appears either flat or nested depending on the provider.
type RawWeather struct {
	Name      string         `json:"name"`
	WindSpeed *float64       `json:"wind_speed"`
	Wind      *forecast.Wind `json:"wind"`
	Rain      *forecast.Rain `json:"rain"`
	Main      *RawMain       `json:"main"`
}

// RawMain carries temperature (°C) and relative humidity (%).
type RawMain struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
}

// RawWarning is a degradation notice from the aggregator.
type RawWarning struct {
	Source string `json:"source"`
	Detail any    `json:"detail,omitempty"`
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Pollutants are concentrations in µg/m³. nil means not reported.
type Pollutants struct {
	PM25 *float64 `json:"pm25"`
	NO2  *float64 `json:"no2,omitempty"`
	O3   *float64 `json:"o3,omitempty"`
	PM10 *float64 `json:"pm10,omitempty"`
	CO   *float64 `json:"co,omitempty"`
}

// Conditions are the local weather observations attached to a sample.
type Conditions struct {
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	HumidityPct  *float64 `json:"humidity_pct,omitempty"`
	WindSpeedMS  *float64 `json:"wind_speed_ms,omitempty"`
}

// HourlyPoint is one entry of the hourly PM2.5/AQI series.
type HourlyPoint struct {
	Time time.Time `json:"time"`
	PM25 *float64  `json:"pm25"`
	AQI  aqi.Value `json:"aqi"`
}

// Forecast is the one-step blended PM2.5 estimate.
type Forecast struct {
	PM25             float64   `json:"pm25"`
	AQI              aqi.Value `json:"aqi"`
	GroundSamples    int       `json:"ground_samples"`
	SatelliteSamples int       `json:"satellite_samples"`
	WindFactor       float64   `json:"wind_factor"`
	RainFactor       float64   `json:"rain_factor"`
}

// Site label sources, in fallback order.
const (
	SiteNameFromSite        = "site"
	SiteNameFromWeather     = "weather"
	SiteNameFromGroundCity  = "ground_city"
	SiteNameFromGroundPlace = "ground_location"
	SiteNameFromCoordinates = "coordinates"
	SiteNameUnknown         = "unknown"
)

// PM2.5 sources for the current reading.
const (
	PM25FromSatellite = "satellite"
	PM25FromGround    = "ground"
)

// AirQualityReport is the enriched representation of one sample.
type AirQualityReport struct {
	ID             string        `json:"id"`
	Geo            Geo           `json:"geo"`
	SiteName       string        `json:"site_name"`
	SiteNameSource string        `json:"site_name_source"`
	ObservedAt     time.Time     `json:"observed_at"`
	Pollutants     Pollutants    `json:"pollutants"`
	Conditions     Conditions    `json:"conditions"`
	PM25Source     string        `json:"pm25_source,omitempty"`
	AQI            aqi.Value     `json:"aqi"`
	Category       aqi.Category  `json:"category"`
	Advice         string        `json:"advice"`
	Alert          bool          `json:"alert"`
	Hourly         []HourlyPoint `json:"hourly,omitempty"`
	Forecast       Forecast      `json:"forecast"`
	Warnings       []string      `json:"warnings,omitempty"`
	TimeBucket     time.Time     `json:"time_bucket"`

	// Geocoding enrichment fields.
	FormattedAddress string  `json:"formatted_address,omitempty"`
	PlaceName        string  `json:"place_name,omitempty"`
	GeoConfidence    float64 `json:"geo_confidence,omitempty"`
	GeoSource        string  `json:"geo_source,omitempty"` // "forward", "reverse", "original", "failed"

	// ForecastInputs are collected at parse time and blended during enrichment.
	ForecastInputs forecast.Inputs `json:"-"`

	RawPayload  []byte    `json:"-"`
	ProcessedAt time.Time `json:"processed_at"`
}

// HasCoordinates reports whether the report carries a usable location.
func (r AirQualityReport) HasCoordinates() bool {
	return r.Geo.Lat != 0 || r.Geo.Lon != 0
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
