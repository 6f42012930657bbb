// Package domain models air-quality samples and the reports derived from them.
//
// # Data Source
//
// Samples originate from an aggregator that queries a weather provider and an
// air-pollution provider for one point and merges the answers into a single
// JSON record. The collector publishes one record per location fix to the
// Kafka source topic. The record keeps the aggregator's field names:
//
//	{
//	  "site":    {"lat": 26.1965, "lon": 73.0118, "name": "Jodhpur"},
//	  "hourly":  [{"time": "2024-10-05T09:00:00.000Z", "PM25": 41.2, "NO2": 18.0,
//	               "O3": 61.5, "PM10": 80.1, "CO": 310.4,
//	               "Temperature": 31.2, "Humidity": 40, "Wind_Speed": 3.1}],
//	  "ground":  {"results": [{"city": "Jodhpur", "location": "Shastri Nagar",
//	               "measurements": [{"parameter": "pm25", "value": 38.0}]}]},
//	  "weather": {"name": "Jodhpur", "wind": {"speed": 3.1}, "rain": {"1h": 0.4},
//	              "main": {"temp": 31.2, "humidity": 40}},
//	  "warnings": [{"source": "openweather_air", "detail": "no air data"}]
//	}
//
// Every section is optional. hourly is ordered most recent first.
//
// # Units
//
// Pollutants are µg/m³. Temperature is °C, humidity is percent and wind speed
// is m/s. Rain accumulations are mm over the last 1h or 3h.
//
// # Numeric-like fields
//
// Pollutant values and coordinates may arrive as JSON numbers, numeric
// strings or null. They are decoded loosely and parsed with
// [aqi.ParseConcentration]; anything unparsable is treated as not reported.
// A reported 0 stays 0.
//
// # Current PM2.5
//
// The satellite/proxy value in hourly[0].PM25 is preferred. When it is
// absent, the first ground measurement with parameter "pm25" is used and
// PM25Source is "ground".
//
// # Forecast inputs
//
//	ground:    up to 6 ground "pm25" measurement values, in payload order
//	satellite: every hourly PM25 value present
//	weather:   wind_speed, wind.speed and rain from the weather section
//
// The blended estimate is reported unrounded. Its AQI is computed from the
// estimate truncated to 0.1 µg/m³, the precision the breakpoint table is
// defined at, so estimates never fall into the gaps between segments.
//
// # Site label
//
// The first non-empty of site.name, weather.name, ground city, ground
// location, the coordinates formatted to 4 decimals, or "Unknown location".
//
// # ID Generation
//
// Report IDs are deterministic SHA-256 hashes of lat|lon|observation time, so
// replaying a sample produces the same ID and downstream upserts stay
// idempotent. See [generateID].
package domain
