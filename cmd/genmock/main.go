// Command genmock reads a CSV of hourly air quality readings and generates the
// raw-sample fixture consumed by the ETL tests, plus an optional fixture of
// transformed reports. It uses the actual domain package so the transformed
// output matches real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -csv data/mock/hourly_readings.csv \
//	  -raw-out data/mock/air_quality_samples.json \
//	  -reports-out data/mock/air_quality_reports.json
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/air-quality-etl/internal/aqi"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// Kafka timestamp given to every fixture message.
var baseDate = time.Date(2024, time.October, 5, 9, 5, 0, 0, time.UTC)

// The fixture files keep the collector's field order, so they use their own
// types rather than the decode-side domain.Raw* types.
type sample struct {
	Site    site     `json:"site"`
	Hourly  []hourly `json:"hourly"`
	Ground  *ground  `json:"ground,omitempty"`
	Weather weather  `json:"weather"`
}

type site struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

type hourly struct {
	Time        string `json:"time"`
	PM25        any    `json:"PM25,omitempty"`
	NO2         any    `json:"NO2,omitempty"`
	O3          any    `json:"O3,omitempty"`
	PM10        any    `json:"PM10,omitempty"`
	CO          any    `json:"CO,omitempty"`
	Temperature any    `json:"Temperature,omitempty"`
	Humidity    any    `json:"Humidity,omitempty"`
	WindSpeed   any    `json:"Wind_Speed,omitempty"`
}

type ground struct {
	Results []groundResult `json:"results"`
}

type groundResult struct {
	City         string        `json:"city"`
	Location     string        `json:"location"`
	Measurements []measurement `json:"measurements"`
}

type measurement struct {
	Parameter string `json:"parameter"`
	Value     any    `json:"value"`
}

type weather struct {
	Name      string   `json:"name"`
	WindSpeed *float64 `json:"wind_speed,omitempty"`
	Rain      *rain    `json:"rain,omitempty"`
}

type rain struct {
	OneHour *float64 `json:"1h,omitempty"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvPath := flag.String("csv", "", "CSV file of hourly readings")
	rawOut := flag.String("raw-out", "", "output path for the raw sample fixture")
	reportsOut := flag.String("reports-out", "", "optional output path for transformed reports")
	flag.Parse()

	if *csvPath == "" || *rawOut == "" {
		flag.Usage()
		return errors.New("missing required flags: -csv, -raw-out")
	}

	// Set a fixed clock for reproducible ProcessedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.October, 5, 10, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	samples, err := readSamples(*csvPath)
	if err != nil {
		return fmt.Errorf("processing %s: %w", *csvPath, err)
	}
	log.Printf("total: %d samples", len(samples))

	if err := writeJSON(*rawOut, samples); err != nil {
		return fmt.Errorf("writing raw fixture: %w", err)
	}
	log.Printf("wrote raw fixture: %s", *rawOut)

	reports, err := transform(samples)
	if err != nil {
		return err
	}
	if *reportsOut != "" {
		if err := writeJSON(*reportsOut, reports); err != nil {
			return fmt.Errorf("writing reports fixture: %w", err)
		}
		log.Printf("wrote reports fixture: %s", *reportsOut)
	}

	printStats(reports)
	return nil
}

// readSamples groups CSV rows by site, in order of first appearance. Each row
// becomes one hourly entry; weather comes from the site's first row.
func readSamples(path string) ([]sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[h] = i
	}

	var order []string
	bySite := map[string]*sample{}

	for _, row := range rows[1:] {
		name := get(row, colIdx, "site")
		s, ok := bySite[name]
		if !ok {
			lat, err := strconv.ParseFloat(get(row, colIdx, "lat"), 64)
			if err != nil {
				return nil, fmt.Errorf("site %s: invalid lat: %w", name, err)
			}
			lon, err := strconv.ParseFloat(get(row, colIdx, "lon"), 64)
			if err != nil {
				return nil, fmt.Errorf("site %s: invalid lon: %w", name, err)
			}
			s = &sample{
				Site: site{Lat: lat, Lon: lon, Name: name},
				Weather: weather{
					Name:      name,
					WindSpeed: number(get(row, colIdx, "wind_speed")),
				},
			}
			if r := number(get(row, colIdx, "rain_1h")); r != nil {
				s.Weather.Rain = &rain{OneHour: r}
			}
			bySite[name] = s
			order = append(order, name)
		}

		s.Hourly = append(s.Hourly, hourly{
			Time:        get(row, colIdx, "time"),
			PM25:        cell(get(row, colIdx, "pm25")),
			NO2:         cell(get(row, colIdx, "no2")),
			O3:          cell(get(row, colIdx, "o3")),
			PM10:        cell(get(row, colIdx, "pm10")),
			CO:          cell(get(row, colIdx, "co")),
			Temperature: cell(get(row, colIdx, "temperature")),
			Humidity:    cell(get(row, colIdx, "humidity")),
			WindSpeed:   cell(get(row, colIdx, "wind_speed")),
		})

		if v := cell(get(row, colIdx, "ground_pm25")); v != nil {
			if s.Ground == nil {
				s.Ground = &ground{Results: []groundResult{{City: name, Location: name + " monitor"}}}
			}
			res := &s.Ground.Results[0]
			res.Measurements = append(res.Measurements, measurement{Parameter: "pm25", Value: v})
		}
	}

	samples := make([]sample, 0, len(order))
	for _, name := range order {
		samples = append(samples, *bySite[name])
	}
	return samples, nil
}

// transform runs every sample through the domain parse and enrich steps.
func transform(samples []sample) ([]domain.AirQualityReport, error) {
	reports := make([]domain.AirQualityReport, 0, len(samples))
	for i := range samples {
		raw, err := json.Marshal(samples[i])
		if err != nil {
			return nil, fmt.Errorf("marshal sample: %w", err)
		}

		parsed, err := domain.ParseRawEvent(domain.RawEvent{Value: raw, Timestamp: baseDate})
		if err != nil {
			return nil, fmt.Errorf("parse raw event: %w", err)
		}
		reports = append(reports, domain.EnrichReport(parsed))
	}
	return reports, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// cell keeps numeric cells as numbers and anything else as the raw string.
// Empty cells are omitted.
func cell(s string) any {
	if s == "" {
		return nil
	}
	if f := number(s); f != nil {
		return *f
	}
	return s
}

func number(s string) *float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// statsResult holds aggregated counts for printStats reporting.
type statsResult struct {
	categoryCounts map[aqi.Category]int
	sourceCounts   map[string]int
	alerts         int
	withAQI        int
}

func collectStats(reports []domain.AirQualityReport) statsResult {
	s := statsResult{
		categoryCounts: map[aqi.Category]int{},
		sourceCounts:   map[string]int{},
	}
	for i := range reports {
		r := &reports[i]
		s.categoryCounts[r.Category]++
		s.sourceCounts[r.PM25Source]++
		if r.Alert {
			s.alerts++
		}
		if r.AQI.Valid() {
			s.withAQI++
		}
	}
	return s
}

func printStats(reports []domain.AirQualityReport) {
	stats := collectStats(reports)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(reports))
	fmt.Printf("With AQI: %d, alerts: %d\n", stats.withAQI, stats.alerts)

	categories := make([]string, 0, len(stats.categoryCounts))
	for c, n := range stats.categoryCounts {
		categories = append(categories, fmt.Sprintf("%s=%d", c, n))
	}
	sort.Strings(categories)
	fmt.Printf("By category: %s\n", strings.Join(categories, ", "))
	fmt.Printf("By PM2.5 source: satellite=%d, ground=%d, none=%d\n",
		stats.sourceCounts[domain.PM25FromSatellite], stats.sourceCounts[domain.PM25FromGround], stats.sourceCounts[""])

	fmt.Println("\nPer site:")
	for i := range reports {
		r := &reports[i]
		fmt.Printf("  %-12s aqi=%-4s category=%-30q forecast=%.4f forecast_aqi=%s alert=%t\n",
			r.SiteName, r.AQI, r.Category, r.Forecast.PM25, r.Forecast.AQI, r.Alert)
	}
}
