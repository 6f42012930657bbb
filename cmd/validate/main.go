// Command validate performs end-to-end data integrity checks across the mock
// data sources of the air quality pipeline: the hourly readings CSV, the raw
// sample fixture and, optionally, the transformed reports fixture. It verifies
// row counts, field presence, transformation correctness, and cross-source
// consistency.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -csv data/mock/hourly_readings.csv \
//	  -raw-json data/mock/air_quality_samples.json \
//	  -reports-json data/mock/air_quality_reports.json
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/air-quality-etl/internal/aqi"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// Kafka timestamp used by genmock for every fixture message.
var baseDate = time.Date(2024, time.October, 5, 9, 5, 0, 0, time.UTC)

var knownCategories = map[aqi.Category]bool{
	aqi.CategoryUnknown:                     true,
	aqi.CategoryGood:                        true,
	aqi.CategoryModerate:                    true,
	aqi.CategoryUnhealthyForSensitiveGroups: true,
	aqi.CategoryUnhealthy:                   true,
	aqi.CategoryVeryUnhealthy:               true,
	aqi.CategoryHazardous:                   true,
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// fixture is one raw sample kept both decoded and as the original bytes.
type fixture struct {
	raw    json.RawMessage
	sample domain.RawSample
}

func main() {
	csvPath := flag.String("csv", "", "CSV file of hourly readings")
	rawJSON := flag.String("raw-json", "", "path to the raw sample fixture")
	reportsJSON := flag.String("reports-json", "", "optional path to the transformed reports fixture")
	flag.Parse()

	if *csvPath == "" || *rawJSON == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*csvPath, *rawJSON, *reportsJSON); code != 0 {
		os.Exit(code)
	}
}

func run(csvPath, rawJSONPath, reportsJSONPath string) int {
	// Set a fixed clock matching genmock.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.October, 5, 10, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	// ── Load all data sources ──
	fmt.Println("=== Air Quality Data Integrity Validation ===")
	fmt.Println()

	rows, err := loadCSV(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load CSV: %v\n", err)
		return 1
	}

	fixtures, err := loadFixtures(rawJSONPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load raw JSON: %v\n", err)
		return 1
	}

	var stored []domain.AirQualityReport
	if reportsJSONPath != "" {
		if stored, err = loadJSON[domain.AirQualityReport](reportsJSONPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load reports JSON: %v\n", err)
			return 1
		}
	}

	// ── Run validation phases ──
	transformPhase, reports := validateTransformation(fixtures, stored)
	phases := []*phase{
		validateSourceParity(rows, fixtures),
		transformPhase,
		validateSchemaAlignment(reports),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d CSV rows, %d raw samples, %d stored reports\n", len(rows), len(fixtures), len(stored))

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

// csvRow is a parsed CSV row with field values keyed by header name.
type csvRow struct {
	lineNum int
	fields  map[string]string
}

func loadCSV(path string) ([]csvRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) < 2 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}

	header := all[0]
	rows := make([]csvRow, 0, len(all)-1)
	for i, row := range all[1:] {
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(row) {
				fields[h] = strings.TrimSpace(row[j])
			}
		}
		rows = append(rows, csvRow{lineNum: i + 2, fields: fields})
	}
	return rows, nil
}

func loadFixtures(path string) ([]fixture, error) {
	raws, err := loadJSON[json.RawMessage](path)
	if err != nil {
		return nil, err
	}
	fixtures := make([]fixture, 0, len(raws))
	for i, raw := range raws {
		var s domain.RawSample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		fixtures = append(fixtures, fixture{raw: raw, sample: s})
	}
	return fixtures, nil
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Phase 1: CSV ↔ raw fixture ──

func validateSourceParity(rows []csvRow, fixtures []fixture) *phase {
	p := &phase{name: "CSV ↔ raw fixture parity"}

	bySite := map[string][]csvRow{}
	var order []string
	for _, r := range rows {
		name := r.fields["site"]
		if _, ok := bySite[name]; !ok {
			order = append(order, name)
		}
		bySite[name] = append(bySite[name], r)
	}

	if len(order) != len(fixtures) {
		p.errorf("site count: CSV=%d, fixture=%d", len(order), len(fixtures))
	}

	for i := range fixtures {
		s := &fixtures[i].sample
		if i < len(order) && order[i] != s.Site.Name {
			p.errorf("sample %d: site %q out of order (CSV has %q)", i, s.Site.Name, order[i])
		}
		siteRows, ok := bySite[s.Site.Name]
		if !ok {
			p.errorf("sample %d: site %q not in CSV", i, s.Site.Name)
			continue
		}
		if len(siteRows) != len(s.Hourly) {
			p.errorf("%s: hourly count CSV=%d, fixture=%d", s.Site.Name, len(siteRows), len(s.Hourly))
			continue
		}
		checkSiteCoordinates(p, s, siteRows[0])
		for j, r := range siteRows {
			checkHourlyRow(p, s.Site.Name, r, s.Hourly[j])
		}
	}
	return p
}

func checkSiteCoordinates(p *phase, s *domain.RawSample, r csvRow) {
	lat, latOK := aqi.ParseConcentration(s.Site.Lat)
	lon, lonOK := aqi.ParseConcentration(s.Site.Lon)
	wantLat, _ := aqi.ParseConcentration(r.fields["lat"])
	wantLon, _ := aqi.ParseConcentration(r.fields["lon"])
	if !latOK || !floatEq(lat, wantLat) {
		p.errorf("%s: lat %v, CSV line %d has %s", s.Site.Name, s.Site.Lat, r.lineNum, r.fields["lat"])
	}
	if !lonOK || !floatEq(lon, wantLon) {
		p.errorf("%s: lon %v, CSV line %d has %s", s.Site.Name, s.Site.Lon, r.lineNum, r.fields["lon"])
	}
}

func checkHourlyRow(p *phase, site string, r csvRow, h domain.RawHourly) {
	if h.Time != r.fields["time"] {
		p.errorf("%s line %d: time %q, fixture has %q", site, r.lineNum, r.fields["time"], h.Time)
	}
	cells := []struct {
		col   string
		value any
	}{
		{"pm25", h.PM25}, {"no2", h.NO2}, {"o3", h.O3}, {"pm10", h.PM10}, {"co", h.CO},
		{"temperature", h.Temperature}, {"humidity", h.Humidity}, {"wind_speed", h.WindSpeed},
	}
	for _, c := range cells {
		if !cellEq(r.fields[c.col], c.value) {
			p.errorf("%s line %d: %s CSV=%q, fixture=%v", site, r.lineNum, c.col, r.fields[c.col], c.value)
		}
	}
}

// cellEq compares a CSV cell with its decoded fixture value. Numeric cells
// compare by value; anything else must match verbatim.
func cellEq(csvValue string, fixtureValue any) bool {
	if csvValue == "" {
		return fixtureValue == nil
	}
	want, wantNum := aqi.ParseConcentration(csvValue)
	if f, ok := fixtureValue.(float64); ok {
		return wantNum && floatEq(want, f)
	}
	s, ok := fixtureValue.(string)
	return ok && !wantNum && s == csvValue
}

// ── Phase 2: transformation ──

func validateTransformation(fixtures []fixture, stored []domain.AirQualityReport) (*phase, []domain.AirQualityReport) {
	p := &phase{name: "Report transformation"}

	reports := make([]domain.AirQualityReport, 0, len(fixtures))
	seen := map[string]string{}
	for i := range fixtures {
		r, err := transform(fixtures[i].raw)
		if err != nil {
			p.errorf("sample %d: %v", i, err)
			continue
		}
		again, _ := transform(fixtures[i].raw)
		if again.ID != r.ID {
			p.errorf("%s: ID not deterministic (%s vs %s)", r.SiteName, r.ID, again.ID)
		}
		if prev, dup := seen[r.ID]; dup {
			p.errorf("%s: duplicate ID %s (also %s)", r.SiteName, r.ID, prev)
		}
		seen[r.ID] = r.SiteName

		checkIndexConsistency(p.errorf, &r)
		reports = append(reports, r)
	}

	if stored != nil {
		compareStored(p, reports, stored)
	}
	return p, reports
}

func transform(raw []byte) (domain.AirQualityReport, error) {
	parsed, err := domain.ParseRawEvent(domain.RawEvent{Value: raw, Timestamp: baseDate})
	if err != nil {
		return domain.AirQualityReport{}, err
	}
	return domain.EnrichReport(parsed), nil
}

func checkIndexConsistency(errorf func(string, ...any), r *domain.AirQualityReport) {
	wantAQI := aqi.Value{}
	if r.Pollutants.PM25 != nil {
		wantAQI = aqi.FromConcentration(*r.Pollutants.PM25)
	}
	if r.AQI != wantAQI {
		errorf("%s: aqi %s, expected %s", r.SiteName, r.AQI, wantAQI)
	}
	if r.Category != aqi.CategoryOf(r.AQI) {
		errorf("%s: category %q does not match aqi %s", r.SiteName, r.Category, r.AQI)
	}
	if r.Alert != aqi.IsAlert(r.AQI) {
		errorf("%s: alert=%t for aqi %s", r.SiteName, r.Alert, r.AQI)
	}
	if r.Advice != aqi.Advice(r.AQI) {
		errorf("%s: advice does not match aqi %s", r.SiteName, r.AQI)
	}
	for _, h := range r.Hourly {
		if h.AQI != aqi.PM25ToAQI(h.PM25) {
			errorf("%s %s: hourly aqi %s inconsistent with pm25", r.SiteName, h.Time.Format(time.RFC3339), h.AQI)
		}
	}
	if r.Forecast.PM25 < 0 || math.IsNaN(r.Forecast.PM25) {
		errorf("%s: forecast pm25 %g is not a valid concentration", r.SiteName, r.Forecast.PM25)
	}
	if r.Forecast.AQI != domain.ForecastAQI(r.Forecast.PM25) {
		errorf("%s: forecast aqi %s inconsistent with forecast %g", r.SiteName, r.Forecast.AQI, r.Forecast.PM25)
	}
}

func compareStored(p *phase, reports, stored []domain.AirQualityReport) {
	if len(reports) != len(stored) {
		p.errorf("report count: transformed=%d, stored=%d", len(reports), len(stored))
	}
	byID := make(map[string]*domain.AirQualityReport, len(stored))
	for i := range stored {
		byID[stored[i].ID] = &stored[i]
	}
	for i := range reports {
		r := &reports[i]
		s, ok := byID[r.ID]
		if !ok {
			p.errorf("%s: ID %s missing from stored reports", r.SiteName, r.ID)
			continue
		}
		if s.AQI != r.AQI {
			p.errorf("%s: stored aqi %s, transformed %s", r.SiteName, s.AQI, r.AQI)
		}
		if s.Category != r.Category {
			p.errorf("%s: stored category %q, transformed %q", r.SiteName, s.Category, r.Category)
		}
		if !floatEq(s.Forecast.PM25, r.Forecast.PM25) {
			p.errorf("%s: stored forecast %g, transformed %g", r.SiteName, s.Forecast.PM25, r.Forecast.PM25)
		}
		if s.Forecast.AQI != r.Forecast.AQI {
			p.errorf("%s: stored forecast aqi %s, transformed %s", r.SiteName, s.Forecast.AQI, r.Forecast.AQI)
		}
		if !ptrFloatEq(s.Pollutants.PM25, r.Pollutants.PM25) {
			p.errorf("%s: stored pm25 differs from transformed", r.SiteName)
		}
	}
}

// ── Phase 3: schema alignment ──

func validateSchemaAlignment(reports []domain.AirQualityReport) *phase {
	p := &phase{name: "Report schema alignment"}
	for i := range reports {
		r := &reports[i]
		pf := func(format string, args ...any) {
			p.errorf("report %d (%s): "+format, append([]any{i, r.SiteName}, args...)...)
		}
		checkSchemaEnums(pf, r)
		checkSchemaRequiredFields(pf, r)
	}
	return p
}

func checkSchemaEnums(pf func(string, ...any), r *domain.AirQualityReport) {
	if !knownCategories[r.Category] {
		pf("unknown category %q", r.Category)
	}
	switch r.PM25Source {
	case "", domain.PM25FromSatellite, domain.PM25FromGround:
	default:
		pf("unknown pm25_source %q", r.PM25Source)
	}
	switch r.SiteNameSource {
	case domain.SiteNameFromSite, domain.SiteNameFromWeather, domain.SiteNameFromGroundCity,
		domain.SiteNameFromGroundPlace, domain.SiteNameFromCoordinates, domain.SiteNameUnknown:
	default:
		pf("unknown site_name_source %q", r.SiteNameSource)
	}
}

func checkSchemaRequiredFields(pf func(string, ...any), r *domain.AirQualityReport) {
	if !strings.HasPrefix(r.ID, "aq-") {
		pf("id %q lacks the aq- prefix", r.ID)
	}
	if r.SiteName == "" {
		pf("site_name is empty")
	}
	if r.ObservedAt.IsZero() {
		pf("observed_at is zero")
	}
	if !r.TimeBucket.Equal(r.ObservedAt.UTC().Truncate(time.Hour)) {
		pf("time_bucket %s is not the observation hour", r.TimeBucket.Format(time.RFC3339))
	}
	if r.ProcessedAt.IsZero() {
		pf("processed_at is zero")
	}
	if r.Advice == "" {
		pf("advice is empty")
	}
	if r.AQI.Valid() && r.PM25Source == "" {
		pf("aqi present without a pm25_source")
	}
}

// ── Helpers ──

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func ptrFloatEq(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEq(*a, *b)
}
