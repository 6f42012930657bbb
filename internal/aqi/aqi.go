package aqi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// ConcentrationBreakpoint is one linear segment of a breakpoint table:
// concentrations in [CLo, CHi] map onto indexes in [ILo, IHi].
type ConcentrationBreakpoint struct {
	CLo float64 // lower bound of concentration, inclusive
	CHi float64 // upper bound of concentration, inclusive
	ILo float64 // index at CLo
	IHi float64 // index at CHi
}

// interpolate maps c onto the segment's index range. c must lie in [CLo, CHi].
func (b ConcentrationBreakpoint) interpolate(c float64) float64 {
	return ((b.IHi-b.ILo)/(b.CHi-b.CLo))*(c-b.CLo) + b.ILo
}

// pm25Breakpoints is the EPA PM2.5 table. Do not modify at runtime.
var pm25Breakpoints = [...]ConcentrationBreakpoint{
	{CLo: 0.0, CHi: 12.0, ILo: 0, IHi: 50},
	{CLo: 12.1, CHi: 35.4, ILo: 51, IHi: 100},
	{CLo: 35.5, CHi: 55.4, ILo: 101, IHi: 150},
	{CLo: 55.5, CHi: 150.4, ILo: 151, IHi: 200},
	{CLo: 150.5, CHi: 250.4, ILo: 201, IHi: 300},
	{CLo: 250.5, CHi: 350.4, ILo: 301, IHi: 400},
	{CLo: 350.5, CHi: 500.4, ILo: 401, IHi: 500},
}

func init() {
	if err := validateTable(pm25Breakpoints[:]); err != nil {
		panic(fmt.Sprintf("aqi: invalid PM2.5 breakpoint table: %v", err))
	}
	if top := pm25Breakpoints[len(pm25Breakpoints)-1].CHi; top != MaxPM25 {
		panic(fmt.Sprintf("aqi: PM2.5 table ends at %g, want %g", top, MaxPM25))
	}
}

// PM25Breakpoints returns a copy of the PM2.5 breakpoint table in ascending order.
func PM25Breakpoints() []ConcentrationBreakpoint {
	out := make([]ConcentrationBreakpoint, len(pm25Breakpoints))
	copy(out, pm25Breakpoints[:])
	return out
}

// MaxPM25 is the highest concentration covered by the table.
const MaxPM25 = 500.4

// validateTable checks that segments are well formed and strictly ascending.
func validateTable(table []ConcentrationBreakpoint) error {
	if len(table) == 0 {
		return fmt.Errorf("empty table")
	}
	for i, bp := range table {
		if !(bp.CHi > bp.CLo) {
			return fmt.Errorf("segment %d: c_hi %.1f <= c_lo %.1f", i, bp.CHi, bp.CLo)
		}
		if !(bp.IHi > bp.ILo) {
			return fmt.Errorf("segment %d: i_hi %.0f <= i_lo %.0f", i, bp.IHi, bp.ILo)
		}
		if i > 0 {
			prev := table[i-1]
			if bp.CLo <= prev.CHi || bp.ILo <= prev.IHi {
				return fmt.Errorf("segment %d overlaps segment %d", i, i-1)
			}
		}
	}
	return nil
}

// Value is an AQI reading. The zero Value carries no index.
type Value struct {
	index int
	valid bool
}

// Of wraps a known index.
func Of(index int) Value {
	return Value{index: index, valid: true}
}

// Valid reports whether v carries an index.
func (v Value) Valid() bool { return v.valid }

// Int returns the index and whether it is present.
func (v Value) Int() (int, bool) { return v.index, v.valid }

// Ptr returns the index as a pointer, nil when absent.
func (v Value) Ptr() *int {
	if !v.valid {
		return nil
	}
	i := v.index
	return &i
}

func (v Value) String() string {
	if !v.valid {
		return "n/a"
	}
	return strconv.Itoa(v.index)
}

// MarshalJSON encodes an absent index as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(v.index)), nil
}

// UnmarshalJSON accepts null or an integer.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("decode aqi value: %w", err)
	}
	*v = Of(i)
	return nil
}

// PM25ToAQI converts a numeric-like PM2.5 concentration into an AQI value.
// See [ParseConcentration] for the accepted inputs. Anything that does not
// parse, or parses outside the table, yields an absent Value.
func PM25ToAQI(concentration any) Value {
	c, ok := ParseConcentration(concentration)
	if !ok {
		return Value{}
	}
	return FromConcentration(c)
}

// FromConcentration converts a PM2.5 concentration into an AQI value using
// the first table segment that contains it.
func FromConcentration(c float64) Value {
	if c < 0 || c > MaxPM25 {
		return Value{}
	}
	for _, bp := range pm25Breakpoints {
		if c >= bp.CLo && c <= bp.CHi {
			return Of(roundHalfUp(bp.interpolate(c)))
		}
	}
	return Value{}
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// ParseConcentration turns a numeric-like value into a finite float64.
//
// Accepted: every integer and float kind, strings and byte slices holding a
// decimal number (surrounding whitespace ignored), json.Number, and pointers
// or interfaces wrapping any of those. nil, nil pointers, booleans, NaN, ±Inf
// and anything unparsable report false.
func ParseConcentration(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if b, ok := v.([]byte); ok {
		return parseNumericString(string(b))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return 0, false
		}
		return ParseConcentration(rv.Elem().Interface())
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.String:
		return parseNumericString(rv.String())
	default:
		return 0, false
	}
}

func parseNumericString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
