// Package forecast blends recent ground-station and satellite/proxy PM2.5
// samples into a one-step estimate, damped by wind and rain.
package forecast

import "math"

// Blend weights. Ground stations are trusted more than remote sensing.
const (
	GroundWeight    = 0.6
	SatelliteWeight = 0.4
)

const (
	// WindCutoff is the wind speed (m/s) at which the estimate is fully suppressed.
	WindCutoff = 10.0
	// RainFactor is applied when any recent rain accumulation is reported.
	RainFactor = 0.7
)

// Wind is the nested wind shape some providers report.
type Wind struct {
	Speed *float64 `json:"speed,omitempty"`
}

// Rain holds recent precipitation accumulations (mm).
type Rain struct {
	OneHour   *float64 `json:"1h,omitempty"`
	ThreeHour *float64 `json:"3h,omitempty"`
}

// Weather carries the correction signals. Every field is optional.
type Weather struct {
	WindSpeed *float64 `json:"wind_speed,omitempty"`
	Wind      *Wind    `json:"wind,omitempty"`
	Rain      *Rain    `json:"rain,omitempty"`
}

// Inputs are the samples and weather for one estimate. Sample order does not
// matter; callers conventionally pass them most recent first.
type Inputs struct {
	GroundVals []float64 `json:"groundVals"`
	SatVals    []float64 `json:"satVals"`
	Weather    Weather   `json:"weather"`
}

// Estimate is a blended result together with the factors that produced it.
type Estimate struct {
	Value      float64 `json:"value"`
	AvgGround  float64 `json:"avg_ground"`
	AvgSat     float64 `json:"avg_sat"`
	Wind       float64 `json:"wind"`
	WindFactor float64 `json:"wind_factor"`
	RainFactor float64 `json:"rain_factor"`
}

// Simple returns (0.6*mean(ground) + 0.4*mean(sat)) * windFactor * rainFactor.
// Empty sample sets contribute 0. The result is not rounded.
func Simple(in Inputs) float64 {
	return Blend(in).Value
}

// Blend computes the estimate and exposes its intermediate terms.
func Blend(in Inputs) Estimate {
	e := Estimate{
		AvgGround: mean(in.GroundVals),
		AvgSat:    mean(in.SatVals),
		Wind:      in.Weather.Speed(),
	}
	e.WindFactor = windFactor(e.Wind)
	e.RainFactor = rainFactor(in.Weather.Rain)
	e.Value = (GroundWeight*e.AvgGround + SatelliteWeight*e.AvgSat) * e.WindFactor * e.RainFactor
	return e
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// windFactor falls linearly from 1 at calm to 0 at WindCutoff and stays there.
func windFactor(wind float64) float64 {
	return math.Max(0, 1-wind/WindCutoff)
}

// rainFactor is flat: any non-zero 1h or 3h accumulation damps, amount is ignored.
func rainFactor(r *Rain) float64 {
	if r == nil {
		return 1.0
	}
	if truthy(r.OneHour) || truthy(r.ThreeHour) {
		return RainFactor
	}
	return 1.0
}

func truthy(f *float64) bool {
	return f != nil && *f != 0 && !math.IsNaN(*f)
}
