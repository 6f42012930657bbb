// Package aqi converts PM2.5 mass concentrations (µg/m³) into US EPA Air
// Quality Index values.
//
// # Breakpoints
//
// The index is piecewise linear over seven fixed segments:
//
//	  C_lo    C_hi    I_lo  I_hi   Category
//	   0.0    12.0      0    50    Good
//	  12.1    35.4     51   100    Moderate
//	  35.5    55.4    101   150    Unhealthy for Sensitive Groups
//	  55.5   150.4    151   200    Unhealthy
//	 150.5   250.4    201   300    Very Unhealthy
//	 250.5   350.4    301   400    Hazardous
//	 350.5   500.4    401   500    Hazardous
//
// Within the matching segment:
//
//	I = (I_hi - I_lo) / (C_hi - C_lo) * (C - C_lo) + I_lo
//
// rounded half-up to an integer. The first segment whose closed interval
// contains C wins.
//
// # Absent values
//
// A concentration that is missing, unparsable, negative, above 500.4 or inside
// one of the 0.1 µg/m³ gaps between segments produces a [Value] with no index.
// The converter never extrapolates and never returns an error; callers check
// [Value.Valid] instead. An absent index is distinct from a measured 0.
package aqi
