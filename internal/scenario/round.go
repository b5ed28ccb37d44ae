// Package scenario aggregates per-scenario metric scores and time series for
// the selected scenario, and models the cascading scenario selection.
package scenario

import "gonum.org/v1/gonum/floats/scalar"

// Digits is the number of decimal digits kept for scores and time-series values.
const Digits = 4

// Round rounds x to Digits decimal places, ties to even.
func Round(x float64) float64 {
	return scalar.RoundEven(x, Digits)
}
