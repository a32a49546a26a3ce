package vectorize

import (
	"math"
	"strconv"
)

// round3 rounds to 3 decimal places using the same half-away-from-zero
// rounding as the reference implementation's round(x, 3).
func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func formatScore(x float64) string {
	return strconv.FormatFloat(x, 'f', 3, 64)
}
