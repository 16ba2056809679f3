package engine

import "math"

// RiskHorizon is how many rolls ahead bust risk is projected.
const RiskHorizon = 3

// BustRisk is the chance of busting at least once in the next n rolls when
// every roll busts with probability pBust: 1 - (1-pBust)^n.
func BustRisk(pBust float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return 1 - math.Pow(1-pBust, float64(n))
}

// BustRiskSeries returns BustRisk for 1..n rolls.
func BustRiskSeries(pBust float64, n int) []float64 {
	out := make([]float64, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, BustRisk(pBust, i))
	}
	return out
}
