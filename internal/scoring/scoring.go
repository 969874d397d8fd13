// Package scoring holds the pure math behind the alert pipeline: percent
// changes, volatility, and the risk / short-opportunity scores. Everything in
// here is deterministic and side-effect free.
package scoring

import "math"

// PctChange returns the percentage change from old to new, or 0 when old is
// zero (defined-zero fallback for bad data).
func PctChange(old, new float64) float64 {
	if old == 0 {
		return 0
	}
	return (new - old) / old * 100
}

// Stddev returns the sample standard deviation, or 0 for fewer than 2 values.
func Stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

// EMA returns the exponential moving average of values for the given period.
// Returns 0 for an empty slice.
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	k := 2 / (float64(period) + 1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

// toPercentagePoints normalises a return to percentage points. Values in
// [-1, 1] are treated as decimals (0.02 -> 2.0); anything else is assumed to
// already be in points.
func toPercentagePoints(x float64) float64 {
	if x >= -1 && x <= 1 {
		return x * 100
	}
	return x
}

// Volatility returns the standard deviation of successive percent returns,
// in percentage points. Fewer than 2 prices yields 0.
func Volatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns = append(returns, toPercentagePoints(PctChange(prices[i-1], prices[i])))
	}
	return Stddev(returns)
}

// RiskScore combines the three boolean detectors and volatility into a [0,1]
// score: 0.7 * fired-signal fraction + 0.3 * volatility component, where 5
// percentage points of return stddev saturates the volatility component.
func RiskScore(pump, oiDelta, divergence bool, volatility float64) float64 {
	fired := 0.0
	for _, s := range []bool{pump, oiDelta, divergence} {
		if s {
			fired++
		}
	}
	signalScore := fired / 3
	volScore := clamp01(volatility / 5)
	return 0.7*signalScore + 0.3*volScore
}

// ShortScore rates a short opportunity in [0,1] from four normalised factors.
//
//	fundingRate:   decimal (-0.0005 for -0.05%); negative favours shorts
//	pricePosition: [0,1] position in the all-time range; high favours shorts
//	oiDeltaPct:    ~1h open-interest change in points; -5 saturates
//	shortLiqRatio: short liquidation volume over total liquidations
func ShortScore(fundingRate, pricePosition, oiDeltaPct, shortLiqRatio float64) float64 {
	fundingScore := clamp01(-fundingRate * 100)
	priceScore := clamp01(pricePosition)
	oiScore := clamp01(-oiDeltaPct / 5)
	liqScore := clamp01(shortLiqRatio)

	score := 0.4*fundingScore + 0.3*priceScore + 0.2*oiScore + 0.1*liqScore
	return clamp01(score)
}

// ShortScoreNoLiq is the degraded variant used when no liquidation data is
// available; the remaining weights are renormalised to 0.5/0.3/0.2.
func ShortScoreNoLiq(fundingRate, pricePosition, oiDeltaPct float64) float64 {
	fundingScore := clamp01(-fundingRate * 100)
	priceScore := clamp01(pricePosition)
	oiScore := clamp01(-oiDeltaPct / 5)

	score := 0.5*fundingScore + 0.3*priceScore + 0.2*oiScore
	return clamp01(score)
}

// Position labels for the all-time range ratio.
const (
	PositionLow     = "low"
	PositionMid     = "mid"
	PositionHigh    = "high"
	PositionUnknown = "unknown"
)

// PositionRatio places lastClose inside [min, max] as a [0,1] ratio with a
// coarse label. A degenerate range (max <= min) yields 0 and "unknown".
func PositionRatio(lastClose, min, max float64) (float64, string) {
	if max <= min {
		return 0, PositionUnknown
	}
	ratio := clamp01((lastClose - min) / (max - min))
	switch {
	case ratio < 0.33:
		return ratio, PositionLow
	case ratio < 0.66:
		return ratio, PositionMid
	default:
		return ratio, PositionHigh
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
