package scoring

import (
	"math"
	"testing"
)

func approx(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPctChange(t *testing.T) {
	approx(t, PctChange(100, 110), 10, 1e-9)
	approx(t, PctChange(0, 50), 0, 1e-9)
	approx(t, PctChange(100, 90), -10, 1e-9)
}

func TestStddev(t *testing.T) {
	approx(t, Stddev([]float64{1, 2, 3}), 1.0, 1e-9)
	approx(t, Stddev([]float64{5}), 0, 1e-9)
	approx(t, Stddev(nil), 0, 1e-9)
}

func TestEMA(t *testing.T) {
	approx(t, EMA([]float64{1, 1, 1, 1}, 3), 1, 1e-9)
	approx(t, EMA([]float64{1, 2, 3}, 3), 2.25, 1e-9)
	approx(t, EMA(nil, 3), 0, 1e-9)
}

func TestVolatility(t *testing.T) {
	approx(t, Volatility([]float64{100, 110, 105}), 10.2851895, 1e-2)
	approx(t, Volatility([]float64{100}), 0, 1e-9)
	// Flat prices have zero return stddev.
	approx(t, Volatility([]float64{100, 100, 100}), 0, 1e-9)
}

func TestRiskScore(t *testing.T) {
	approx(t, RiskScore(true, false, false, 10), 0.7*(1.0/3)+0.3, 1e-9)
	approx(t, RiskScore(false, false, false, 0), 0, 1e-9)
	approx(t, RiskScore(true, true, true, 5), 1, 1e-9)
	// Volatility saturates at 5 percentage points.
	approx(t, RiskScore(false, false, false, 50), 0.3, 1e-9)
}

func TestShortScoreVectors(t *testing.T) {
	// Strong short setup: negative funding, price near highs, falling OI,
	// liquidations all shorts.
	approx(t, ShortScore(-0.01, 0.8, -10, 1.0), 0.94, 1e-3)
	// Weak setup: positive funding, price near lows, rising OI.
	approx(t, ShortScore(0.01, 0.2, 5, 0.1), 0.07, 1e-3)
}

func TestShortScoreNoLiq(t *testing.T) {
	approx(t, ShortScoreNoLiq(-0.01, 0.8, -10), 0.5+0.3*0.8+0.2, 1e-9)
	approx(t, ShortScoreNoLiq(0.01, 0, 5), 0, 1e-9)
}

func TestShortScoreBounds(t *testing.T) {
	if s := ShortScore(-1, 5, -100, 3); s < 0 || s > 1 {
		t.Fatalf("score out of [0,1]: %v", s)
	}
	if s := ShortScore(1, -5, 100, -3); s != 0 {
		t.Fatalf("fully adverse inputs should score 0, got %v", s)
	}
}

func TestShortScoreMonotonicity(t *testing.T) {
	base := ShortScore(-0.001, 0.5, -1, 0.5)

	if s := ShortScore(-0.002, 0.5, -1, 0.5); s < base {
		t.Fatalf("more negative funding must not lower the score: %v < %v", s, base)
	}
	if s := ShortScore(-0.001, 0.6, -1, 0.5); s < base {
		t.Fatalf("higher price position must not lower the score: %v < %v", s, base)
	}
	if s := ShortScore(-0.001, 0.5, -2, 0.5); s < base {
		t.Fatalf("falling OI must not lower the score: %v < %v", s, base)
	}
	if s := ShortScore(-0.001, 0.5, -1, 0.6); s < base {
		t.Fatalf("higher short liq ratio must not lower the score: %v < %v", s, base)
	}
}

func TestPositionRatio(t *testing.T) {
	ratio, label := PositionRatio(2.8, 1, 3)
	approx(t, ratio, 0.9, 1e-9)
	if label != PositionHigh {
		t.Fatalf("expected high label, got %s", label)
	}

	ratio, label = PositionRatio(1.2, 1, 3)
	approx(t, ratio, 0.1, 1e-9)
	if label != PositionLow {
		t.Fatalf("expected low label, got %s", label)
	}

	_, label = PositionRatio(2, 1, 3)
	if label != PositionMid {
		t.Fatalf("expected mid label, got %s", label)
	}
}

func TestPositionRatioDegenerateRange(t *testing.T) {
	ratio, label := PositionRatio(5, 3, 3)
	if ratio != 0 || label != PositionUnknown {
		t.Fatalf("max <= min must yield (0, unknown), got (%v, %s)", ratio, label)
	}
	ratio, label = PositionRatio(5, 4, 3)
	if ratio != 0 || label != PositionUnknown {
		t.Fatalf("inverted range must yield (0, unknown), got (%v, %s)", ratio, label)
	}
}

func TestPositionRatioClamped(t *testing.T) {
	ratio, _ := PositionRatio(10, 1, 3)
	approx(t, ratio, 1, 1e-9)
	ratio, _ = PositionRatio(0, 1, 3)
	approx(t, ratio, 0, 1e-9)
}
