package detector

import (
	"time"

	"github.com/google/uuid"

	"perpwatch/internal/scoring"
	"perpwatch/internal/window"
)

// Direction of a detected price excursion.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Event describes a pump/dump excursion detected inside a symbol's window.
// The Samples slice is the window contents at trigger time, taken before the
// window is reset, so downstream consumers can still render it.
type Event struct {
	ID           string
	Symbol       string
	Exchange     string
	Direction    string
	VariationPct float64
	ObservedAt   time.Time
	Samples      []window.Sample
}

// Detector evaluates a symbol's sliding window after every appended sample
// and emits an Event when the intra-window range exceeds the threshold.
type Detector struct {
	store        *window.Store
	thresholdPct float64
}

// New constructs a Detector over the given store.
func New(store *window.Store, thresholdPct float64) *Detector {
	return &Detector{store: store, thresholdPct: thresholdPct}
}

// Evaluate inspects the current window for (exchange, symbol) and returns an
// Event if it triggered, or nil. On a trigger the window is reset.
func (d *Detector) Evaluate(exchange, symbol string, at time.Time) *Event {
	samples := d.store.SnapshotSamples(exchange, symbol)
	if len(samples) < 2 {
		return nil
	}

	min, max := samples[0].Value, samples[0].Value
	for _, s := range samples[1:] {
		if s.Value < min {
			min = s.Value
		}
		if s.Value > max {
			max = s.Value
		}
	}
	if min <= 0 {
		return nil
	}

	variation := (max - min) / min * 100
	if variation <= 0 || variation < d.thresholdPct {
		return nil
	}

	direction := DirectionDown
	if samples[len(samples)-1].Value > samples[0].Value {
		direction = DirectionUp
	}

	d.store.Reset(exchange, symbol)

	return &Event{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Exchange:     exchange,
		Direction:    direction,
		VariationPct: variation,
		ObservedAt:   at,
		Samples:      samples,
	}
}

// DetectPumpDump reports whether the first-to-last price change over the
// slice reaches thresholdPct in either direction.
func DetectPumpDump(prices []float64, thresholdPct float64) bool {
	if len(prices) < 2 {
		return false
	}
	change := scoring.PctChange(prices[0], prices[len(prices)-1])
	return change >= thresholdPct || -change >= thresholdPct
}

// DetectOIDelta reports whether open interest changed by thresholdPct over
// the slice in either direction.
func DetectOIDelta(oiValues []float64, thresholdPct float64) bool {
	if len(oiValues) < 2 {
		return false
	}
	change := scoring.PctChange(oiValues[0], oiValues[len(oiValues)-1])
	return change >= thresholdPct || -change >= thresholdPct
}

// DetectDivergence reports whether price and open interest moved in opposite
// directions over their respective slices.
func DetectDivergence(prices, oiValues []float64) bool {
	if len(prices) < 2 || len(oiValues) < 2 {
		return false
	}
	priceChange := scoring.PctChange(prices[0], prices[len(prices)-1])
	oiChange := scoring.PctChange(oiValues[0], oiValues[len(oiValues)-1])
	return priceChange*oiChange < 0
}
