package enrich

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"perpwatch/internal/scoring"
)

// Source provides the secondary market lookups behind an event. Implemented
// for Bybit in this repo; abstracted so tests can inject failures.
type Source interface {
	// OIChange returns the first and last open-interest samples over the
	// lookback window plus the percent delta between them.
	OIChange(ctx context.Context, symbol string) (prev, last, deltaPct float64, err error)
	// VolumeChange returns percent deltas for traded quantity and quote
	// notional over the lookback window.
	VolumeChange(ctx context.Context, symbol string) (volDeltaPct, notionalDeltaPct float64, err error)
	// FundingRate returns the current funding rate as a decimal.
	FundingRate(ctx context.Context, symbol string) (float64, error)
	// AllTimeRange returns the historical min/max prices and the latest close.
	AllTimeRange(ctx context.Context, symbol string) (min, max, lastClose float64, err error)
	// LiquidationStats returns recent long/short liquidation quantities.
	LiquidationStats(ctx context.Context, symbol string) (longQty, shortQty float64, err error)
}

// Snapshot is the complete, possibly degraded, enrichment of one event.
// Failed lookups are replaced by their documented neutral defaults, so a
// Snapshot is always fully populated.
type Snapshot struct {
	OIPrev           float64
	OILast           float64
	OIDeltaPct       float64
	VolDeltaPct      float64
	NotionalDeltaPct float64
	FundingRate      float64
	PositionRatio    float64
	PositionLabel    string
	LongLiqQty       float64
	ShortLiqQty      float64
	LiquidationOK    bool
}

// ShortLiqRatio returns short liquidation quantity over total, or 0 when no
// liquidations were seen.
func (s Snapshot) ShortLiqRatio() float64 {
	total := s.LongLiqQty + s.ShortLiqQty
	if total == 0 {
		return 0
	}
	return s.ShortLiqQty / total
}

// ShortScore rates the snapshot as a short opportunity, using the degraded
// weighting when liquidation data was unavailable.
func (s Snapshot) ShortScore() float64 {
	if !s.LiquidationOK {
		return scoring.ShortScoreNoLiq(s.FundingRate, s.PositionRatio, s.OIDeltaPct)
	}
	return scoring.ShortScore(s.FundingRate, s.PositionRatio, s.OIDeltaPct, s.ShortLiqRatio())
}

// Fetcher performs the per-event lookups concurrently and folds failures into
// neutral defaults. Enrichment failure is never fatal to alert delivery.
type Fetcher struct {
	source Source
	logger zerolog.Logger
}

// NewFetcher constructs a Fetcher over the given source.
func NewFetcher(source Source, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		source: source,
		logger: logger.With().Str("component", "enrich").Logger(),
	}
}

type result[T any] struct {
	value T
	err   error
}

// or maps a failed lookup to its neutral default, logging the degradation.
func (r result[T]) or(def T, logger zerolog.Logger, lookup, symbol string) T {
	if r.err != nil {
		logger.Warn().Err(r.err).Str("lookup", lookup).Str("symbol", symbol).Msg("enrichment lookup degraded to default")
		return def
	}
	return r.value
}

type oiChange struct {
	prev, last, deltaPct float64
}

type volChange struct {
	volDeltaPct, notionalDeltaPct float64
}

type priceRange struct {
	min, max, lastClose float64
}

type liqStats struct {
	longQty, shortQty float64
}

// Fetch runs the five lookups concurrently and returns a complete Snapshot.
// Each lookup degrades independently; a slow or failing endpoint never blocks
// the others beyond its own request timeout.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) Snapshot {
	var (
		oiRes      result[oiChange]
		volRes     result[volChange]
		fundingRes result[float64]
		rangeRes   result[priceRange]
		liqRes     result[liqStats]
	)

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		prev, last, delta, err := f.source.OIChange(ctx, symbol)
		oiRes = result[oiChange]{value: oiChange{prev: prev, last: last, deltaPct: delta}, err: err}
	}()
	go func() {
		defer wg.Done()
		vol, notional, err := f.source.VolumeChange(ctx, symbol)
		volRes = result[volChange]{value: volChange{volDeltaPct: vol, notionalDeltaPct: notional}, err: err}
	}()
	go func() {
		defer wg.Done()
		rate, err := f.source.FundingRate(ctx, symbol)
		fundingRes = result[float64]{value: rate, err: err}
	}()
	go func() {
		defer wg.Done()
		min, max, lastClose, err := f.source.AllTimeRange(ctx, symbol)
		rangeRes = result[priceRange]{value: priceRange{min: min, max: max, lastClose: lastClose}, err: err}
	}()
	go func() {
		defer wg.Done()
		longQty, shortQty, err := f.source.LiquidationStats(ctx, symbol)
		liqRes = result[liqStats]{value: liqStats{longQty: longQty, shortQty: shortQty}, err: err}
	}()
	wg.Wait()

	oi := oiRes.or(oiChange{}, f.logger, "open_interest", symbol)
	vol := volRes.or(volChange{}, f.logger, "volume", symbol)
	funding := fundingRes.or(0, f.logger, "funding_rate", symbol)
	liq := liqRes.or(liqStats{}, f.logger, "liquidations", symbol)

	snapshot := Snapshot{
		OIPrev:           oi.prev,
		OILast:           oi.last,
		OIDeltaPct:       oi.deltaPct,
		VolDeltaPct:      vol.volDeltaPct,
		NotionalDeltaPct: vol.notionalDeltaPct,
		FundingRate:      funding,
		PositionRatio:    0,
		PositionLabel:    scoring.PositionUnknown,
		LongLiqQty:       liq.longQty,
		ShortLiqQty:      liq.shortQty,
		LiquidationOK:    liqRes.err == nil,
	}

	if rangeRes.err != nil {
		f.logger.Warn().Err(rangeRes.err).Str("lookup", "alltime_range").Str("symbol", symbol).Msg("enrichment lookup degraded to default")
	} else {
		pr := rangeRes.value
		snapshot.PositionRatio, snapshot.PositionLabel = scoring.PositionRatio(pr.lastClose, pr.min, pr.max)
	}

	return snapshot
}
