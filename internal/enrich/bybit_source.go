package enrich

import (
	"context"
	"fmt"
	"time"

	"perpwatch/internal/exchange/bybit"
	"perpwatch/internal/scoring"
)

const fiveMinKlineInterval = "5"

// BybitSource adapts the Bybit REST client, range scanner, and liquidation
// watcher to the Source interface. The watcher is optional; when it is nil or
// not yet warmed the REST liquidation history serves as fallback.
type BybitSource struct {
	client   *bybit.Client
	scanner  *bybit.RangeScanner
	watcher  *bybit.LiquidationWatcher
	interval string
	lookback int
}

// NewBybitSource constructs the production enrichment source.
func NewBybitSource(client *bybit.Client, scanner *bybit.RangeScanner, watcher *bybit.LiquidationWatcher, oiInterval string, lookback int) *BybitSource {
	if oiInterval == "" {
		oiInterval = "5min"
	}
	if lookback < 2 {
		lookback = 13
	}
	return &BybitSource{
		client:   client,
		scanner:  scanner,
		watcher:  watcher,
		interval: oiInterval,
		lookback: lookback,
	}
}

// OIChange samples open interest over the lookback window and returns the
// first and last values plus the percent delta.
func (s *BybitSource) OIChange(ctx context.Context, symbol string) (prev, last, deltaPct float64, err error) {
	points, err := s.client.OpenInterestHistory(ctx, symbol, s.interval, s.lookback)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(points) == 0 {
		return 0, 0, 0, fmt.Errorf("open interest: no data for %s", symbol)
	}
	prev = points[0].Value
	last = points[len(points)-1].Value
	return prev, last, scoring.PctChange(prev, last), nil
}

// VolumeChange computes percent deltas for traded quantity and quote notional
// from 5-minute candles over the lookback window.
func (s *BybitSource) VolumeChange(ctx context.Context, symbol string) (volDeltaPct, notionalDeltaPct float64, err error) {
	klines, err := s.client.Klines(ctx, symbol, fiveMinKlineInterval, time.Time{}, time.Time{}, s.lookback)
	if err != nil {
		return 0, 0, err
	}
	if len(klines) == 0 {
		return 0, 0, fmt.Errorf("klines: no data for %s", symbol)
	}
	first, lastK := klines[0], klines[len(klines)-1]
	return scoring.PctChange(first.Volume, lastK.Volume), scoring.PctChange(first.Turnover, lastK.Turnover), nil
}

// FundingRate returns the current funding rate.
func (s *BybitSource) FundingRate(ctx context.Context, symbol string) (float64, error) {
	return s.client.FundingRate(ctx, symbol)
}

// AllTimeRange runs the paginated backward scan for the historical range.
func (s *BybitSource) AllTimeRange(ctx context.Context, symbol string) (min, max, lastClose float64, err error) {
	res, err := s.scanner.Scan(ctx, symbol)
	if err != nil {
		return 0, 0, 0, err
	}
	return res.Min, res.Max, res.LastClose, nil
}

// LiquidationStats prefers the warmed streaming aggregate and falls back to
// the REST history endpoint.
func (s *BybitSource) LiquidationStats(ctx context.Context, symbol string) (longQty, shortQty float64, err error) {
	if s.watcher != nil {
		if long, short, ok := s.watcher.Stats(symbol); ok {
			return long, short, nil
		}
	}
	return s.client.LiquidationStats(ctx, symbol)
}

var _ Source = (*BybitSource)(nil)
