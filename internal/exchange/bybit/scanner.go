package bybit

import (
	"context"
	"fmt"
	"time"
)

const (
	dailyInterval  = "D"
	klinePageLimit = 1000
	rangeBlockDays = 900
	rangeMaxDays   = 4000
)

// RangeResult is the outcome of an all-time range scan.
type RangeResult struct {
	Min       float64
	Max       float64
	LastClose float64
	TsMin     time.Time
	TsMax     time.Time
}

// RangeScanner walks daily candles backward in fixed-size blocks to find the
// all-time price range of a symbol.
type RangeScanner struct {
	client    *Client
	blockDays int
	maxDays   int
	now       func() time.Time
}

// NewRangeScanner constructs a scanner over the REST client. Non-positive
// block or max day counts fall back to the defaults (900 / 4000).
func NewRangeScanner(client *Client, blockDays, maxDays int) *RangeScanner {
	if blockDays <= 0 {
		blockDays = rangeBlockDays
	}
	if maxDays <= 0 {
		maxDays = rangeMaxDays
	}
	return &RangeScanner{client: client, blockDays: blockDays, maxDays: maxDays, now: time.Now}
}

// Scan requests daily candles in [end-block, end] blocks, moving the end
// cursor to just before the oldest candle seen, until the maximum lookback is
// exhausted, a block comes back empty, or the cursor stops advancing. The
// request count is bounded by ceil(maxDays/blockDays).
func (s *RangeScanner) Scan(ctx context.Context, symbol string) (RangeResult, error) {
	var (
		res       RangeResult
		haveData  bool
		haveClose bool
	)

	block := time.Duration(s.blockDays) * 24 * time.Hour
	end := s.now().UTC()
	oldest := end.Add(-time.Duration(s.maxDays) * 24 * time.Hour)

	for end.After(oldest) {
		start := end.Add(-block)
		if start.Before(oldest) {
			start = oldest
		}

		klines, err := s.client.Klines(ctx, symbol, dailyInterval, start, end, klinePageLimit)
		if err != nil {
			return RangeResult{}, fmt.Errorf("range scan %s: %w", symbol, err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			if !haveData || k.Low < res.Min {
				res.Min = k.Low
				res.TsMin = k.Start
			}
			if !haveData || k.High > res.Max {
				res.Max = k.High
				res.TsMax = k.Start
			}
			haveData = true
		}

		// Last close comes from the newest candle of the first block only.
		if !haveClose {
			res.LastClose = klines[len(klines)-1].Close
			haveClose = true
		}

		next := klines[0].Start.Add(-time.Millisecond)
		if !next.Before(end) {
			break
		}
		end = next
	}

	if !haveData {
		return RangeResult{}, fmt.Errorf("range scan %s: no candle data", symbol)
	}
	return res, nil
}
