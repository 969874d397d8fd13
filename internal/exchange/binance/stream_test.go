package binance

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseMiniTickerMessageSingle(t *testing.T) {
	raw := []byte(`{"e":"24hrMiniTicker","s":"BTCUSDT","c":"64250.5","o":"63000","h":"65000","l":"62000"}`)
	ticks, err := parseMiniTickerMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(ticks))
	}
	if ticks[0].symbol != "BTCUSDT" || ticks[0].price != 64250.5 {
		t.Fatalf("unexpected tick: %+v", ticks[0])
	}
}

func TestParseMiniTickerMessageBatch(t *testing.T) {
	raw := []byte(`[{"e":"24hrMiniTicker","s":"ETHUSDT","c":"3000"},{"e":"24hrMiniTicker","s":"SOLUSDT","c":"150"}]`)
	ticks, err := parseMiniTickerMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(ticks))
	}
	if ticks[0].symbol != "ETHUSDT" || ticks[1].symbol != "SOLUSDT" {
		t.Fatalf("unexpected ticks: %+v", ticks)
	}
}

func TestParseMiniTickerMessageIgnoresOtherEvents(t *testing.T) {
	for _, raw := range []string{
		`{"result":null,"id":1}`,
		`{"e":"aggTrade","s":"BTCUSDT","p":"64000"}`,
		``,
	} {
		ticks, err := parseMiniTickerMessage([]byte(raw))
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if len(ticks) != 0 {
			t.Fatalf("%s: expected no ticks, got %+v", raw, ticks)
		}
	}
}

func TestParseMiniTickerMessageSkipsBadPrice(t *testing.T) {
	raw := []byte(`[{"e":"24hrMiniTicker","s":"BTCUSDT","c":"0"},{"e":"24hrMiniTicker","s":"ETHUSDT","c":"abc"}]`)
	ticks, err := parseMiniTickerMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ticks) != 0 {
		t.Fatalf("invalid prices must be skipped, got %+v", ticks)
	}
}

func TestParseMiniTickerMessageMalformed(t *testing.T) {
	if _, err := parseMiniTickerMessage([]byte(`{broken`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestDispatchFiltersQuoteAsset(t *testing.T) {
	var got []string
	s := NewStream(StreamOptions{QuoteAsset: "USDT"}, func(symbol string, price float64, at time.Time) {
		got = append(got, symbol)
	}, zerolog.Nop())

	s.dispatch([]byte(`{"e":"24hrMiniTicker","s":"BTCUSDT","c":"100"}`))
	s.dispatch([]byte(`{"e":"24hrMiniTicker","s":"BTCBUSD","c":"100"}`))

	if len(got) != 1 || got[0] != "BTCUSDT" {
		t.Fatalf("expected only USDT symbols, got %v", got)
	}
}
