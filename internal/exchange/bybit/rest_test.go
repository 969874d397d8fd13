package bybit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"retCode": 0,
		"retMsg":  "OK",
		"result":  json.RawMessage(raw),
	})
}

func TestListLinearSymbolsPaginatesAndDeduplicates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != instrumentsPath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		calls++
		switch r.URL.Query().Get("cursor") {
		case "":
			writeResult(t, w, map[string]any{
				"nextPageCursor": "page2",
				"list": []map[string]string{
					{"symbol": "BTCUSDT", "quoteCoin": "USDT", "status": "Trading"},
					{"symbol": "ETHUSDT", "quoteCoin": "USDT", "status": "Trading"},
					{"symbol": "BTCPERP", "quoteCoin": "USDC", "status": "Trading"},
				},
			})
		case "page2":
			writeResult(t, w, map[string]any{
				"nextPageCursor": "",
				"list": []map[string]string{
					{"symbol": "ETHUSDT", "quoteCoin": "USDT", "status": "Trading"},
					{"symbol": "SOLUSDT", "quoteCoin": "USDT", "status": "Trading"},
					{"symbol": "OLDUSDT", "quoteCoin": "USDT", "status": "Closed"},
				},
			})
		default:
			t.Fatalf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	symbols, err := client.ListLinearSymbols(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("list symbols: %v", err)
	}

	if calls != 2 {
		t.Fatalf("expected 2 pages, got %d", calls)
	}
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if len(symbols) != len(want) {
		t.Fatalf("expected %v, got %v", want, symbols)
	}
	for i := range want {
		if symbols[i] != want[i] {
			t.Fatalf("first-seen order broken: expected %v, got %v", want, symbols)
		}
	}
}

func TestOpenInterestHistoryAscending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Bybit returns newest-first.
		writeResult(t, w, map[string]any{
			"list": []map[string]string{
				{"openInterest": "120", "timestamp": "3000"},
				{"openInterest": "110", "timestamp": "2000"},
				{"openInterest": "100", "timestamp": "1000"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	points, err := client.OpenInterestHistory(context.Background(), "BTCUSDT", "5min", 13)
	if err != nil {
		t.Fatalf("open interest: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[0].Value != 100 || points[2].Value != 120 {
		t.Fatalf("expected ascending order, got %+v", points)
	}
}

func TestKlinesParsePositionalRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, map[string]any{
			"list": [][]string{
				{"2000", "10", "12", "9", "11", "500", "5500"},
				{"1000", "9", "11", "8", "10", "400", "4000"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	klines, err := client.Klines(context.Background(), "BTCUSDT", "5", time.Time{}, time.Time{}, 13)
	if err != nil {
		t.Fatalf("klines: %v", err)
	}
	if len(klines) != 2 {
		t.Fatalf("expected 2 klines, got %d", len(klines))
	}
	first := klines[0]
	if first.Start != time.UnixMilli(1000).UTC() {
		t.Fatalf("expected ascending order, first start %v", first.Start)
	}
	if first.Open != 9 || first.High != 11 || first.Low != 8 || first.Close != 10 || first.Volume != 400 || first.Turnover != 4000 {
		t.Fatalf("positional fields misparsed: %+v", first)
	}
}

func TestFundingRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, map[string]any{
			"list": []map[string]string{
				{"symbol": "BTCUSDT", "fundingRate": "-0.0005"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	rate, err := client.FundingRate(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("funding rate: %v", err)
	}
	if rate != -0.0005 {
		t.Fatalf("expected -0.0005, got %v", rate)
	}
}

func TestAPIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"retCode": 10001,
			"retMsg":  "params error",
			"result":  map[string]any{},
		})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := client.FundingRate(context.Background(), "BTCUSDT"); err == nil {
		t.Fatal("retCode != 0 should produce an error")
	}
}

func TestLiquidationStatsSumsBySide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, map[string]any{
			"list": []map[string]string{
				{"side": "Buy", "size": "30", "updatedTime": strconv.FormatInt(time.Now().UnixMilli(), 10)},
				{"side": "Sell", "size": "10", "updatedTime": strconv.FormatInt(time.Now().UnixMilli(), 10)},
				{"side": "Buy", "size": "60", "updatedTime": strconv.FormatInt(time.Now().UnixMilli(), 10)},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	long, short, err := client.LiquidationStats(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("liquidation stats: %v", err)
	}
	if long != 10 || short != 90 {
		t.Fatalf("expected long=10 short=90, got long=%v short=%v", long, short)
	}
}
