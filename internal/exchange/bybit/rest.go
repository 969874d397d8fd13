package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	categoryLinear = "linear"

	instrumentsPath  = "/v5/market/instruments-info"
	openInterestPath = "/v5/market/open-interest"
	klinePath        = "/v5/market/kline"
	tickersPath      = "/v5/market/tickers"
	liquidationPath  = "/v5/market/liquidation"

	instrumentsPageLimit = 1000
)

// Options parameterise the Bybit REST client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the Bybit v5 public REST API.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a Bybit REST client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "bybit_rest").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type apiEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "perpwatch/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bybit api status %d for %s", resp.StatusCode, path)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.RetCode != 0 {
		return fmt.Errorf("bybit api error %d: %s", envelope.RetCode, envelope.RetMsg)
	}

	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// ListLinearSymbols pages through instruments-info with the cursor token and
// returns trading perpetual symbols quoted in quoteAsset, de-duplicated in
// first-seen order.
func (c *Client) ListLinearSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	var (
		symbols []string
		seen    = make(map[string]struct{})
		cursor  string
	)

	for {
		params := url.Values{}
		params.Set("category", categoryLinear)
		params.Set("limit", strconv.Itoa(instrumentsPageLimit))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var page struct {
			NextPageCursor string `json:"nextPageCursor"`
			List           []struct {
				Symbol    string `json:"symbol"`
				QuoteCoin string `json:"quoteCoin"`
				Status    string `json:"status"`
			} `json:"list"`
		}
		if err := c.get(ctx, instrumentsPath, params, &page); err != nil {
			return nil, fmt.Errorf("list instruments: %w", err)
		}

		for _, inst := range page.List {
			if quoteAsset != "" && inst.QuoteCoin != quoteAsset {
				continue
			}
			if inst.Status != "" && inst.Status != "Trading" {
				continue
			}
			if _, ok := seen[inst.Symbol]; ok {
				continue
			}
			seen[inst.Symbol] = struct{}{}
			symbols = append(symbols, inst.Symbol)
		}

		if page.NextPageCursor == "" {
			break
		}
		cursor = page.NextPageCursor
	}

	c.logger.Debug().Int("symbols", len(symbols)).Msg("listed linear instruments")
	return symbols, nil
}

// Point is a timestamped numeric observation from a history endpoint.
type Point struct {
	Ts    time.Time
	Value float64
}

// OpenInterestHistory returns open-interest samples for symbol at the given
// interval ("5min", ...), ascending by timestamp.
func (c *Client) OpenInterestHistory(ctx context.Context, symbol, interval string, limit int) ([]Point, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", symbol)
	params.Set("intervalTime", interval)
	params.Set("limit", strconv.Itoa(limit))

	var result struct {
		List []struct {
			OpenInterest string `json:"openInterest"`
			Timestamp    string `json:"timestamp"`
		} `json:"list"`
	}
	if err := c.get(ctx, openInterestPath, params, &result); err != nil {
		return nil, fmt.Errorf("open interest history: %w", err)
	}

	points := make([]Point, 0, len(result.List))
	for _, row := range result.List {
		ms, err := strconv.ParseInt(row.Timestamp, 10, 64)
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(row.OpenInterest, 64)
		if err != nil {
			continue
		}
		points = append(points, Point{Ts: time.UnixMilli(ms).UTC(), Value: value})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Ts.Before(points[j].Ts) })
	return points, nil
}

// Kline is one candle row. Fields follow Bybit's positional layout:
// startTime, open, high, low, close, volume, turnover.
type Kline struct {
	Start    time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Turnover float64
}

// Klines returns up to limit recent candles for symbol at the given interval
// ("5" for 5 minutes, "D" for daily), ascending by start time. Zero start/end
// are omitted from the request.
func (c *Client) Klines(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if !start.IsZero() {
		params.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		params.Set("end", strconv.FormatInt(end.UnixMilli(), 10))
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := c.get(ctx, klinePath, params, &result); err != nil {
		return nil, fmt.Errorf("klines: %w", err)
	}

	klines := make([]Kline, 0, len(result.List))
	for _, row := range result.List {
		if len(row) < 7 {
			continue
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		values := make([]float64, 6)
		ok := true
		for i := 0; i < 6; i++ {
			values[i], err = strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		klines = append(klines, Kline{
			Start:    time.UnixMilli(ms).UTC(),
			Open:     values[0],
			High:     values[1],
			Low:      values[2],
			Close:    values[3],
			Volume:   values[4],
			Turnover: values[5],
		})
	}

	sort.Slice(klines, func(i, j int) bool { return klines[i].Start.Before(klines[j].Start) })
	return klines, nil
}

// FundingRate returns the current funding rate for symbol as a decimal.
func (c *Client) FundingRate(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", symbol)

	var result struct {
		List []struct {
			Symbol      string `json:"symbol"`
			FundingRate string `json:"fundingRate"`
		} `json:"list"`
	}
	if err := c.get(ctx, tickersPath, params, &result); err != nil {
		return 0, fmt.Errorf("ticker: %w", err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("ticker: no data for %s", symbol)
	}

	rate, err := strconv.ParseFloat(result.List[0].FundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("ticker: parse funding rate: %w", err)
	}
	return rate, nil
}

// Ticker is a single tickers-endpoint row used by the polling variant.
type Ticker struct {
	Symbol       string
	LastPrice    float64
	OpenInterest float64
}

// Tickers returns all linear tickers with last price and open interest.
func (c *Client) Tickers(ctx context.Context) ([]Ticker, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)

	var result struct {
		List []struct {
			Symbol       string `json:"symbol"`
			LastPrice    string `json:"lastPrice"`
			OpenInterest string `json:"openInterest"`
		} `json:"list"`
	}
	if err := c.get(ctx, tickersPath, params, &result); err != nil {
		return nil, fmt.Errorf("tickers: %w", err)
	}

	tickers := make([]Ticker, 0, len(result.List))
	for _, row := range result.List {
		price, err := strconv.ParseFloat(row.LastPrice, 64)
		if err != nil {
			continue
		}
		oi, _ := strconv.ParseFloat(row.OpenInterest, 64)
		tickers = append(tickers, Ticker{Symbol: row.Symbol, LastPrice: price, OpenInterest: oi})
	}
	return tickers, nil
}

// LiquidationStats sums recent liquidation quantities by side from the REST
// history endpoint. Used as a fallback when the streaming watcher has no data.
func (c *Client) LiquidationStats(ctx context.Context, symbol string) (longQty, shortQty float64, err error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", symbol)

	var result struct {
		List []struct {
			Side string `json:"side"`
			Size string `json:"size"`
			Time string `json:"updatedTime"`
		} `json:"list"`
	}
	if err := c.get(ctx, liquidationPath, params, &result); err != nil {
		return 0, 0, fmt.Errorf("liquidation history: %w", err)
	}

	for _, row := range result.List {
		qty, err := strconv.ParseFloat(row.Size, 64)
		if err != nil {
			continue
		}
		// A "Buy" liquidation closes a short position and vice versa.
		switch row.Side {
		case "Buy":
			shortQty += qty
		case "Sell":
			longQty += qty
		}
	}
	return longQty, shortQty, nil
}
