// Package binance implements the USD-M futures ticker stream. Detection runs
// on this feed exactly as it does on Bybit's; enrichment always goes to Bybit.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Name identifies this exchange in windows, events, and alerts.
const Name = "Binance"

const (
	defaultReconnectDelay = 5 * time.Second
	subscribeChunkSize    = 100
	subscribeChunkDelay   = 250 * time.Millisecond
	readIdleTimeout       = 120 * time.Second
)

// TickHandler receives every accepted ticker update.
type TickHandler func(symbol string, price float64, at time.Time)

// StreamOptions parameterise the ticker stream.
type StreamOptions struct {
	URL            string
	Symbols        []string
	QuoteAsset     string
	ReconnectDelay time.Duration
}

// Stream maintains a reconnecting miniTicker subscription against Binance
// USD-M futures and forwards (symbol, price) updates to the handler.
type Stream struct {
	opts    StreamOptions
	handler TickHandler
	logger  zerolog.Logger
}

// NewStream constructs a ticker stream client.
func NewStream(opts StreamOptions, handler TickHandler, logger zerolog.Logger) *Stream {
	if opts.URL == "" {
		opts.URL = "wss://fstream.binance.com/ws"
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	return &Stream{
		opts:    opts,
		handler: handler,
		logger:  logger.With().Str("component", "binance_stream").Logger(),
	}
}

// Run connects, subscribes, and streams until ctx is cancelled, reconnecting
// on any failure after a fixed delay.
func (s *Stream) Run(ctx context.Context) error {
	for {
		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Dur("retry_in", s.opts.ReconnectDelay).Msg("stream disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.ReconnectDelay):
		}
	}
}

func (s *Stream) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.opts.URL, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := s.subscribe(ctx, conn); err != nil {
		return err
	}
	s.logger.Info().Int("symbols", len(s.opts.Symbols)).Msg("subscribed to miniTicker stream")

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readIdleTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		s.dispatch(raw)
	}
}

// subscribe sends SUBSCRIBE requests in fixed-size chunks with a short pause
// between them, respecting the per-connection message rate limit.
func (s *Stream) subscribe(ctx context.Context, conn *websocket.Conn) error {
	id := 0
	for start := 0; start < len(s.opts.Symbols); start += subscribeChunkSize {
		end := start + subscribeChunkSize
		if end > len(s.opts.Symbols) {
			end = len(s.opts.Symbols)
		}

		params := make([]string, 0, end-start)
		for _, symbol := range s.opts.Symbols[start:end] {
			params = append(params, strings.ToLower(symbol)+"@miniTicker")
		}

		id++
		req := map[string]any{"method": "SUBSCRIBE", "params": params, "id": id}
		if err := conn.WriteJSON(req); err != nil {
			return fmt.Errorf("subscribe chunk: %w", err)
		}

		if end < len(s.opts.Symbols) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(subscribeChunkDelay):
			}
		}
	}
	return nil
}

func (s *Stream) dispatch(raw []byte) {
	ticks, err := parseMiniTickerMessage(raw)
	if err != nil {
		s.logger.Debug().Err(err).Msg("skipping malformed message")
		return
	}

	now := time.Now().UTC()
	for _, t := range ticks {
		if s.opts.QuoteAsset != "" && !strings.HasSuffix(t.symbol, s.opts.QuoteAsset) {
			continue
		}
		s.handler(t.symbol, t.price, now)
	}
}

type tick struct {
	symbol string
	price  float64
}

type miniTickerPayload struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// parseMiniTickerMessage extracts (symbol, price) pairs from a raw frame.
// Frames arrive either as a single event object or as an array of events;
// anything that is not a miniTicker yields an empty slice.
func parseMiniTickerMessage(raw []byte) ([]tick, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, nil
	}

	var payloads []miniTickerPayload
	if trimmed[0] == '[' {
		if err := json.Unmarshal(raw, &payloads); err != nil {
			return nil, fmt.Errorf("parse event batch: %w", err)
		}
	} else {
		var single miniTickerPayload
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("parse event: %w", err)
		}
		payloads = append(payloads, single)
	}

	ticks := make([]tick, 0, len(payloads))
	for _, p := range payloads {
		if p.EventType != "24hrMiniTicker" || p.Symbol == "" || p.Close == "" {
			continue
		}
		price, err := strconv.ParseFloat(p.Close, 64)
		if err != nil || price <= 0 {
			continue
		}
		ticks = append(ticks, tick{symbol: p.Symbol, price: price})
	}
	return ticks, nil
}
