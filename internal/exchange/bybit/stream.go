package bybit

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
const Name = "Bybit"

const (
	defaultReconnectDelay = 5 * time.Second
	subscribeChunkSize    = 100
	subscribeChunkDelay   = 250 * time.Millisecond
	pingInterval          = 20 * time.Second
	readIdleTimeout       = 60 * time.Second
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

// Stream maintains a reconnecting subscription to Bybit's public linear
// ticker feed and forwards (symbol, price) updates to the handler.
type Stream struct {
	opts    StreamOptions
	handler TickHandler
	logger  zerolog.Logger
}

// NewStream constructs a ticker stream client.
func NewStream(opts StreamOptions, handler TickHandler, logger zerolog.Logger) *Stream {
	if opts.URL == "" {
		opts.URL = "wss://stream.bybit.com/v5/public/linear"
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	return &Stream{
		opts:    opts,
		handler: handler,
		logger:  logger.With().Str("component", "bybit_stream").Logger(),
	}
}

// Run connects, subscribes, and streams until ctx is cancelled. Any transport
// failure tears the connection down and reconnects after a fixed delay; the
// loop never gives up on its own.
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
	s.logger.Info().Int("symbols", len(s.opts.Symbols)).Msg("subscribed to ticker stream")

	go s.pingLoop(ctx, conn, done)

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

// subscribe issues subscription requests in fixed-size chunks with a short
// pause between them, respecting exchange-side subscription rate limits.
func (s *Stream) subscribe(ctx context.Context, conn *websocket.Conn) error {
	for start := 0; start < len(s.opts.Symbols); start += subscribeChunkSize {
		end := start + subscribeChunkSize
		if end > len(s.opts.Symbols) {
			end = len(s.opts.Symbols)
		}

		args := make([]string, 0, end-start)
		for _, symbol := range s.opts.Symbols[start:end] {
			args = append(args, "tickers."+symbol)
		}

		req := map[string]any{"op": "subscribe", "args": args}
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

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]any{"op": "ping"}); err != nil {
				return
			}
		}
	}
}

func (s *Stream) dispatch(raw []byte) {
	ticks, err := parseTickerMessage(raw)
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

type tickerPayload struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

// parseTickerMessage extracts (symbol, price) pairs from a raw stream
// message. Non-ticker frames (acks, pongs) and delta frames without a price
// yield an empty slice. The data field may be a single object or a batch.
func parseTickerMessage(raw []byte) ([]tick, error) {
	var msg struct {
		Topic string          `json:"topic"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if !strings.HasPrefix(msg.Topic, "tickers.") || len(msg.Data) == 0 {
		return nil, nil
	}

	var payloads []tickerPayload
	if msg.Data[0] == '[' {
		if err := json.Unmarshal(msg.Data, &payloads); err != nil {
			return nil, fmt.Errorf("parse ticker batch: %w", err)
		}
	} else {
		var single tickerPayload
		if err := json.Unmarshal(msg.Data, &single); err != nil {
			return nil, fmt.Errorf("parse ticker: %w", err)
		}
		payloads = append(payloads, single)
	}

	ticks := make([]tick, 0, len(payloads))
	for _, p := range payloads {
		if p.Symbol == "" || p.LastPrice == "" {
			continue
		}
		price, err := strconv.ParseFloat(p.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		ticks = append(ticks, tick{symbol: p.Symbol, price: price})
	}
	return ticks, nil
}
