package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultLiqWindow = 5 * time.Minute

type liqEvent struct {
	at   time.Time
	side string
	qty  float64
}

// LiquidationWatcher subscribes to the public liquidation feed and keeps a
// sliding per-symbol aggregate of long/short liquidation quantity. It is the
// canonical liquidation source; the REST history endpoint is only a fallback
// for symbols the watcher has not seen yet.
type LiquidationWatcher struct {
	opts   StreamOptions
	window time.Duration
	logger zerolog.Logger

	mu     sync.Mutex
	events map[string][]liqEvent
	warmed bool
}

// NewLiquidationWatcher constructs a watcher over the same stream endpoint as
// the ticker stream.
func NewLiquidationWatcher(opts StreamOptions, window time.Duration, logger zerolog.Logger) *LiquidationWatcher {
	if opts.URL == "" {
		opts.URL = "wss://stream.bybit.com/v5/public/linear"
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if window <= 0 {
		window = defaultLiqWindow
	}
	return &LiquidationWatcher{
		opts:   opts,
		window: window,
		logger: logger.With().Str("component", "bybit_liq_watcher").Logger(),
		events: make(map[string][]liqEvent),
	}
}

// Run connects and streams liquidations until ctx is cancelled, reconnecting
// on any failure after a fixed delay.
func (w *LiquidationWatcher) Run(ctx context.Context) error {
	for {
		err := w.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn().Err(err).Dur("retry_in", w.opts.ReconnectDelay).Msg("liquidation stream disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.opts.ReconnectDelay):
		}
	}
}

func (w *LiquidationWatcher) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.opts.URL, err)
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

	for start := 0; start < len(w.opts.Symbols); start += subscribeChunkSize {
		end := start + subscribeChunkSize
		if end > len(w.opts.Symbols) {
			end = len(w.opts.Symbols)
		}
		args := make([]string, 0, end-start)
		for _, symbol := range w.opts.Symbols[start:end] {
			args = append(args, "allLiquidation."+symbol)
		}
		if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
			return fmt.Errorf("subscribe chunk: %w", err)
		}
		if end < len(w.opts.Symbols) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(subscribeChunkDelay):
			}
		}
	}
	w.logger.Info().Int("symbols", len(w.opts.Symbols)).Msg("subscribed to liquidation stream")

	go w.pingLoop(ctx, conn, done)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readIdleTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		w.ingest(raw, time.Now().UTC())
	}
}

func (w *LiquidationWatcher) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
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

func (w *LiquidationWatcher) ingest(raw []byte, now time.Time) {
	var msg struct {
		Topic string `json:"topic"`
		Data  []struct {
			Symbol string `json:"s"`
			Side   string `json:"S"`
			Size   string `json:"v"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		w.logger.Debug().Err(err).Msg("skipping malformed liquidation frame")
		return
	}
	if !strings.HasPrefix(msg.Topic, "allLiquidation.") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.warmed = true
	for _, row := range msg.Data {
		qty, err := strconv.ParseFloat(row.Size, 64)
		if err != nil || row.Symbol == "" {
			continue
		}
		buf := append(w.events[row.Symbol], liqEvent{at: now, side: row.Side, qty: qty})
		w.events[row.Symbol] = pruneLiqEvents(buf, now.Add(-w.window))
	}
}

// Stats returns the long/short liquidation quantities seen for symbol inside
// the sliding window. ok is false until the watcher has received any data,
// signalling callers to use the REST fallback.
func (w *LiquidationWatcher) Stats(symbol string) (longQty, shortQty float64, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.warmed {
		return 0, 0, false
	}

	buf := pruneLiqEvents(w.events[symbol], time.Now().UTC().Add(-w.window))
	w.events[symbol] = buf
	for _, ev := range buf {
		// A "Buy" liquidation closes a short position and vice versa.
		switch ev.side {
		case "Buy":
			shortQty += ev.qty
		case "Sell":
			longQty += ev.qty
		}
	}
	return longQty, shortQty, true
}

func pruneLiqEvents(buf []liqEvent, cutoff time.Time) []liqEvent {
	start := 0
	for start < len(buf) && buf[start].at.Before(cutoff) {
		start++
	}
	if start == 0 {
		return buf
	}
	return append(buf[:0], buf[start:]...)
}
