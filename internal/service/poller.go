package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"perpwatch/internal/alerting"
	"perpwatch/internal/config"
	"perpwatch/internal/detector"
	"perpwatch/internal/exchange/bybit"
	"perpwatch/internal/scheduler"
	"perpwatch/internal/scoring"
	"perpwatch/internal/window"
)

// TickerSource lists all current tickers with price and open interest.
type TickerSource interface {
	Tickers(ctx context.Context) ([]bybit.Ticker, error)
}

const pollerSource = "poll"

// Poller is the REST polling risk variant: every interval it pulls the full
// ticker list, maintains longer price and open-interest histories, and alerts
// on the combined risk score instead of a live-stream trigger.
type Poller struct {
	sched      *scheduler.Scheduler
	source     TickerSource
	prices     *window.Store
	ois        *window.Store
	cfg        config.PollingConfig
	quoteAsset string
	registry   alerting.CooldownRegistry
	dispatcher *alerting.Dispatcher
	logger     zerolog.Logger
	now        func() time.Time
}

// NewPoller constructs the polling variant. The price and OI stores use the
// polling history retention, not the detection window.
func NewPoller(sched *scheduler.Scheduler, source TickerSource, cfg config.PollingConfig, quoteAsset string, registry alerting.CooldownRegistry, dispatcher *alerting.Dispatcher, logger zerolog.Logger) *Poller {
	return &Poller{
		sched:      sched,
		source:     source,
		prices:     window.NewStore(cfg.History),
		ois:        window.NewStore(cfg.History),
		cfg:        cfg,
		quoteAsset: quoteAsset,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "poller").Logger(),
		now:        time.Now,
	}
}

// Run drives the polling loop until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	return p.sched.Run(ctx, p.tick)
}

func (p *Poller) tick(ctx context.Context, at time.Time) error {
	tickers, err := p.source.Tickers(ctx)
	if err != nil {
		return fmt.Errorf("fetch tickers: %w", err)
	}

	for _, t := range tickers {
		if p.quoteAsset != "" && !strings.HasSuffix(t.Symbol, p.quoteAsset) {
			continue
		}
		p.processSymbol(ctx, t, at)
	}
	return nil
}

func (p *Poller) processSymbol(ctx context.Context, t bybit.Ticker, at time.Time) {
	p.prices.Record(pollerSource, t.Symbol, t.LastPrice, at)
	p.ois.Record(pollerSource, t.Symbol, t.OpenInterest, at)

	prices := p.prices.Snapshot(pollerSource, t.Symbol)
	ois := p.ois.Snapshot(pollerSource, t.Symbol)
	if len(prices) < p.cfg.PumpWindow+1 || len(ois) < p.cfg.PumpWindow+1 {
		return
	}

	recentPrices := prices[len(prices)-p.cfg.PumpWindow:]
	recentOIs := ois[len(ois)-p.cfg.PumpWindow:]

	pump := detector.DetectPumpDump(recentPrices, p.cfg.PumpPct)
	oiDelta := detector.DetectOIDelta(recentOIs, p.cfg.OIDeltaPct)
	divergence := detector.DetectDivergence(recentPrices, recentOIs)
	vol := scoring.Volatility(prices)
	score := scoring.RiskScore(pump, oiDelta, divergence, vol)

	if score < p.cfg.RiskThreshold {
		return
	}
	if !p.registry.TryAcquire(ctx, t.Symbol, p.now().UTC()) {
		p.logger.Debug().Str("symbol", t.Symbol).Msg("risk alert suppressed: cooldown active")
		return
	}

	text := fmt.Sprintf("%s: risk %.2f (pump=%t oi=%t div=%t vol=%.2f)", t.Symbol, score, pump, oiDelta, divergence, vol)
	p.dispatcher.Dispatch(ctx, text, nil)
	p.logger.Info().Str("symbol", t.Symbol).Float64("score", score).Msg("risk alert dispatched")
}
