package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"perpwatch/internal/detector"
	"perpwatch/internal/enrich"
)

// GateOptions tune alert admission.
type GateOptions struct {
	RequireOIConfirm bool
	ConfirmOIPct     float64
	MinShortScore    float64
}

// Gate decides whether a scored event becomes an alert. Checks run cheapest
// first; the cooldown is acquired last so that a score-suppressed event does
// not consume a cooldown window.
type Gate struct {
	opts     GateOptions
	registry CooldownRegistry
	logger   zerolog.Logger
}

// NewGate constructs a Gate over the given cooldown registry.
func NewGate(opts GateOptions, registry CooldownRegistry, logger zerolog.Logger) *Gate {
	if opts.MinShortScore <= 0 {
		opts.MinShortScore = 0.50
	}
	return &Gate{
		opts:     opts,
		registry: registry,
		logger:   logger.With().Str("component", "alert_gate").Logger(),
	}
}

// Admit returns true when the event should be dispatched. The cooldown entry
// is recorded on admission, before any dispatch attempt.
func (g *Gate) Admit(ctx context.Context, event *detector.Event, snapshot enrich.Snapshot, score float64, now time.Time) bool {
	if g.opts.RequireOIConfirm {
		confirmed := false
		switch event.Direction {
		case detector.DirectionUp:
			confirmed = snapshot.OIDeltaPct > g.opts.ConfirmOIPct
		case detector.DirectionDown:
			confirmed = snapshot.OIDeltaPct < -g.opts.ConfirmOIPct
		}
		if !confirmed {
			g.logger.Info().Str("symbol", event.Symbol).Str("direction", event.Direction).
				Float64("oi_delta_pct", snapshot.OIDeltaPct).Msg("suppressed: open interest did not confirm")
			return false
		}
	}

	if score <= g.opts.MinShortScore {
		g.logger.Info().Str("symbol", event.Symbol).Float64("score", score).
			Float64("min", g.opts.MinShortScore).Msg("suppressed: short score below bar")
		return false
	}

	if !g.registry.TryAcquire(ctx, event.Symbol, now) {
		g.logger.Info().Str("symbol", event.Symbol).Msg("suppressed: cooldown active")
		return false
	}

	return true
}
