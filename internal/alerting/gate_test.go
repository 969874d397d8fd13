package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"perpwatch/internal/detector"
	"perpwatch/internal/enrich"
)

type recordingRegistry struct {
	calls int
	allow bool
}

func (r *recordingRegistry) TryAcquire(context.Context, string, time.Time) bool {
	r.calls++
	return r.allow
}

func pumpEvent() *detector.Event {
	return &detector.Event{
		ID:           "ev-1",
		Symbol:       "BTCUSDT",
		Exchange:     "Bybit",
		Direction:    detector.DirectionUp,
		VariationPct: 6.5,
		ObservedAt:   time.Now().UTC(),
	}
}

func TestGateAdmits(t *testing.T) {
	reg := &recordingRegistry{allow: true}
	gate := NewGate(GateOptions{MinShortScore: 0.50}, reg, zerolog.Nop())

	if !gate.Admit(context.Background(), pumpEvent(), enrich.Snapshot{}, 0.8, time.Now()) {
		t.Fatal("expected admission")
	}
	if reg.calls != 1 {
		t.Fatalf("expected one cooldown acquire, got %d", reg.calls)
	}
}

func TestGateScoreBar(t *testing.T) {
	reg := &recordingRegistry{allow: true}
	gate := NewGate(GateOptions{MinShortScore: 0.50}, reg, zerolog.Nop())

	// Equal to the bar is still suppressed.
	if gate.Admit(context.Background(), pumpEvent(), enrich.Snapshot{}, 0.50, time.Now()) {
		t.Fatal("score equal to the bar must be suppressed")
	}
	if gate.Admit(context.Background(), pumpEvent(), enrich.Snapshot{}, 0.10, time.Now()) {
		t.Fatal("score below the bar must be suppressed")
	}
	// Score suppression must not consume the cooldown.
	if reg.calls != 0 {
		t.Fatalf("score-suppressed events must not touch the cooldown, got %d acquires", reg.calls)
	}
}

func TestGateCooldownSuppression(t *testing.T) {
	reg := &recordingRegistry{allow: false}
	gate := NewGate(GateOptions{MinShortScore: 0.50}, reg, zerolog.Nop())

	if gate.Admit(context.Background(), pumpEvent(), enrich.Snapshot{}, 0.8, time.Now()) {
		t.Fatal("active cooldown must suppress the alert")
	}
}

func TestGateOIConfirmation(t *testing.T) {
	reg := &recordingRegistry{allow: true}
	gate := NewGate(GateOptions{RequireOIConfirm: true, ConfirmOIPct: 2, MinShortScore: 0.50}, reg, zerolog.Nop())
	ctx := context.Background()

	// Pump without rising OI is suppressed before the cooldown.
	if gate.Admit(ctx, pumpEvent(), enrich.Snapshot{OIDeltaPct: 1}, 0.8, time.Now()) {
		t.Fatal("unconfirmed pump must be suppressed")
	}
	if reg.calls != 0 {
		t.Fatal("confirmation failures must not touch the cooldown")
	}

	if !gate.Admit(ctx, pumpEvent(), enrich.Snapshot{OIDeltaPct: 3}, 0.8, time.Now()) {
		t.Fatal("pump with rising OI must pass")
	}

	dump := pumpEvent()
	dump.Direction = detector.DirectionDown
	if gate.Admit(ctx, dump, enrich.Snapshot{OIDeltaPct: 3}, 0.8, time.Now()) {
		t.Fatal("dump with rising OI must be suppressed")
	}
	if !gate.Admit(ctx, dump, enrich.Snapshot{OIDeltaPct: -3}, 0.8, time.Now()) {
		t.Fatal("dump with falling OI must pass")
	}
}

func TestGateDefaultScoreBar(t *testing.T) {
	reg := &recordingRegistry{allow: true}
	gate := NewGate(GateOptions{}, reg, zerolog.Nop())

	if gate.Admit(context.Background(), pumpEvent(), enrich.Snapshot{}, 0.49, time.Now()) {
		t.Fatal("default bar of 0.50 must apply when unset")
	}
	if !gate.Admit(context.Background(), pumpEvent(), enrich.Snapshot{}, 0.51, time.Now()) {
		t.Fatal("score above the default bar must pass")
	}
}
