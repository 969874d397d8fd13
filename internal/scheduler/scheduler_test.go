package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var ticks atomic.Int64
	go func() {
		for {
			if ticks.Load() >= 3 {
				cancel()
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	err := s.Run(ctx, func(ctx context.Context, at time.Time) error {
		ticks.Add(1)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ticks.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
	}
}

func TestRunContinuesAfterTickError(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
			if ticks.Add(1) >= 3 {
				cancel()
			}
			return errors.New("tick failed")
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not survive tick errors")
	}
	if ticks.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
	}
}

func TestRunHonorsStartupDelay(t *testing.T) {
	s := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, func(ctx context.Context, at time.Time) error {
		t.Fatal("tick must not run before the startup delay")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
