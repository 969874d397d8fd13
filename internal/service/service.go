package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"perpwatch/internal/alerting"
	"perpwatch/internal/chart"
	"perpwatch/internal/detector"
	"perpwatch/internal/enrich"
	"perpwatch/internal/storage"
	"perpwatch/internal/window"
)

// Service runs the streaming detection-and-alert pipeline: window updates,
// detection, enrichment, scoring, gating, dispatch. One Service instance is
// shared by all stream clients.
type Service struct {
	store       *window.Store
	det         *detector.Detector
	enricher    *enrich.Fetcher
	gate        *alerting.Gate
	dispatcher  *alerting.Dispatcher
	alertStore  storage.AlertStore
	attachChart bool
	logger      zerolog.Logger
	now         func() time.Time
}

// Options wire the service's collaborators. AlertStore is optional.
type Options struct {
	Store       *window.Store
	Detector    *detector.Detector
	Enricher    *enrich.Fetcher
	Gate        *alerting.Gate
	Dispatcher  *alerting.Dispatcher
	AlertStore  storage.AlertStore
	AttachChart bool
}

// New constructs the pipeline service.
func New(opts Options, logger zerolog.Logger) *Service {
	return &Service{
		store:       opts.Store,
		det:         opts.Detector,
		enricher:    opts.Enricher,
		gate:        opts.Gate,
		dispatcher:  opts.Dispatcher,
		alertStore:  opts.AlertStore,
		attachChart: opts.AttachChart,
		logger:      logger.With().Str("component", "service").Logger(),
		now:         time.Now,
	}
}

// HandleTick ingests one ticker update from a stream client: record the
// sample, evaluate the window, and on a trigger run the rest of the pipeline
// without blocking the stream reader.
func (s *Service) HandleTick(ctx context.Context, exchange, symbol string, price float64, at time.Time) {
	s.store.Record(exchange, symbol, price, at)

	event := s.det.Evaluate(exchange, symbol, at)
	if event == nil {
		return
	}

	s.logger.Info().Str("event_id", event.ID).Str("symbol", event.Symbol).
		Str("exchange", event.Exchange).Str("direction", event.Direction).
		Float64("variation_pct", event.VariationPct).Msg("pump/dump detected")

	go s.handleEvent(ctx, event)
}

func (s *Service) handleEvent(ctx context.Context, event *detector.Event) {
	snapshot := s.enricher.Fetch(ctx, event.Symbol)
	score := snapshot.ShortScore()

	if !s.gate.Admit(ctx, event, snapshot, score, s.now().UTC()) {
		return
	}

	text := alerting.RenderAlert(event, snapshot, score)

	var photo []byte
	if s.attachChart {
		png, err := chart.RenderWindowPNG(event.Symbol, event.Samples)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", event.Symbol).Msg("chart rendering failed")
		} else {
			photo = png
		}
	}

	s.dispatcher.Dispatch(ctx, text, photo)
	s.logger.Info().Str("event_id", event.ID).Str("symbol", event.Symbol).
		Float64("score", score).Msg("alert dispatched")

	s.audit(ctx, event, score)
}

func (s *Service) audit(ctx context.Context, event *detector.Event, score float64) {
	if s.alertStore == nil {
		return
	}
	record := storage.AlertRecord{
		EventID:      event.ID,
		Symbol:       event.Symbol,
		Exchange:     event.Exchange,
		Direction:    event.Direction,
		VariationPct: decimal.NewFromFloat(event.VariationPct),
		ShortScore:   decimal.NewFromFloat(score),
		ObservedAt:   event.ObservedAt,
	}
	if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to persist alert record")
	}
}

// EvaluateShort runs the on-demand enrichment and scoring path for a single
// symbol without requiring a live trigger.
func (s *Service) EvaluateShort(ctx context.Context, symbol string) (enrich.Snapshot, float64) {
	snapshot := s.enricher.Fetch(ctx, symbol)
	return snapshot, snapshot.ShortScore()
}
