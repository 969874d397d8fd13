package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"perpwatch/internal/alerting"
	"perpwatch/internal/config"
	"perpwatch/internal/detector"
	"perpwatch/internal/enrich"
	"perpwatch/internal/exchange/binance"
	"perpwatch/internal/exchange/bybit"
	"perpwatch/internal/scheduler"
	"perpwatch/internal/service"
	"perpwatch/internal/storage"
	"perpwatch/internal/window"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newBybitClient() *bybit.Client {
	return bybit.NewClient(bybit.Options{
		BaseURL: a.Config.Exchanges.Bybit.RESTBaseURL,
		Timeout: a.Config.Exchanges.Bybit.RequestTimeout,
	}, a.Logger)
}

func (a *App) newEnricher(client *bybit.Client, watcher *bybit.LiquidationWatcher) *enrich.Fetcher {
	scanner := bybit.NewRangeScanner(client, a.Config.Enrich.RangeBlockDays, a.Config.Enrich.RangeMaxDays)
	source := enrich.NewBybitSource(client, scanner, watcher, a.Config.Enrich.OIInterval, a.Config.Enrich.LookbackCount)
	return enrich.NewFetcher(source, a.Logger)
}

// newNotifier returns the delivery transport and the recipient list. Without
// a Telegram configuration alerts go to the log.
func (a *App) newNotifier() (alerting.Notifier, []string) {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.APIBase, 10*time.Second, a.Logger), a.Config.Alerting.Recipients
	}
	return alerting.NewLogNotifier(a.Logger), []string{"log"}
}

func (a *App) newRegistry() alerting.CooldownRegistry {
	if a.Config.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		return alerting.NewRedisRegistry(client, a.Config.Alerting.Cooldown, a.Logger)
	}
	return alerting.NewMemoryRegistry(a.Config.Alerting.Cooldown)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service: the per-exchange stream
// clients, the liquidation watcher, the optional polling variant, and the
// Telegram command poller.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert audit log disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	client := a.newBybitClient()

	symbols, err := client.ListLinearSymbols(ctx, a.Config.Exchanges.QuoteAsset)
	if err != nil {
		return fmt.Errorf("load symbol universe: %w", err)
	}
	a.Logger.Info().Int("symbols", len(symbols)).Str("quote", a.Config.Exchanges.QuoteAsset).Msg("symbol universe loaded")

	watcher := bybit.NewLiquidationWatcher(bybit.StreamOptions{
		URL:     a.Config.Exchanges.Bybit.StreamURL,
		Symbols: symbols,
	}, 0, a.Logger)

	notifier, recipients := a.newNotifier()
	registry := a.newRegistry()
	dispatcher := alerting.NewDispatcher(notifier, recipients, a.Logger)
	gate := alerting.NewGate(alerting.GateOptions{
		RequireOIConfirm: a.Config.Alerting.RequireOIOK,
		ConfirmOIPct:     a.Config.Alerting.ConfirmOIPct,
		MinShortScore:    a.Config.Alerting.MinShortScore,
	}, registry, a.Logger)

	winStore := window.NewStore(a.Config.Detection.Window)
	det := detector.New(winStore, a.Config.Detection.ThresholdPct)

	var alertStore storage.AlertStore
	if store != nil {
		alertStore = store
	}

	svc := service.New(service.Options{
		Store:       winStore,
		Detector:    det,
		Enricher:    a.newEnricher(client, watcher),
		Gate:        gate,
		Dispatcher:  dispatcher,
		AlertStore:  alertStore,
		AttachChart: a.Config.Alerting.AttachChart,
	}, a.Logger)

	var wg sync.WaitGroup
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Str("task", name).Msg("task terminated with error")
			}
		}()
	}

	if a.Config.Exchanges.Bybit.Enabled {
		stream := bybit.NewStream(bybit.StreamOptions{
			URL:        a.Config.Exchanges.Bybit.StreamURL,
			Symbols:    symbols,
			QuoteAsset: a.Config.Exchanges.QuoteAsset,
		}, func(symbol string, price float64, at time.Time) {
			svc.HandleTick(ctx, bybit.Name, symbol, price, at)
		}, a.Logger)
		start("bybit_stream", stream.Run)
	}

	if a.Config.Exchanges.Binance.Enabled {
		stream := binance.NewStream(binance.StreamOptions{
			URL:        a.Config.Exchanges.Binance.StreamURL,
			Symbols:    symbols,
			QuoteAsset: a.Config.Exchanges.QuoteAsset,
		}, func(symbol string, price float64, at time.Time) {
			svc.HandleTick(ctx, binance.Name, symbol, price, at)
		}, a.Logger)
		start("binance_stream", stream.Run)
	}

	start("liquidation_watcher", watcher.Run)

	if a.Config.Polling.Enabled {
		sched := scheduler.New(scheduler.Options{Interval: a.Config.Polling.Interval}, a.Logger)
		poller := service.NewPoller(sched, client, a.Config.Polling, a.Config.Exchanges.QuoteAsset, registry, dispatcher, a.Logger)
		start("poller", poller.Run)
	}

	if a.Config.Alerting.Telegram.Enabled && a.Config.Alerting.CommandsEnabled {
		tg := a.Config.Alerting.Telegram
		commands := alerting.NewCommandPoller(tg.BotToken, tg.APIBase, notifier, recipients, a.statusText, func(ctx context.Context, symbol string) (float64, error) {
			_, score := svc.EvaluateShort(ctx, symbol)
			return score, nil
		}, a.Logger)
		start("command_poller", commands.Run)
	}

	a.Logger.Info().Msg("perpwatch started")
	<-ctx.Done()
	a.Logger.Info().Msg("shutting down")
	wg.Wait()
	return nil
}

func (a *App) statusText() string {
	exchanges := make([]string, 0, 2)
	if a.Config.Exchanges.Bybit.Enabled {
		exchanges = append(exchanges, bybit.Name)
	}
	if a.Config.Exchanges.Binance.Enabled {
		exchanges = append(exchanges, binance.Name)
	}

	builder := strings.Builder{}
	builder.WriteString("perpwatch running\n")
	builder.WriteString(fmt.Sprintf("Exchanges: %s\n", strings.Join(exchanges, ", ")))
	builder.WriteString(fmt.Sprintf("Threshold: %.1f%%\n", a.Config.Detection.ThresholdPct))
	builder.WriteString(fmt.Sprintf("Window: %s\n", a.Config.Detection.Window))
	builder.WriteString(fmt.Sprintf("Cooldown: %s\n", a.Config.Alerting.Cooldown))
	builder.WriteString(fmt.Sprintf("OI confirm: %t (%.1f%%)\n", a.Config.Alerting.RequireOIOK, a.Config.Alerting.ConfirmOIPct))
	builder.WriteString(fmt.Sprintf("Min short score: %.2f", a.Config.Alerting.MinShortScore))
	return builder.String()
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
