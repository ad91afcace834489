package main

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"dojibot/internal/config"
	"dojibot/internal/daemon"
	"dojibot/internal/notify"
	"dojibot/internal/pattern"
	"dojibot/internal/provider"
	"dojibot/internal/scanner"
	"dojibot/internal/signalcache"
	"dojibot/internal/srzone"
	"dojibot/internal/watchlist"
	"dojibot/internal/web"
	"dojibot/pkg/logger"
)

// newApp assembles the long-running bot
func newApp(cfg *config.Config) *fx.App {
	return fx.New(appOptions(cfg))
}

func appOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Zap()}
		}),
		fx.Provide(
			newCandleSource,
			newCalculator,
			newSnapshotCache,
			newEngine,
			newSignalCache,
			newWatchlist,
			newTelegram,
			newJournal,
			newNotifier,
			newScanner,
			newDaemon,
			newStatusServer,
		),
		// hooks stop in reverse order: daemon, then telegram, then the server
		fx.Invoke(registerStatusServer, registerTelegram, registerDaemon),
	)
}

// newCandleSource builds Binance with the mirror hosts as fallbacks
func newCandleSource(cfg *config.Config) provider.CandleSource {
	primary := provider.NewBinanceSource(cfg.Binance.BaseURL, cfg.Binance.Timeout, cfg.Binance.RequestsPerMinute)
	if len(cfg.Binance.FallbackURLs) == 0 {
		return primary
	}
	sources := []provider.CandleSource{primary}
	for _, u := range cfg.Binance.FallbackURLs {
		sources = append(sources, provider.NewBinanceSource(u, cfg.Binance.Timeout, cfg.Binance.RequestsPerMinute))
	}
	return provider.NewFallbackSource(sources...)
}

func newCalculator(cfg *config.Config, src provider.CandleSource) *srzone.Calculator {
	return srzone.NewCalculator(cfg.SR, src)
}

func newSnapshotCache(calc *srzone.Calculator) *srzone.SnapshotCache {
	return srzone.NewSnapshotCache(calc)
}

func newEngine(cfg *config.Config) *pattern.Engine {
	return pattern.NewEngine(cfg.Pattern)
}

func newSignalCache(cfg *config.Config) *signalcache.Cache {
	return signalcache.New(cfg.Scanner.SignalCacheSize)
}

func newWatchlist(lc fx.Lifecycle, cfg *config.Config) (watchlist.Store, error) {
	if strings.ToLower(cfg.Watchlist.Backend) != "redis" {
		return watchlist.NewFileStore(cfg.Watchlist.Path, cfg.Watchlist.Defaults)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := watchlist.NewRedisStore(ctx, watchlist.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	}, cfg.Watchlist.Defaults)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

// newTelegram returns nil when no bot token is configured
func newTelegram(cfg *config.Config, store watchlist.Store) (*notify.Telegram, error) {
	if cfg.Telegram.Token == "" {
		logger.Warn("[TELEGRAM] No bot token, channel alerts and commands disabled")
		return nil, nil
	}
	return notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChannelID, cfg.Telegram.AdminChatID, store, nil)
}

// newJournal returns nil when no database is configured
func newJournal(lc fx.Lifecycle, cfg *config.Config) (*notify.Journal, error) {
	if cfg.Database.URL == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	j, err := notify.NewJournal(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			j.Close()
			return nil
		},
	})
	return j, nil
}

func newNotifier(tg *notify.Telegram, j *notify.Journal) notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLog()}
	if tg != nil {
		notifiers = append(notifiers, tg)
	}
	if j != nil {
		notifiers = append(notifiers, j)
	}
	return notify.NewMulti(notifiers...)
}

func newScanner(cfg *config.Config, src provider.CandleSource, zones *srzone.SnapshotCache, engine *pattern.Engine,
	fired *signalcache.Cache, n notify.Notifier, store watchlist.Store) *scanner.Scanner {
	return scanner.NewScanner(scanner.Config{
		Timeframes: cfg.Scanner.Timeframes,
		Workers:    cfg.Scanner.Workers,
		FetchLimit: cfg.Scanner.FetchLimit,
		Pacing:     cfg.Scanner.Pacing,
		Grace:      cfg.Scanner.Grace,
	}, src, zones, engine, fired, n, store)
}

func newDaemon(cfg *config.Config, sc *scanner.Scanner) *daemon.Daemon {
	return daemon.NewDaemon(daemon.Config{
		Timeframes:   cfg.Scanner.Timeframes,
		ErrorBackoff: cfg.Scanner.ErrorBackoff,
	}, sc)
}

// newStatusServer returns nil when http.addr is empty
func newStatusServer(cfg *config.Config, d *daemon.Daemon, fired *signalcache.Cache, zones *srzone.SnapshotCache, store watchlist.Store) *web.Server {
	if cfg.HTTP.Addr == "" {
		return nil
	}
	return web.NewServer(cfg.HTTP.Addr, d, fired, zones, store)
}

func registerStatusServer(lc fx.Lifecycle, srv *web.Server) {
	if srv == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func registerTelegram(lc fx.Lifecycle, cfg *config.Config, tg *notify.Telegram, d *daemon.Daemon, fired *signalcache.Cache) {
	if tg == nil {
		return
	}
	tg.SetStatusFunc(func() notify.BotStatus {
		return notify.BotStatus{
			Timeframes:       cfg.Scanner.Timeframes,
			DojiThresholdPct: cfg.Pattern.DojiThresholdPct,
			VolumeRatio:      cfg.Pattern.VolumeRatio,
			CachedSignals:    fired.Len(),
			State:            string(d.Status().State),
		}
	})

	// the command loop outlives the start context
	loopCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return tg.Start(loopCtx)
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			tg.Stop()
			return nil
		},
	})
}

func registerDaemon(lc fx.Lifecycle, d *daemon.Daemon) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := d.Run(); err != nil {
					logger.Error("[DAEMON] %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Stop()
			select {
			case <-d.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
