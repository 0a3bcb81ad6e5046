package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gdax-tickplot/internal/config"
	"gdax-tickplot/internal/logger"
)

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintf(os.Stderr, "tickplot: %v\n", err)
		os.Exit(1)
	}
}

func realMain() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// flags override the environment
	transport := string(cfg.Feed.Transport)
	flag.StringVar(&cfg.Replay.File, "replay", cfg.Replay.File, "recorded csv to draw once at startup (empty skips replay)")
	flag.BoolVar(&cfg.Replay.SharedZero, "shared-zero", cfg.Replay.SharedZero, "measure every replay series from the first row of the file")
	flag.BoolVar(&cfg.Feed.Enabled, "live", cfg.Feed.Enabled, "poll the live feed")
	flag.StringVar(&transport, "transport", transport, "live transport: redis or broker")
	flag.StringVar(&cfg.Feed.Channel, "channel", cfg.Feed.Channel, "redis channel / broker topic")
	flag.StringVar(&cfg.Feed.Symbol, "symbol", cfg.Feed.Symbol, "instrument to plot")
	flag.StringVar(&cfg.Feed.BrokerURL, "broker", cfg.Feed.BrokerURL, "broker ws url")
	flag.StringVar(&cfg.Redis.Addr, "redis", cfg.Redis.Addr, "redis address")
	flag.BoolVar(&cfg.Feed.RenderTrades, "trades", cfg.Feed.RenderTrades, "draw live trades as a line")
	flag.DurationVar(&cfg.Feed.PollInterval, "poll", cfg.Feed.PollInterval, "live poll interval")
	flag.DurationVar(&cfg.Plot.FrameInterval, "frame", cfg.Plot.FrameInterval, "redraw interval")
	flag.StringVar(&cfg.App.LogLevel, "log-level", cfg.App.LogLevel, "log level")
	flag.Parse()
	cfg.Feed.Transport = config.Transport(transport)

	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(logger.FromApp(cfg.App))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// shutdown signals
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	ui := NewInPlaceUI(log)
	if err := openUI(ui); err != nil {
		return err
	}

	log.Info("tickplot starting",
		zap.String("title", cfg.Title()),
		zap.String("replay", cfg.Replay.File),
		zap.Bool("live", cfg.Feed.Enabled),
		zap.String("transport", transport))

	err = Run(ctx, cfg, log, ui)
	ui.Close()
	if err != nil {
		log.Error("tickplot failed", zap.Error(err))
		return err
	}
	return nil
}
