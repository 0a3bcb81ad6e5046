package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gdax-tickplot/internal/config"
	"gdax-tickplot/internal/feed"
	"gdax-tickplot/internal/logger"
	"gdax-tickplot/internal/publisher"
	"gdax-tickplot/internal/replay"
)

func main() {
	if err := realMain(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "tickpub: %v\n", err)
		os.Exit(1)
	}
}

func realMain() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	transport := string(cfg.Feed.Transport)
	flag.StringVar(&cfg.Replay.File, "file", cfg.Replay.File, "recorded csv to publish")
	flag.StringVar(&transport, "transport", transport, "where to publish: redis or broker")
	flag.StringVar(&cfg.Feed.Channel, "channel", cfg.Feed.Channel, "redis channel / broker topic")
	flag.StringVar(&cfg.Feed.Symbol, "symbol", cfg.Feed.Symbol, "symbol stamped on every tick")
	flag.StringVar(&cfg.Feed.BrokerURL, "broker", cfg.Feed.BrokerURL, "broker ws url")
	flag.StringVar(&cfg.Redis.Addr, "redis", cfg.Redis.Addr, "redis address")
	flag.IntVar(&cfg.Pub.BatchSize, "batch", cfg.Pub.BatchSize, "ticks per published message")
	flag.Float64Var(&cfg.Pub.Speed, "speed", cfg.Pub.Speed, "replay speed multiplier, 0 publishes without pauses")
	flag.StringVar(&cfg.App.LogLevel, "log-level", cfg.App.LogLevel, "log level")
	flag.Parse()
	cfg.Feed.Transport = config.Transport(transport)

	if cfg.Replay.File == "" {
		return errors.New("missing -file")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lc := logger.FromApp(cfg.App)
	lc.Console = true
	log, err := logger.New(lc)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	return publish(ctx, cfg, log, dialRedis)
}

// redisDialer opens the redis publisher and returns its closer.
type redisDialer func(ctx context.Context, cfg config.RedisConfig) (publisher.Publisher, func() error, error)

func dialRedis(ctx context.Context, cfg config.RedisConfig) (publisher.Publisher, func() error, error) {
	client, err := feed.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return publisher.NewRedisPublisher(client), client.Close, nil
}

// publish loads the recording and sends it over the configured transport.
func publish(ctx context.Context, cfg *config.Config, log *zap.Logger, newRedis redisDialer) error {
	rows, err := replay.LoadFile(cfg.Replay.File)
	if err != nil {
		return err
	}
	w := &publisher.ReplayWorker{
		Rows:      rows,
		Symbol:    cfg.Feed.Symbol,
		Topic:     cfg.Feed.Channel,
		BatchSize: cfg.Pub.BatchSize,
		Speed:     cfg.Pub.Speed,
		Log:       log,
	}
	log.Info("publishing recording",
		zap.String("file", cfg.Replay.File),
		zap.Int("rows", len(rows)),
		zap.String("transport", string(cfg.Feed.Transport)),
		zap.String("topic", w.Topic),
		zap.Float64("speed", w.Speed))

	switch cfg.Feed.Transport {
	case config.TransportBroker:
		return publisher.RunSupervisor(ctx, publisher.SupervisorConfig{
			BrokerURL: cfg.Feed.BrokerURL,
			Worker:    w,
			Log:       log,
		})

	case config.TransportRedis:
		pub, closeFn, err := newRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = closeFn() }()

		if err := w.Run(ctx, pub); err != nil {
			return err
		}
		log.Info("replay finished", zap.Int("rows", w.Sent()), zap.Int("batches", w.Batches()))
		return nil

	default:
		return errors.Errorf("unknown transport %q", cfg.Feed.Transport)
	}
}
