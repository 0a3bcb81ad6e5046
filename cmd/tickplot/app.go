package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gdax-tickplot/internal/classifier"
	"gdax-tickplot/internal/config"
	"gdax-tickplot/internal/feed"
	"gdax-tickplot/internal/plot"
	"gdax-tickplot/internal/replay"
)

const keyCtrlC = 3

// screen is what the loop draws on. InPlaceUI is the terminal one.
type screen interface {
	Draw(block string) error
	Size() (int, int)
	Keys() <-chan byte
}

type sourceOpener func(ctx context.Context, cfg *config.Config, log *zap.Logger) (feed.Source, error)

func Run(ctx context.Context, cfg *config.Config, log *zap.Logger, scr screen) error {
	return run(ctx, cfg, log, scr, openSource)
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, scr screen, open sourceOpener) error {
	opts := []plot.Option{plot.WithTitle(cfg.Title())}
	if !cfg.Plot.Color {
		opts = append(opts, plot.WithoutColor())
	}
	canvas := plot.NewCanvas(opts...)

	if cfg.Replay.File != "" {
		if err := loadReplay(cfg.Replay, canvas, log); err != nil {
			return err
		}
	}

	var (
		cls   *classifier.Classifier
		src   feed.Source
		pollC <-chan time.Time
	)
	if cfg.Feed.Enabled {
		var err error
		src, err = open(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := src.Close(); err != nil {
				log.Warn("close feed source", zap.Error(err))
			}
			log.Info("feed totals", zap.Any("stats", cls.Totals()))
		}()

		cls = classifier.New(classifier.Config{
			Symbol:         cfg.Feed.Symbol,
			RenderTrades:   cfg.Feed.RenderTrades,
			UnflaggedAsBid: cfg.Feed.UnflaggedAsBid,
			Retain:         cfg.Feed.Retain,
		}, canvas, log)

		poll := time.NewTicker(cfg.Feed.PollInterval)
		defer poll.Stop()
		pollC = poll.C
	}

	frame := time.NewTicker(cfg.Plot.FrameInterval)
	defer frame.Stop()

	var (
		drawnVersion uint64
		drawnW       int
		drawnH       int
		drawn        bool
	)
	redraw := func() error {
		w, h := scr.Size()
		v := canvas.Version()
		if drawn && v == drawnVersion && w == drawnW && h == drawnH {
			return nil
		}
		if err := scr.Draw(canvas.Frame(w, h)); err != nil {
			return errors.Wrap(err, "draw frame")
		}
		drawnVersion, drawnW, drawnH, drawn = v, w, h, true
		return nil
	}
	if err := redraw(); err != nil {
		return err
	}

	keys := scr.Keys()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-pollC:
			if st := cls.Drain(src); st.Messages > 0 {
				log.Debug("drained feed", zap.Any("stats", st))
			}

		case <-frame.C:
			if err := redraw(); err != nil {
				return err
			}

		case k, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			if k == 'q' || k == 'Q' || k == keyCtrlC {
				log.Info("window closed by user")
				return nil
			}
		}
	}
}

// loadReplay draws the recorded file once: bids, asks, then trades.
func loadReplay(cfg config.ReplayConfig, surface plot.Surface, log *zap.Logger) error {
	rows, err := replay.LoadFile(cfg.File)
	if err != nil {
		return err
	}

	series := replay.Build(rows, replay.Options{SharedZero: cfg.SharedZero})
	if series.Rejected > 0 {
		log.Warn("replay rows rejected", zap.String("file", cfg.File), zap.Int("rejected", series.Rejected))
	}
	replay.Render(surface, series)

	log.Info("replay loaded",
		zap.String("file", cfg.File),
		zap.Int("rows", len(rows)),
		zap.Int("bids", len(series.Bids)),
		zap.Int("asks", len(series.Asks)),
		zap.Int("trades", len(series.Trades)))
	return nil
}

func openSource(ctx context.Context, cfg *config.Config, log *zap.Logger) (feed.Source, error) {
	switch cfg.Feed.Transport {
	case config.TransportRedis:
		return feed.NewRedisSource(ctx, log, cfg.Redis, cfg.Feed.Channel)
	case config.TransportBroker:
		return feed.NewWSSource(ctx, log, cfg.Feed.BrokerURL, cfg.Feed.Channel)
	default:
		return nil, errors.Errorf("unknown feed transport %q", cfg.Feed.Transport)
	}
}
