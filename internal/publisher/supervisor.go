package publisher

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gdax-tickplot/internal/broker"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

type SupervisorConfig struct {
	BrokerURL string
	Worker    *ReplayWorker
	Log       *zap.Logger
}

// RunSupervisor keeps a broker session alive until the worker has published every row.
// A failed dial or session is retried with exponential backoff and the worker resumes where it stopped.
func RunSupervisor(ctx context.Context, cfg SupervisorConfig) error {
	if cfg.BrokerURL == "" {
		return errors.New("missing broker url")
	}
	if cfg.Worker == nil {
		return errors.New("missing replay worker")
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		bc, err := DialBroker(ctx, cfg.BrokerURL)
		if err != nil {
			log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			sleep(ctx, backoff)
			backoff = incBackoff(backoff, maxBackoff)
			continue
		}
		log.Info("connected to broker", zap.String("url", cfg.BrokerURL))
		backoff = minBackoff

		runCtx, cancel := context.WithCancel(ctx)

		brokerErrCh := bc.StartReadPump(runCtx, func(sm broker.ServerMessage) {
			log.Warn("broker rejected frame", zap.String("topic", sm.Topic), zap.String("message", sm.Message))
		})
		workerErrCh := make(chan error, 1)
		go func() {
			workerErrCh <- cfg.Worker.Run(runCtx, bc)
		}()

		var (
			terminalErr error
			workerDone  bool
		)
		select {
		case <-ctx.Done():
			terminalErr = ctx.Err()

		case err := <-brokerErrCh:
			terminalErr = errors.Wrap(err, "broker read loop ended")

		case err := <-workerErrCh:
			workerDone = true
			if err != nil {
				terminalErr = errors.Wrap(err, "replay worker")
			}
		}

		cancel()
		_ = bc.Close()
		// the worker must be stopped before it can resume on a new session
		if !workerDone {
			<-workerErrCh
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if terminalErr == nil {
			log.Info("replay finished",
				zap.Int("rows", cfg.Worker.Sent()),
				zap.Int("batches", cfg.Worker.Batches()))
			return nil
		}

		log.Warn("restarting after error", zap.Error(terminalErr), zap.Duration("retry_in", backoff))
		sleep(ctx, backoff)
		backoff = incBackoff(backoff, maxBackoff)
	}
}
