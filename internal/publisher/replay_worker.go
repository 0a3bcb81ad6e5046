package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gdax-tickplot/internal/replay"
	"gdax-tickplot/internal/tick"
)

// ReplayWorker republishes a recorded file as live tick batches.
// It remembers how far it got, so a restarted Run continues with the next unsent batch.
type ReplayWorker struct {
	Rows      []replay.Row
	Symbol    string
	Topic     string
	BatchSize int
	// Speed divides the recorded gaps between batches. Zero publishes as fast as possible.
	Speed float64
	Log   *zap.Logger

	next    int
	batches int
}

// Ticks converts recorded rows into wire ticks for symbol.
func Ticks(rows []replay.Row, symbol string) []tick.Tick {
	out := make([]tick.Tick, len(rows))
	for i, r := range rows {
		out[i] = tick.Tick{
			TS:     r.TS,
			Symbol: symbol,
			Price:  r.Price,
			Size:   r.Size,
			Seq:    r.Seq,
			Event:  tick.EventFor(r.IsTrade, r.IsBid),
		}
	}
	return out
}

func (w *ReplayWorker) Run(ctx context.Context, pub Publisher) error {
	if w.Topic == "" {
		return errors.New("replay topic is empty")
	}
	if w.Symbol == "" {
		return errors.New("replay symbol is empty")
	}
	if w.BatchSize <= 0 {
		return errors.Errorf("invalid batch size %d", w.BatchSize)
	}
	if w.Speed < 0 {
		return errors.Errorf("invalid replay speed %v", w.Speed)
	}
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}

	prevTS, paced := 0.0, false
	if w.next > 0 {
		prevTS, paced = w.Rows[w.next-1].TS, true
	}

	for w.next < len(w.Rows) {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(w.next+w.BatchSize, len(w.Rows))
		batch := w.Rows[w.next:end]

		if paced && w.Speed > 0 {
			sleep(ctx, gap(prevTS, batch[0].TS, w.Speed))
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		payload, err := json.Marshal(Ticks(batch, w.Symbol))
		if err != nil {
			return errors.Wrap(err, "encode tick batch")
		}
		// bubble publish errors so the supervisor can redial
		if err := pub.Publish(ctx, w.Topic, payload); err != nil {
			return err
		}

		w.next = end
		w.batches++
		prevTS, paced = batch[len(batch)-1].TS, true

		log.Debug("published batch",
			zap.String("topic", w.Topic),
			zap.Int("ticks", len(batch)),
			zap.Int("sent", w.next),
			zap.Int("total", len(w.Rows)))
	}
	return nil
}

// Sent reports how many rows have been published.
func (w *ReplayWorker) Sent() int { return w.next }

// Batches reports how many batches have been published.
func (w *ReplayWorker) Batches() int { return w.batches }

func gap(from, to, speed float64) time.Duration {
	d := (to - from) / speed
	if d <= 0 {
		return 0
	}
	return time.Duration(d * float64(time.Second))
}
