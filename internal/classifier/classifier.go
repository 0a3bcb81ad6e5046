package classifier

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gdax-tickplot/internal/feed"
	"gdax-tickplot/internal/plot"
	"gdax-tickplot/internal/tick"
)

var ErrUnknownCategory = errors.New("tick carries no trade/ask/bid flag")

// Live draw styles. Asks are crosses and bids circles; the replay loader draws them the other way round.
var (
	AskStyle   = plot.Style{Marker: plot.MarkerPlus, Label: "live ask"}
	BidStyle   = plot.Style{Marker: plot.MarkerCircle, Label: "live bid"}
	TradeStyle = plot.Style{Line: true, Color: plot.ColorRed, Label: "live trade"}
)

type Config struct {
	// Symbol is the only instrument that passes the filter.
	Symbol string
	// RenderTrades draws trades as a red line; off by default.
	RenderTrades bool
	// UnflaggedAsBid treats ticks without any flag as bids instead of rejecting them.
	UnflaggedAsBid bool
	// Retain keeps classified points in History.
	Retain bool
}

// History holds classified live points when retention is on.
type History struct {
	Trades []plot.Point
	Asks   []plot.Point
	Bids   []plot.Point
}

// Stats summarises one Drain call.
type Stats struct {
	Messages  int
	Control   int
	Malformed int
	Ticks     int
	Filtered  int
	Trades    int
	Asks      int
	Bids      int
	Rejected  int
	Draws     int
}

func (s *Stats) add(o Stats) {
	s.Messages += o.Messages
	s.Control += o.Control
	s.Malformed += o.Malformed
	s.Ticks += o.Ticks
	s.Filtered += o.Filtered
	s.Trades += o.Trades
	s.Asks += o.Asks
	s.Bids += o.Bids
	s.Rejected += o.Rejected
	s.Draws += o.Draws
}

// Classifier routes live ticks for one instrument onto a plot surface, one draw per tick.
type Classifier struct {
	cfg     Config
	surface plot.Surface
	log     *zap.Logger

	lastTrade *plot.Point
	history   History
	total     Stats
}

func New(cfg Config, surface plot.Surface, log *zap.Logger) *Classifier {
	return &Classifier{cfg: cfg, surface: surface, log: log}
}

// Drain handles every message queued on src and returns once src reports nothing pending.
func (c *Classifier) Drain(src feed.Source) Stats {
	var st Stats
	for {
		msg, ok := src.Poll()
		if !ok {
			break
		}
		st.add(c.Handle(msg))
	}
	return st
}

// Handle classifies one feed message. Control frames and undecodable payloads are logged and skipped.
func (c *Classifier) Handle(msg feed.Message) Stats {
	st := Stats{Messages: 1}
	defer func() { c.total.add(st) }()

	if msg.Kind != feed.KindData {
		st.Control++
		c.log.Warn("skip non-data feed message",
			zap.String("channel", msg.Channel),
			zap.Stringer("kind", msg.Kind),
			zap.ByteString("payload", msg.Payload))
		return st
	}

	ticks, err := tick.DecodeBatch(msg.Payload)
	if err != nil {
		st.Malformed++
		c.log.Warn("skip malformed feed payload",
			zap.String("channel", msg.Channel),
			zap.Int("bytes", len(msg.Payload)),
			zap.Error(err))
		return st
	}

	for _, t := range ticks {
		st.Ticks++
		if t.Symbol != c.cfg.Symbol {
			st.Filtered++
			continue
		}
		if err := c.apply(t, &st); err != nil {
			st.Rejected++
			c.log.Warn("reject tick",
				zap.String("symbol", t.Symbol),
				zap.Int64("seq", t.Seq),
				zap.Int("event", int(t.Event)),
				zap.Float64("price", t.Price),
				zap.Error(err))
		}
	}
	return st
}

func (c *Classifier) apply(t tick.Tick, st *Stats) error {
	if _, err := tick.LogPrice(t.Price); err != nil {
		return err
	}
	pt := plot.Point{X: t.TS, Y: t.Price}

	switch cat := t.Category(c.cfg.UnflaggedAsBid); cat {
	case tick.CategoryTrade:
		st.Trades++
		if c.cfg.Retain {
			c.history.Trades = append(c.history.Trades, pt)
		}
		if c.cfg.RenderTrades {
			seg := []plot.Point{pt}
			if c.lastTrade != nil {
				seg = []plot.Point{*c.lastTrade, pt}
			}
			c.surface.Render(seg, TradeStyle)
			st.Draws++
		}
		c.lastTrade = &pt

	case tick.CategoryAsk:
		st.Asks++
		if c.cfg.Retain {
			c.history.Asks = append(c.history.Asks, pt)
		}
		c.surface.Render([]plot.Point{pt}, AskStyle)
		st.Draws++

	case tick.CategoryBid:
		st.Bids++
		if c.cfg.Retain {
			c.history.Bids = append(c.history.Bids, pt)
		}
		c.surface.Render([]plot.Point{pt}, BidStyle)
		st.Draws++

	default:
		return fmt.Errorf("%w: event %d", ErrUnknownCategory, t.Event)
	}
	return nil
}

// History returns the retained points. It is empty unless Config.Retain is set.
func (c *Classifier) History() History {
	return c.history
}

// Totals accumulates every Handle call since construction.
func (c *Classifier) Totals() Stats {
	return c.total
}
