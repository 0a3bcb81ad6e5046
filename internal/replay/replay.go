package replay

import (
	"gdax-tickplot/internal/plot"
	"gdax-tickplot/internal/tick"
)

// Replay draw styles. Bids are crosses and asks circles, trades a red line.
var (
	BidStyle   = plot.Style{Marker: plot.MarkerPlus, Label: "bid"}
	AskStyle   = plot.Style{Marker: plot.MarkerCircle, Label: "ask"}
	TradeStyle = plot.Style{Line: true, Color: plot.ColorRed, Label: "trade"}
)

// Partition holds rows grouped by kind, each in file order.
type Partition struct {
	Trades []Row
	Asks   []Row
	Bids   []Row
}

// Split places every row in exactly one bucket. Trades win over the bid flag.
func Split(rows []Row) Partition {
	var p Partition
	for _, r := range rows {
		switch {
		case r.IsTrade:
			p.Trades = append(p.Trades, r)
		case r.IsBid:
			p.Bids = append(p.Bids, r)
		default:
			p.Asks = append(p.Asks, r)
		}
	}
	return p
}

func (p Partition) Len() int {
	return len(p.Trades) + len(p.Asks) + len(p.Bids)
}

type Options struct {
	// SharedZero measures every series from the first accepted row of the file
	// instead of from the first row of its own kind.
	SharedZero bool
}

// Series are the points handed to the surface.
type Series struct {
	Bids   []plot.Point
	Asks   []plot.Point
	Trades []plot.Point

	// Rejected counts rows dropped because their price is not positive.
	Rejected int
}

// Build log-transforms prices and shifts time so that series start at zero.
func Build(rows []Row, opts Options) Series {
	var (
		s        Series
		accepted = make([]Row, 0, len(rows))
	)
	for _, r := range rows {
		if _, err := tick.LogPrice(r.Price); err != nil {
			s.Rejected++
			continue
		}
		accepted = append(accepted, r)
	}

	p := Split(accepted)
	zero := func(rs []Row) float64 {
		if opts.SharedZero {
			return accepted[0].TS
		}
		return rs[0].TS
	}
	points := func(rs []Row) []plot.Point {
		if len(rs) == 0 {
			return nil
		}
		z := zero(rs)
		out := make([]plot.Point, len(rs))
		for i, r := range rs {
			y, _ := tick.LogPrice(r.Price)
			out[i] = plot.Point{X: r.TS - z, Y: y}
		}
		return out
	}

	s.Bids = points(p.Bids)
	s.Asks = points(p.Asks)
	s.Trades = points(p.Trades)
	return s
}

// Render issues exactly three draw calls: bids, asks, trades. Empty series are drawn too.
func Render(surface plot.Surface, s Series) {
	surface.Render(s.Bids, BidStyle)
	surface.Render(s.Asks, AskStyle)
	surface.Render(s.Trades, TradeStyle)
}
