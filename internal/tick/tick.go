package tick

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Event is the bitmask carried by every tick on the feed.
type Event int

const (
	Trade Event = 1 << 3
	Ask   Event = 1 << 4
	Bid   Event = 1 << 5
)

func (e Event) Has(flag Event) bool { return e&flag == flag }

// Category is what a tick is drawn as.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryTrade
	CategoryAsk
	CategoryBid
)

func (c Category) String() string {
	switch c {
	case CategoryTrade:
		return "trade"
	case CategoryAsk:
		return "ask"
	case CategoryBid:
		return "bid"
	default:
		return "unknown"
	}
}

// Classify maps an event bitmask to a category. TRADE wins over ASK, ASK over BID.
// A mask with none of the three flags is CategoryUnknown unless unflaggedAsBid is set.
func Classify(e Event, unflaggedAsBid bool) Category {
	switch {
	case e.Has(Trade):
		return CategoryTrade
	case e.Has(Ask):
		return CategoryAsk
	case e.Has(Bid):
		return CategoryBid
	case unflaggedAsBid:
		return CategoryBid
	default:
		return CategoryUnknown
	}
}

// EventFor builds the bitmask recorded files encode as is_trade / is_bid columns.
func EventFor(isTrade, isBid bool) Event {
	switch {
	case isTrade:
		return Trade
	case isBid:
		return Bid
	default:
		return Ask
	}
}

// Tick is one market event: a trade or a level-2 update.
type Tick struct {
	TS     float64 `json:"ts"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Size   float64 `json:"size,omitempty"`
	Seq    int64   `json:"seq,omitempty"`
	Event  Event   `json:"event"`
}

func (t Tick) Category(unflaggedAsBid bool) Category {
	return Classify(t.Event, unflaggedAsBid)
}

var ErrNonPositivePrice = errors.New("price must be positive")

// LogPrice returns the natural log of price. Non-positive prices are rejected.
func LogPrice(price float64) (float64, error) {
	if !(price > 0) {
		return 0, fmt.Errorf("%w: %v", ErrNonPositivePrice, price)
	}
	return math.Log(price), nil
}

// DecodeBatch decodes one feed payload: a JSON array of ticks.
func DecodeBatch(payload []byte) ([]Tick, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	var out []Tick
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("unmarshal tick batch: %w", err)
	}
	return out, nil
}
