package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gdax-tickplot/internal/feed"
	"gdax-tickplot/internal/plot"
)

type draw struct {
	points []plot.Point
	style  plot.Style
}

type recorder struct {
	draws []draw
}

func (r *recorder) Render(points []plot.Point, style plot.Style) {
	r.draws = append(r.draws, draw{points: points, style: style})
}

type queue struct {
	msgs  []feed.Message
	polls int
}

func (q *queue) Poll() (feed.Message, bool) {
	q.polls++
	if len(q.msgs) == 0 {
		return feed.Message{}, false
	}
	m := q.msgs[0]
	q.msgs = q.msgs[1:]
	return m, true
}

func (q *queue) Close() error { return nil }

func data(payload string) feed.Message {
	return feed.Message{Channel: "gdax", Kind: feed.KindData, Payload: []byte(payload)}
}

func newTestClassifier(cfg Config) (*Classifier, *recorder, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec := &recorder{}
	if cfg.Symbol == "" {
		cfg.Symbol = "ETH-USD"
	}
	return New(cfg, rec, zap.New(core)), rec, logs
}

func TestClassifier_AskDrawsPlus(t *testing.T) {
	c, rec, _ := newTestClassifier(Config{})

	st := c.Drain(&queue{msgs: []feed.Message{
		data(`[{"symbol":"ETH-USD","event":16,"ts":100.0,"price":300.0}]`),
	}})

	require.Len(t, rec.draws, 1)
	assert.Equal(t, []plot.Point{{X: 100, Y: 300}}, rec.draws[0].points)
	assert.Equal(t, plot.MarkerPlus, rec.draws[0].style.Marker)
	assert.False(t, rec.draws[0].style.Line)
	assert.Equal(t, Stats{Messages: 1, Ticks: 1, Asks: 1, Draws: 1}, st)
}

func TestClassifier_OtherSymbolFiltered(t *testing.T) {
	c, rec, logs := newTestClassifier(Config{})

	st := c.Drain(&queue{msgs: []feed.Message{
		data(`[{"symbol":"BTC-USD","event":16,"ts":100.0,"price":30000.0}]`),
	}})

	assert.Empty(t, rec.draws)
	assert.Equal(t, 1, st.Filtered)
	assert.Equal(t, 0, logs.Len(), "filtering is silent")
}

func TestClassifier_Categories(t *testing.T) {
	testCases := []struct {
		name      string
		cfg       Config
		payload   string
		wantDraws []draw
		wantStats Stats
	}{
		{
			name:      "bid draws circle",
			payload:   `[{"symbol":"ETH-USD","event":32,"ts":1,"price":2}]`,
			wantDraws: []draw{{points: []plot.Point{{X: 1, Y: 2}}, style: BidStyle}},
			wantStats: Stats{Messages: 1, Ticks: 1, Bids: 1, Draws: 1},
		},
		{
			name:      "ask wins over bid",
			payload:   `[{"symbol":"ETH-USD","event":48,"ts":1,"price":2}]`,
			wantDraws: []draw{{points: []plot.Point{{X: 1, Y: 2}}, style: AskStyle}},
			wantStats: Stats{Messages: 1, Ticks: 1, Asks: 1, Draws: 1},
		},
		{
			name:      "trades hidden by default",
			payload:   `[{"symbol":"ETH-USD","event":8,"ts":1,"price":2},{"symbol":"ETH-USD","event":56,"ts":2,"price":3}]`,
			wantStats: Stats{Messages: 1, Ticks: 2, Trades: 2},
		},
		{
			name:    "trades drawn as segments when enabled",
			cfg:     Config{RenderTrades: true},
			payload: `[{"symbol":"ETH-USD","event":8,"ts":1,"price":2},{"symbol":"ETH-USD","event":24,"ts":2,"price":3}]`,
			wantDraws: []draw{
				{points: []plot.Point{{X: 1, Y: 2}}, style: TradeStyle},
				{points: []plot.Point{{X: 1, Y: 2}, {X: 2, Y: 3}}, style: TradeStyle},
			},
			wantStats: Stats{Messages: 1, Ticks: 2, Trades: 2, Draws: 2},
		},
		{
			name:      "unflagged rejected",
			payload:   `[{"symbol":"ETH-USD","event":0,"ts":1,"price":2}]`,
			wantStats: Stats{Messages: 1, Ticks: 1, Rejected: 1},
		},
		{
			name:      "unflagged as bid in legacy mode",
			cfg:       Config{UnflaggedAsBid: true},
			payload:   `[{"symbol":"ETH-USD","event":0,"ts":1,"price":2}]`,
			wantDraws: []draw{{points: []plot.Point{{X: 1, Y: 2}}, style: BidStyle}},
			wantStats: Stats{Messages: 1, Ticks: 1, Bids: 1, Draws: 1},
		},
		{
			name:      "non-positive price rejected",
			payload:   `[{"symbol":"ETH-USD","event":16,"ts":1,"price":0},{"symbol":"ETH-USD","event":32,"ts":1,"price":-5}]`,
			wantStats: Stats{Messages: 1, Ticks: 2, Rejected: 2},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec, _ := newTestClassifier(tc.cfg)
			st := c.Handle(data(tc.payload))
			assert.Equal(t, tc.wantDraws, rec.draws)
			assert.Equal(t, tc.wantStats, st)
		})
	}
}

func TestClassifier_MalformedIsLoggedAndSkipped(t *testing.T) {
	c, rec, logs := newTestClassifier(Config{})

	q := &queue{msgs: []feed.Message{
		{Channel: "gdax", Kind: feed.KindControl, Payload: []byte("subscribed gdax")},
		data(`{not json`),
		data(`[{"symbol":"ETH-USD","event":32,"ts":5,"price":7}]`),
	}}
	st := c.Drain(q)

	assert.Equal(t, Stats{Messages: 3, Control: 1, Malformed: 1, Ticks: 1, Bids: 1, Draws: 1}, st)
	require.Len(t, rec.draws, 1)
	assert.Equal(t, []plot.Point{{X: 5, Y: 7}}, rec.draws[0].points)

	warns := logs.FilterLevelExact(zapcore.WarnLevel)
	assert.Equal(t, 1, warns.FilterMessage("skip non-data feed message").Len())
	assert.Equal(t, 1, warns.FilterMessage("skip malformed feed payload").Len())
}

func TestClassifier_RejectionIsLogged(t *testing.T) {
	c, _, logs := newTestClassifier(Config{})
	c.Handle(data(`[{"symbol":"ETH-USD","event":1,"ts":1,"price":2}]`))

	entries := logs.FilterMessage("reject tick").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], ErrUnknownCategory.Error())
}

func TestClassifier_DrainStopsWhenEmpty(t *testing.T) {
	c, _, _ := newTestClassifier(Config{})
	q := &queue{}

	st := c.Drain(q)
	assert.Equal(t, Stats{}, st)
	assert.Equal(t, 1, q.polls)
}

func TestClassifier_HistoryAndTotals(t *testing.T) {
	payload := `[
		{"symbol":"ETH-USD","event":8,"ts":1,"price":10},
		{"symbol":"ETH-USD","event":16,"ts":2,"price":11},
		{"symbol":"ETH-USD","event":32,"ts":3,"price":9}
	]`

	t.Run("not retained by default", func(t *testing.T) {
		c, _, _ := newTestClassifier(Config{})
		c.Handle(data(payload))
		assert.Equal(t, History{}, c.History())
	})

	t.Run("retained", func(t *testing.T) {
		c, _, _ := newTestClassifier(Config{Retain: true})
		c.Handle(data(payload))
		c.Handle(data(payload))

		h := c.History()
		assert.Equal(t, []plot.Point{{X: 1, Y: 10}, {X: 1, Y: 10}}, h.Trades)
		assert.Equal(t, []plot.Point{{X: 2, Y: 11}, {X: 2, Y: 11}}, h.Asks)
		assert.Equal(t, []plot.Point{{X: 3, Y: 9}, {X: 3, Y: 9}}, h.Bids)
		assert.Equal(t, Stats{Messages: 2, Ticks: 6, Trades: 2, Asks: 2, Bids: 2, Draws: 4}, c.Totals())
	})
}
