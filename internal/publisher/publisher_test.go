package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gdax-tickplot/internal/broker"
	"gdax-tickplot/internal/replay"
	"gdax-tickplot/internal/tick"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	sent   []published
	failAt int // 1-based call number that fails, 0 never
	calls  int
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	f.calls++
	if f.calls == f.failAt {
		return errors.New("connection reset")
	}
	f.sent = append(f.sent, published{topic: topic, payload: append([]byte(nil), payload...)})
	return nil
}

type fakeRedis struct {
	channel string
	message interface{}
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel, f.message = channel, message
	return redis.NewIntResult(1, f.err)
}

func rows(n int) []replay.Row {
	out := make([]replay.Row, n)
	for i := range out {
		out[i] = replay.Row{TS: float64(i), Seq: int64(i + 1), IsBid: i%2 == 0, Price: 100 + float64(i), Size: 1}
	}
	out[n-1].IsTrade = true
	return out
}

func decode(t *testing.T, payload []byte) []tick.Tick {
	t.Helper()
	ticks, err := tick.DecodeBatch(payload)
	require.NoError(t, err)
	return ticks
}

func TestTicks(t *testing.T) {
	got := Ticks([]replay.Row{
		{TS: 0, Seq: 1, IsBid: true, Price: 100, Size: 1},
		{TS: 1, Seq: 2, Price: 110, Size: 2},
		{TS: 2, Seq: 3, IsTrade: true, IsBid: true, Price: 105, Size: 3},
	}, "ETH-USD")

	assert.Equal(t, []tick.Tick{
		{TS: 0, Symbol: "ETH-USD", Price: 100, Size: 1, Seq: 1, Event: tick.Bid},
		{TS: 1, Symbol: "ETH-USD", Price: 110, Size: 2, Seq: 2, Event: tick.Ask},
		{TS: 2, Symbol: "ETH-USD", Price: 105, Size: 3, Seq: 3, Event: tick.Trade},
	}, got)
}

func TestReplayWorker_Batches(t *testing.T) {
	pub := &fakePublisher{}
	w := &ReplayWorker{Rows: rows(5), Symbol: "ETH-USD", Topic: "gdax", BatchSize: 2}

	require.NoError(t, w.Run(context.Background(), pub))

	require.Len(t, pub.sent, 3)
	assert.Len(t, decode(t, pub.sent[0].payload), 2)
	assert.Len(t, decode(t, pub.sent[1].payload), 2)
	last := decode(t, pub.sent[2].payload)
	require.Len(t, last, 1)
	assert.Equal(t, tick.CategoryTrade, last[0].Category(false))
	assert.Equal(t, "gdax", pub.sent[0].topic)
	assert.Equal(t, 5, w.Sent())
	assert.Equal(t, 3, w.Batches())
}

func TestReplayWorker_ResumesAfterFailure(t *testing.T) {
	pub := &fakePublisher{failAt: 2}
	w := &ReplayWorker{Rows: rows(4), Symbol: "ETH-USD", Topic: "gdax", BatchSize: 2}

	require.Error(t, w.Run(context.Background(), pub))
	assert.Equal(t, 2, w.Sent())

	require.NoError(t, w.Run(context.Background(), pub))
	require.Len(t, pub.sent, 2)
	second := decode(t, pub.sent[1].payload)
	assert.Equal(t, int64(3), second[0].Seq)
	assert.Equal(t, 4, w.Sent())
}

func TestReplayWorker_Paces(t *testing.T) {
	rs := []replay.Row{
		{TS: 0, IsBid: true, Price: 1},
		{TS: 0.1, IsBid: true, Price: 1},
	}
	w := &ReplayWorker{Rows: rs, Symbol: "ETH-USD", Topic: "gdax", BatchSize: 1, Speed: 2}

	start := time.Now()
	require.NoError(t, w.Run(context.Background(), &fakePublisher{}))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestReplayWorker_Validation(t *testing.T) {
	testCases := []struct {
		name string
		w    ReplayWorker
	}{
		{name: "no topic", w: ReplayWorker{Symbol: "ETH-USD", BatchSize: 1}},
		{name: "no symbol", w: ReplayWorker{Topic: "gdax", BatchSize: 1}},
		{name: "zero batch", w: ReplayWorker{Topic: "gdax", Symbol: "ETH-USD"}},
		{name: "negative speed", w: ReplayWorker{Topic: "gdax", Symbol: "ETH-USD", BatchSize: 1, Speed: -1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.w.Run(context.Background(), &fakePublisher{}))
		})
	}
}

func TestReplayWorker_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &ReplayWorker{Rows: rows(3), Symbol: "ETH-USD", Topic: "gdax", BatchSize: 1}
	assert.ErrorIs(t, w.Run(ctx, &fakePublisher{}), context.Canceled)
}

func TestGap(t *testing.T) {
	assert.Equal(t, time.Second, gap(1, 3, 2))
	assert.Equal(t, time.Duration(0), gap(3, 1, 1))
}

func TestRedisPublisher(t *testing.T) {
	fr := &fakeRedis{}
	p := &RedisPublisher{client: fr}

	require.NoError(t, p.Publish(context.Background(), "gdax", []byte(`[]`)))
	assert.Equal(t, "gdax", fr.channel)
	assert.Equal(t, []byte(`[]`), fr.message)

	fr.err = errors.New("down")
	err := p.Publish(context.Background(), "gdax", []byte(`[]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish to gdax")
}

func TestRunSupervisor_PublishesThroughBroker(t *testing.T) {
	b := broker.New(zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(b.ServeWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	sub, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.WriteJSON(broker.ClientMessage{Type: broker.TypeSubscribe, Topic: "gdax"}))

	var ack broker.ServerMessage
	require.NoError(t, sub.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, sub.ReadJSON(&ack))
	require.Equal(t, broker.TypeAck, ack.Type)

	w := &ReplayWorker{Rows: rows(3), Symbol: "ETH-USD", Topic: "gdax", BatchSize: 2}
	require.NoError(t, RunSupervisor(context.Background(), SupervisorConfig{BrokerURL: url, Worker: w}))

	var got []tick.Tick
	for len(got) < 3 {
		var ev broker.ServerMessage
		require.NoError(t, sub.ReadJSON(&ev))
		require.Equal(t, broker.TypeEvent, ev.Type)
		var batch []tick.Tick
		require.NoError(t, json.Unmarshal(ev.Event, &batch))
		got = append(got, batch...)
	}
	assert.Equal(t, Ticks(rows(3), "ETH-USD"), got)
}

func TestRunSupervisor_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w := &ReplayWorker{Rows: rows(1), Symbol: "ETH-USD", Topic: "gdax", BatchSize: 1}
	err := RunSupervisor(ctx, SupervisorConfig{BrokerURL: "ws://127.0.0.1:1/ws", Worker: w})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, w.Sent())
}

func TestRunSupervisor_Validation(t *testing.T) {
	assert.Error(t, RunSupervisor(context.Background(), SupervisorConfig{Worker: &ReplayWorker{}}))
	assert.Error(t, RunSupervisor(context.Background(), SupervisorConfig{BrokerURL: "ws://x"}))
}
