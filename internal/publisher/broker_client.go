package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"gdax-tickplot/internal/broker"
)

const writeWait = 5 * time.Second

type BrokerClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func DialBroker(ctx context.Context, brokerURL string) (*BrokerClient, error) {
	c, err := dialWS(ctx, brokerURL, 10*time.Second)
	if err != nil {
		return nil, errors.Wrapf(err, "dial broker %s", brokerURL)
	}
	c.SetReadLimit(4 << 20)
	enableAutoPong(c)
	return &BrokerClient{conn: c}, nil
}

func (bc *BrokerClient) Close() error {
	if bc == nil || bc.conn == nil {
		return nil
	}
	return bc.conn.Close()
}

// StartReadPump drains broker replies so the TCP buffers don't fill.
// Error replies are handed to onError. The channel yields the terminal read error.
func (bc *BrokerClient) StartReadPump(ctx context.Context, onError func(broker.ServerMessage)) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		if bc == nil || bc.conn == nil {
			ch <- errors.New("broker conn is nil")
			return
		}

		go func() {
			<-ctx.Done()
			_ = bc.conn.Close()
		}()

		for {
			_, data, err := bc.conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				ch <- err
				return
			}

			var sm broker.ServerMessage
			if json.Unmarshal(data, &sm) == nil && sm.Type == broker.TypeError && onError != nil {
				onError(sm)
			}
		}
	}()
	return ch
}

func (bc *BrokerClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if bc == nil || bc.conn == nil {
		return errors.New("broker client is nil")
	}

	wire, err := json.Marshal(broker.ClientMessage{
		Type:  broker.TypePublish,
		Topic: topic,
		Event: json.RawMessage(payload),
	})
	if err != nil {
		return errors.Wrap(err, "encode publish frame")
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	bc.writeMu.Lock()
	defer bc.writeMu.Unlock()
	_ = bc.conn.SetWriteDeadline(deadline)
	return bc.conn.WriteMessage(websocket.TextMessage, wire)
}
