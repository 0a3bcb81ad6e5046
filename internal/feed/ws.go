package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gdax-tickplot/internal/broker"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second

	writeWait  = 5 * time.Second
	pongWait   = 25 * time.Second
	pingPeriod = 10 * time.Second // must stay below pongWait
)

// WSSource subscribes to one topic on the websocket broker and keeps reconnecting until closed.
type WSSource struct {
	log   *zap.Logger
	url   string
	topic string

	msgs   chan Message
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWSSource(ctx context.Context, log *zap.Logger, brokerURL, topic string) (*WSSource, error) {
	if brokerURL == "" {
		return nil, errors.New("missing broker url")
	}
	if topic == "" {
		return nil, errors.New("missing topic")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &WSSource{
		log:    log,
		url:    brokerURL,
		topic:  topic,
		msgs:   make(chan Message, 1024),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(runCtx)
	return s, nil
}

func (s *WSSource) Poll() (Message, bool) {
	select {
	case m, ok := <-s.msgs:
		return m, ok
	default:
		return Message{}, false
	}
}

func (s *WSSource) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *WSSource) run(ctx context.Context) {
	defer close(s.done)

	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := dialWS(ctx, s.url)
		if err != nil {
			s.log.Warn("broker dial failed", zap.String("url", s.url), zap.Error(err), zap.Duration("retry_in", backoff))
			sleep(ctx, backoff)
			backoff = incBackoff(backoff, maxBackoff)
			continue
		}

		// successful connect resets backoff
		backoff = minBackoff
		s.log.Info("broker connected", zap.String("url", s.url), zap.String("topic", s.topic))

		err = s.session(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		s.log.Warn("broker session ended", zap.Error(err), zap.Duration("retry_in", backoff))
		sleep(ctx, backoff)
		backoff = incBackoff(backoff, maxBackoff)
	}
}

func (s *WSSource) session(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(4 << 20)

	// a broker that vanished without a FIN still fails the read
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sessionDone := make(chan struct{})
	defer close(sessionDone)

	// unblock ReadMessage on cancellation
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-sessionDone:
		}
	}()

	var writeMu sync.Mutex

	sub, err := json.Marshal(broker.ClientMessage{Type: broker.TypeSubscribe, Topic: s.topic})
	if err != nil {
		return err
	}
	writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, sub)
	writeMu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", s.topic)
	}

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait))
				writeMu.Unlock()
				if err != nil {
					// the read loop fails right after
					_ = conn.Close()
					return
				}
			case <-sessionDone:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var sm broker.ServerMessage
		if err := json.Unmarshal(data, &sm); err != nil {
			s.log.Warn("ignore malformed broker frame", zap.Error(err))
			continue
		}

		msg := Message{Channel: sm.Topic, Kind: KindControl, Payload: []byte(sm.Message)}
		if sm.Type == broker.TypeEvent {
			msg = Message{Channel: sm.Topic, Kind: KindData, Payload: []byte(sm.Event)}
		}

		select {
		case s.msgs <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func dialWS(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	c, _, err := d.DialContext(ctx, u.String(), nil)
	return c, err
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func incBackoff(cur, max time.Duration) time.Duration {
	n := cur * 2
	if n > max {
		return max
	}
	return n
}
