package broker

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const sendBuffer = 256

// Broker fans tick batches published on a topic out to every websocket subscriber of that topic.
type Broker struct {
	log *zap.Logger

	mu     sync.RWMutex
	topics map[string]map[*peer]struct{}
}

func New(log *zap.Logger) *Broker {
	return &Broker{
		log:    log,
		topics: make(map[string]map[*peer]struct{}),
	}
}

type peer struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	subs   map[string]struct{}
	closed bool
}

func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		// local feed relay; origin is not checked
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("upgrade ws failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	p := &peer{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]struct{}),
	}
	conn.SetReadLimit(4 << 20)

	b.log.Debug("peer connected", zap.String("remote", r.RemoteAddr))
	go b.writeLoop(p)
	b.readLoop(p)
}

// Publish broadcasts a tick batch to the topic's subscribers from inside the process.
func (b *Broker) Publish(topic string, event json.RawMessage) {
	b.broadcast(topic, event)
}

// Subscribers reports how many peers currently follow topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *Broker) readLoop(p *peer) {
	defer func() {
		b.dropPeer(p)
		_ = p.conn.Close()

		p.mu.Lock()
		p.closed = true
		close(p.send)
		p.mu.Unlock()
	}()

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.reply(p, TypeError, "invalid json")
			continue
		}
		if msg.Topic == "" {
			b.reply(p, TypeError, "missing topic")
			continue
		}

		switch msg.Type {
		case TypeSubscribe:
			b.subscribe(p, msg.Topic)
			b.reply(p, TypeAck, "subscribed "+msg.Topic)

		case TypeUnsubscribe:
			b.unsubscribe(p, msg.Topic)
			b.reply(p, TypeAck, "unsubscribed "+msg.Topic)

		case TypePublish:
			if len(msg.Event) == 0 {
				b.reply(p, TypeError, "missing event")
				continue
			}
			b.broadcast(msg.Topic, msg.Event)

		default:
			b.reply(p, TypeError, "unknown type")
		}
	}
}

func (b *Broker) writeLoop(p *peer) {
	for data := range p.send {
		if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (b *Broker) subscribe(p *peer, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[topic]; !ok {
		b.topics[topic] = make(map[*peer]struct{})
	}
	b.topics[topic][p] = struct{}{}

	p.mu.Lock()
	p.subs[topic] = struct{}{}
	p.mu.Unlock()
}

func (b *Broker) unsubscribe(p *peer, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.topics[topic]; ok {
		delete(subs, p)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}

	p.mu.Lock()
	delete(p.subs, topic)
	p.mu.Unlock()
}

func (b *Broker) dropPeer(p *peer) {
	p.mu.Lock()
	topics := make([]string, 0, len(p.subs))
	for t := range p.subs {
		topics = append(topics, t)
	}
	p.mu.Unlock()

	for _, t := range topics {
		b.unsubscribe(p, t)
	}
}

func (b *Broker) broadcast(topic string, raw json.RawMessage) {
	data, err := json.Marshal(ServerMessage{Type: TypeEvent, Topic: topic, Event: raw})
	if err != nil {
		b.log.Warn("drop unencodable event", zap.String("topic", topic), zap.Error(err))
		return
	}

	// copy targets so sends happen without the lock
	b.mu.RLock()
	subs := b.topics[topic]
	targets := make([]*peer, 0, len(subs))
	for p := range subs {
		targets = append(targets, p)
	}
	b.mu.RUnlock()

	for _, p := range targets {
		b.enqueue(p, data)
	}
}

func (b *Broker) reply(p *peer, typ, message string) {
	data, _ := json.Marshal(ServerMessage{Type: typ, Message: message})
	b.enqueue(p, data)
}

// enqueue disconnects slow peers instead of blocking the broker.
func (b *Broker) enqueue(p *peer, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	select {
	case p.send <- data:
	default:
		b.log.Warn("slow subscriber disconnected", zap.String("remote", p.conn.RemoteAddr().String()))
		_ = p.conn.Close()
	}
}
