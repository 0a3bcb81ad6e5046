package feed

// Kind tells tick payloads apart from transport chatter (subscribe confirmations, broker acks).
type Kind int

const (
	KindData Kind = iota
	KindControl
)

func (k Kind) String() string {
	if k == KindData {
		return "data"
	}
	return "control"
}

// Message is one delivery from the feed. Data payloads are JSON tick arrays.
type Message struct {
	Channel string
	Kind    Kind
	Payload []byte
}

// Source is a pub/sub subscription polled from the UI loop.
type Source interface {
	// Poll returns the next queued message without blocking; ok is false when nothing is pending.
	Poll() (msg Message, ok bool)
	Close() error
}
