package publisher

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Publisher delivers one JSON tick batch to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// redisPublishCmd is the part of *redis.Client RedisPublisher needs.
type redisPublishCmd interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher sends batches with PUBLISH, the transport the live viewer listens on by default.
type RedisPublisher struct {
	client redisPublishCmd
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p == nil || p.client == nil {
		return errors.New("redis publisher is nil")
	}
	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}
	return nil
}
