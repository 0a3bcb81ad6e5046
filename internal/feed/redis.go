package feed

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gdax-tickplot/internal/config"
)

// subscription is the part of *redis.PubSub the source needs.
type subscription interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// RedisSource reads tick batches from a redis pub/sub channel.
type RedisSource struct {
	log    *zap.Logger
	client *redis.Client
	sub    subscription
	msgs   <-chan *redis.Message
}

// NewRedisClient builds a standalone client and checks it with PING.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is empty")
	}
	if cfg.ConnectTimeout <= 0 {
		return nil, errors.Errorf("invalid redis connect timeout %s", cfg.ConnectTimeout)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.ConnectTimeout,
		WriteTimeout: cfg.ConnectTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", cfg.Addr)
	}
	return client, nil
}

// NewRedisSource subscribes to channel and waits for the subscription to be confirmed.
func NewRedisSource(ctx context.Context, log *zap.Logger, cfg config.RedisConfig, channel string) (*RedisSource, error) {
	if channel == "" {
		return nil, errors.New("redis channel is empty")
	}
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ps := client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_ = client.Close()
		return nil, errors.Wrapf(err, "subscribe %s", channel)
	}

	log.Info("subscribed to redis channel", zap.String("addr", cfg.Addr), zap.String("channel", channel))

	src := newRedisSource(log, ps, cfg.ChannelSize)
	src.client = client
	return src, nil
}

func newRedisSource(log *zap.Logger, sub subscription, size int) *RedisSource {
	var opts []redis.ChannelOption
	if size > 0 {
		opts = append(opts, redis.WithChannelSize(size))
	}
	return &RedisSource{
		log:  log,
		sub:  sub,
		msgs: sub.Channel(opts...),
	}
}

func (s *RedisSource) Poll() (Message, bool) {
	select {
	case m, ok := <-s.msgs:
		if !ok {
			return Message{}, false
		}
		return Message{Channel: m.Channel, Kind: KindData, Payload: []byte(m.Payload)}, true
	default:
		return Message{}, false
	}
}

func (s *RedisSource) Close() error {
	err := s.sub.Close()
	if s.client != nil {
		if cerr := s.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
