package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/model"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "flipradar:events"

// RedisPublisher sends events over Redis pub/sub so a worker running in
// another process can reach the API's hub.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

var _ interfaces.EventPublisher = (*RedisPublisher)(nil)

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w: %w", model.ErrUpstreamUnavailable, err)
	}
	return nil
}

// RedisBridge republishes events received on a Redis channel into a local
// publisher, normally the Hub.
type RedisBridge struct {
	client  *redis.Client
	channel string
	target  interfaces.EventPublisher
	logger  logging.Logger
}

func NewRedisBridge(client *redis.Client, channel string, target interfaces.EventPublisher, logger logging.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &RedisBridge{client: client, channel: channel, target: target, logger: logger}
}

// Run subscribes and forwards messages until ctx is cancelled. It returns an
// error only when the subscription cannot be established.
func (b *RedisBridge) Run(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("redis subscribe %s: %w: %w", b.channel, model.ErrUpstreamUnavailable, err)
	}
	b.logger.Info("event bridge subscribed", logging.F("channel", b.channel))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("discarding malformed event", logging.Err(err))
				continue
			}
			if err := b.target.Publish(ctx, ev); err != nil {
				b.logger.Warn("forwarding event", logging.Err(err))
			}
		}
	}
}
