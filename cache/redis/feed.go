package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/steward"
)

// Feed broadcasts invalidations over Redis pub/sub.
type Feed struct {
	client  goredis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewFeed wraps a Redis client. WithChannel and WithPrefix select the
// channel; other options are ignored.
func NewFeed(client goredis.UniversalClient, opts ...Option) *Feed {
	o := buildOptions(opts)
	return &Feed{client: client, channel: o.channel, logger: o.logger}
}

// Channel returns the pub/sub channel name.
func (f *Feed) Channel() string { return f.channel }

// Publish sends an invalidation to every subscriber.
func (f *Feed) Publish(ctx context.Context, inv steward.Invalidation) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("redis feed: encode: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis feed: publish: %w", err)
	}
	return nil
}

// Subscribe delivers invalidations to fn until ctx is canceled. It returns
// once the server has confirmed the subscription.
func (f *Feed) Subscribe(ctx context.Context, fn func(context.Context, steward.Invalidation)) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis feed: subscribe: %w", err)
	}

	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv steward.Invalidation
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					f.logger.Warn("steward: malformed invalidation",
						slog.String("channel", msg.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				fn(ctx, inv)
			}
		}
	}()
	return nil
}
