// Package redisbridge relays hub events between service nodes sharing one redis instance, so
// clients connected to different nodes converge on the same document changes.
package redisbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bloops-games/carousing/internal/broadcast"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "carousing:events"

type Config struct {
	Channel string
	NodeID  string
	Buffer  int
}

func New(client *redis.Client, hub *broadcast.Hub, config Config) *Bridge {
	if config.Channel == "" {
		config.Channel = DefaultChannel
	}
	if config.Buffer <= 0 {
		config.Buffer = 64
	}

	return &Bridge{client: client, hub: hub, config: config}
}

type Bridge struct {
	client *redis.Client
	hub    *broadcast.Hub
	config Config
}

// Run forwards local events to redis and remote events into the hub until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("redisbridge.Run")

	pubsub := b.client.Subscribe(ctx, b.config.Channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.config.Channel, err)
	}

	local, cancel := b.hub.Subscribe(b.config.Buffer)
	defer cancel()

	remote := pubsub.Channel()
	logger.Infof("relaying events on %s as node %s", b.config.Channel, b.config.NodeID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-local:
			if !ok {
				return nil
			}
			if e.Origin != "" {
				continue
			}
			e.Origin = b.config.NodeID
			if err := b.publish(ctx, e); err != nil {
				logger.Warnf("publish event %s/%s: %v", e.Topic, e.Key, err)
			}
		case msg, ok := <-remote:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			e, err := decode(msg.Payload)
			if err != nil {
				logger.Warnf("decode remote event: %v", err)
				continue
			}
			if e.Origin == b.config.NodeID {
				continue
			}
			b.hub.Publish(e)
		}
	}
}

func (b *Bridge) publish(ctx context.Context, e broadcast.Event) error {
	bytes, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := b.client.Publish(ctx, b.config.Channel, bytes).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	return nil
}

func decode(payload string) (broadcast.Event, error) {
	var e broadcast.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return e, fmt.Errorf("unmarshal: %w", err)
	}

	if e.Origin == "" {
		return e, fmt.Errorf("event without origin")
	}

	return e, nil
}
