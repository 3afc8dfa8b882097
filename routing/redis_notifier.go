package routing

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
)

// RedisNotifier publishes config changes on a Redis pub/sub channel so
// other replicas of the admin/delegation services can call Reload()
// without each one polling the filesystem. Optional: NewManager works
// without it, per SPEC_FULL.md's "go-redis demoted to optional" decision.
// cmd/nexusd does not construct one: it loads NEXUS_REDIS_ADDR into
// ProcessConfig.RedisAddr but does not use it.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier builds a notifier against an existing client.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = "nexus:routing:config"
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Publish implements Notifier.
func (n *RedisNotifier) Publish(cfg Config) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return n.client.Publish(context.Background(), n.channel, payload).Err()
}

// Subscribe starts a goroutine forwarding messages on the channel into
// reload, until ctx is cancelled. reload is typically (*Manager).Reload
// ignoring the return value, or a closure that re-reads from disk.
func (n *RedisNotifier) Subscribe(ctx context.Context, reload func()) {
	sub := n.client.Subscribe(ctx, n.channel)
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				reload()
			}
		}
	}()
}
