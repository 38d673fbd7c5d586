package broadcast

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
)

// RedisTransport bridges the hub onto redis pub/sub so events reach
// subscribers regardless of which process published them.
type RedisTransport struct {
	client *redis.Client
	pubsub *redis.PubSub
	out    chan Message
	once   sync.Once
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{
		client: client,
		pubsub: client.Subscribe(context.Background()),
		out:    make(chan Message),
	}
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload).Err()
}

func (t *RedisTransport) Subscribe(ctx context.Context, channel string) error {
	return t.pubsub.Subscribe(ctx, channel)
}

func (t *RedisTransport) Unsubscribe(ctx context.Context, channel string) error {
	return t.pubsub.Unsubscribe(ctx, channel)
}

func (t *RedisTransport) Messages() <-chan Message {
	t.once.Do(func() {
		go func() {
			ch := t.pubsub.Channel()
			for msg := range ch {
				t.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
			}
			close(t.out)
		}()
	})
	return t.out
}

// Loopback is an in-process transport. It backs tests and single node runs
// where redis is not configured; published messages are delivered straight
// back to the local hub.
type Loopback struct {
	out chan Message
}

func NewLoopback() *Loopback {
	return &Loopback{out: make(chan Message, 64)}
}

func (t *Loopback) Publish(ctx context.Context, channel string, payload []byte) error {
	select {
	case t.out <- Message{Channel: channel, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Loopback) Subscribe(ctx context.Context, channel string) error   { return nil }
func (t *Loopback) Unsubscribe(ctx context.Context, channel string) error { return nil }

func (t *Loopback) Messages() <-chan Message {
	return t.out
}
