package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Message is an event handed to downstream consumers.
type Message struct {
	Type string
	Body []byte
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a channel-backed queue for single-process runs and tests.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message, blocking while the buffer is full.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel that closes when ctx is done.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a Redis list used with LPUSH/BRPOP.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue on key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key}
}

// DefaultKey names the list or subject when none is configured.
const DefaultKey = "labattend:sessions"

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	return q.client.LPush(ctx, q.key, encode(msg)).Err()
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					// back off on connection errors
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			select {
			case out <- decode(res[1]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// NATSQueue publishes on a NATS subject. Delivery is at-most-once: messages
// published while no consumer is subscribed are dropped.
type NATSQueue struct {
	nc      *nats.Conn
	subject string
}

// NewNATSQueue builds a queue on subject.
func NewNATSQueue(nc *nats.Conn, subject string) *NATSQueue {
	if subject == "" {
		subject = strings.ReplaceAll(DefaultKey, ":", ".")
	}
	return &NATSQueue{nc: nc, subject: subject}
}

// Publish sends a message.
func (q *NATSQueue) Publish(_ context.Context, msg Message) error {
	return q.nc.Publish(q.subject, []byte(encode(msg)))
}

// Consume subscribes until ctx is done.
func (q *NATSQueue) Consume(ctx context.Context) (<-chan Message, error) {
	in := make(chan *nats.Msg, 64)
	sub, err := q.nc.ChanSubscribe(q.subject, in)
	if err != nil {
		return nil, err
	}
	out := make(chan Message)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case m := <-in:
				select {
				case out <- decode(string(m.Data)):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// encode stores messages as Type|Body.
func encode(msg Message) string {
	return msg.Type + "|" + string(msg.Body)
}

func decode(s string) Message {
	typ, body, ok := strings.Cut(s, "|")
	if !ok {
		return Message{Body: []byte(s)}
	}
	return Message{Type: typ, Body: []byte(body)}
}
