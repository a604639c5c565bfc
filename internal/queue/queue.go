package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"classattend/internal/attendance"
)

// DefaultKey is the Redis list attendance events are pushed to.
const DefaultKey = "attendance:events"

// Message represents work to be processed.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
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

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return q.client.LPush(ctx, q.key, payload).Err()
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
					log.Printf("queue: brpop %s: %v", q.key, err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
				log.Printf("queue: dropping malformed message: %v", err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// EventPublisher adapts a Queue to attendance.Publisher.
type EventPublisher struct {
	q Queue
}

// NewEventPublisher wraps q.
func NewEventPublisher(q Queue) *EventPublisher {
	return &EventPublisher{q: q}
}

// Publish encodes evt and enqueues it under its type.
func (p *EventPublisher) Publish(ctx context.Context, evt attendance.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.q.Publish(ctx, Message{Type: evt.Type, Body: body})
}

// DecodeEvent reads an attendance event from a message body.
func DecodeEvent(msg Message) (attendance.Event, error) {
	var evt attendance.Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return attendance.Event{}, fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	if evt.ID == "" {
		return attendance.Event{}, fmt.Errorf("decode %s: missing id", msg.Type)
	}
	return evt, nil
}

// Worker results reported to the observer.
const (
	ResultStored  = "stored"
	ResultSkipped = "skipped"
	ResultInvalid = "invalid"
	ResultFailed  = "failed"
)

// Sink persists decoded events.
type Sink interface {
	AppendEvent(ctx context.Context, evt attendance.Event) error
}

// Drain consumes q until ctx is cancelled, appending every attendance event
// to sink. observe, when set, receives one result per message.
func Drain(ctx context.Context, q Queue, sink Sink, observe func(result string)) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	report := func(result string) {
		if observe != nil {
			observe(result)
		}
	}
	for msg := range messages {
		if msg.Type != attendance.EventMarked {
			report(ResultSkipped)
			continue
		}
		evt, err := DecodeEvent(msg)
		if err != nil {
			log.Printf("queue: %v", err)
			report(ResultInvalid)
			continue
		}
		if err := sink.AppendEvent(ctx, evt); err != nil {
			log.Printf("append event %s failed: %v", evt.ID, err)
			report(ResultFailed)
			continue
		}
		log.Printf("event %s stored (%s in session %s)", evt.ID, evt.StudentUID, evt.SessionID)
		report(ResultStored)
	}
	return nil
}
