package message_broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nanooro/dagnerai/domain"
	"github.com/nanooro/dagnerai/utils/log"
)

const defaultBuffer = 100

type subscription struct {
	routingKey string
	ch         chan domain.Message
}

// ChannelMessageBroker implements MessageBroker using Go channels. Every
// subscriber of a topic gets its own buffered channel; a subscriber whose
// buffer is full misses the message.
type ChannelMessageBroker struct {
	mu     sync.RWMutex
	topics map[string][]*subscription
	buffer int
	closed bool
}

// NewChannelMessageBroker creates a new channel-based message broker
func NewChannelMessageBroker() *ChannelMessageBroker {
	return &ChannelMessageBroker{
		topics: make(map[string][]*subscription),
		buffer: defaultBuffer,
	}
}

// Publish delivers a message to every subscriber of the topic whose routing
// key matches or is empty.
func (b *ChannelMessageBroker) Publish(ctx context.Context, topic string, routingKey string, message []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("message broker is closed")
	}

	msg := domain.Message{
		Topic:      topic,
		RoutingKey: routingKey,
		Payload:    message,
		Timestamp:  time.Now(),
	}

	delivered := 0
	for _, sub := range b.topics[topic] {
		if sub.routingKey != "" && sub.routingKey != routingKey {
			continue
		}
		select {
		case sub.ch <- msg:
			delivered++
		case <-ctx.Done():
			return ctx.Err()
		default:
			log.WithCtx(ctx).Warn("Subscriber channel is full, dropping message",
				zap.String("topic", topic),
				zap.String("routingKey", routingKey))
		}
	}

	log.WithCtx(ctx).Debug("Message published to topic",
		zap.String("topic", topic),
		zap.String("routingKey", routingKey),
		zap.Int("payload_size", len(message)),
		zap.Int("delivered", delivered))
	return nil
}

// Subscribe returns a channel that receives the topic's messages until ctx
// is done or the broker is closed. An empty routingKey matches every key.
func (b *ChannelMessageBroker) Subscribe(ctx context.Context, topic string, routingKey string) (<-chan domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("message broker is closed")
	}

	sub := &subscription{routingKey: routingKey, ch: make(chan domain.Message, b.buffer)}
	b.topics[topic] = append(b.topics[topic], sub)

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			b.unsubscribe(topic, sub)
		}()
	}

	log.WithCtx(ctx).Info("Subscribed to topic", zap.String("topic", topic), zap.String("routingKey", routingKey))
	return sub.ch, nil
}

func (b *ChannelMessageBroker) unsubscribe(topic string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for i, s := range subs {
		if s == sub {
			b.topics[topic] = append(subs[:i], subs[i+1:]...)
			close(s.ch)
			break
		}
	}
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
}

// Close closes the message broker and all subscriber channels
func (b *ChannelMessageBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for topic, subs := range b.topics {
		for _, s := range subs {
			close(s.ch)
		}
		log.WithCtx(context.Background()).Debug("Closed topic subscriptions", zap.String("topic", topic), zap.Int("subscribers", len(subs)))
	}
	b.topics = make(map[string][]*subscription)

	log.WithCtx(context.Background()).Info("Message broker closed")
	return nil
}

// GetTopicCount returns the number of topics with at least one subscriber
func (b *ChannelMessageBroker) GetTopicCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}
