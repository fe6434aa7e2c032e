package domain

import (
	"context"
	"time"
)

// TurnTopic carries TurnEvent payloads routed by session id.
const TurnTopic = "conversation.turns"

// MessageBroker defines the interface for message broker operations
type MessageBroker interface {
	// Publish sends a message to a topic with a routing key
	Publish(ctx context.Context, topic string, routingKey string, message []byte) error

	// Subscribe listens on a topic. An empty routing key receives every
	// message of the topic.
	Subscribe(ctx context.Context, topic string, routingKey string) (<-chan Message, error)

	// Close closes the message broker and every subscription
	Close() error
}

// Message represents a message received from the broker
type Message struct {
	Topic      string
	RoutingKey string
	Payload    []byte
	Timestamp  time.Time
}
