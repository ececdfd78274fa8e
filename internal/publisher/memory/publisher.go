// Package memory contains in-memory publisher implementations for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// Publisher stores published payloads for inspection. Message IDs are
// sequential so tests can assert ordering.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	perTopic map[string]int
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{perTopic: make(map[string]int)}
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	p.perTopic[topic]++
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded publishes, in publish order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// TopicCount returns how many messages were published to one topic.
func (p *Publisher) TopicCount(topic string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.perTopic[topic]
}

// Reset drops all recorded messages.
func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
	p.perTopic = make(map[string]int)
}
