// Package eventbus publishes TELSTAR billing lifecycle events to a message
// broker. EventPlugin turns engine hooks into JSON events; Publisher
// implementations deliver them.
package eventbus

import (
	"context"
	"log/slog"
)

// Publisher delivers an encoded event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// NoopPublisher logs events and drops them.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that does nothing.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *NoopPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.logger.Debug("noop publish", "routing_key", routingKey, "size", len(payload))
	return nil
}

// Close implements Publisher.
func (p *NoopPublisher) Close() error { return nil }
