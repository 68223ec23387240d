package infrastructure

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// NoopMessagePublisher drops every message
// Used when NATS is disabled so the forwarding path still runs
type NoopMessagePublisher struct{}

// NewNoopMessagePublisher creates a new no-op publisher
func NewNoopMessagePublisher() *NoopMessagePublisher {
	return &NoopMessagePublisher{}
}

func (p *NoopMessagePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	log.WithField("subject", subject).Trace("Dropping message, NATS disabled")
	return nil
}
