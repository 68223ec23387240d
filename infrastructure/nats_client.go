package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	streamMaxAge   = 30 * 24 * time.Hour
	streamMaxMsgs  = 1_000_000
	maxDeliveries  = 3
	ackWait        = 30 * time.Second
	reconnectWait  = 2 * time.Second
	maxReconnects  = 10
	clientNameBase = "betdao"
)

var errNotConnected = errors.New("not connected to NATS JetStream")

// MessagePublisher sends raw payloads to a subject
type MessagePublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSClient carries bet events over JetStream. Consumers are durable, one per subscribed subject.
type NATSClient struct {
	servers string
	name    string

	mu   sync.RWMutex
	nc   *nats.Conn
	js   nats.JetStreamContext
	subs map[string]*nats.Subscription
}

// NewNATSClient creates a client for a comma-separated server list
func NewNATSClient(servers string) *NATSClient {
	return &NATSClient{
		servers: servers,
		name:    clientNameBase,
		subs:    make(map[string]*nats.Subscription),
	}
}

// Connect dials the servers; a deadline on ctx bounds the dial
func (c *NATSClient) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(c.name),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("Lost NATS connection")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("server", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			entry := log.WithError(err)
			if sub != nil {
				entry = entry.WithField("subject", sub.Subject)
			}
			entry.Error("NATS async error")
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(c.servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.mu.Lock()
	c.nc, c.js = nc, js
	c.mu.Unlock()

	log.WithField("servers", c.servers).Info("Connected to NATS")
	return nil
}

func (c *NATSClient) jetStream() (nats.JetStreamContext, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, errNotConnected
	}
	return c.js, nil
}

// consumerName derives a durable name from a subject; JetStream rejects '.', '*' and '>'
func (c *NATSClient) consumerName(subject string) string {
	return c.name + "-" + strings.NewReplacer(".", "_", "*", "any", ">", "rest").Replace(subject)
}

// Subscribe delivers every message on subject to handler. Handler errors trigger redelivery up to maxDeliveries.
func (c *NATSClient) Subscribe(subject string, handler func([]byte) error) error {
	js, err := c.jetStream()
	if err != nil {
		return err
	}

	deliver := func(msg *nats.Msg) {
		settle(msg, handler(msg.Data))
	}
	sub, err := js.Subscribe(subject, deliver,
		nats.Durable(c.consumerName(subject)),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(maxDeliveries),
		nats.AckWait(ackWait),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	log.WithField("subject", subject).Info("Subscribed to bet events")
	return nil
}

func settle(msg *nats.Msg, handlerErr error) {
	if handlerErr == nil {
		if err := msg.Ack(); err != nil {
			log.WithError(err).WithField("subject", msg.Subject).Error("Failed to ack message")
		}
		return
	}
	log.WithError(handlerErr).WithField("subject", msg.Subject).Error("Bet event handler failed")
	if err := msg.Nak(); err != nil {
		log.WithError(err).WithField("subject", msg.Subject).Error("Failed to nak message")
	}
}

// EnsureStream creates the stream when it is missing
func (c *NATSClient) EnsureStream(streamName, description string, subjects []string) error {
	js, err := c.jetStream()
	if err != nil {
		return err
	}
	if _, err := js.StreamInfo(streamName); err == nil {
		log.WithField("stream", streamName).Debug("JetStream stream present")
		return nil
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:        streamName,
		Description: description,
		Subjects:    subjects,
		Retention:   nats.LimitsPolicy,
		Storage:     nats.FileStorage,
		MaxAge:      streamMaxAge,
		MaxMsgs:     streamMaxMsgs,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", streamName, err)
	}

	log.WithFields(log.Fields{"stream": streamName, "subjects": subjects}).Info("Created JetStream stream")
	return nil
}

// Publish implements MessagePublisher
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	js, err := c.jetStream()
	if err != nil {
		return err
	}
	if _, err := js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	log.WithFields(log.Fields{"subject": subject, "bytes": len(data)}).Debug("Published bet event")
	return nil
}

// Close unsubscribes every consumer and drops the connection
func (c *NATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for subject, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unsubscribe from %s: %w", subject, err))
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if c.nc != nil {
		c.nc.Close()
		c.nc, c.js = nil, nil
		log.Info("NATS connection closed")
	}
	return errors.Join(errs...)
}
