package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"betdao/events"

	log "github.com/sirupsen/logrus"
)

// MessageSubscriber delivers raw payloads published to a subject
type MessageSubscriber interface {
	Subscribe(subject string, handler func([]byte) error) error
}

// EventHandler receives a decoded event with its envelope
type EventHandler func(ctx context.Context, envelope *Envelope, event events.Event) error

// NATSEventSubscriber decodes bet events from NATS for out-of-process consumers
type NATSEventSubscriber struct {
	client        MessageSubscriber
	subjectMapper *EventSubjectMapper
}

// NewNATSEventSubscriber creates a new NATS event subscriber
func NewNATSEventSubscriber(client MessageSubscriber, subjectMapper *EventSubjectMapper) *NATSEventSubscriber {
	return &NATSEventSubscriber{
		client:        client,
		subjectMapper: subjectMapper,
	}
}

// Subscribe registers handler for one event type
func (s *NATSEventSubscriber) Subscribe(eventType events.EventType, handler EventHandler) error {
	subject, ok := s.subjectMapper.SubjectFor(eventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	log.WithFields(log.Fields{
		"eventType": eventType,
		"subject":   subject,
	}).Info("Registering event handler for subject")
	return s.client.Subscribe(subject, func(data []byte) error {
		return s.handleMessage(subject, data, handler)
	})
}

// SubscribeAll registers handler for every bet event
func (s *NATSEventSubscriber) SubscribeAll(handler EventHandler) error {
	subject := SubjectPrefix + ".>"
	return s.client.Subscribe(subject, func(data []byte) error {
		return s.handleMessage(subject, data, handler)
	})
}

func (s *NATSEventSubscriber) handleMessage(subject string, data []byte, handler EventHandler) error {
	envelope, err := DecodeEnvelope(data)
	if err != nil {
		log.WithFields(log.Fields{
			"subject": subject,
			"error":   err,
		}).Error("Failed to decode event envelope")
		return err
	}

	event, err := DecodeEvent(events.EventType(envelope.EventType), envelope.Payload)
	if err != nil {
		log.WithFields(log.Fields{
			"subject":     subject,
			"eventType":   envelope.EventType,
			"eventId":     envelope.EventID,
			"payloadSize": len(envelope.Payload),
			"error":       err,
		}).Error("Failed to deserialize event payload")
		return err
	}

	if err := handler(context.Background(), envelope, event); err != nil {
		log.WithFields(log.Fields{
			"subject":   subject,
			"eventType": envelope.EventType,
			"eventId":   envelope.EventID,
			"error":     err,
		}).Error("Event handler failed")
		return err
	}
	return nil
}

// DecodeEvent restores a typed event from its JSON payload
func DecodeEvent(eventType events.EventType, payload []byte) (events.Event, error) {
	switch eventType {
	case events.EventTypeBetCreated:
		return decodeAs[events.BetCreatedEvent](payload)
	case events.EventTypeContributionRecorded:
		return decodeAs[events.ContributionRecordedEvent](payload)
	case events.EventTypeContributionCancelled:
		return decodeAs[events.ContributionCancelledEvent](payload)
	case events.EventTypeBetStatusChanged:
		return decodeAs[events.BetStatusChangedEvent](payload)
	case events.EventTypeBetReleased:
		return decodeAs[events.BetReleasedEvent](payload)
	case events.EventTypePayoutFailed:
		return decodeAs[events.PayoutFailedEvent](payload)
	case events.EventTypeObligationClaimed:
		return decodeAs[events.ObligationClaimedEvent](payload)
	case events.EventTypeWeightConfiscated:
		return decodeAs[events.WeightConfiscatedEvent](payload)
	case events.EventTypeLevelChanged:
		return decodeAs[events.LevelChangedEvent](payload)
	}
	return nil, fmt.Errorf("unknown event type: %s", eventType)
}

func decodeAs[T events.Event](payload []byte) (events.Event, error) {
	var event T
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %T: %w", event, err)
	}
	return event, nil
}
