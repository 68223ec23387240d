package infrastructure

import (
	"fmt"

	"betdao/events"
)

// SubjectPrefix roots every subject the engine publishes to
const SubjectPrefix = "bets"

var subjectsByType = map[events.EventType]string{
	events.EventTypeBetCreated:            "bets.created",
	events.EventTypeContributionRecorded:  "bets.contribution.recorded",
	events.EventTypeContributionCancelled: "bets.contribution.cancelled",
	events.EventTypeBetStatusChanged:      "bets.status_changed",
	events.EventTypeBetReleased:           "bets.released",
	events.EventTypePayoutFailed:          "bets.payout.failed",
	events.EventTypeObligationClaimed:     "bets.obligation.claimed",
	events.EventTypeWeightConfiscated:     "bets.weight.confiscated",
	events.EventTypeLevelChanged:          "bets.level_changed",
}

// EventSubjectMapper handles mapping between bet events and NATS subjects
type EventSubjectMapper struct {
	types map[string]events.EventType
}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	types := make(map[string]events.EventType, len(subjectsByType))
	for t, subject := range subjectsByType {
		types[subject] = t
	}
	return &EventSubjectMapper{types: types}
}

// MapEventToSubject converts an event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	if subject, ok := subjectsByType[event.Type()]; ok {
		return subject
	}
	return fmt.Sprintf("%s.unknown.%s", SubjectPrefix, event.Type())
}

// SubjectFor returns the subject of an event type
func (m *EventSubjectMapper) SubjectFor(eventType events.EventType) (string, bool) {
	subject, ok := subjectsByType[eventType]
	return subject, ok
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	if t, ok := m.types[subject]; ok {
		return t
	}
	return events.EventType(subject)
}

// GetAllSubjects returns all subjects, in event catalogue order
func (m *EventSubjectMapper) GetAllSubjects() []string {
	subjects := make([]string, 0, len(events.AllEventTypes))
	for _, t := range events.AllEventTypes {
		subjects = append(subjects, subjectsByType[t])
	}
	return subjects
}
