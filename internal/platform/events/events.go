// Package events delivers domain notifications to whatever is listening:
// the structured log, a RabbitMQ queue, a signed webhook, or an in-memory
// recorder in tests.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is one notification. Data carries type-specific string fields such
// as the old and new severity of a change.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	AllergyID uint64            `json:"allergy_id"`
	PatientID string            `json:"patient_id,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// New returns an event with a fresh id.
func New(typ string, allergyID uint64, patientID string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		AllergyID: allergyID,
		PatientID: patientID,
		Timestamp: at,
		Data:      map[string]string{},
	}
}

// Sink accepts events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "events").Logger()}
}

func (s *LogSink) Publish(_ context.Context, e Event) error {
	evt := s.logger.Info().
		Str("event_id", e.ID).
		Str("event_type", e.Type).
		Uint64("allergy_id", e.AllergyID).
		Time("event_time", e.Timestamp)
	if e.PatientID != "" {
		evt = evt.Str("patient_id", e.PatientID)
	}
	for k, v := range e.Data {
		evt = evt.Str(k, v)
	}
	evt.Msg("event")
	return nil
}

// Memory records published events in order.
type Memory struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func NewMemory() *Memory { return &Memory{} }

// FailWith makes every later Publish return err.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *Memory) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Multi fans an event out to several sinks and returns the first error.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
