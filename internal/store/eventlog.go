package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/macta/pkg/schema"
)

// EventLog reads the append-only activity log of a Store and replays run
// state from it.
type EventLog struct {
	store Store
}

// NewEventLog wraps s.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// RunState is a simulation run rebuilt from its events.
type RunState struct {
	RunID       string           `json:"run_id"`
	Status      schema.RunStatus `json:"status"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	DurationMs  int64            `json:"duration_ms,omitempty"`
	Summary     json.RawMessage  `json:"summary,omitempty"`
	Error       json.RawMessage  `json:"error,omitempty"`
	Events      int              `json:"events"`
}

// AppendEvent appends an event with a monotonically increasing per-subject sequence.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	if err := el.store.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("append %s event: %w", event.Type, err)
	}
	return nil
}

// GetEvents returns events for a subject with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, subjectID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, subjectID, since)
}

// GetEventsByType returns events of a specific type matching the filter.
func (el *EventLog) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	return el.store.GetEventsByType(ctx, eventType, filter)
}

// ReplayRun rebuilds the state of a run from its events. A run with no
// events is pending. Sequence gaps are reported as STORE_ERROR.
func (el *EventLog) ReplayRun(ctx context.Context, runID string) (*RunState, error) {
	events, err := el.store.GetEvents(ctx, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in run %s: expected %d, got %d", runID, expected, e.Sequence)
		}
	}

	st := &RunState{RunID: runID, Status: schema.RunStatusPending, Events: len(events)}
	for _, e := range events {
		switch e.Type {
		case schema.EventSimulationStarted:
			st.Status = schema.RunStatusRunning
			ts := e.Timestamp
			st.StartedAt = &ts

		case schema.EventSimulationCompleted:
			st.Status = schema.RunStatusCompleted
			ts := e.Timestamp
			st.CompletedAt = &ts
			st.Summary = e.Payload
			if st.StartedAt != nil {
				st.DurationMs = ts.Sub(*st.StartedAt).Milliseconds()
			}

		case schema.EventSimulationFailed:
			st.Status = schema.RunStatusFailed
			ts := e.Timestamp
			st.CompletedAt = &ts
			st.Error = e.Payload
		}
	}
	return st, nil
}
