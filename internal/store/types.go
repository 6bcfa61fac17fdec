package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/macta/pkg/schema"
)

// ProcessModel is a stored BPMN document. ModelData holds the XML text.
type ProcessModel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ModelData   string    `json:"model_data"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ResourceAllocation is one staffed station of a process, in visiting order.
type ResourceAllocation struct {
	ProcessID          string  `json:"process_id"`
	ResourceID         string  `json:"resource_id"`
	Name               string  `json:"name"`
	Count              int     `json:"count"`
	ServiceRatePerHour float64 `json:"service_rate_per_hour"`
	Position           int     `json:"position"`
}

// SimulationConfigRecord is a named simulation config. An empty ProcessID
// makes the record available to every process.
type SimulationConfigRecord struct {
	Name        string                  `json:"name"`
	ProcessID   string                  `json:"process_id,omitempty"`
	Description string                  `json:"description,omitempty"`
	Config      schema.SimulationConfig `json:"config"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// SimulationRun is the persisted history entry of one simulation.
type SimulationRun struct {
	ID           string           `json:"id"`
	ProcessID    string           `json:"process_id"`
	ConfigType   string           `json:"config_type"`
	Status       schema.RunStatus `json:"status"`
	Seed         uint64           `json:"seed"`
	HorizonHours int              `json:"horizon_hours"`
	Trigger      string           `json:"trigger,omitempty"`
	Result       json.RawMessage  `json:"result,omitempty"`
	Error        json.RawMessage  `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// Event is an immutable entry of the activity log. SubjectID is the run or
// process the event belongs to; Sequence increases by one per subject.
type Event struct {
	ID        int64           `json:"id"`
	SubjectID string          `json:"subject_id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// ScheduledSimulation is a cron-triggered recurring simulation.
type ScheduledSimulation struct {
	ID              string     `json:"id"`
	ProcessID       string     `json:"process_id"`
	ConfigType      string     `json:"config_type"`
	SimulationHours int        `json:"simulation_hours"`
	CronExpression  string     `json:"cron_expression"`
	Enabled         bool       `json:"enabled"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus   string     `json:"last_run_status,omitempty"`
	LastRunID       string     `json:"last_run_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// --- Filter and update types ---

// RunFilter specifies criteria for listing simulation runs.
type RunFilter struct {
	ProcessID string            `json:"process_id,omitempty"`
	Status    *schema.RunStatus `json:"status,omitempty"`
	Since     *time.Time        `json:"since,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	Offset    int               `json:"offset,omitempty"`
}

// RunUpdate specifies mutable fields of a simulation run.
type RunUpdate struct {
	Status      *schema.RunStatus `json:"status,omitempty"`
	Result      json.RawMessage   `json:"result,omitempty"`
	Error       json.RawMessage   `json:"error,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	SubjectID string     `json:"subject_id,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// ScheduleUpdate specifies mutable fields of a scheduled simulation.
type ScheduleUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	LastRunID     string     `json:"last_run_id,omitempty"`
}

// ScheduleFilter specifies criteria for listing scheduled simulations.
type ScheduleFilter struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	ProcessID string `json:"process_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
