package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Process models
	SaveProcessModel(ctx context.Context, m *ProcessModel) error
	GetProcessModel(ctx context.Context, id string) (*ProcessModel, error)
	ListProcessModels(ctx context.Context, limit int) ([]*ProcessModel, error)
	DeleteProcessModel(ctx context.Context, id string) error

	// Resource allocations (replaced as a whole per process)
	SetResourceAllocations(ctx context.Context, processID string, allocs []ResourceAllocation) error
	ListResourceAllocations(ctx context.Context, processID string) ([]ResourceAllocation, error)

	// Simulation configs
	SaveSimulationConfig(ctx context.Context, rec *SimulationConfigRecord) error
	GetSimulationConfig(ctx context.Context, name, processID string) (*SimulationConfigRecord, error)
	ListSimulationConfigs(ctx context.Context, processID string) ([]*SimulationConfigRecord, error)

	// Simulation runs
	CreateSimulationRun(ctx context.Context, run *SimulationRun) error
	GetSimulationRun(ctx context.Context, id string) (*SimulationRun, error)
	UpdateSimulationRun(ctx context.Context, id string, update RunUpdate) error
	ListSimulationRuns(ctx context.Context, filter RunFilter) ([]*SimulationRun, error)

	// Activity log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, subjectID string, since int64) ([]*Event, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error)

	// Scheduled simulations
	CreateSchedule(ctx context.Context, sched *ScheduledSimulation) error
	GetSchedule(ctx context.Context, id string) (*ScheduledSimulation, error)
	UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*ScheduledSimulation, error)
	DeleteSchedule(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
