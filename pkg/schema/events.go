package schema

// Event type constants for the simulation run log.
const (
	EventSimulationStarted   = "simulation_started"
	EventSimulationCompleted = "simulation_completed"
	EventSimulationFailed    = "simulation_failed"

	EventDocumentGenerated = "document_generated"
	EventModelImported     = "model_imported"

	EventScheduleTriggered = "schedule_triggered"
)

// EventTypes lists every event type the activity log records.
var EventTypes = []string{
	EventSimulationStarted, EventSimulationCompleted, EventSimulationFailed,
	EventDocumentGenerated, EventModelImported, EventScheduleTriggered,
}

// RunStatus represents the lifecycle state of a persisted simulation run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// CaseState is the lifecycle state of a single simulated case.
type CaseState string

const (
	CaseArrived   CaseState = "arrived"
	CaseQueued    CaseState = "queued"
	CaseInService CaseState = "in_service"
	CaseCompleted CaseState = "completed"
)
