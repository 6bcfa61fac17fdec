package schema

// StepKind classifies a procedure step.
type StepKind string

const (
	StepKindStart    StepKind = "start"
	StepKindActivity StepKind = "activity"
	StepKindDecision StepKind = "decision"
	StepKindEnd      StepKind = "end"
)

// ProcedureStep is one numbered entry of a generated procedure.
type ProcedureStep struct {
	Number        int      `json:"number"`
	Title         string   `json:"title"`
	Kind          StepKind `json:"type"`
	ElementID     string   `json:"elementId"`
	Description   string   `json:"description"`
	Responsible   string   `json:"responsible"`
	EstimatedTime string   `json:"estimatedTime"`
	Conditions    []string `json:"conditions,omitempty"`
}

// DecisionPath is one outgoing branch of a gateway.
// Condition is nil when the flow carries no condition expression.
type DecisionPath struct {
	Name      string  `json:"name"`
	Target    string  `json:"target"`
	Condition *string `json:"condition"`
}

// DecisionPoint documents a gateway and its outgoing paths.
type DecisionPoint struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	GatewayType string         `json:"gatewayType"`
	Description string         `json:"description"`
	Conditions  []string       `json:"conditions"`
	Actions     []string       `json:"actions"`
	Paths       []DecisionPath `json:"paths"`
}

// ProcessOverview summarises a process for the report header.
type ProcessOverview struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	TotalSteps        int      `json:"totalSteps"`
	Complexity        string   `json:"complexity"`
	EstimatedDuration string   `json:"estimatedDuration"`
	Participants      []string `json:"participants"`
}

// ProcessStatistics carries element counts for a process.
type ProcessStatistics struct {
	TotalElements     int            `json:"totalElements"`
	StartEvents       int            `json:"startEvents"`
	Tasks             int            `json:"tasks"`
	Gateways          int            `json:"gateways"`
	EndEvents         int            `json:"endEvents"`
	Lanes             int            `json:"lanes"`
	TasksByType       map[string]int `json:"tasksByType"`
	TotalSteps        int            `json:"totalSteps"`
	Complexity        string         `json:"complexity"`
	TotalMinutes      int            `json:"totalMinutes"`
	EstimatedDuration string         `json:"estimatedDuration"`
}

// ProcedureDocumentation is the generator output handed to report renderers.
type ProcedureDocumentation struct {
	ProcessOverview   ProcessOverview   `json:"processOverview"`
	ProcessStatistics ProcessStatistics `json:"processStatistics"`
	ProcedureSteps    []ProcedureStep   `json:"procedureSteps"`
	DecisionPoints    []DecisionPoint   `json:"decisionPoints"`
}
