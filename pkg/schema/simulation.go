package schema

// ArrivalPattern selects the process that generates case arrivals.
type ArrivalPattern string

const (
	ArrivalPoisson  ArrivalPattern = "poisson"
	ArrivalNormal   ArrivalPattern = "normal"
	ArrivalSeasonal ArrivalPattern = "seasonal"
	ArrivalBatch    ArrivalPattern = "batch"
)

// ServiceDistributionKind selects the shape of drawn service durations.
type ServiceDistributionKind string

const (
	ServiceExponential   ServiceDistributionKind = "exponential"
	ServiceNormal        ServiceDistributionKind = "normal"
	ServiceUniform       ServiceDistributionKind = "uniform"
	ServiceTriangular    ServiceDistributionKind = "triangular"
	ServiceDeterministic ServiceDistributionKind = "deterministic"
)

// ServiceTimeDistribution describes service durations. The mean of each
// resource is 60/serviceRatePerHour; CV applies to normal draws and Spread to
// uniform and triangular draws as a fraction of the mean.
type ServiceTimeDistribution struct {
	Kind   ServiceDistributionKind `json:"kind,omitempty" validate:"omitempty,oneof=exponential normal uniform triangular deterministic"`
	CV     float64                 `json:"cv,omitempty" validate:"gte=0"`
	Spread float64                 `json:"spread,omitempty" validate:"gte=0,lt=1"`
}

// ResourceConfig is one station of the simulated process. Cases visit
// resources in declaration order.
type ResourceConfig struct {
	ID                 string  `json:"id" validate:"required"`
	Name               string  `json:"name"`
	Count              int     `json:"count" validate:"gt=0"`
	ServiceRatePerHour float64 `json:"serviceRatePerHour" validate:"gt=0"`
}

// PriorityClass assigns a share of arrivals to a priority level.
// Higher levels are served first.
type PriorityClass struct {
	Level  int     `json:"level"`
	Weight float64 `json:"weight" validate:"gt=0"`
}

// SeasonalProfile holds arrival-rate multipliers for the seasonal pattern.
type SeasonalProfile struct {
	HourlyMultipliers []float64 `json:"hourlyMultipliers,omitempty" validate:"omitempty,len=24,dive,gte=0"`
	DailyMultipliers  []float64 `json:"dailyMultipliers,omitempty" validate:"omitempty,len=31,dive,gte=0"`
}

// BatchSettings configures the batch arrival pattern.
type BatchSettings struct {
	Size            int     `json:"size,omitempty" validate:"gte=0,lte=10000"`
	IntervalMinutes float64 `json:"intervalMinutes,omitempty" validate:"gte=0"`
}

// BottleneckThresholds tunes bottleneck detection. Zero values use defaults.
type BottleneckThresholds struct {
	UtilizationHighWater float64 `json:"utilizationHighWater,omitempty" validate:"gte=0,lte=1"`
	QueueLength          int     `json:"queueLength,omitempty" validate:"gte=0"`
	WindowHours          int     `json:"windowHours,omitempty" validate:"gte=0"`
}

// SimulationConfig is the complete input of one simulation run.
type SimulationConfig struct {
	ProcessID                 string                  `json:"processId"`
	ArrivalPattern            ArrivalPattern          `json:"arrivalPattern" validate:"required,oneof=poisson normal seasonal batch"`
	MeanInterarrivalMinutes   float64                 `json:"meanInterarrivalMinutes" validate:"gt=0"`
	InterarrivalStdDevMinutes float64                 `json:"interarrivalStdDevMinutes,omitempty" validate:"gte=0"`
	ServiceTimeDistribution   ServiceTimeDistribution `json:"serviceTimeDistribution"`
	Resources                 []ResourceConfig        `json:"resources" validate:"required,min=1,max=256,dive"`
	SLATargetMinutes          float64                 `json:"slaTargetMinutes" validate:"gt=0"`
	HorizonHours              int                     `json:"horizonHours" validate:"gt=0"`
	Seed                      uint64                  `json:"seed,omitempty"`
	Priorities                []PriorityClass         `json:"priorities,omitempty" validate:"omitempty,dive"`
	Seasonal                  *SeasonalProfile        `json:"seasonal,omitempty"`
	Batch                     *BatchSettings          `json:"batch,omitempty"`
	Thresholds                BottleneckThresholds    `json:"thresholds,omitempty"`
	StartHourOfDay            int                     `json:"startHourOfDay,omitempty" validate:"gte=0,lte=23"`
	StartDayOfMonth           int                     `json:"startDayOfMonth,omitempty" validate:"gte=0,lte=31"`
}

// CompletedCase is a case that left the last station before the horizon.
// All times are minutes from the start of the run.
type CompletedCase struct {
	CaseID           string  `json:"caseId"`
	Priority         int     `json:"priority"`
	ArrivalTime      float64 `json:"arrivalTime"`
	ServiceStartTime float64 `json:"serviceStartTime"`
	CompletionTime   float64 `json:"completionTime"`
	WaitTime         float64 `json:"waitTime"`
	ProcessTime      float64 `json:"processTime"`
	TotalTime        float64 `json:"totalTime"`
}

// HourlyMetric is the snapshot taken at the end of every simulated hour.
type HourlyMetric struct {
	Hour                   int     `json:"hour"`
	QueueLength            int     `json:"queueLength"`
	CasesInProgress        int     `json:"casesInProgress"`
	CasesCompletedThisHour int     `json:"casesCompletedThisHour"`
	ResourceUtilizationPct float64 `json:"resourceUtilizationPct"`

	// Per-resource breakdown keyed by resource ID.
	StationUtilization map[string]float64 `json:"resourceUtilization,omitempty"`
	StationQueue       map[string]int     `json:"resourceQueueLength,omitempty"`
}

// ResourceUtilization is the busy share of a resource over the horizon.
type ResourceUtilization struct {
	Name            string  `json:"name"`
	Count           int     `json:"count"`
	BusyMinutes     float64 `json:"busyMinutes"`
	UtilizationRate float64 `json:"utilizationRate"`
}

// BottleneckType names the rule that flagged a resource.
type BottleneckType string

const (
	BottleneckCapacity BottleneckType = "capacity"
	BottleneckQueue    BottleneckType = "queue"
)

// Severity grades how far a metric went past its threshold.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Bottleneck is a sustained threshold breach on one resource.
type Bottleneck struct {
	ResourceID      string         `json:"resourceId"`
	ResourceName    string         `json:"resourceName"`
	Type            BottleneckType `json:"type"`
	Severity        Severity       `json:"severity"`
	PeakUtilization float64        `json:"peakUtilization"`
	PeakQueueLength int            `json:"peakQueueLength"`
	StartHour       int            `json:"startHour"`
	EndHour         int            `json:"endHour"`
	Description     string         `json:"description"`
}

// SLACompliance reports the share of completed cases within the SLA target.
type SLACompliance struct {
	TargetMinutes  float64 `json:"targetMinutes"`
	CompliantCases int     `json:"compliantCases"`
	TotalCases     int     `json:"totalCases"`
	ComplianceRate float64 `json:"complianceRate"`
}

// Recommendation is an action suggested from the detected bottlenecks.
type Recommendation struct {
	Type           string   `json:"type"`
	Priority       Severity `json:"priority"`
	ResourceID     string   `json:"resourceId,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	SuggestedDelta int      `json:"suggestedDelta,omitempty"`
	ExpectedImpact string   `json:"expectedImpact"`
}

// SimulationResult is the immutable output of one simulation run.
type SimulationResult struct {
	Seed                uint64                         `json:"seed"`
	TotalCases          int                            `json:"totalCases"`
	CompletedCases      []CompletedCase                `json:"completedCases"`
	AverageWaitTime     float64                        `json:"averageWaitTime"`
	AverageProcessTime  float64                        `json:"averageProcessTime"`
	MaxQueueLength      int                            `json:"maxQueueLength"`
	HourlyMetrics       []HourlyMetric                 `json:"hourlyMetrics"`
	ResourceUtilization map[string]ResourceUtilization `json:"resourceUtilization"`
	Bottlenecks         []Bottleneck                   `json:"bottlenecks"`
	SLACompliance       SLACompliance                  `json:"slaCompliance"`
	Recommendations     []Recommendation               `json:"recommendations"`
	ClampedDraws        int                            `json:"clampedDraws"`
}

// --- Dashboard wire contract ---

// SimulationRequest is the dashboard's simulation request.
type SimulationRequest struct {
	ProcessID       string  `json:"processId"`
	ConfigType      string  `json:"configType"`
	SimulationHours int     `json:"simulationHours"`
	Seed            *uint64 `json:"seed,omitempty"`
}

// SimulationMetrics is the aggregate block of the dashboard response.
type SimulationMetrics struct {
	TotalCases          int                            `json:"totalCases"`
	CompletedCases      int                            `json:"completedCases"`
	AverageWaitTime     float64                        `json:"averageWaitTime"`
	AverageProcessTime  float64                        `json:"averageProcessTime"`
	MaxQueueLength      int                            `json:"maxQueueLength"`
	SLACompliance       SLACompliance                  `json:"slaCompliance"`
	ResourceUtilization map[string]ResourceUtilization `json:"resourceUtilization"`
	Bottlenecks         []Bottleneck                   `json:"bottlenecks"`
	HourlyMetrics       []HourlyMetric                 `json:"hourlyMetrics"`
}

// SimulationResponse is the dashboard's simulation response.
type SimulationResponse struct {
	RunID             string            `json:"runId,omitempty"`
	SimulationMetrics SimulationMetrics `json:"simulationMetrics"`
	Recommendations   []Recommendation  `json:"recommendations"`
	CompletedCases    []CompletedCase   `json:"completedCases"`
}

// NewSimulationResponse shapes a SimulationResult into the dashboard contract.
func NewSimulationResponse(runID string, r *SimulationResult) *SimulationResponse {
	return &SimulationResponse{
		RunID: runID,
		SimulationMetrics: SimulationMetrics{
			TotalCases:          r.TotalCases,
			CompletedCases:      len(r.CompletedCases),
			AverageWaitTime:     r.AverageWaitTime,
			AverageProcessTime:  r.AverageProcessTime,
			MaxQueueLength:      r.MaxQueueLength,
			SLACompliance:       r.SLACompliance,
			ResourceUtilization: r.ResourceUtilization,
			Bottlenecks:         r.Bottlenecks,
			HourlyMetrics:       r.HourlyMetrics,
		},
		Recommendations: r.Recommendations,
		CompletedCases:  r.CompletedCases,
	}
}
