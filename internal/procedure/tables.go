package procedure

import (
	"maps"

	"github.com/rendis/macta/internal/bpmn"
)

// Tables holds the lookup tables used to fill in step text. Callers may edit
// a copy obtained from DefaultTables; the defaults themselves are fixed.
type Tables struct {
	Titles         map[bpmn.ElementKind]string
	Descriptions   map[bpmn.ElementKind]string
	EstimatedTimes map[bpmn.ElementKind]string
	Responsible    map[bpmn.ElementKind]string
	GatewayTypes   map[bpmn.ElementKind]string

	MinutesPerTask    int
	MinutesPerGateway int
}

var defaultTitles = map[bpmn.ElementKind]string{
	bpmn.KindStartEvent:       "Process Start",
	bpmn.KindEndEvent:         "Process End",
	bpmn.KindTask:             "Unnamed Activity",
	bpmn.KindUserTask:         "Unnamed User Activity",
	bpmn.KindServiceTask:      "Automated Service Step",
	bpmn.KindScriptTask:       "Automated Script Step",
	bpmn.KindManualTask:       "Unnamed Manual Activity",
	bpmn.KindBusinessRuleTask: "Business Rule Evaluation",
	bpmn.KindExclusiveGateway: "Decision Point",
	bpmn.KindInclusiveGateway: "Decision Point",
	bpmn.KindParallelGateway:  "Parallel Split",
}

var defaultDescriptions = map[bpmn.ElementKind]string{
	bpmn.KindStartEvent:       "Initiate the process and capture the information required to begin.",
	bpmn.KindEndEvent:         "Close the process and record the final outcome.",
	bpmn.KindTask:             "Perform the activity as defined in the process model.",
	bpmn.KindUserTask:         "Complete the task through the user interface, entering or reviewing the required information.",
	bpmn.KindServiceTask:      "The system executes this step automatically.",
	bpmn.KindScriptTask:       "An automated script performs this step.",
	bpmn.KindManualTask:       "Perform this step manually, outside of any system.",
	bpmn.KindBusinessRuleTask: "Evaluate the applicable business rules to determine the outcome.",
	bpmn.KindExclusiveGateway: "Evaluate the conditions and follow exactly one of the outgoing paths.",
	bpmn.KindInclusiveGateway: "Evaluate the conditions and follow every outgoing path whose condition holds.",
	bpmn.KindParallelGateway:  "Split the flow so that all outgoing paths proceed concurrently.",
}

var defaultEstimatedTimes = map[bpmn.ElementKind]string{
	bpmn.KindStartEvent:       "< 1 minute",
	bpmn.KindEndEvent:         "< 1 minute",
	bpmn.KindTask:             "5-10 minutes",
	bpmn.KindUserTask:         "5-15 minutes",
	bpmn.KindServiceTask:      "< 2 minutes",
	bpmn.KindScriptTask:       "< 2 minutes",
	bpmn.KindManualTask:       "10-30 minutes",
	bpmn.KindBusinessRuleTask: "1-5 minutes",
	bpmn.KindExclusiveGateway: "< 1 minute",
	bpmn.KindInclusiveGateway: "< 1 minute",
	bpmn.KindParallelGateway:  "< 1 minute",
}

var defaultGatewayTypes = map[bpmn.ElementKind]string{
	bpmn.KindExclusiveGateway: "Exclusive (XOR)",
	bpmn.KindInclusiveGateway: "Inclusive (OR)",
	bpmn.KindParallelGateway:  "Parallel (AND)",
}

// DefaultTables returns a fresh copy of the default lookup tables.
func DefaultTables() Tables {
	responsible := make(map[bpmn.ElementKind]string, len(defaultTitles))
	for kind := range defaultTitles {
		responsible[kind] = bpmn.DefaultOwner(kind)
	}
	return Tables{
		Titles:            maps.Clone(defaultTitles),
		Descriptions:      maps.Clone(defaultDescriptions),
		EstimatedTimes:    maps.Clone(defaultEstimatedTimes),
		Responsible:       responsible,
		GatewayTypes:      maps.Clone(defaultGatewayTypes),
		MinutesPerTask:    12,
		MinutesPerGateway: 1,
	}
}

func lookup(m map[bpmn.ElementKind]string, kind bpmn.ElementKind, fallback string) string {
	if v, ok := m[kind]; ok && v != "" {
		return v
	}
	return fallback
}
