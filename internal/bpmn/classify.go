package bpmn

import "strings"

// Classify maps a local tag name to an ElementKind. Matching is a
// case-insensitive substring test with precedence task > gateway > start
// event > end event; tags matching none of them yield KindUnknown.
func Classify(tag string) ElementKind {
	t := strings.ToLower(tag)
	switch {
	case strings.Contains(t, "task"):
		switch t {
		case "usertask":
			return KindUserTask
		case "servicetask":
			return KindServiceTask
		case "scripttask":
			return KindScriptTask
		case "manualtask":
			return KindManualTask
		case "businessruletask":
			return KindBusinessRuleTask
		}
		return KindTask
	case strings.Contains(t, "gateway"):
		switch t {
		case "inclusivegateway":
			return KindInclusiveGateway
		case "parallelgateway":
			return KindParallelGateway
		}
		// Event-based and complex gateways route one way at a time.
		return KindExclusiveGateway
	case strings.Contains(t, "startevent"):
		return KindStartEvent
	case strings.Contains(t, "endevent"):
		return KindEndEvent
	}
	return KindUnknown
}

// DefaultOwner is the responsible party assumed for an element outside any lane.
func DefaultOwner(kind ElementKind) string {
	switch kind {
	case KindUserTask:
		return "User/Operator"
	case KindServiceTask, KindScriptTask:
		return "System"
	case KindManualTask:
		return "Manual Operator"
	case KindBusinessRuleTask:
		return "Business Rules Engine"
	case KindExclusiveGateway, KindInclusiveGateway, KindParallelGateway:
		return "System/Process Owner"
	case KindStartEvent:
		return "Process Initiator"
	case KindEndEvent:
		return "System"
	default:
		return "Process Owner"
	}
}
