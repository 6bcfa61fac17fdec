package bpmn

// ElementKind is the classified type of a process element.
type ElementKind string

const (
	KindUnknown          ElementKind = ""
	KindTask             ElementKind = "Task"
	KindUserTask         ElementKind = "UserTask"
	KindServiceTask      ElementKind = "ServiceTask"
	KindScriptTask       ElementKind = "ScriptTask"
	KindManualTask       ElementKind = "ManualTask"
	KindBusinessRuleTask ElementKind = "BusinessRuleTask"
	KindExclusiveGateway ElementKind = "ExclusiveGateway"
	KindInclusiveGateway ElementKind = "InclusiveGateway"
	KindParallelGateway  ElementKind = "ParallelGateway"
	KindStartEvent       ElementKind = "StartEvent"
	KindEndEvent         ElementKind = "EndEvent"
)

// Category groups element kinds into the four procedure sections.
type Category int

const (
	CategoryNone Category = iota
	CategoryTask
	CategoryGateway
	CategoryStart
	CategoryEnd
)

// Category returns the procedure section the kind belongs to.
func (k ElementKind) Category() Category {
	switch k {
	case KindTask, KindUserTask, KindServiceTask, KindScriptTask, KindManualTask, KindBusinessRuleTask:
		return CategoryTask
	case KindExclusiveGateway, KindInclusiveGateway, KindParallelGateway:
		return CategoryGateway
	case KindStartEvent:
		return CategoryStart
	case KindEndEvent:
		return CategoryEnd
	default:
		return CategoryNone
	}
}

// ProcessElement is a single classified node of a process document.
type ProcessElement struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Owner       string      `json:"owner"`
	Kind        ElementKind `json:"type"`
	Tag         string      `json:"tag"`
	Conditions  []string    `json:"conditions,omitempty"`
}

// Lane assigns flow nodes to a responsible party.
type Lane struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	FlowNodeRefs []string `json:"flowNodeRefs"`
}

// SequenceFlow connects two flow nodes.
type SequenceFlow struct {
	ID                  string `json:"id"`
	SourceRef           string `json:"sourceRef"`
	TargetRef           string `json:"targetRef"`
	Name                string `json:"name,omitempty"`
	ConditionExpression string `json:"conditionExpression,omitempty"`
}

// ProcessGraph is the typed result of importing a process document.
// It is read-only once returned by Parse.
type ProcessGraph struct {
	ProcessID   string `json:"processId"`
	ProcessName string `json:"processName"`
	Description string `json:"description"`

	// Elements holds every element carrying an id, classified or not.
	Elements map[string]*ProcessElement `json:"elements"`
	// Order lists element IDs in declaration order.
	Order []string `json:"order"`

	StartEvents []*ProcessElement `json:"startEvents"`
	Tasks       []*ProcessElement `json:"tasks"`
	Gateways    []*ProcessElement `json:"gateways"`
	EndEvents   []*ProcessElement `json:"endEvents"`

	Lanes []Lane         `json:"lanes"`
	Flows []SequenceFlow `json:"flows"`

	// Source is the XML text the graph was imported from.
	Source string `json:"-"`

	imported bool
}

// Imported reports whether the graph was produced by a successful Parse.
func (g *ProcessGraph) Imported() bool {
	return g != nil && g.imported
}

// Outgoing returns the sequence flows leaving the given element, in declaration order.
func (g *ProcessGraph) Outgoing(id string) []SequenceFlow {
	var out []SequenceFlow
	for _, f := range g.Flows {
		if f.SourceRef == id {
			out = append(out, f)
		}
	}
	return out
}

// DisplayName returns the element's name, its ID when unnamed, and false when
// no element with that ID exists.
func (g *ProcessGraph) DisplayName(id string) (string, bool) {
	el, ok := g.Elements[id]
	if !ok {
		return "", false
	}
	if el.Name != "" {
		return el.Name, true
	}
	return el.ID, true
}

// Categorized returns the number of elements in the four procedure categories.
func (g *ProcessGraph) Categorized() int {
	return len(g.StartEvents) + len(g.Tasks) + len(g.Gateways) + len(g.EndEvents)
}
