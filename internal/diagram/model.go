package diagram

// NodeKind classifies a diagram node by its process element type.
type NodeKind string

const (
	NodeKindTask     NodeKind = "task"
	NodeKindDecision NodeKind = "decision"
	NodeKindParallel NodeKind = "parallel"
	NodeKindStart    NodeKind = "start"
	NodeKindEnd      NodeKind = "end"
	NodeKindOther    NodeKind = "other"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
	Lanes []*SubGraph
}

// Node represents a single flow node in the diagram.
type Node struct {
	ID    string
	Label string
	Kind  NodeKind
	Owner string
	Heat  *HeatOverlay
}

// SubGraph groups the nodes of one lane.
type SubGraph struct {
	ID      string
	Label   string
	NodeIDs []string
}

// HeatOverlay marks a node whose owner was flagged as a bottleneck.
type HeatOverlay struct {
	Severity string // from schema.Severity
	Note     string
}

// Edge represents a sequence flow between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}
