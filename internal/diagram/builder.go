package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/macta/internal/bpmn"
	"github.com/rendis/macta/internal/expressions"
	"github.com/rendis/macta/pkg/schema"
)

// Build constructs a DiagramModel from an imported process graph.
// Classified elements become nodes in declaration order; unclassified flow
// nodes (intermediate events, sub-processes) are kept when a flow touches
// them. Flows with an unknown endpoint are dropped.
func Build(g *bpmn.ProcessGraph) (*DiagramModel, error) {
	if !g.Imported() {
		return nil, schema.NewError(schema.ErrCodeInvalidGraph, "diagram: process graph was not imported")
	}

	touched := make(map[string]bool, len(g.Flows)*2)
	for _, f := range g.Flows {
		touched[f.SourceRef] = true
		touched[f.TargetRef] = true
	}

	nodeIndex := make(map[string]*Node, len(g.Order))
	model := &DiagramModel{Title: titleFromGraph(g)}
	for _, id := range g.Order {
		el := g.Elements[id]
		kind := elementKind(el.Kind)
		if kind == NodeKindOther && (!touched[id] || id == g.ProcessID || strings.EqualFold(el.Tag, "sequenceFlow")) {
			continue
		}
		node := &Node{ID: id, Label: nodeLabel(el), Kind: kind, Owner: el.Owner}
		model.Nodes = append(model.Nodes, node)
		nodeIndex[id] = node
	}

	for _, f := range g.Flows {
		if nodeIndex[f.SourceRef] == nil || nodeIndex[f.TargetRef] == nil {
			continue
		}
		model.Edges = append(model.Edges, Edge{From: f.SourceRef, To: f.TargetRef, Label: edgeLabel(f)})
	}

	assigned := make(map[string]bool)
	for _, lane := range g.Lanes {
		if lane.Name == "" {
			continue
		}
		sg := &SubGraph{ID: lane.ID, Label: lane.Name}
		for _, ref := range lane.FlowNodeRefs {
			if nodeIndex[ref] != nil && !assigned[ref] {
				sg.NodeIDs = append(sg.NodeIDs, ref)
				assigned[ref] = true
			}
		}
		if len(sg.NodeIDs) > 0 {
			model.Lanes = append(model.Lanes, sg)
		}
	}

	return model, nil
}

// Highlight overlays bottlenecks on the nodes owned by the flagged resource,
// matching the owner against resource name or ID case-insensitively. The
// most severe bottleneck wins. It returns the number of highlighted nodes.
func Highlight(model *DiagramModel, bottlenecks []schema.Bottleneck) int {
	n := 0
	for _, node := range model.Nodes {
		if node.Owner == "" {
			continue
		}
		for _, b := range bottlenecks {
			if !strings.EqualFold(node.Owner, b.ResourceName) && !strings.EqualFold(node.Owner, b.ResourceID) {
				continue
			}
			if node.Heat == nil {
				n++
			} else if severityRank(schema.Severity(node.Heat.Severity)) >= severityRank(b.Severity) {
				continue
			}
			node.Heat = &HeatOverlay{
				Severity: string(b.Severity),
				Note:     fmt.Sprintf("%s bottleneck, hours %d-%d", b.Type, b.StartHour, b.EndHour),
			}
		}
	}
	return n
}

func severityRank(s schema.Severity) int {
	switch s {
	case schema.SeverityHigh:
		return 3
	case schema.SeverityMedium:
		return 2
	case schema.SeverityLow:
		return 1
	default:
		return 0
	}
}

// elementKind converts a bpmn.ElementKind to a NodeKind.
func elementKind(k bpmn.ElementKind) NodeKind {
	switch k {
	case bpmn.KindExclusiveGateway, bpmn.KindInclusiveGateway:
		return NodeKindDecision
	case bpmn.KindParallelGateway:
		return NodeKindParallel
	case bpmn.KindStartEvent:
		return NodeKindStart
	case bpmn.KindEndEvent:
		return NodeKindEnd
	}
	if k.Category() == bpmn.CategoryTask {
		return NodeKindTask
	}
	return NodeKindOther
}

func nodeLabel(el *bpmn.ProcessElement) string {
	if el.Name != "" {
		return el.Name
	}
	return el.ID
}

// edgeLabel prefers the flow name and falls back to its condition.
func edgeLabel(f bpmn.SequenceFlow) string {
	if f.Name != "" {
		return f.Name
	}
	return expressions.NormalizeCondition(f.ConditionExpression)
}

// titleFromGraph generates a diagram title from process metadata.
func titleFromGraph(g *bpmn.ProcessGraph) string {
	switch {
	case g.ProcessName != "":
		return g.ProcessName
	case g.ProcessID != "":
		return g.ProcessID
	default:
		return "Process"
	}
}
