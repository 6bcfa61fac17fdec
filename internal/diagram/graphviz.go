package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

var kindShapes = map[NodeKind]cgraph.Shape{
	NodeKindTask:     cgraph.BoxShape,
	NodeKindDecision: cgraph.DiamondShape,
	NodeKindParallel: cgraph.DiamondShape,
	NodeKindStart:    cgraph.CircleShape,
	NodeKindEnd:      cgraph.DoubleCircleShape,
	NodeKindOther:    cgraph.EllipseShape,
}

// heatColors maps bottleneck severity to fill and font colour.
var heatColors = map[string][2]string{
	"high":   {"#8b1a1a", "white"},
	"medium": {"#b7791a", "white"},
	"low":    {"#f4d03f", "black"},
}

// RenderImage draws the model left to right as PNG, one dashed cluster per
// lane. Highlighted stations are filled by severity.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	d := &dotDrawing{graph: graph, nodes: make(map[string]*cgraph.Node, len(model.Nodes))}
	if err := d.draw(model); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render PNG: %w", err)
	}
	return buf.Bytes(), nil
}

type dotDrawing struct {
	graph *cgraph.Graph
	nodes map[string]*cgraph.Node
}

func (d *dotDrawing) draw(model *DiagramModel) error {
	byID := make(map[string]*Node, len(model.Nodes))
	for _, n := range model.Nodes {
		byID[n.ID] = n
	}

	for _, lane := range model.Lanes {
		cluster, err := d.graph.CreateSubGraphByName("cluster_" + lane.ID)
		if err != nil {
			return fmt.Errorf("diagram: create lane %s: %w", lane.ID, err)
		}
		cluster.SetLabel(lane.Label)
		cluster.SetStyle(cgraph.DashedGraphStyle)
		for _, id := range lane.NodeIDs {
			if n, ok := byID[id]; ok {
				if err := d.addNode(cluster, n); err != nil {
					return err
				}
			}
		}
	}

	// Nodes outside every lane go on the root graph.
	for _, n := range model.Nodes {
		if _, drawn := d.nodes[n.ID]; drawn {
			continue
		}
		if err := d.addNode(d.graph, n); err != nil {
			return err
		}
	}

	for _, e := range model.Edges {
		from, to := d.nodes[e.From], d.nodes[e.To]
		if from == nil || to == nil {
			continue
		}
		edge, err := d.graph.CreateEdgeByName("", from, to)
		if err != nil {
			return fmt.Errorf("diagram: create edge %s->%s: %w", e.From, e.To, err)
		}
		if e.Label != "" {
			edge.SetLabel(e.Label)
		}
	}
	return nil
}

func (d *dotDrawing) addNode(parent *cgraph.Graph, n *Node) error {
	gn, err := parent.CreateNodeByName(n.ID)
	if err != nil {
		return fmt.Errorf("diagram: create node %s: %w", n.ID, err)
	}
	gn.SetLabel(n.Label)
	if shape, ok := kindShapes[n.Kind]; ok {
		gn.SetShape(shape)
	}
	if n.Kind == NodeKindTask {
		gn.SetStyle(cgraph.RoundedNodeStyle)
	}
	if n.Heat != nil {
		if c, ok := heatColors[n.Heat.Severity]; ok {
			gn.SetStyle(cgraph.FilledNodeStyle)
			gn.SetFillColor(c[0])
			gn.SetFontColor(c[1])
		}
	}
	d.nodes[n.ID] = gn
	return nil
}
