package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Lanes become subgraphs.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("flowchart LR\n")

	// Title as comment.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	byID := make(map[string]*Node, len(model.Nodes))
	for _, node := range model.Nodes {
		byID[node.ID] = node
	}

	inLane := make(map[string]bool)
	for _, lane := range model.Lanes {
		b.WriteString(fmt.Sprintf("    subgraph %s[\"%s\"]\n", mermaidSafeID(lane.ID), mermaidEscapeLabel(lane.Label)))
		for _, id := range lane.NodeIDs {
			b.WriteString(fmt.Sprintf("        %s\n", mermaidNodeDef(byID[id])))
			inLane[id] = true
		}
		b.WriteString("    end\n")
	}
	for _, node := range model.Nodes {
		if !inLane[node.ID] {
			b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
		}
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|\"%s\"|", mermaidEscapeLabel(edge.Label))
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	// Heat class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef high fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef medium fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef low fill:#f4d03f,stroke:#b7950b,color:#000\n")

	for _, node := range model.Nodes {
		if node.Heat != nil {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), node.Heat.Severity))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(node.Label)

	switch node.Kind {
	case NodeKindDecision:
		return fmt.Sprintf("%s{\"%s\"}", id, label)
	case NodeKindParallel:
		return fmt.Sprintf("%s{{\"%s\"}}", id, label)
	case NodeKindStart:
		return fmt.Sprintf("%s((\"%s\"))", id, label)
	case NodeKindEnd:
		return fmt.Sprintf("%s(((\"%s\")))", id, label)
	case NodeKindOther:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	default: // task
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots, dashes and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel escapes characters that terminate a quoted Mermaid label.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "#quot;", "\n", " ")
	return r.Replace(s)
}
