package diagram

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/macta/internal/bpmn"
	"github.com/rendis/macta/pkg/schema"
)

const approvalXML = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL" id="Defs">
  <bpmn:process id="Process_Approval" name="Purchase Approval">
    <bpmn:laneSet id="LaneSet_1">
      <bpmn:lane id="Lane_Manager" name="Line Manager">
        <bpmn:flowNodeRef>Review</bpmn:flowNodeRef>
        <bpmn:flowNodeRef>Decision</bpmn:flowNodeRef>
      </bpmn:lane>
      <bpmn:lane id="Lane_Empty" />
    </bpmn:laneSet>
    <bpmn:startEvent id="Start" name="Request Raised" />
    <bpmn:userTask id="Review" name="Review &quot;Request&quot;" />
    <bpmn:exclusiveGateway id="Decision" name="Approved?" />
    <bpmn:intermediateCatchEvent id="Wait" name="Wait For Budget" />
    <bpmn:serviceTask id="Order" name="Place Order" />
    <bpmn:endEvent id="Done" />
    <bpmn:intermediateThrowEvent id="Loose" />
    <bpmn:sequenceFlow id="f1" sourceRef="Start" targetRef="Review" />
    <bpmn:sequenceFlow id="f2" sourceRef="Review" targetRef="Decision" />
    <bpmn:sequenceFlow id="yes" name="Approved" sourceRef="Decision" targetRef="Wait">
      <bpmn:conditionExpression>${approved}</bpmn:conditionExpression>
    </bpmn:sequenceFlow>
    <bpmn:sequenceFlow id="no" sourceRef="Decision" targetRef="Done">
      <bpmn:conditionExpression>${!approved}</bpmn:conditionExpression>
    </bpmn:sequenceFlow>
    <bpmn:sequenceFlow id="f3" sourceRef="Wait" targetRef="Order" />
    <bpmn:sequenceFlow id="f4" sourceRef="Order" targetRef="Done" />
    <bpmn:sequenceFlow id="f5" sourceRef="Order" targetRef="Ghost" />
  </bpmn:process>
</bpmn:definitions>`

func buildApproval(t *testing.T) *DiagramModel {
	t.Helper()
	g, err := bpmn.Parse(approvalXML)
	require.NoError(t, err)
	model, err := Build(g)
	require.NoError(t, err)
	return model
}

func nodeIDs(model *DiagramModel) []string {
	ids := make([]string, 0, len(model.Nodes))
	for _, n := range model.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestBuild(t *testing.T) {
	model := buildApproval(t)

	assert.Equal(t, "Purchase Approval", model.Title)
	assert.Equal(t, []string{"Start", "Review", "Decision", "Wait", "Order", "Done"}, nodeIDs(model))

	kinds := make(map[string]NodeKind)
	for _, n := range model.Nodes {
		kinds[n.ID] = n.Kind
	}
	assert.Equal(t, NodeKindStart, kinds["Start"])
	assert.Equal(t, NodeKindTask, kinds["Review"])
	assert.Equal(t, NodeKindDecision, kinds["Decision"])
	assert.Equal(t, NodeKindOther, kinds["Wait"])
	assert.Equal(t, NodeKindEnd, kinds["Done"])

	require.Len(t, model.Edges, 6, "dangling flow dropped")
	assert.Equal(t, Edge{From: "Decision", To: "Wait", Label: "Approved"}, model.Edges[2])
	assert.Equal(t, Edge{From: "Decision", To: "Done", Label: "!approved"}, model.Edges[3])

	require.Len(t, model.Lanes, 1, "unnamed lane ignored")
	assert.Equal(t, "Line Manager", model.Lanes[0].Label)
	assert.Equal(t, []string{"Review", "Decision"}, model.Lanes[0].NodeIDs)
}

func TestBuild_NotImported(t *testing.T) {
	_, err := Build(&bpmn.ProcessGraph{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidGraph))
}

func TestHighlight(t *testing.T) {
	model := buildApproval(t)

	n := Highlight(model, []schema.Bottleneck{
		{ResourceID: "mgr", ResourceName: "line manager", Type: schema.BottleneckQueue, Severity: schema.SeverityLow, StartHour: 1, EndHour: 3},
		{ResourceID: "mgr", ResourceName: "Line Manager", Type: schema.BottleneckCapacity, Severity: schema.SeverityHigh, StartHour: 2, EndHour: 5},
		{ResourceID: "warehouse", ResourceName: "Warehouse", Type: schema.BottleneckQueue, Severity: schema.SeverityMedium},
	})
	assert.Equal(t, 2, n)

	for _, node := range model.Nodes {
		switch node.ID {
		case "Review", "Decision":
			require.NotNil(t, node.Heat, node.ID)
			assert.Equal(t, "high", node.Heat.Severity)
			assert.Equal(t, "capacity bottleneck, hours 2-5", node.Heat.Note)
		default:
			assert.Nil(t, node.Heat, node.ID)
		}
	}
}

func TestRenderMermaid(t *testing.T) {
	model := buildApproval(t)
	Highlight(model, []schema.Bottleneck{{ResourceName: "Line Manager", Severity: schema.SeverityMedium}})

	out := RenderMermaid(model)
	assert.True(t, strings.HasPrefix(out, "flowchart LR\n"))
	assert.Contains(t, out, "%% Purchase Approval")
	assert.Contains(t, out, `subgraph Lane_Manager["Line Manager"]`)
	assert.Contains(t, out, `Review["Review #quot;Request#quot;"]`)
	assert.Contains(t, out, `Decision{"Approved?"}`)
	assert.Contains(t, out, `Start(("Request Raised"))`)
	assert.Contains(t, out, `Done((("Done")))`)
	assert.Contains(t, out, `Wait(["Wait For Budget"])`)
	assert.Contains(t, out, `Decision -->|"Approved"| Wait`)
	assert.Contains(t, out, "class Review medium")
	assert.NotContains(t, out, "Ghost")

	// Lane members are declared inside their subgraph only.
	assert.Equal(t, 1, strings.Count(out, `Review["`))
}

func TestRenderImage(t *testing.T) {
	model := buildApproval(t)
	Highlight(model, []schema.Bottleneck{{ResourceName: "Line Manager", Severity: schema.SeverityHigh}})

	png, err := RenderImage(context.Background(), model)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)

	// PNG magic bytes.
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}
