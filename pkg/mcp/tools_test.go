package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/macta/internal/analysis"
	"github.com/rendis/macta/internal/store"
	"github.com/rendis/macta/pkg/schema"
)

func newTestServer(t *testing.T) (*MactaServer, *analysis.Service) {
	t.Helper()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := analysis.NewService(st, logger)
	require.NoError(t, err)
	return NewMactaServer(MactaServerDeps{Service: svc, Logger: logger}), svc
}

func approvalXML(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "internal", "bpmn", "testdata", "approval.bpmn"))
	require.NoError(t, err)
	return string(data)
}

// seedProcess imports the approval process through the tool and staffs it.
func seedProcess(t *testing.T, s *MactaServer, svc *analysis.Service) string {
	t.Helper()
	result, err := s.handleImport(context.Background(), buildRequest("macta.import", map[string]any{
		"xml": approvalXML(t),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var imported map[string]any
	unmarshalResult(t, result, &imported)
	id := imported["process_id"].(string)
	require.NoError(t, svc.SetResources(context.Background(), id, []schema.ResourceConfig{
		{ID: "desk", Name: "Line Manager", Count: 2, ServiceRatePerHour: 12},
	}))
	return id
}

// simulate runs the standard preset with a fixed seed and returns the response.
func simulate(t *testing.T, s *MactaServer, processID string) schema.SimulationResponse {
	t.Helper()
	result, err := s.handleSimulate(context.Background(), buildRequest("macta.simulate", map[string]any{
		"process_id":       processID,
		"config_type":      "standard",
		"simulation_hours": float64(8),
		"seed":             "11",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var resp schema.SimulationResponse
	unmarshalResult(t, result, &resp)
	return resp
}

// --- Helper ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// --- Tests ---

func TestImportTool(t *testing.T) {
	s, svc := newTestServer(t)
	id := seedProcess(t, s, svc)
	assert.Equal(t, "Process_Approval", id)

	result, err := s.handleImport(context.Background(), buildRequest("macta.import", map[string]any{
		"xml": "<bpmn:definitions",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), schema.ErrCodeInvalidXML)
}

func TestImportToolMissingXML(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleImport(context.Background(), buildRequest("macta.import", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDocumentTool(t *testing.T) {
	s, svc := newTestServer(t)
	id := seedProcess(t, s, svc)

	result, err := s.handleDocument(context.Background(), buildRequest("macta.document", map[string]any{
		"process_id": id,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var doc schema.ProcedureDocumentation
	unmarshalResult(t, result, &doc)
	assert.Equal(t, 7, doc.ProcessStatistics.TotalSteps)

	result, err = s.handleDocument(context.Background(), buildRequest("macta.document", map[string]any{
		"xml":    approvalXML(t),
		"format": "markdown",
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(t, result), "Purchase Approval")

	result, err = s.handleDocument(context.Background(), buildRequest("macta.document", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestLintTool(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleLint(context.Background(), buildRequest("macta.lint", map[string]any{
		"xml":       approvalXML(t),
		"variables": map[string]any{"approved": true},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var body struct {
		Valid bool `json:"valid"`
	}
	unmarshalResult(t, result, &body)
	assert.True(t, body.Valid)
}

func TestSimulateTool(t *testing.T) {
	s, svc := newTestServer(t)
	id := seedProcess(t, s, svc)

	resp := simulate(t, s, id)
	assert.NotEmpty(t, resp.RunID)
	assert.Len(t, resp.SimulationMetrics.HourlyMetrics, 8)

	run, err := svc.GetRun(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "mcp", run.Trigger)
	assert.Equal(t, uint64(11), run.Seed)
}

func TestSimulateToolErrors(t *testing.T) {
	s, svc := newTestServer(t)
	id := seedProcess(t, s, svc)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing process", map[string]any{"config_type": "standard", "simulation_hours": float64(8)}, "process_id is required"},
		{"missing hours", map[string]any{"process_id": id, "config_type": "standard"}, "simulation_hours is required"},
		{"bad seed", map[string]any{"process_id": id, "config_type": "standard", "simulation_hours": float64(8), "seed": "-1"}, "seed must be"},
		{"unknown config", map[string]any{"process_id": id, "config_type": "holiday", "simulation_hours": float64(8)}, schema.ErrCodeInvalidConfig},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleSimulate(context.Background(), buildRequest("macta.simulate", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), tc.want)
		})
	}
}

func TestQueryTool(t *testing.T) {
	s, svc := newTestServer(t)
	id := seedProcess(t, s, svc)
	resp := simulate(t, s, id)

	result, err := s.handleQuery(context.Background(), buildRequest("macta.query", map[string]any{
		"run_id": resp.RunID,
		"jq":     "[.completedCases[] | .waitTime] | length",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var projected struct {
		Result int `json:"result"`
	}
	unmarshalResult(t, result, &projected)
	assert.Equal(t, len(resp.CompletedCases), projected.Result)

	result, err = s.handleQuery(context.Background(), buildRequest("macta.query", map[string]any{
		"run_id": resp.RunID,
	}))
	require.NoError(t, err)
	var run store.SimulationRun
	unmarshalResult(t, result, &run)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)

	result, err = s.handleQuery(context.Background(), buildRequest("macta.query", map[string]any{
		"filter": map[string]any{"process_id": id, "status": "completed"},
	}))
	require.NoError(t, err)
	var list struct {
		Runs []store.SimulationRun `json:"runs"`
	}
	unmarshalResult(t, result, &list)
	require.Len(t, list.Runs, 1)
	assert.Empty(t, list.Runs[0].Result)

	result, err = s.handleQuery(context.Background(), buildRequest("macta.query", map[string]any{
		"run_id": "missing",
		"jq":     ".",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDiagramTool(t *testing.T) {
	s, svc := newTestServer(t)
	id := seedProcess(t, s, svc)

	result, err := s.handleDiagram(context.Background(), buildRequest("macta.diagram", map[string]any{
		"process_id": id,
		"format":     "mermaid",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.True(t, strings.HasPrefix(extractText(t, result), "flowchart LR"))

	result, err = s.handleDiagram(context.Background(), buildRequest("macta.diagram", map[string]any{
		"process_id": id,
		"format":     "image",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	png, err := base64.StdEncoding.DecodeString(extractText(t, result))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))

	result, err = s.handleDiagram(context.Background(), buildRequest("macta.diagram", map[string]any{
		"process_id": id,
		"format":     "ascii",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExtractInt(t *testing.T) {
	filter := map[string]any{"a": float64(5), "b": 7, "c": "9", "d": "x"}
	assert.Equal(t, 5, extractInt(filter, "a", 0))
	assert.Equal(t, 7, extractInt(filter, "b", 0))
	assert.Equal(t, 9, extractInt(filter, "c", 0))
	assert.Equal(t, 1, extractInt(filter, "d", 1))
	assert.Equal(t, 2, extractInt(nil, "a", 2))
}

// --- Test helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
