package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"

	"github.com/rendis/macta/pkg/schema"
)

var fixture = filepath.Join("..", "..", "internal", "bpmn", "testdata", "approval.bpmn")

// runApp runs the CLI against an isolated data dir and returns stdout.
func runApp(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}

	argv := []string{"macta",
		"--settings", filepath.Join(dir, "settings.json"),
		"--db-path", filepath.Join(dir, "macta.db"),
		"--log-level", "error",
	}
	err := app.Run(context.Background(), append(argv, args...))
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDocumentCommand_Raw(t *testing.T) {
	out, err := runApp(t, t.TempDir(), "document", "--raw", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "Purchase Approval")
	assert.Contains(t, out, "Review Request")
}

func TestDocumentCommand_JSON(t *testing.T) {
	out, err := runApp(t, t.TempDir(), "document", "--json", fixture)
	require.NoError(t, err)

	var doc schema.ProcedureDocumentation
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc.ProcedureSteps, 7)
}

func TestDocumentCommand_MissingArgument(t *testing.T) {
	_, err := runApp(t, t.TempDir(), "document")
	assert.ErrorContains(t, err, "file argument required")
}

func TestLintCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := runApp(t, dir, "lint", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "no issues")

	broken := writeFile(t, dir, "broken.bpmn", `<definitions><process id="P">
	  <startEvent id="S" /><exclusiveGateway id="G" /><endEvent id="E" />
	  <sequenceFlow id="f1" sourceRef="S" targetRef="G" />
	  <sequenceFlow id="f2" name="Go" sourceRef="G" targetRef="E"><conditionExpression>${amount &gt;}</conditionExpression></sequenceFlow>
	</process></definitions>`)
	out, err = runApp(t, dir, "lint", broken)
	require.Error(t, err)
	assert.Contains(t, out, "f2")
	assert.Contains(t, out, schema.IssueConditionSyntax)
}

func TestLintCommand_Vars(t *testing.T) {
	out, err := runApp(t, t.TempDir(), "lint", "--json", "--vars", `{"approved":true}`, fixture)
	require.NoError(t, err)

	var res schema.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Valid())
	assert.Empty(t, res.Warnings)
}

func TestDiagramCommand_Mermaid(t *testing.T) {
	out, err := runApp(t, t.TempDir(), "diagram", fixture)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flowchart LR"))
	assert.Contains(t, out, "Review Request")
}

func TestDiagramCommand_PNGNeedsOutput(t *testing.T) {
	_, err := runApp(t, t.TempDir(), "diagram", "--format", "png", fixture)
	assert.ErrorContains(t, err, "--output")

	_, err = runApp(t, t.TempDir(), "diagram", "--format", "svg", fixture)
	assert.ErrorContains(t, err, "mermaid or png")
}

const configJSON = `{
  "arrivalPattern": "poisson",
  "meanInterarrivalMinutes": 6,
  "serviceTimeDistribution": {"kind": "exponential"},
  "resources": [{"id": "desk", "name": "Review Desk", "count": 2, "serviceRatePerHour": 12}],
  "slaTargetMinutes": 240,
  "horizonHours": 8,
  "seed": 11
}`

func TestSimulateCommand_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.json", configJSON)

	first, err := runApp(t, dir, "simulate", "--config", cfg)
	require.NoError(t, err)
	second, err := runApp(t, dir, "simulate", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var resp schema.SimulationResponse
	require.NoError(t, json.Unmarshal([]byte(first), &resp))
	assert.Positive(t, resp.SimulationMetrics.TotalCases)
	assert.Len(t, resp.SimulationMetrics.HourlyMetrics, 8)
	assert.Contains(t, resp.SimulationMetrics.ResourceUtilization, "desk")
}

func TestSimulateCommand_HoursOverride(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.json", configJSON)

	out, err := runApp(t, dir, "simulate", "--config", cfg, "--hours", "3", "--seed", "5")
	require.NoError(t, err)

	var resp schema.SimulationResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.SimulationMetrics.HourlyMetrics, 3)
}

func TestSimulateCommand_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.json", `{"arrivalPattern":"sometimes","resources":[]}`)

	_, err := runApp(t, dir, "simulate", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeInvalidConfig, schema.ErrorCode(err))
}

func TestSimulateCommand_Replications(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.json", configJSON)

	out, err := runApp(t, dir, "simulate", "--config", cfg, "--replications", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "\"runs\": 3")
}

func TestSimulateCommand_NeedsSource(t *testing.T) {
	_, err := runApp(t, t.TempDir(), "simulate")
	assert.ErrorContains(t, err, "--config or --process")

	_, err = runApp(t, t.TempDir(), "simulate", "--config", "x.json", "--seed=-1")
	assert.ErrorContains(t, err, "--seed")
}

func TestImportThenSimulateProcess(t *testing.T) {
	dir := t.TempDir()
	resources := writeFile(t, dir, "resources.json",
		`[{"id":"desk","name":"Line Manager","count":2,"serviceRatePerHour":12}]`)

	out, err := runApp(t, dir, "import", "--resources", resources, fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "imported Process_Approval")
	assert.Contains(t, out, "3 tasks")

	out, err = runApp(t, dir, "simulate", "--process", "Process_Approval", "--hours", "4", "--seed", "3", "--summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Simulation summary")
	assert.Contains(t, out, "Line Manager")
}

func TestEventsAndVacuumCommands(t *testing.T) {
	dir := t.TempDir()
	resources := writeFile(t, dir, "resources.json",
		`[{"id":"desk","name":"Line Manager","count":1,"serviceRatePerHour":12}]`)
	_, err := runApp(t, dir, "import", "--resources", resources, fixture)
	require.NoError(t, err)

	out, err := runApp(t, dir, "simulate", "--process", "Process_Approval", "--hours", "2", "--seed", "9")
	require.NoError(t, err)
	var resp schema.SimulationResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.RunID)

	out, err = runApp(t, dir, "events", resp.RunID)
	require.NoError(t, err)
	assert.Contains(t, out, "completed after 2 event(s)")
	assert.Contains(t, out, schema.EventSimulationStarted)
	assert.Contains(t, out, schema.EventSimulationCompleted)

	out, err = runApp(t, dir, "events", "--since", "1", resp.RunID)
	require.NoError(t, err)
	assert.NotContains(t, out, schema.EventSimulationStarted)

	_, err = runApp(t, dir, "events")
	assert.ErrorContains(t, err, "run ID required")

	out, err = runApp(t, dir, "vacuum")
	require.NoError(t, err)
	assert.Contains(t, out, "vacuum complete")
}

func TestSummaryMarkdown(t *testing.T) {
	resp := &schema.SimulationResponse{
		RunID: "run-1",
		SimulationMetrics: schema.SimulationMetrics{
			TotalCases:     10,
			CompletedCases: 9,
			SLACompliance:  schema.SLACompliance{TargetMinutes: 240, CompliantCases: 9, TotalCases: 9, ComplianceRate: 1},
			ResourceUtilization: map[string]schema.ResourceUtilization{
				"desk": {Name: "Desk", Count: 1, UtilizationRate: 0.91},
			},
			Bottlenecks: []schema.Bottleneck{{
				ResourceName: "Desk", Type: schema.BottleneckCapacity, Severity: schema.SeverityHigh,
				StartHour: 2, EndHour: 5, Description: "saturated",
			}},
		},
		Recommendations: []schema.Recommendation{{Title: "Add staff", Priority: schema.SeverityHigh, Description: "one more"}},
	}

	md := summaryMarkdown(resp)
	assert.Contains(t, md, "Run `run-1`")
	assert.Contains(t, md, "| Completed cases | 9 |")
	assert.Contains(t, md, "| Desk | 1 | 91.0% |")
	assert.Contains(t, md, "hours 2-5: saturated")
	assert.Contains(t, md, "**Add staff** (high)")
}

func TestSeedRange(t *testing.T) {
	assert.Equal(t, []uint64{4, 5, 6}, seedRange(4, 3))
}
