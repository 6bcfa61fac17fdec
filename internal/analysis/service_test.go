package analysis

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/macta/internal/logging"
	"github.com/rendis/macta/internal/store"
	"github.com/rendis/macta/pkg/schema"
)

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestService(t *testing.T) (*Service, *store.LibSQLStore) {
	t.Helper()
	st := newTestStore(t)
	svc, err := NewService(st, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithSeedSource(func() uint64 { return 42 }),
	)
	require.NoError(t, err)
	return svc, st
}

func approvalXML(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "bpmn", "testdata", "approval.bpmn"))
	require.NoError(t, err)
	return string(data)
}

// importApproval stores the approval process staffed by one review desk.
func importApproval(t *testing.T, svc *Service) string {
	t.Helper()
	ctx := context.Background()
	m, _, err := svc.ImportModel(ctx, "", "", "", approvalXML(t))
	require.NoError(t, err)
	require.NoError(t, svc.SetResources(ctx, m.ID, []schema.ResourceConfig{
		{ID: "desk", Name: "Line Manager", Count: 2, ServiceRatePerHour: 12},
	}))
	return m.ID
}

func request(processID string) schema.SimulationRequest {
	seed := uint64(7)
	return schema.SimulationRequest{ProcessID: processID, ConfigType: PresetStandard, SimulationHours: 8, Seed: &seed}
}

func TestImportModel(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	m, graph, err := svc.ImportModel(ctx, "", "", "", approvalXML(t))
	require.NoError(t, err)
	assert.Equal(t, "Process_Approval", m.ID)
	assert.Equal(t, "Purchase Approval", m.Name)
	assert.Equal(t, "Approval of purchase requests above the petty cash limit.", m.Description)
	assert.Len(t, graph.Tasks, 3)

	got, err := st.GetProcessModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ModelData, got.ModelData)

	events, err := st.GetEvents(ctx, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, schema.EventModelImported, events[0].Type)

	m, _, err = svc.ImportModel(ctx, "approval-v2", "Approval v2", "", approvalXML(t))
	require.NoError(t, err)
	assert.Equal(t, "approval-v2", m.ID)
	assert.Equal(t, "Approval v2", m.Name)
}

func TestImportModelInvalidXML(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.ImportModel(ctx, "broken", "", "", "<definitions><process>")
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidXML))

	_, err = st.GetProcessModel(ctx, "broken")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestSetResourcesValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := importApproval(t, svc)

	err := svc.SetResources(ctx, id, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = svc.SetResources(ctx, id, []schema.ResourceConfig{{ID: "desk", Count: 0, ServiceRatePerHour: 4}})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = svc.SetResources(ctx, "missing", []schema.ResourceConfig{{ID: "desk", Count: 1, ServiceRatePerHour: 4}})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	res, err := svc.Resources(ctx, id)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Line Manager", res[0].Name)
}

func TestDocument(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	id := importApproval(t, svc)

	doc, err := svc.Document(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Purchase Approval", doc.ProcessOverview.Name)
	assert.Len(t, doc.ProcedureSteps, 7)
	assert.Equal(t, 7, doc.ProcedureSteps[6].Number)
	require.Len(t, doc.DecisionPoints, 1)
	assert.Len(t, doc.DecisionPoints[0].Paths, 2)

	events, err := st.GetEventsByType(ctx, schema.EventDocumentGenerated, store.EventFilter{SubjectID: id})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = svc.Document(ctx, "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestDocumentXML(t *testing.T) {
	svc, _ := newTestService(t)

	doc, err := svc.DocumentXML(context.Background(), approvalXML(t))
	require.NoError(t, err)
	assert.Equal(t, 7, doc.ProcessStatistics.TotalSteps)

	_, err = svc.DocumentXML(context.Background(), "not xml")
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidXML))
}

func TestLint(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.Lint(context.Background(), approvalXML(t), map[string]any{"approved": true})
	require.NoError(t, err)
	assert.True(t, res.Valid(), "errors: %v", res.Errors)

	_, err = svc.Lint(context.Background(), "<x", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidXML))
}

func TestSimulatePersistsRun(t *testing.T) {
	svc, _ := newTestService(t)
	id := importApproval(t, svc)
	ctx := logging.WithTrigger(context.Background(), "api")

	resp, err := svc.Simulate(ctx, request(id))
	require.NoError(t, err)
	require.NotEmpty(t, resp.RunID)
	assert.Greater(t, resp.SimulationMetrics.TotalCases, 0)
	assert.Equal(t, len(resp.CompletedCases), resp.SimulationMetrics.CompletedCases)
	assert.Len(t, resp.SimulationMetrics.HourlyMetrics, 8)
	assert.Contains(t, resp.SimulationMetrics.ResourceUtilization, "desk")

	run, err := svc.GetRun(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, uint64(7), run.Seed)
	assert.Equal(t, 8, run.HorizonHours)
	assert.Equal(t, "api", run.Trigger)
	assert.NotNil(t, run.CompletedAt)

	history, err := svc.RunEvents(ctx, resp.RunID, 0)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, history.State.Status)
	assert.Equal(t, 2, history.State.Events)
	assert.NotEmpty(t, history.State.Summary)

	stored, err := svc.RunResponse(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, resp.SimulationMetrics.TotalCases, stored.SimulationMetrics.TotalCases)
	require.Len(t, stored.SimulationMetrics.HourlyMetrics, 8)
	hour := stored.SimulationMetrics.HourlyMetrics[0]
	assert.Contains(t, hour.StationUtilization, "desk")
	assert.Contains(t, hour.StationQueue, "desk")
	assert.Equal(t, resp.SimulationMetrics.HourlyMetrics[0].StationUtilization, hour.StationUtilization)
}

func TestSimulateDeterministic(t *testing.T) {
	svc, _ := newTestService(t)
	id := importApproval(t, svc)
	ctx := context.Background()

	a, err := svc.Simulate(ctx, request(id))
	require.NoError(t, err)
	b, err := svc.Simulate(ctx, request(id))
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.SimulationMetrics, b.SimulationMetrics)
	assert.Equal(t, a.CompletedCases, b.CompletedCases)
}

func TestSimulateDefaultSeed(t *testing.T) {
	svc, _ := newTestService(t)
	id := importApproval(t, svc)
	ctx := context.Background()

	req := request(id)
	req.Seed = nil
	resp, err := svc.Simulate(ctx, req)
	require.NoError(t, err)

	run, err := svc.GetRun(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), run.Seed)
}

func TestSimulateConfigErrors(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	id := importApproval(t, svc)

	req := request(id)
	req.ConfigType = "weekend"
	_, err := svc.Simulate(ctx, req)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidConfig))

	req = request(id)
	req.SimulationHours = 0
	_, err = svc.Simulate(ctx, req)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidConfig))

	// A process without staffed stations cannot be simulated.
	_, _, err = svc.ImportModel(ctx, "unstaffed", "", "", approvalXML(t))
	require.NoError(t, err)
	_, err = svc.Simulate(ctx, request("unstaffed"))
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidConfig))

	_, err = svc.Simulate(ctx, request("missing"))
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	// Configuration errors leave no run behind.
	runs, err := st.ListSimulationRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStoredConfigOverridesPreset(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := importApproval(t, svc)

	_, err := svc.SaveConfig(ctx, PresetStandard, id, "quiet month",
		[]byte(`{"arrivalPattern":"poisson","meanInterarrivalMinutes":60,"slaTargetMinutes":120}`))
	require.NoError(t, err)

	cfg, err := svc.ResolveConfig(ctx, request(id))
	require.NoError(t, err)
	assert.Equal(t, 60.0, cfg.MeanInterarrivalMinutes)
	assert.Equal(t, 120.0, cfg.SLATargetMinutes)
	assert.Equal(t, 8, cfg.HorizonHours)
	assert.Equal(t, uint64(7), cfg.Seed)
	require.Len(t, cfg.Resources, 1)
	assert.Equal(t, "desk", cfg.Resources[0].ID)

	// Other processes still get the preset.
	other := request("other")
	cfg, err = svc.ResolveConfig(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 6.0, cfg.MeanInterarrivalMinutes)
}

func TestSaveConfigInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SaveConfig(ctx, "weekly", "", "", []byte(`{"arrivalPattern":"weekly","meanInterarrivalMinutes":5}`))
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidConfig))

	_, err = svc.SaveConfig(ctx, "", "", "", []byte(`{"arrivalPattern":"poisson","meanInterarrivalMinutes":5}`))
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestListConfigs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SaveConfig(ctx, PresetPeak, "", "shared peak", []byte(`{"arrivalPattern":"poisson","meanInterarrivalMinutes":2}`))
	require.NoError(t, err)

	recs, err := svc.ListConfigs(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, PresetPeak, recs[0].Name)
	assert.Equal(t, "shared peak", recs[0].Description)
	names := []string{recs[1].Name, recs[2].Name, recs[3].Name}
	assert.Equal(t, []string{PresetBatch, PresetStandard, PresetVariable}, names)
}

func TestQuery(t *testing.T) {
	svc, _ := newTestService(t)
	id := importApproval(t, svc)
	ctx := context.Background()

	resp, err := svc.Simulate(ctx, request(id))
	require.NoError(t, err)

	got, err := svc.Query(ctx, resp.RunID, ".simulationMetrics.totalCases")
	require.NoError(t, err)
	assert.EqualValues(t, resp.SimulationMetrics.TotalCases, got)

	got, err = svc.Query(ctx, resp.RunID, "")
	require.NoError(t, err)
	assert.Contains(t, got, "simulationMetrics")

	_, err = svc.Query(ctx, resp.RunID, ".[")
	assert.Error(t, err)

	_, err = svc.Query(ctx, "missing", ".")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestDiagram(t *testing.T) {
	svc, _ := newTestService(t)
	id := importApproval(t, svc)
	ctx := context.Background()

	model, err := svc.Diagram(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, "Purchase Approval", model.Title)
	assert.Len(t, model.Nodes, 7)
	assert.Len(t, model.Edges, 6)

	resp, err := svc.Simulate(ctx, request(id))
	require.NoError(t, err)
	_, err = svc.Diagram(ctx, id, resp.RunID)
	require.NoError(t, err)

	_, err = svc.Diagram(ctx, id, "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestReplicate(t *testing.T) {
	svc, _ := newTestService(t)
	id := importApproval(t, svc)

	summary, err := svc.Replicate(context.Background(), request(id), []uint64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Runs)
	assert.Equal(t, []uint64{1, 2, 3}, summary.Seeds)
	assert.Greater(t, summary.MeanTotalCases, 0.0)
}

func TestPresets(t *testing.T) {
	assert.Equal(t, []string{PresetBatch, PresetPeak, PresetStandard, PresetVariable}, PresetNames())

	cfg, ok := Preset(PresetBatch)
	require.True(t, ok)
	cfg.Batch.Size = 99
	again, _ := Preset(PresetBatch)
	assert.Equal(t, 10, again.Batch.Size)

	_, ok = Preset("weekend")
	assert.False(t, ok)
}

func TestRunEvents(t *testing.T) {
	svc, st := newTestService(t)
	id := importApproval(t, svc)
	ctx := context.Background()

	resp, err := svc.Simulate(ctx, request(id))
	require.NoError(t, err)

	history, err := svc.RunEvents(ctx, resp.RunID, 1)
	require.NoError(t, err)
	require.Len(t, history.Events, 1)
	assert.Equal(t, schema.EventSimulationCompleted, history.Events[0].Type)
	assert.Equal(t, 2, history.State.Events, "state replays the whole log")

	_, err = svc.RunEvents(ctx, "missing", 0)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	// A gap in the log is reported instead of replayed.
	_, err = st.DB().ExecContext(ctx,
		`INSERT INTO events (subject_id, event_type, timestamp, sequence) VALUES (?, 'simulation_failed', CURRENT_TIMESTAMP, 9)`,
		resp.RunID)
	require.NoError(t, err)
	_, err = svc.RunEvents(ctx, resp.RunID, 0)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
}

func TestRecentEvents(t *testing.T) {
	svc, _ := newTestService(t)
	id := importApproval(t, svc)
	ctx := context.Background()

	for range 3 {
		_, err := svc.Simulate(ctx, request(id))
		require.NoError(t, err)
	}

	events, err := svc.RecentEvents(ctx, schema.EventSimulationCompleted, store.EventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	imported, err := svc.RecentEvents(ctx, schema.EventModelImported, store.EventFilter{SubjectID: id})
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, id, imported[0].SubjectID)

	_, err = svc.RecentEvents(ctx, "", store.EventFilter{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestCompact(t *testing.T) {
	svc, _ := newTestService(t)
	importApproval(t, svc)

	require.NoError(t, svc.Compact(context.Background()))
	models, err := svc.ListModels(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, models, 1)
}
