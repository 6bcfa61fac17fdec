package panel

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rendis/macta/internal/diagram"
	"github.com/rendis/macta/internal/logging"
	"github.com/rendis/macta/internal/procedure"
	"github.com/rendis/macta/internal/store"
	"github.com/rendis/macta/pkg/schema"
)

// --- Simulations ---

// handleSimulate runs a simulation for the dashboard.
func (s *PanelServer) handleSimulate(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, schema.ErrCodeValidation, err.Error())
		return
	}
	if res := s.deps.Service.Validator().ValidateRequest(raw); !res.Valid() {
		writeIssues(w, r, http.StatusBadRequest, schema.ErrCodeValidation, res)
		return
	}

	var req schema.SimulationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, schema.ErrCodeValidation, err.Error())
		return
	}

	ctx := logging.WithTrigger(r.Context(), "api")
	resp, err := s.deps.Service.Simulate(ctx, req)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListRuns lists simulation history.
func (s *PanelServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		ProcessID: q.Get("process_id"),
		Limit:     queryInt(r, "limit", 50),
		Offset:    queryInt(r, "offset", 0),
	}
	if st := q.Get("status"); st != "" {
		status := schema.RunStatus(st)
		filter.Status = &status
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, schema.ErrCodeValidation, "since must be RFC 3339")
			return
		}
		filter.Since = &t
	}

	runs, err := s.deps.Service.ListRuns(r.Context(), filter)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*store.SimulationRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns a stored run, or a jq projection of its result.
func (s *PanelServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if jq := r.URL.Query().Get("jq"); jq != "" {
		result, err := s.deps.Service.Query(ctx, id, jq)
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runId": id, "result": result})
		return
	}

	run, err := s.deps.Service.GetRun(ctx, id)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunEvents returns the activity log of a run and its replayed state.
func (s *PanelServer) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	history, err := s.deps.Service.RunEvents(r.Context(), r.PathValue("id"), int64(queryInt(r, "since", 0)))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	if history.Events == nil {
		history.Events = []*store.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *PanelServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EventFilter{
		SubjectID: q.Get("subject_id"),
		Limit:     queryInt(r, "limit", 100),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, schema.ErrCodeValidation, "since must be RFC 3339")
			return
		}
		filter.Since = &t
	}

	events, err := s.deps.Service.RecentEvents(r.Context(), q.Get("type"), filter)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Process models ---

// handleListProcesses lists stored models without their XML.
func (s *PanelServer) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	models, err := s.deps.Service.ListModels(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(models))
	for _, m := range models {
		out = append(out, map[string]any{
			"id":          m.ID,
			"name":        m.Name,
			"description": m.Description,
			"created_at":  m.CreatedAt,
			"updated_at":  m.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleImportProcess imports and stores a BPMN document.
func (s *PanelServer) handleImportProcess(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		XML         string `json:"xml"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.XML == "" {
		writeError(w, r, http.StatusBadRequest, schema.ErrCodeValidation, "xml is required")
		return
	}

	m, graph, err := s.deps.Service.ImportModel(r.Context(), body.ID, body.Name, body.Description, body.XML)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          m.ID,
		"name":        m.Name,
		"description": m.Description,
		"startEvents": len(graph.StartEvents),
		"tasks":       len(graph.Tasks),
		"gateways":    len(graph.Gateways),
		"endEvents":   len(graph.EndEvents),
		"lanes":       len(graph.Lanes),
	})
}

// handleGetProcess returns a stored model with its resources.
func (s *PanelServer) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	m, _, err := s.deps.Service.LoadModel(ctx, id)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	resources, err := s.deps.Service.Resources(ctx, id)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":     m,
		"resources": resources,
	})
}

// handleDeleteProcess removes a stored model.
func (s *PanelServer) handleDeleteProcess(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Service.DeleteModel(r.Context(), r.PathValue("id")); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDocumentation returns the procedure documentation as JSON, or as
// Markdown with ?format=markdown.
func (s *PanelServer) handleDocumentation(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Service.Document(r.Context(), r.PathValue("id"))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(procedure.RenderMarkdown(doc)))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDiagram renders the process as Mermaid text or a PNG image.
// ?run=<id> highlights the bottlenecks of that run.
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	model, err := s.deps.Service.Diagram(ctx, r.PathValue("id"), q.Get("run"))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}

	switch format := q.Get("format"); format {
	case "", "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(diagram.RenderMermaid(model)))
	case "png":
		img, err := diagram.RenderImage(ctx, model)
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	default:
		writeError(w, r, http.StatusBadRequest, schema.ErrCodeValidation, "format must be mermaid or png, got "+format)
	}
}

// handleSetResources replaces the staffed stations of a process.
func (s *PanelServer) handleSetResources(w http.ResponseWriter, r *http.Request) {
	var resources []schema.ResourceConfig
	if !decodeJSON(w, r, &resources) {
		return
	}
	id := r.PathValue("id")
	if err := s.deps.Service.SetResources(r.Context(), id, resources); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"processId": id, "resources": resources})
}

// --- Configs ---

// handleListConfigs lists stored configs and presets visible to a process.
func (s *PanelServer) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Service.ListConfigs(r.Context(), r.URL.Query().Get("process_id"))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleSaveConfig stores a config document under a name. Invalid documents
// are answered with the JSON Schema issues.
func (s *PanelServer) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, schema.ErrCodeValidation, err.Error())
		return
	}
	if res := s.deps.Service.Validator().ValidateConfig(raw); !res.Valid() {
		writeIssues(w, r, http.StatusUnprocessableEntity, schema.ErrCodeInvalidConfig, res)
		return
	}

	q := r.URL.Query()
	rec, err := s.deps.Service.SaveConfig(r.Context(), r.PathValue("name"), q.Get("process_id"), q.Get("description"), raw)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Lint ---

// handleLint checks a BPMN document without storing it.
func (s *PanelServer) handleLint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		XML       string         `json:"xml"`
		Variables map[string]any `json:"variables"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := s.deps.Service.Lint(r.Context(), body.XML, body.Variables)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    res.Valid(),
		"errors":   emptyIssues(res.Errors),
		"warnings": emptyIssues(res.Warnings),
	})
}

func emptyIssues(issues []schema.ValidationIssue) []schema.ValidationIssue {
	if issues == nil {
		return []schema.ValidationIssue{}
	}
	return issues
}

// --- Schedules ---

// handleListSchedules lists scheduled simulations.
func (s *PanelServer) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	filter := store.ScheduleFilter{
		ProcessID: r.URL.Query().Get("process_id"),
		Limit:     queryInt(r, "limit", 100),
	}
	scheds, err := s.deps.Store.ListSchedules(r.Context(), filter)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	if scheds == nil {
		scheds = []*store.ScheduledSimulation{}
	}
	writeJSON(w, http.StatusOK, scheds)
}

// handleCreateSchedule registers a cron-triggered simulation.
func (s *PanelServer) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProcessID       string `json:"process_id"`
		ConfigType      string `json:"config_type"`
		SimulationHours int    `json:"simulation_hours"`
		CronExpression  string `json:"cron_expression"`
		Enabled         *bool  `json:"enabled"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	ctx := r.Context()
	if _, err := s.deps.Store.GetProcessModel(ctx, body.ProcessID); err != nil {
		s.handleServiceError(w, r, err)
		return
	}

	sched := &store.ScheduledSimulation{
		ProcessID:       body.ProcessID,
		ConfigType:      body.ConfigType,
		SimulationHours: body.SimulationHours,
		CronExpression:  body.CronExpression,
		Enabled:         body.Enabled == nil || *body.Enabled,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.deps.Scheduler.Register(ctx, sched); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

// handleUpdateSchedule enables or disables a schedule.
func (s *PanelServer) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Enabled == nil {
		writeError(w, r, http.StatusBadRequest, schema.ErrCodeValidation, "enabled is required")
		return
	}

	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.deps.Store.UpdateSchedule(ctx, id, store.ScheduleUpdate{Enabled: body.Enabled}); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	sched, err := s.deps.Store.GetSchedule(ctx, id)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleDeleteSchedule removes a schedule.
func (s *PanelServer) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteSchedule(r.Context(), r.PathValue("id")); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
