// Package analysis connects the process analysis core to persistence. It
// imports stored process models, generates their documentation and runs
// simulations whose history is kept in the store.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rendis/macta/internal/bpmn"
	"github.com/rendis/macta/internal/diagram"
	"github.com/rendis/macta/internal/expressions"
	"github.com/rendis/macta/internal/logging"
	"github.com/rendis/macta/internal/procedure"
	"github.com/rendis/macta/internal/simulation"
	"github.com/rendis/macta/internal/store"
	"github.com/rendis/macta/internal/validation"
	"github.com/rendis/macta/pkg/schema"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service is the entry point of every surface (HTTP, MCP, CLI, scheduler).
// It is safe for concurrent use.
type Service struct {
	store     store.Store
	events    *store.EventLog
	generator *procedure.Generator
	validator *validation.ModelValidator
	jq        *expressions.GoJQEngine
	pool      *simulation.Pool
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
	seed      func() uint64
}

// Option configures a Service.
type Option func(*Service)

// WithGenerator replaces the default procedure generator.
func WithGenerator(g *procedure.Generator) Option {
	return func(s *Service) { s.generator = g }
}

// WithPool sets the worker pool used for replications.
func WithPool(p *simulation.Pool) Option {
	return func(s *Service) { s.pool = p }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSeedSource sets the seed used when neither the request nor the config carries one.
func WithSeedSource(seed func() uint64) Option {
	return func(s *Service) { s.seed = seed }
}

// NewService creates a Service over st.
func NewService(st store.Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	mv, err := validation.NewModelValidator()
	if err != nil {
		return nil, fmt.Errorf("create model validator: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     st,
		events:    store.NewEventLog(st),
		generator: procedure.NewGenerator(),
		validator: mv,
		jq:        expressions.NewGoJQEngine(),
		tracer:    defaultTracer(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		seed:      rand.Uint64,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = simulation.NewPool(4)
	}
	return s, nil
}

// Validator exposes the request and config validator.
func (s *Service) Validator() *validation.ModelValidator {
	return s.validator
}

// --- Process models ---

// ImportModel parses xmlText and stores it. An empty id falls back to the
// process ID declared in the document, then to a generated UUID.
func (s *Service) ImportModel(ctx context.Context, id, name, description, xmlText string) (*store.ProcessModel, *bpmn.ProcessGraph, error) {
	ctx, span := startSpan(ctx, s.tracer, "analysis.import")
	defer span.End()

	graph, err := bpmn.Parse(xmlText)
	if err != nil {
		setError(span, err)
		return nil, nil, err
	}
	if id == "" {
		id = graph.ProcessID
	}
	if id == "" {
		id = uuid.New().String()
	}
	if name == "" {
		name = graph.ProcessName
	}
	if description == "" {
		description = graph.Description
	}

	m := &store.ProcessModel{ID: id, Name: name, Description: description, ModelData: xmlText}
	span.SetAttributes(attribute.String(ProcessIDKey, id))
	if err := s.store.SaveProcessModel(ctx, m); err != nil {
		setError(span, err)
		return nil, nil, fmt.Errorf("save process model: %w", err)
	}

	payload, _ := json.Marshal(map[string]any{
		"name":     m.Name,
		"elements": graph.Categorized(),
		"flows":    len(graph.Flows),
	})
	s.appendEvent(ctx, id, schema.EventModelImported, payload)
	logging.LogWith(logging.WithProcessID(ctx, id), s.logger).Info("process model imported",
		slog.Int("elements", graph.Categorized()),
	)
	return m, graph, nil
}

// LoadModel reads a stored model and imports its XML.
func (s *Service) LoadModel(ctx context.Context, processID string) (*store.ProcessModel, *bpmn.ProcessGraph, error) {
	m, err := s.store.GetProcessModel(ctx, processID)
	if err != nil {
		return nil, nil, err
	}
	graph, err := bpmn.Parse(m.ModelData)
	if err != nil {
		return nil, nil, err
	}
	return m, graph, nil
}

// ListModels returns stored models, most recently updated first.
func (s *Service) ListModels(ctx context.Context, limit int) ([]*store.ProcessModel, error) {
	return s.store.ListProcessModels(ctx, limit)
}

// DeleteModel removes a model with its allocations.
func (s *Service) DeleteModel(ctx context.Context, processID string) error {
	return s.store.DeleteProcessModel(ctx, processID)
}

// SetResources replaces the staffed stations of a process. Stations are
// visited in the given order.
func (s *Service) SetResources(ctx context.Context, processID string, resources []schema.ResourceConfig) error {
	if err := validate.Var(resources, "required,min=1,dive"); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid resources: %s", err.Error()).WithCause(err)
	}
	allocs := make([]store.ResourceAllocation, len(resources))
	for i, r := range resources {
		allocs[i] = store.ResourceAllocation{
			ResourceID:         r.ID,
			Name:               r.Name,
			Count:              r.Count,
			ServiceRatePerHour: r.ServiceRatePerHour,
		}
	}
	return s.store.SetResourceAllocations(ctx, processID, allocs)
}

// Resources returns the staffed stations of a process in visiting order.
func (s *Service) Resources(ctx context.Context, processID string) ([]schema.ResourceConfig, error) {
	allocs, err := s.store.ListResourceAllocations(ctx, processID)
	if err != nil {
		return nil, err
	}
	return toResources(allocs), nil
}

func toResources(allocs []store.ResourceAllocation) []schema.ResourceConfig {
	out := make([]schema.ResourceConfig, len(allocs))
	for i, a := range allocs {
		out[i] = schema.ResourceConfig{
			ID:                 a.ResourceID,
			Name:               a.Name,
			Count:              a.Count,
			ServiceRatePerHour: a.ServiceRatePerHour,
		}
	}
	return out
}

// --- Documentation, lint and diagrams ---

// Document generates the procedure documentation of a stored model.
func (s *Service) Document(ctx context.Context, processID string) (*schema.ProcedureDocumentation, error) {
	ctx, span := startSpan(ctx, s.tracer, "analysis.document", attribute.String(ProcessIDKey, processID))
	defer span.End()

	_, graph, err := s.LoadModel(ctx, processID)
	if err != nil {
		setError(span, err)
		return nil, err
	}
	doc, err := s.generator.Generate(graph)
	if err != nil {
		setError(span, err)
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"totalSteps": doc.ProcessStatistics.TotalSteps,
		"complexity": doc.ProcessStatistics.Complexity,
	})
	s.appendEvent(ctx, processID, schema.EventDocumentGenerated, payload)
	span.SetAttributes(attribute.Int("macta.procedure.steps", doc.ProcessStatistics.TotalSteps))
	return doc, nil
}

// DocumentXML generates documentation for a document that is not stored.
func (s *Service) DocumentXML(ctx context.Context, xmlText string) (*schema.ProcedureDocumentation, error) {
	_, span := startSpan(ctx, s.tracer, "analysis.document_xml")
	defer span.End()

	graph, err := bpmn.Parse(xmlText)
	if err != nil {
		setError(span, err)
		return nil, err
	}
	doc, err := s.generator.Generate(graph)
	if err != nil {
		setError(span, err)
		return nil, err
	}
	return doc, nil
}

// Lint imports xmlText and checks its structure and gateway conditions.
// With vars set, every gateway is also routed against them.
func (s *Service) Lint(ctx context.Context, xmlText string, vars map[string]any) (*schema.ValidationResult, error) {
	graph, err := bpmn.Parse(xmlText)
	if err != nil {
		return nil, err
	}
	res := s.validator.LintModel(ctx, graph, vars)
	logging.LogWith(ctx, s.logger).Debug("model linted",
		slog.String("process", graph.ProcessID),
		slog.Any("codes", res.Codes()),
	)
	return res, nil
}

// Diagram builds the diagram of a stored model. With runID set, stations
// flagged as bottlenecks in that run are highlighted.
func (s *Service) Diagram(ctx context.Context, processID, runID string) (*diagram.DiagramModel, error) {
	_, graph, err := s.LoadModel(ctx, processID)
	if err != nil {
		return nil, err
	}
	model, err := diagram.Build(graph)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		return model, nil
	}

	resp, err := s.RunResponse(ctx, runID)
	if err != nil {
		return nil, err
	}
	diagram.Highlight(model, resp.SimulationMetrics.Bottlenecks)
	return model, nil
}

// --- Simulation configs ---

// SaveConfig validates a config document and stores it under name. An empty
// processID shares the config with every process.
func (s *Service) SaveConfig(ctx context.Context, name, processID, description string, raw []byte) (*store.SimulationConfigRecord, error) {
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "config name is required")
	}
	if res := s.validator.ValidateConfig(raw); !res.Valid() {
		return nil, res.ToError(schema.ErrCodeInvalidConfig)
	}
	var cfg schema.SimulationConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidConfig, "decode config: %s", err.Error()).WithCause(err)
	}

	rec := &store.SimulationConfigRecord{
		Name:        name,
		ProcessID:   processID,
		Description: description,
		Config:      cfg,
	}
	if err := s.store.SaveSimulationConfig(ctx, rec); err != nil {
		return nil, fmt.Errorf("save simulation config: %w", err)
	}
	return rec, nil
}

// ListConfigs returns the stored configs visible to processID followed by
// the built-in presets not shadowed by a stored config.
func (s *Service) ListConfigs(ctx context.Context, processID string) ([]*store.SimulationConfigRecord, error) {
	recs, err := s.store.ListSimulationConfigs(ctx, processID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		seen[r.Name] = true
	}
	for _, name := range PresetNames() {
		if seen[name] {
			continue
		}
		cfg, _ := Preset(name)
		recs = append(recs, &store.SimulationConfigRecord{Name: name, Description: "built-in preset", Config: cfg})
	}
	return recs, nil
}

// ResolveConfig builds the full simulation config of a request. A stored
// config named configType wins over the built-in preset of that name.
// Resource allocations of the process replace the config's resources when
// any are set.
func (s *Service) ResolveConfig(ctx context.Context, req schema.SimulationRequest) (schema.SimulationConfig, error) {
	var cfg schema.SimulationConfig

	rec, err := s.store.GetSimulationConfig(ctx, req.ConfigType, req.ProcessID)
	switch {
	case err == nil:
		cfg = rec.Config
	case schema.IsCode(err, schema.ErrCodeNotFound):
		preset, ok := Preset(req.ConfigType)
		if !ok {
			return cfg, schema.NewErrorf(schema.ErrCodeInvalidConfig, "unknown config type %q", req.ConfigType).
				WithDetails(map[string]any{"presets": PresetNames()})
		}
		cfg = preset
	default:
		return cfg, fmt.Errorf("get simulation config: %w", err)
	}

	allocs, err := s.store.ListResourceAllocations(ctx, req.ProcessID)
	if err != nil {
		return cfg, fmt.Errorf("list resource allocations: %w", err)
	}
	if len(allocs) > 0 {
		cfg.Resources = toResources(allocs)
	}

	cfg.ProcessID = req.ProcessID
	cfg.HorizonHours = req.SimulationHours
	switch {
	case req.Seed != nil:
		cfg.Seed = *req.Seed
	case cfg.Seed == 0:
		cfg.Seed = s.seed()
	}
	return cfg, nil
}

// --- Simulation runs ---

// Simulate runs the request against the stored model and resources and
// records the run. Configuration problems fail with INVALID_CONFIG and leave
// no run behind; a run that completes with zero cases is still a success.
func (s *Service) Simulate(ctx context.Context, req schema.SimulationRequest) (*schema.SimulationResponse, error) {
	ctx = logging.WithProcessID(ctx, req.ProcessID)
	ctx, span := startSpan(ctx, s.tracer, "analysis.simulate",
		attribute.String(ProcessIDKey, req.ProcessID),
		attribute.String(ConfigTypeKey, req.ConfigType),
		attribute.Int(HorizonKey, req.SimulationHours),
		attribute.String(TriggerKey, logging.Trigger(ctx)),
	)
	defer span.End()

	resp, err := s.simulate(ctx, span, req)
	if err != nil {
		setError(span, err)
		return nil, err
	}
	return resp, nil
}

func (s *Service) simulate(ctx context.Context, span trace.Span, req schema.SimulationRequest) (*schema.SimulationResponse, error) {
	if req.ProcessID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "processId is required")
	}
	if req.SimulationHours <= 0 || req.SimulationHours > simulation.MaxHorizonHours {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidConfig,
			"simulationHours must be between 1 and %d, got %d", simulation.MaxHorizonHours, req.SimulationHours)
	}
	if _, _, err := s.LoadModel(ctx, req.ProcessID); err != nil {
		return nil, err
	}

	cfg, err := s.ResolveConfig(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := simulation.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)
	span.SetAttributes(attribute.String(RunIDKey, runID))
	log := logging.LogWith(ctx, s.logger)

	started := s.now()
	run := &store.SimulationRun{
		ID:           runID,
		ProcessID:    req.ProcessID,
		ConfigType:   req.ConfigType,
		Status:       schema.RunStatusRunning,
		Seed:         cfg.Seed,
		HorizonHours: cfg.HorizonHours,
		Trigger:      logging.Trigger(ctx),
		CreatedAt:    started,
		StartedAt:    &started,
	}
	if err := s.store.CreateSimulationRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create simulation run: %w", err)
	}
	startPayload, _ := json.Marshal(map[string]any{
		"configType":   req.ConfigType,
		"seed":         cfg.Seed,
		"horizonHours": cfg.HorizonHours,
		"resources":    len(cfg.Resources),
	})
	s.appendEvent(ctx, runID, schema.EventSimulationStarted, startPayload)
	log.Info("simulation started", slog.String("config_type", req.ConfigType), slog.Int("hours", cfg.HorizonHours))

	result, err := simulation.Run(cfg)
	if err != nil {
		s.failRun(ctx, runID, err)
		return nil, err
	}

	resp := schema.NewSimulationResponse(runID, result)
	raw, err := json.Marshal(resp)
	if err != nil {
		s.failRun(ctx, runID, err)
		return nil, fmt.Errorf("encode simulation response: %w", err)
	}

	completed := s.now()
	status := schema.RunStatusCompleted
	if err := s.store.UpdateSimulationRun(ctx, runID, store.RunUpdate{
		Status:      &status,
		Result:      raw,
		CompletedAt: &completed,
	}); err != nil {
		return nil, fmt.Errorf("update simulation run: %w", err)
	}

	summary, _ := json.Marshal(map[string]any{
		"totalCases":     result.TotalCases,
		"completedCases": len(result.CompletedCases),
		"complianceRate": result.SLACompliance.ComplianceRate,
		"bottlenecks":    len(result.Bottlenecks),
		"clampedDraws":   result.ClampedDraws,
	})
	s.appendEvent(ctx, runID, schema.EventSimulationCompleted, summary)
	log.Info("simulation completed",
		slog.Int("total_cases", result.TotalCases),
		slog.Int("completed_cases", len(result.CompletedCases)),
		slog.Int("bottlenecks", len(result.Bottlenecks)),
	)
	span.SetAttributes(
		attribute.Int("macta.simulation.total_cases", result.TotalCases),
		attribute.Int("macta.simulation.completed_cases", len(result.CompletedCases)),
	)
	return resp, nil
}

// failRun marks a run failed and records the error event.
func (s *Service) failRun(ctx context.Context, runID string, cause error) {
	code := schema.ErrorCode(cause)
	if code == "" {
		code = schema.ErrCodeExecution
	}
	errJSON, _ := json.Marshal(map[string]string{"code": code, "message": cause.Error()})

	completed := s.now()
	status := schema.RunStatusFailed
	if err := s.store.UpdateSimulationRun(ctx, runID, store.RunUpdate{
		Status:      &status,
		Error:       errJSON,
		CompletedAt: &completed,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark run failed", slog.String("error", err.Error()))
	}
	s.appendEvent(ctx, runID, schema.EventSimulationFailed, errJSON)
	logging.LogWith(ctx, s.logger).Error("simulation failed", slog.String("error", cause.Error()))
}

// Replicate runs the request once per seed on the worker pool without
// persisting the runs.
func (s *Service) Replicate(ctx context.Context, req schema.SimulationRequest, seeds []uint64) (*simulation.ReplicationSummary, error) {
	ctx, span := startSpan(ctx, s.tracer, "analysis.replicate",
		attribute.String(ProcessIDKey, req.ProcessID),
		attribute.Int("macta.replications", len(seeds)),
	)
	defer span.End()

	cfg, err := s.ResolveConfig(ctx, req)
	if err != nil {
		setError(span, err)
		return nil, err
	}
	summary, err := simulation.Replicate(ctx, cfg, seeds, s.pool)
	if err != nil {
		setError(span, err)
		return nil, err
	}
	return summary, nil
}

// GetRun returns a stored run.
func (s *Service) GetRun(ctx context.Context, runID string) (*store.SimulationRun, error) {
	return s.store.GetSimulationRun(ctx, runID)
}

// ListRuns returns stored runs matching filter.
func (s *Service) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.SimulationRun, error) {
	return s.store.ListSimulationRuns(ctx, filter)
}

// RunResponse decodes the response stored with a completed run.
func (s *Service) RunResponse(ctx context.Context, runID string) (*schema.SimulationResponse, error) {
	run, err := s.store.GetSimulationRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != schema.RunStatusCompleted || len(run.Result) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "run %s has no result (status %s)", runID, run.Status)
	}
	var resp schema.SimulationResponse
	if err := json.Unmarshal(run.Result, &resp); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode result of run %s", runID).WithCause(err)
	}
	return &resp, nil
}

// Query applies a jq expression to the stored response of a run.
func (s *Service) Query(ctx context.Context, runID, jq string) (any, error) {
	run, err := s.store.GetSimulationRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(run.Result) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "run %s has no result (status %s)", runID, run.Status)
	}
	var doc map[string]any
	if err := json.Unmarshal(run.Result, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode result of run %s", runID).WithCause(err)
	}
	if jq == "" {
		return doc, nil
	}
	return s.jq.Query(ctx, jq, doc)
}

// RunHistory is the activity log of a run and the state it replays to.
type RunHistory struct {
	State  *store.RunState `json:"state"`
	Events []*store.Event  `json:"events"`
}

// RunEvents returns the events of a stored run with sequence > since,
// together with the state replayed from the whole log.
func (s *Service) RunEvents(ctx context.Context, runID string, since int64) (*RunHistory, error) {
	if _, err := s.store.GetSimulationRun(ctx, runID); err != nil {
		return nil, err
	}
	state, err := s.events.ReplayRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.GetEvents(ctx, runID, since)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list events of run %s", runID).WithCause(err)
	}
	return &RunHistory{State: state, Events: events}, nil
}

// RecentEvents returns the latest events of one type, newest first.
func (s *Service) RecentEvents(ctx context.Context, eventType string, filter store.EventFilter) ([]*store.Event, error) {
	if !slices.Contains(schema.EventTypes, eventType) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown event type %q", eventType).
			WithDetails(map[string]any{"allowed": schema.EventTypes})
	}
	events, err := s.events.GetEventsByType(ctx, eventType, filter)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list %s events", eventType).WithCause(err)
	}
	return events, nil
}

// Compact reclaims free pages of the underlying database.
func (s *Service) Compact(ctx context.Context) error {
	start := s.now()
	if err := s.store.Vacuum(ctx); err != nil {
		return schema.NewError(schema.ErrCodeStore, "vacuum database").WithCause(err)
	}
	s.logger.InfoContext(ctx, "database compacted", slog.Duration("took", s.now().Sub(start)))
	return nil
}

// appendEvent records an activity log entry. Failures are logged, not returned.
func (s *Service) appendEvent(ctx context.Context, subjectID, eventType string, payload []byte) {
	if err := s.events.AppendEvent(ctx, &store.Event{
		SubjectID: subjectID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: s.now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to append event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}
