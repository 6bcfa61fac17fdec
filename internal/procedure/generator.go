// Package procedure turns an imported process graph into numbered,
// human-readable operating procedures.
package procedure

import (
	"fmt"

	"github.com/rendis/macta/internal/bpmn"
	"github.com/rendis/macta/pkg/schema"
)

// Complexity thresholds on the total number of steps (tasks plus gateways).
const (
	simpleMaxSteps = 5
	mediumMaxSteps = 10
)

const (
	defaultPathName   = "Default"
	defaultPathTarget = "Next Step"
	unnamedProcess    = "Unnamed Process"
)

// Generator builds ProcedureDocumentation from a ProcessGraph.
// A Generator is stateless apart from its tables and safe for concurrent use.
type Generator struct {
	tables Tables
}

// Option configures a Generator.
type Option func(*Generator)

// WithTables replaces the default lookup tables.
func WithTables(t Tables) Option {
	return func(g *Generator) {
		g.tables = t
	}
}

// NewGenerator creates a Generator using the default tables unless overridden.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{tables: DefaultTables()}
	for _, opt := range opts {
		opt(g)
	}
	if g.tables.MinutesPerTask <= 0 {
		g.tables.MinutesPerTask = 12
	}
	if g.tables.MinutesPerGateway <= 0 {
		g.tables.MinutesPerGateway = 1
	}
	return g
}

// Generate documents graph with the default tables.
func Generate(graph *bpmn.ProcessGraph) (*schema.ProcedureDocumentation, error) {
	return NewGenerator().Generate(graph)
}

// Generate produces the full documentation for graph. Steps are numbered
// 1..N contiguously: start events, then tasks, then gateways, then end events,
// each in declaration order.
func (gen *Generator) Generate(graph *bpmn.ProcessGraph) (*schema.ProcedureDocumentation, error) {
	if !graph.Imported() {
		return nil, schema.NewError(schema.ErrCodeInvalidGraph, "process graph was not produced by a successful import")
	}

	points := gen.DecisionPoints(graph)
	pointByID := make(map[string]schema.DecisionPoint, len(points))
	for _, p := range points {
		pointByID[p.ID] = p
	}

	steps := make([]schema.ProcedureStep, 0, graph.Categorized())
	add := func(el *bpmn.ProcessElement, kind schema.StepKind) {
		step := gen.step(el, kind, len(steps)+1)
		if kind == schema.StepKindDecision {
			step.Conditions = pointByID[el.ID].Conditions
		}
		steps = append(steps, step)
	}
	for _, el := range graph.StartEvents {
		add(el, schema.StepKindStart)
	}
	for _, el := range graph.Tasks {
		add(el, schema.StepKindActivity)
	}
	for _, el := range graph.Gateways {
		add(el, schema.StepKindDecision)
	}
	for _, el := range graph.EndEvents {
		add(el, schema.StepKindEnd)
	}

	stats := gen.Statistics(graph)
	return &schema.ProcedureDocumentation{
		ProcessOverview:   gen.overview(graph, steps, stats),
		ProcessStatistics: stats,
		ProcedureSteps:    steps,
		DecisionPoints:    points,
	}, nil
}

func (gen *Generator) step(el *bpmn.ProcessElement, kind schema.StepKind, number int) schema.ProcedureStep {
	title := el.Name
	if title == "" {
		title = lookup(gen.tables.Titles, el.Kind, "Unnamed Step")
	}
	desc := el.Description
	if desc == "" {
		desc = lookup(gen.tables.Descriptions, el.Kind, "Perform the activity as defined in the process model.")
	}
	responsible := el.Owner
	if responsible == "" {
		responsible = lookup(gen.tables.Responsible, el.Kind, bpmn.DefaultOwner(el.Kind))
	}
	return schema.ProcedureStep{
		Number:        number,
		Title:         title,
		Kind:          kind,
		ElementID:     el.ID,
		Description:   desc,
		Responsible:   responsible,
		EstimatedTime: lookup(gen.tables.EstimatedTimes, el.Kind, "5-10 minutes"),
	}
}

// DecisionPoints documents every gateway of graph in declaration order.
// Outgoing flows are read again from the graph's source document so that
// flow names, targets and condition expressions are recovered verbatim.
func (gen *Generator) DecisionPoints(graph *bpmn.ProcessGraph) []schema.DecisionPoint {
	if !graph.Imported() || len(graph.Gateways) == 0 {
		return []schema.DecisionPoint{}
	}

	var (
		flows []bpmn.SequenceFlow
		names map[string]string
	)
	if root, err := bpmn.ReadDocument(graph.Source); err == nil {
		flows = bpmn.ReadFlows(root)
		names = bpmn.ReadNames(root)
	}

	points := make([]schema.DecisionPoint, 0, len(graph.Gateways))
	for _, gw := range graph.Gateways {
		points = append(points, gen.decisionPoint(gw, flows, names))
	}
	return points
}

func (gen *Generator) decisionPoint(gw *bpmn.ProcessElement, flows []bpmn.SequenceFlow, names map[string]string) schema.DecisionPoint {
	dp := schema.DecisionPoint{
		ID:          gw.ID,
		Name:        gw.Name,
		GatewayType: lookup(gen.tables.GatewayTypes, gw.Kind, string(gw.Kind)),
		Description: gw.Description,
	}
	if dp.Name == "" {
		dp.Name = lookup(gen.tables.Titles, gw.Kind, "Decision Point")
	}
	if dp.Description == "" {
		dp.Description = lookup(gen.tables.Descriptions, gw.Kind, "")
	}

	paths, ok := resolvePaths(gw.ID, flows, names)
	if !ok {
		paths = []schema.DecisionPath{{Name: defaultPathName, Target: defaultPathTarget}}
	}
	dp.Paths = paths
	dp.Conditions = make([]string, 0, len(paths))
	dp.Actions = make([]string, 0, len(paths))
	for _, p := range paths {
		dp.Conditions = append(dp.Conditions, p.Name)
		dp.Actions = append(dp.Actions, "Proceed to "+p.Target)
	}
	return dp
}

// resolvePaths returns the outgoing paths of the gateway, or false when the
// gateway has none or any target cannot be resolved.
func resolvePaths(gatewayID string, flows []bpmn.SequenceFlow, names map[string]string) ([]schema.DecisionPath, bool) {
	var paths []schema.DecisionPath
	for _, f := range flows {
		if f.SourceRef != gatewayID {
			continue
		}
		target, ok := names[f.TargetRef]
		if !ok {
			return nil, false
		}
		p := schema.DecisionPath{Name: f.Name, Target: target}
		if p.Name == "" {
			p.Name = "Path to " + target
		}
		if f.ConditionExpression != "" {
			cond := f.ConditionExpression
			p.Condition = &cond
		}
		paths = append(paths, p)
	}
	return paths, len(paths) > 0
}

// Statistics counts the categorized elements of graph and derives the
// duration estimate.
func (gen *Generator) Statistics(graph *bpmn.ProcessGraph) schema.ProcessStatistics {
	stats := schema.ProcessStatistics{TasksByType: map[string]int{}}
	if !graph.Imported() {
		return stats
	}
	byType := make(map[string]int)
	for _, t := range graph.Tasks {
		byType[string(t.Kind)]++
	}
	stats.TotalElements = graph.Categorized()
	stats.StartEvents = len(graph.StartEvents)
	stats.Tasks = len(graph.Tasks)
	stats.Gateways = len(graph.Gateways)
	stats.EndEvents = len(graph.EndEvents)
	stats.Lanes = len(graph.Lanes)
	stats.TasksByType = byType
	stats.TotalSteps = stats.Tasks + stats.Gateways
	stats.Complexity = Complexity(stats.TotalSteps)
	stats.TotalMinutes = gen.tables.MinutesPerTask*stats.Tasks + gen.tables.MinutesPerGateway*stats.Gateways
	stats.EstimatedDuration = FormatDuration(stats.TotalMinutes)
	return stats
}

func (gen *Generator) overview(graph *bpmn.ProcessGraph, steps []schema.ProcedureStep, stats schema.ProcessStatistics) schema.ProcessOverview {
	name := graph.ProcessName
	if name == "" {
		name = graph.ProcessID
	}
	if name == "" {
		name = unnamedProcess
	}
	desc := graph.Description
	if desc == "" {
		desc = fmt.Sprintf("This procedure describes the %s process: %d activities and %d decision points.",
			name, stats.Tasks, stats.Gateways)
	}

	seen := make(map[string]bool)
	participants := []string{}
	for _, s := range steps {
		if s.Responsible == "" || seen[s.Responsible] {
			continue
		}
		seen[s.Responsible] = true
		participants = append(participants, s.Responsible)
	}

	return schema.ProcessOverview{
		Name:              name,
		Description:       desc,
		TotalSteps:        stats.TotalSteps,
		Complexity:        stats.Complexity,
		EstimatedDuration: stats.EstimatedDuration,
		Participants:      participants,
	}
}

// Complexity classifies a process by its total step count.
func Complexity(totalSteps int) string {
	switch {
	case totalSteps <= simpleMaxSteps:
		return "Simple"
	case totalSteps <= mediumMaxSteps:
		return "Medium"
	default:
		return "Complex"
	}
}

// FormatDuration renders whole minutes as "45m" or "1h 15m".
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
