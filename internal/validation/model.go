package validation

import (
	"context"
	"fmt"

	"github.com/rendis/macta/internal/bpmn"
	"github.com/rendis/macta/internal/expressions"
	"github.com/rendis/macta/pkg/schema"
)

// lintModel runs the structural checks on an imported process graph:
// start/end presence, flow references, gateway outflows and reachability.
func lintModel(g *bpmn.ProcessGraph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if len(g.StartEvents) == 0 {
		result.AddWarning(g.ProcessID, schema.IssueNoStartEvent, "process has no start event")
	}
	if len(g.EndEvents) == 0 {
		result.AddWarning(g.ProcessID, schema.IssueNoEndEvent, "process has no end event")
	}

	for _, f := range g.Flows {
		for _, ref := range []string{f.SourceRef, f.TargetRef} {
			if _, ok := g.Elements[ref]; !ok {
				result.AddError(f.ID, schema.IssueDanglingFlow,
					fmt.Sprintf("sequence flow %q references unknown element %q", f.ID, ref))
			}
		}
	}

	for _, gw := range g.Gateways {
		out := g.Outgoing(gw.ID)
		if len(out) == 0 {
			result.AddWarning(gw.ID, schema.IssueGatewayNoOutflow,
				fmt.Sprintf("gateway %q has no outgoing flows", gw.ID))
			continue
		}
		if gw.Kind == bpmn.KindParallelGateway {
			continue
		}
		for _, f := range out {
			if f.Name == "" {
				result.AddWarning(f.ID, schema.IssueUnnamedFlow,
					fmt.Sprintf("flow %q leaving decision %q has no name", f.ID, gw.ID))
			}
		}
	}

	result.Merge(checkReachability(g))
	return result
}

// checkReachability walks the flows breadth-first from every start event and
// warns about classified elements that are never reached.
func checkReachability(g *bpmn.ProcessGraph) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if len(g.StartEvents) == 0 {
		return result
	}

	next := make(map[string][]string, len(g.Flows))
	for _, f := range g.Flows {
		next[f.SourceRef] = append(next[f.SourceRef], f.TargetRef)
	}

	reachable := make(map[string]bool, len(g.Elements))
	queue := make([]string, 0, len(g.StartEvents))
	for _, s := range g.StartEvents {
		reachable[s.ID] = true
		queue = append(queue, s.ID)
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, target := range next[node] {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	for _, id := range g.Order {
		el := g.Elements[id]
		if el == nil || el.Kind.Category() == bpmn.CategoryNone || reachable[id] {
			continue
		}
		result.AddWarning(id, schema.IssueUnreachable,
			fmt.Sprintf("element %q is unreachable from any start event", id))
	}
	return result
}

// checkConditions compiles every flow condition. When vars is non-nil each
// decision gateway is also routed against vars.
func checkConditions(ctx context.Context, checker *expressions.ConditionChecker, g *bpmn.ProcessGraph, vars map[string]any) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for _, f := range g.Flows {
		if f.ConditionExpression == "" {
			continue
		}
		if _, err := checker.Check(f.ConditionExpression); err != nil {
			result.AddError(f.ID, schema.IssueConditionSyntax,
				fmt.Sprintf("condition %q does not compile: %s", f.ConditionExpression, err.Error()))
		}
	}
	if vars == nil || !result.Valid() {
		return result
	}

	for _, gw := range g.Gateways {
		if gw.Kind == bpmn.KindParallelGateway {
			continue
		}
		out := g.Outgoing(gw.ID)
		if len(out) == 0 {
			continue
		}

		taken, unconditioned := 0, 0
		for _, f := range out {
			if f.ConditionExpression == "" {
				unconditioned++
				continue
			}
			ok, err := checker.Evaluate(ctx, f.ConditionExpression, vars)
			if err != nil {
				result.AddWarning(f.ID, schema.IssueConditionResult,
					fmt.Sprintf("condition %q: %s", f.ConditionExpression, err.Error()))
				continue
			}
			if ok {
				taken++
			}
		}

		switch {
		case taken == 0 && unconditioned == 0:
			result.AddWarning(gw.ID, schema.IssueNoRoute,
				fmt.Sprintf("no outgoing flow of %q is taken for the given variables", gw.ID))
		case taken > 1 && gw.Kind == bpmn.KindExclusiveGateway:
			result.AddWarning(gw.ID, schema.IssueAmbiguousRoute,
				fmt.Sprintf("%d conditions of exclusive gateway %q hold at once", taken, gw.ID))
		}
	}
	return result
}
