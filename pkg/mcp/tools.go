package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/macta/internal/diagram"
	"github.com/rendis/macta/internal/logging"
	"github.com/rendis/macta/internal/procedure"
	"github.com/rendis/macta/internal/store"
	"github.com/rendis/macta/pkg/schema"
)

// handleImport stores a BPMN document.
func (s *MactaServer) handleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	xmlText, err := req.RequireString("xml")
	if err != nil {
		return mcp.NewToolResultError("xml is required"), nil
	}

	m, graph, importErr := s.service.ImportModel(ctx, req.GetString("process_id", ""), req.GetString("name", ""), "", xmlText)
	if importErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("import failed: %v", importErr)), nil
	}
	return marshalResult(map[string]any{
		"process_id":   m.ID,
		"name":         m.Name,
		"start_events": len(graph.StartEvents),
		"tasks":        len(graph.Tasks),
		"gateways":     len(graph.Gateways),
		"end_events":   len(graph.EndEvents),
		"lanes":        len(graph.Lanes),
	})
}

// handleDocument generates documentation for a stored process or inline XML.
func (s *MactaServer) handleDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	processID := req.GetString("process_id", "")
	xmlText := req.GetString("xml", "")
	if processID == "" && xmlText == "" {
		return mcp.NewToolResultError("one of process_id or xml is required"), nil
	}

	var (
		doc *schema.ProcedureDocumentation
		err error
	)
	if processID != "" {
		doc, err = s.service.Document(ctx, processID)
	} else {
		doc, err = s.service.DocumentXML(ctx, xmlText)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("documentation failed: %v", err)), nil
	}

	if req.GetString("format", "json") == "markdown" {
		return mcp.NewToolResultText(procedure.RenderMarkdown(doc)), nil
	}
	return marshalResult(doc)
}

// handleLint checks a BPMN document.
func (s *MactaServer) handleLint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	xmlText, err := req.RequireString("xml")
	if err != nil {
		return mcp.NewToolResultError("xml is required"), nil
	}
	vars := mcp.ParseStringMap(req, "variables", nil)

	res, lintErr := s.service.Lint(ctx, xmlText, vars)
	if lintErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lint failed: %v", lintErr)), nil
	}
	return marshalResult(map[string]any{
		"valid":    res.Valid(),
		"errors":   res.Errors,
		"warnings": res.Warnings,
	})
}

// handleSimulate runs a simulation of a stored process.
func (s *MactaServer) handleSimulate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	processID, err := req.RequireString("process_id")
	if err != nil {
		return mcp.NewToolResultError("process_id is required"), nil
	}
	configType, err := req.RequireString("config_type")
	if err != nil {
		return mcp.NewToolResultError("config_type is required"), nil
	}
	hours, err := req.RequireInt("simulation_hours")
	if err != nil {
		return mcp.NewToolResultError("simulation_hours is required"), nil
	}

	simReq := schema.SimulationRequest{ProcessID: processID, ConfigType: configType, SimulationHours: hours}
	if raw := req.GetString("seed", ""); raw != "" {
		seed, parseErr := strconv.ParseUint(raw, 10, 64)
		if parseErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("seed must be an unsigned integer: %v", parseErr)), nil
		}
		simReq.Seed = &seed
	}

	resp, simErr := s.service.Simulate(logging.WithTrigger(ctx, "mcp"), simReq)
	if simErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("simulation failed: %v", simErr)), nil
	}
	return marshalResult(resp)
}

// handleQuery lists runs, or projects one run's stored result.
func (s *MactaServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("run_id", "")
	if runID == "" {
		return s.queryRuns(ctx, mcp.ParseStringMap(req, "filter", nil))
	}

	jq := req.GetString("jq", "")
	if jq == "" {
		run, err := s.service.GetRun(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(run)
	}

	result, err := s.service.Query(ctx, runID, jq)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"run_id": runID, "result": result})
}

func (s *MactaServer) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if processID, ok := filter["process_id"].(string); ok {
		rf.ProcessID = processID
	}
	if status, ok := filter["status"].(string); ok {
		st := schema.RunStatus(status)
		rf.Status = &st
	}

	runs, err := s.service.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	// Listings omit results; fetch a run by ID for its result.
	for _, r := range runs {
		r.Result = nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

// handleDiagram draws a stored process in the requested format.
func (s *MactaServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	processID, err := req.RequireString("process_id")
	if err != nil {
		return mcp.NewToolResultError("process_id is required"), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be mermaid or image"), nil
	}

	model, buildErr := s.service.Diagram(ctx, processID, req.GetString("run_id", ""))
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	if format == "mermaid" {
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	}
	png, imgErr := diagram.RenderImage(ctx, model)
	if imgErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
	}
	return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
}

// --- Internal helpers ---

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
