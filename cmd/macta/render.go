package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/rendis/macta/pkg/schema"
)

// renderMarkdown writes md styled for the terminal, or as-is when raw.
func renderMarkdown(w io.Writer, md string, raw bool) error {
	if raw {
		_, err := io.WriteString(w, md)
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printIssues writes one line per lint or validation issue.
func printIssues(w io.Writer, res *schema.ValidationResult) {
	if len(res.Errors) == 0 && len(res.Warnings) == 0 {
		fmt.Fprintln(w, "ok: no issues")
		return
	}
	for _, is := range res.Errors {
		fmt.Fprintf(w, "error   %-20s %-18s %s\n", is.Path, is.Code, is.Message)
	}
	for _, is := range res.Warnings {
		fmt.Fprintf(w, "warning %-20s %-18s %s\n", is.Path, is.Code, is.Message)
	}
}

// summaryMarkdown formats the headline metrics of a simulation.
func summaryMarkdown(resp *schema.SimulationResponse) string {
	m := resp.SimulationMetrics
	var b strings.Builder

	b.WriteString("# Simulation summary\n\n")
	if resp.RunID != "" {
		fmt.Fprintf(&b, "Run `%s`\n\n", resp.RunID)
	}
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total cases | %d |\n", m.TotalCases)
	fmt.Fprintf(&b, "| Completed cases | %d |\n", m.CompletedCases)
	fmt.Fprintf(&b, "| Average wait (min) | %.2f |\n", m.AverageWaitTime)
	fmt.Fprintf(&b, "| Average process (min) | %.2f |\n", m.AverageProcessTime)
	fmt.Fprintf(&b, "| Max queue length | %d |\n", m.MaxQueueLength)
	fmt.Fprintf(&b, "| SLA compliance | %.1f%% of %d (target %.0f min) |\n",
		m.SLACompliance.ComplianceRate*100, m.SLACompliance.TotalCases, m.SLACompliance.TargetMinutes)

	if len(m.ResourceUtilization) > 0 {
		b.WriteString("\n## Resources\n\n| Resource | Units | Utilisation |\n|---|---|---|\n")
		ids := make([]string, 0, len(m.ResourceUtilization))
		for id := range m.ResourceUtilization {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			u := m.ResourceUtilization[id]
			fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", u.Name, u.Count, u.UtilizationRate*100)
		}
	}

	if len(m.Bottlenecks) > 0 {
		b.WriteString("\n## Bottlenecks\n\n")
		for _, bn := range m.Bottlenecks {
			fmt.Fprintf(&b, "- **%s** %s (%s), hours %d-%d: %s\n",
				bn.ResourceName, bn.Type, bn.Severity, bn.StartHour, bn.EndHour, bn.Description)
		}
	}

	if len(resp.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n\n")
		for _, r := range resp.Recommendations {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", r.Title, r.Priority, r.Description)
		}
	}
	return b.String()
}
