package procedure

import (
	"fmt"
	"strings"

	"github.com/rendis/macta/pkg/schema"
)

// RenderMarkdown renders documentation as a Markdown report.
func RenderMarkdown(doc *schema.ProcedureDocumentation) string {
	if doc == nil {
		return ""
	}
	var sb strings.Builder
	ov := doc.ProcessOverview

	fmt.Fprintf(&sb, "# %s\n\n", ov.Name)
	sb.WriteString(ov.Description)
	sb.WriteString("\n\n")

	sb.WriteString("## Overview\n\n")
	fmt.Fprintf(&sb, "- **Total steps:** %d\n", ov.TotalSteps)
	fmt.Fprintf(&sb, "- **Complexity:** %s\n", ov.Complexity)
	fmt.Fprintf(&sb, "- **Estimated duration:** %s\n", ov.EstimatedDuration)
	if len(ov.Participants) > 0 {
		fmt.Fprintf(&sb, "- **Participants:** %s\n", strings.Join(ov.Participants, ", "))
	}
	sb.WriteString("\n")

	sb.WriteString("## Procedure\n\n")
	sb.WriteString("| # | Step | Type | Responsible | Estimated time |\n")
	sb.WriteString("|---|------|------|-------------|----------------|\n")
	for _, s := range doc.ProcedureSteps {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n",
			s.Number, cell(s.Title), s.Kind, cell(s.Responsible), cell(s.EstimatedTime))
	}
	sb.WriteString("\n")

	for _, s := range doc.ProcedureSteps {
		fmt.Fprintf(&sb, "### %d. %s\n\n", s.Number, s.Title)
		sb.WriteString(s.Description)
		sb.WriteString("\n")
		if len(s.Conditions) > 0 {
			sb.WriteString("\nConditions:\n\n")
			for _, c := range s.Conditions {
				fmt.Fprintf(&sb, "- %s\n", c)
			}
		}
		sb.WriteString("\n")
	}

	if len(doc.DecisionPoints) > 0 {
		sb.WriteString("## Decision Points\n\n")
		for _, dp := range doc.DecisionPoints {
			fmt.Fprintf(&sb, "### %s (%s)\n\n", dp.Name, dp.GatewayType)
			if dp.Description != "" {
				sb.WriteString(dp.Description)
				sb.WriteString("\n\n")
			}
			for _, p := range dp.Paths {
				if p.Condition != nil {
					fmt.Fprintf(&sb, "- **%s** → %s (`%s`)\n", p.Name, p.Target, *p.Condition)
				} else {
					fmt.Fprintf(&sb, "- **%s** → %s\n", p.Name, p.Target)
				}
			}
			sb.WriteString("\n")
		}
	}

	st := doc.ProcessStatistics
	sb.WriteString("## Statistics\n\n")
	fmt.Fprintf(&sb, "| Start events | Tasks | Gateways | End events | Lanes |\n")
	fmt.Fprintf(&sb, "|---|---|---|---|---|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d | %d |\n", st.StartEvents, st.Tasks, st.Gateways, st.EndEvents, st.Lanes)

	return sb.String()
}

// cell escapes pipe characters inside a table cell.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
