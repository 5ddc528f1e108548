package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/dataward/pkg/finding"
	"github.com/ormasoftchile/dataward/pkg/serve"
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle = lipgloss.NewStyle().Bold(true)
)

// renderReport formats an execution response as a terminal summary:
// one line per pipeline step, findings indented beneath, and the
// metrics snapshot at the bottom.
func renderReport(resp *serve.Response) string {
	var b strings.Builder
	res := resp.Results

	b.WriteString(titleStyle.Render(fmt.Sprintf("Contract %s", resp.Contract)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d rows in, %d rows out\n", resp.InputRows, resp.OutputRows)))
	b.WriteString("\n")

	for _, step := range res.Steps {
		mark := passStyle.Render("✓")
		if !step.Success {
			mark = failStyle.Render("✗")
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", mark, step.Name))
		for _, f := range step.Findings {
			b.WriteString("      " + renderFinding(f) + "\n")
		}
	}

	b.WriteString("\n")
	m := res.Metrics
	b.WriteString(dimStyle.Render(fmt.Sprintf("  metrics: rows=%d completeness=%.4f duplicates=%d null_cells=%d\n",
		m.RowCount, m.Completeness, m.DuplicateRows, m.NullCells)))
	for name, v := range m.Custom {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  metric %s=%v\n", name, v)))
	}

	if res.Success {
		b.WriteString("\n" + passStyle.Render("✓ pipeline passed") + "\n")
	} else {
		b.WriteString("\n" + failStyle.Render(fmt.Sprintf("✗ pipeline failed (state %s)", res.State)) + "\n")
	}
	return b.String()
}

func renderFinding(f finding.Finding) string {
	line := fmt.Sprintf("[%s] %s", f.Code, f.Message)
	switch f.Severity {
	case finding.SeverityError:
		return failStyle.Render(line)
	case finding.SeverityWarning:
		return warnStyle.Render(line)
	default:
		return dimStyle.Render(line)
	}
}
