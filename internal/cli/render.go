package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
	"github.com/kubilitics/kubilitics-copilot/internal/reasoning/engine"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	patchStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	highConf     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lowConf      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	followUpMark = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func renderOutcome(w io.Writer, out *engine.Outcome) {
	res := out.Result
	fmt.Fprintln(w, titleStyle.Render("Diagnosis"))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Root cause:"), res.RootCause)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Confidence:"), confidenceText(res.Confidence))

	if res.FollowUp != nil {
		fmt.Fprintf(w, "%s %s\n", followUpMark.Render("Follow-up:"), *res.FollowUp)
	}

	for i, p := range res.Patches {
		fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("Patch %d/%d", i+1, len(res.Patches))))
		fmt.Fprintln(w, patchStyle.Render(strings.TrimRight(p, "\n")))
	}

	if res.AgentBlock != "" {
		fmt.Fprintln(w, labelStyle.Render("Agent notes:"))
		fmt.Fprintln(w, res.AgentBlock)
	}

	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("tier=%s model=%s path=%s tokens=%d duration=%dms",
		out.Tier, out.Model, out.Path, out.Usage.TotalTokens, out.Usage.DurationMS)))
}

func confidenceText(c float64) string {
	text := fmt.Sprintf("%.2f", c)
	if c < models.FollowUpThreshold {
		return lowConf.Render(text)
	}
	return highConf.Render(text)
}

func renderMetrics(w io.Writer, sum *models.MetricsSummary, recs []*models.MetricsRecord) {
	fmt.Fprintln(w, titleStyle.Render("Usage"))
	fmt.Fprintf(w, "%s %d\n", labelStyle.Render("Requests:"), sum.Count)
	fmt.Fprintf(w, "%s %.1fms\n", labelStyle.Render("Avg duration:"), sum.AvgDurationMS)
	fmt.Fprintf(w, "%s %d (prompt %d, completion %d)\n", labelStyle.Render("Tokens:"),
		sum.TotalTokens, sum.TotalPromptTokens, sum.TotalCompletionTokens)
	fmt.Fprintf(w, "%s %.2f\n", labelStyle.Render("Avg confidence:"), sum.AvgConfidence)

	if len(recs) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("%-6s %-20s %10s %8s %10s", "ID", "TIME", "DURATION", "TOKENS", "CONFIDENCE")))
	for _, r := range recs {
		fmt.Fprintf(w, "%-6d %-20s %8dms %8d %10.2f\n",
			r.ID, r.Timestamp.UTC().Format("2006-01-02 15:04:05"), r.DurationMS, r.TotalTokens, r.Confidence)
	}
}
