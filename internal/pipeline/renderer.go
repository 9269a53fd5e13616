package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/veridex/veridex/internal/model"
)

// Renderer writes verification reports as JSON and markdown artifacts.
type Renderer struct {
	includeFooter bool
}

func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the full report as indented JSON.
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderMarkdown writes the human-readable report.
func (r *Renderer) RenderMarkdown(report *model.Report, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(r.Markdown(report)), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Markdown renders the report body.
func (r *Renderer) Markdown(report *model.Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Verification Report: %s\n\n", report.Subject)
	fmt.Fprintf(&sb, "- Input: %s (%s)\n", report.Input, report.InputType)
	fmt.Fprintf(&sb, "- Pipeline: %s\n", report.Variant)
	fmt.Fprintf(&sb, "- Started: %s\n", report.StartedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "- Finished: %s\n\n", report.FinishedAt.Format("2006-01-02 15:04:05 UTC"))

	fmt.Fprintf(&sb, "## Verdict\n\n")
	fmt.Fprintf(&sb, "**%d%% true** (confidence %.2f, article average reliability: %s)\n\n",
		report.Verdict.TruthPercent, report.Verdict.Confidence, report.Verdict.Reliability)
	if report.Verdict.Reliability == model.ReliabilityLow && len(report.Verdict.FrameVerdicts) > 1 {
		sb.WriteString("The frames below answer materially different questions; read them individually rather than the average.\n\n")
	}

	if len(report.Verdict.FrameVerdicts) > 0 {
		sb.WriteString("| Frame | Truth | Confidence | For | Against | Sources |\n")
		sb.WriteString("|-------|-------|------------|-----|---------|--------|\n")
		for _, fv := range report.Verdict.FrameVerdicts {
			label := fv.FrameID
			for _, f := range report.Frames {
				if f.ID == fv.FrameID {
					label = f.Label
				}
			}
			marker := ""
			if fv.LowConfidence {
				marker = " (low confidence)"
			}
			fmt.Fprintf(&sb, "| %s%s | %d%% | %.2f | %d | %d | %d |\n",
				label, marker, fv.TruthPercent, fv.Confidence, fv.EvidenceFor, fv.EvidenceAgainst, fv.SourceCount)
		}
		sb.WriteString("\n")
	}

	if len(report.Claims) > 0 {
		fmt.Fprintf(&sb, "## Claims (%d)\n\n", len(report.Claims))
		for _, c := range report.Claims {
			note := ""
			if c.Reason != "" {
				note = fmt.Sprintf(" _(%s)_", c.Reason)
			}
			fmt.Fprintf(&sb, "- **%s** [%s/%s] %s%s\n", c.ID, c.Centrality, c.Kind, c.Text, note)
		}
		sb.WriteString("\n")
	}

	if len(report.Evidence) > 0 {
		fmt.Fprintf(&sb, "## Evidence (%d items)\n\n", len(report.Evidence))
		for _, e := range report.Evidence {
			fmt.Fprintf(&sb, "- [%s] %s (%s)\n", e.Stance, e.Statement, e.Domain)
		}
		sb.WriteString("\n")
	}

	if len(report.Reliability) > 0 {
		fmt.Fprintf(&sb, "## Source Reliability\n\n")
		domains := make([]string, 0, len(report.Reliability))
		for d := range report.Reliability {
			domains = append(domains, d)
		}
		sort.Strings(domains)
		sb.WriteString("| Domain | Score | Type | Caveats |\n")
		sb.WriteString("|--------|-------|------|--------|\n")
		for _, d := range domains {
			rec := report.Reliability[d]
			fmt.Fprintf(&sb, "| %s | %.2f | %s | %s |\n", d, rec.Score, rec.SourceType, strings.Join(rec.Caveats, "; "))
		}
		sb.WriteString("\n")
	}

	if len(report.Skipped) > 0 {
		fmt.Fprintf(&sb, "## Skipped Sources (%d)\n\n", len(report.Skipped))
		for _, s := range report.Skipped {
			fmt.Fprintf(&sb, "- %s: %s\n", s.URL, s.Reason)
		}
		sb.WriteString("\n")
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintf(&sb, "## Warnings (%d)\n\n", len(report.Warnings))
		for _, w := range report.Warnings {
			scope := ""
			if w.FrameID != "" {
				scope = " frame=" + w.FrameID
			}
			fmt.Fprintf(&sb, "- `%s` [%s]%s %s\n", w.Type, w.Severity, scope, w.Message)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "## Budget\n\n")
	fmt.Fprintf(&sb, "- Iterations: %d total\n", report.Budget.TotalIterations)
	fmt.Fprintf(&sb, "- Tokens: %d\n\n", report.Budget.TotalTokens)

	if r.includeFooter {
		sb.WriteString("---\n\nGenerated by veridex. Verdicts are evidence-weighted estimates, not ground truth.\n")
	}
	return sb.String()
}

// RenderSummary prints the one-screen outcome.
func (r *Renderer) RenderSummary(w io.Writer, report *model.Report) {
	fmt.Fprintf(w, "\n%s\n", report.Subject)
	fmt.Fprintf(w, "Verdict: %d%% true (confidence %.2f, reliability %s)\n",
		report.Verdict.TruthPercent, report.Verdict.Confidence, report.Verdict.Reliability)
	for _, fv := range report.Verdict.FrameVerdicts {
		fmt.Fprintf(w, "  %s: %d%% (for %d / against %d)\n", fv.FrameID, fv.TruthPercent, fv.EvidenceFor, fv.EvidenceAgainst)
	}
	if n := len(report.Warnings); n > 0 {
		fmt.Fprintf(w, "%d warning(s); see the full report.\n", n)
	}
}
