package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/pipeline"
)

var (
	outJSON       string
	outMD         string
	verifyTimeout time.Duration
	variant       string
	noCache       bool
	noFooter      bool
	detFrames     bool
	searchURL     string

	maxFrameIters int
	maxTotalIters int
	maxTokens     int
	softBudget    bool
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <claim or url>",
	Short: "Verify a claim or article and produce a verdict report",
	Long: `Verify runs the full pipeline on one input:
- Decompose into atomic claims and admit them
- Detect and deduplicate assessment frames
- Research each frame until coverage gaps close or the budget runs out
- Score source reliability by multi-model consensus
- Aggregate an evidence-weighted verdict with calibrated confidence

Example:
  veridex verify "The Panama Canal opened in 1914."
  veridex verify https://example.com/article --json report.json --md report.md
  veridex verify "..." --variant monolithic_canonical
  veridex verify "..." --max-frame-iterations 2 --max-tokens 50000`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&outJSON, "json", "report.json", "output JSON path")
	verifyCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 10*time.Minute, "overall job timeout")
	verifyCmd.Flags().StringVar(&variant, "variant", "orchestrated", "pipeline variant (orchestrated, monolithic_canonical, monolithic_dynamic)")
	verifyCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable page and reliability caches")
	verifyCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	verifyCmd.Flags().BoolVar(&detFrames, "deterministic-frames", false, "single-frame deterministic mode (no model calls for frame detection)")
	verifyCmd.Flags().StringVar(&searchURL, "search-url", "", "search endpoint base URL (SearxNG-compatible)")

	verifyCmd.Flags().IntVar(&maxFrameIters, "max-frame-iterations", 0, "research iterations per frame (0 = config default)")
	verifyCmd.Flags().IntVar(&maxTotalIters, "max-total-iterations", 0, "research iterations across all frames (0 = config default)")
	verifyCmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "total token budget (0 = config default)")
	verifyCmd.Flags().BoolVar(&softBudget, "soft-budget", false, "warn on budget overrun instead of denying work")
}

func runVerify(cmd *cobra.Command, args []string) error {
	input := strings.TrimSpace(args[0])
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Cache.Enabled = cfg.Cache.Enabled && !noCache
	cfg.Output.IncludeFooter = !noFooter
	cfg.Frames.Deterministic = cfg.Frames.Deterministic || detFrames
	if searchURL != "" {
		cfg.Search.BaseURL = searchURL
	}
	if maxFrameIters > 0 {
		cfg.Budget.MaxIterationsPerFrame = maxFrameIters
	}
	if maxTotalIters > 0 {
		cfg.Budget.MaxTotalIterations = maxTotalIters
	}
	if maxTokens > 0 {
		cfg.Budget.MaxTotalTokens = maxTokens
	}
	if softBudget {
		cfg.Budget.EnforceHard = false
	}

	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if cfg.Search.BaseURL == "" {
		return fmt.Errorf("no search endpoint configured (--search-url or search.base_url)")
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	inputType := model.InputClaim
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		inputType = model.InputURL
	}
	job := &model.Job{
		ID:              uuid.NewString(),
		InputType:       inputType,
		InputValue:      input,
		PipelineVariant: variant,
	}

	svc := pipeline.NewLocalJobService()
	emit := pipeline.NewEmitter(func(ev model.ProgressEvent) {
		_ = svc.ReportStatus(ctx, job.ID, ev)
		if cfg.Output.Verbose {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", ev.Progress, ev.Message)
		}
	})

	report, err := p.Run(ctx, job, emit)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if err := svc.ReportResult(ctx, job.ID, report); err != nil {
		return err
	}

	renderer := p.Renderer()
	if outJSON != "" {
		if err := renderer.RenderJSON(report, outJSON); err != nil {
			return err
		}
		if cfg.Output.Verbose {
			fmt.Fprintf(os.Stderr, "Wrote JSON: %s\n", outJSON)
		}
	}
	if outMD != "" {
		if err := renderer.RenderMarkdown(report, outMD); err != nil {
			return err
		}
		if cfg.Output.Verbose {
			fmt.Fprintf(os.Stderr, "Wrote Markdown: %s\n", outMD)
		}
	}

	renderer.RenderSummary(os.Stdout, report)
	return nil
}
