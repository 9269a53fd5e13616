package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/veridex/veridex/internal/pipeline"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Verify many claims or URLs from a file in parallel",
	Long: `Batch reads inputs from a file, one per line, and verifies them
with a fixed worker pool. URLs become article jobs; any other line is
treated as a claim. Blank lines and # comments are skipped. Each input
gets its own JSON and Markdown report in the output directory.

Example:
  veridex batch claims.txt
  veridex batch claims.txt --concurrency 4 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent verifications")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./veridex-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 60*time.Minute, "total timeout for the batch")
	batchCmd.Flags().StringVar(&searchURL, "search-url", "", "search endpoint base URL (SearxNG-compatible)")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable page and reliability caches")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Cache.Enabled = cfg.Cache.Enabled && !noCache
	cfg.Output.IncludeFooter = !noFooter
	if searchURL != "" {
		cfg.Search.BaseURL = searchURL
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if cfg.Search.BaseURL == "" {
		return fmt.Errorf("no search endpoint configured (--search-url or search.base_url)")
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	processor := pipeline.NewBatchProcessor(p, concurrency)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	renderer := p.Renderer()
	success, failure := 0, 0
	for _, result := range results {
		if result.Err != nil {
			failure++
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", result.Job.InputValue, result.Err)
			continue
		}
		success++

		slug := sanitizeFilename(result.Report.Subject)
		if err := renderer.RenderJSON(result.Report, filepath.Join(outputDir, slug+".json")); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: write JSON: %v\n", result.Job.InputValue, err)
			continue
		}
		if err := renderer.RenderMarkdown(result.Report, filepath.Join(outputDir, slug+".md")); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: write Markdown: %v\n", result.Job.InputValue, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "OK %s: %d%% true (confidence %.2f)\n",
			result.Report.Subject, result.Report.Verdict.TruthPercent, result.Report.Verdict.Confidence)
	}

	fmt.Fprintf(os.Stderr, "\nBatch complete: %d ok, %d failed, reports in %s\n", success, failure, outputDir)
	return nil
}

// sanitizeFilename makes a report subject safe to use as a file name.
func sanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "report"
	}
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "-",
	)
	s = replacer.Replace(s)
	if len(s) > 80 {
		s = s[:80]
	}
	return strings.ToLower(s)
}
