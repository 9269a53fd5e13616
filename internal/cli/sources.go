package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/veridex/veridex/internal/cache"
	"github.com/veridex/veridex/internal/gateway"
	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/reliability"
)

var (
	sourcesTimeout time.Duration
	forceRefresh   bool
)

// sourcesCmd groups source reliability operations.
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and manage source reliability records",
}

var sourcesEvaluateCmd = &cobra.Command{
	Use:   "evaluate <domain>",
	Short: "Evaluate one domain's reliability by model consensus",
	Long: `Evaluate asks two independent models to assess a domain and applies
the consensus policy: close scores pick the better-founded assessment,
diverging scores fall back to the higher-confidence one, and with no
usable response the domain gets the skeptical default. Records are
cached; use --refresh to force re-evaluation.

Example:
  veridex sources evaluate reuters.com
  veridex sources evaluate example-blog.net --refresh`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcesEvaluate,
}

var sourcesPrefetchCmd = &cobra.Command{
	Use:   "prefetch <file>",
	Short: "Evaluate a batch of domains from a file",
	Long: `Prefetch warms the reliability cache for a list of domains, one per
line, with bounded parallelism. Useful before large batch runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcesPrefetch,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.AddCommand(sourcesEvaluateCmd)
	sourcesCmd.AddCommand(sourcesPrefetchCmd)

	sourcesCmd.PersistentFlags().DurationVar(&sourcesTimeout, "timeout", 2*time.Minute, "evaluation timeout")
	sourcesEvaluateCmd.Flags().BoolVar(&forceRefresh, "refresh", false, "drop the cached record first")
}

// reliabilityService builds the consensus service from configuration.
func reliabilityService(cfg *model.Config) (*reliability.Service, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	primary, err := gateway.NewOpenAIClient(cfg.LLM, cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	clients := []gateway.ModelClient{primary}
	if cfg.LLM.SecondaryModel != "" && cfg.LLM.SecondaryModel != cfg.LLM.Model {
		secondary, err := gateway.NewOpenAIClient(cfg.LLM, cfg.LLM.SecondaryModel)
		if err != nil {
			return nil, err
		}
		clients = append(clients, secondary)
	}

	var store cache.Cache
	if cfg.Cache.Enabled {
		store = cache.NewLayeredCache(cfg.Cache.PageTTL, cfg.Cache.Dir, cfg.Cache.ReliabilityTTL)
	}
	return reliability.NewService(clients, store, cfg.Reliability), nil
}

func runSourcesEvaluate(cmd *cobra.Command, args []string) error {
	domain := strings.ToLower(strings.TrimSpace(args[0]))
	ctx, cancel := context.WithTimeout(context.Background(), sourcesTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := reliabilityService(cfg)
	if err != nil {
		return err
	}

	if forceRefresh {
		svc.Invalidate(domain)
	}

	rec, err := svc.Evaluate(ctx, domain, nil)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", domain, err)
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runSourcesPrefetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sourcesTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := reliabilityService(cfg)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open domain list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var domains []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domains = append(domains, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read domain list: %w", err)
	}

	records := svc.Prefetch(ctx, domains, nil)
	for _, d := range domains {
		rec := records[d]
		fmt.Printf("%-40s score=%.2f confidence=%.2f type=%s\n", d, rec.Score, rec.Confidence, rec.SourceType)
	}
	return nil
}
