// Package cli wires the veridex commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/veridex/veridex/internal/logging"
	"github.com/veridex/veridex/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "veridex",
	Short: "Veridex - evidence-based claim verification",
	Long: `Veridex verifies claims and articles against live web evidence.

It decomposes an input into atomic claims, groups them into assessment
frames, researches each frame until coverage gaps close or the budget
runs out, scores every contributing source's reliability by model
consensus, and aggregates a truth percentage with calibrated confidence.

Verdicts are evidence-weighted estimates, not ground truth.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("veridex v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.veridex/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(home + "/.veridex")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match VERIDEX_*
	viper.SetEnvPrefix("VERIDEX")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logging.Init(level, "text", os.Stderr)
}

// loadConfig resolves the effective configuration: defaults, config
// file, then environment.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = os.Getenv("VERIDEX_SEARCH_API_KEY")
	}
	cfg.Output.Verbose = cfg.Output.Verbose || verbose
	return cfg, nil
}
