package model

import "time"

// Config is the resolved configuration snapshot for one job. The engine
// treats it as read-only; versioning and activation live in the external
// configuration store.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Budget      BudgetConfig      `yaml:"budget" mapstructure:"budget"`
	Frames      FramesConfig      `yaml:"frames" mapstructure:"frames"`
	Coverage    CoverageConfig    `yaml:"coverage" mapstructure:"coverage"`
	Extraction  ExtractionConfig  `yaml:"extraction" mapstructure:"extraction"`
	Reliability ReliabilityConfig `yaml:"reliability" mapstructure:"reliability"`
	Verdict     VerdictConfig     `yaml:"verdict" mapstructure:"verdict"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Search      SearchConfig      `yaml:"search" mapstructure:"search"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// HTTPConfig controls the page fetcher.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS  bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy    string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy" mapstructure:"no_proxy"`
	RatePerHost  float64       `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	RateBurst    int           `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// CacheConfig controls the layered page and reliability caches.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir            string        `yaml:"dir" mapstructure:"dir"`
	PageTTL        time.Duration `yaml:"page_ttl" mapstructure:"page_ttl"`
	ReliabilityTTL time.Duration `yaml:"reliability_ttl" mapstructure:"reliability_ttl"`
}

// BudgetConfig holds the research budget caps.
type BudgetConfig struct {
	MaxIterationsPerFrame int  `yaml:"max_iterations_per_frame" mapstructure:"max_iterations_per_frame"`
	MaxTotalIterations    int  `yaml:"max_total_iterations" mapstructure:"max_total_iterations"`
	MaxTotalTokens        int  `yaml:"max_total_tokens" mapstructure:"max_total_tokens"`
	EnforceHard           bool `yaml:"enforce_hard" mapstructure:"enforce_hard"`
}

// FramesConfig controls frame detection and deduplication.
type FramesConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"` // 0.4..0.8 tunable
	OversplitAdvisory   int     `yaml:"oversplit_advisory" mapstructure:"oversplit_advisory"`
	Deterministic       bool    `yaml:"deterministic" mapstructure:"deterministic"`
}

// CoverageConfig holds the gap-evaluation thresholds of the research loop.
type CoverageConfig struct {
	MinSourceDomains int           `yaml:"min_source_domains" mapstructure:"min_source_domains"`
	RecencyWindow    time.Duration `yaml:"recency_window" mapstructure:"recency_window"`
	MinEvidenceItems int           `yaml:"min_evidence_items" mapstructure:"min_evidence_items"`
}

// ExtractionConfig controls the evidence extraction pool.
type ExtractionConfig struct {
	Concurrency      int           `yaml:"concurrency" mapstructure:"concurrency"`
	FailureThreshold float64       `yaml:"failure_threshold" mapstructure:"failure_threshold"` // skip ratio that triggers degradation warning
	MaxBackoff       time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// ReliabilityConfig controls the source reliability consensus scorer.
type ReliabilityConfig struct {
	ConsensusThreshold float64       `yaml:"consensus_threshold" mapstructure:"consensus_threshold"` // max score delta for agreement
	ConfidenceGate     float64       `yaml:"confidence_gate" mapstructure:"confidence_gate"`
	DefaultScore       float64       `yaml:"default_score" mapstructure:"default_score"`
	CacheTTL           time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	PoolSize           int           `yaml:"pool_size" mapstructure:"pool_size"`
	RecencyHalfLife    time.Duration `yaml:"recency_half_life" mapstructure:"recency_half_life"`
}

// VerdictConfig controls aggregation and the verdict admission gate.
type VerdictConfig struct {
	MinSources          int           `yaml:"min_sources" mapstructure:"min_sources"`
	MinEvidenceItems    int           `yaml:"min_evidence_items" mapstructure:"min_evidence_items"`
	RecencyHalfLife     time.Duration `yaml:"recency_half_life" mapstructure:"recency_half_life"`
	InterFrameThreshold float64       `yaml:"inter_frame_threshold" mapstructure:"inter_frame_threshold"`
	MinFrameSimilarity  float64       `yaml:"min_frame_similarity" mapstructure:"min_frame_similarity"` // topical coherence floor for the article average
}

// LLMConfig configures the gateway's model clients. Primary drives the
// pipeline; Secondary is the second opinion for reliability consensus.
type LLMConfig struct {
	Provider       string        `yaml:"provider" mapstructure:"provider"`
	Model          string        `yaml:"model" mapstructure:"model"`
	SecondaryModel string        `yaml:"secondary_model" mapstructure:"secondary_model"`
	APIKey         string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens      int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// SearchConfig configures the web search gateway.
type SearchConfig struct {
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxResults int           `yaml:"max_results" mapstructure:"max_results"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// DefaultConfig returns the built-in defaults. Everything here can be
// overridden by config file, environment, or flags.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "Veridex/0.1 (+https://github.com/veridex/veridex)",
			MaxBodyBytes: 2_000_000,
			RatePerHost:  1.0,
			RateBurst:    3,
		},
		Cache: CacheConfig{
			Enabled:        true,
			Dir:            "",
			PageTTL:        24 * time.Hour,
			ReliabilityTTL: 90 * 24 * time.Hour,
		},
		Budget: BudgetConfig{
			MaxIterationsPerFrame: 4,
			MaxTotalIterations:    12,
			MaxTotalTokens:        200_000,
			EnforceHard:           true,
		},
		Frames: FramesConfig{
			SimilarityThreshold: 0.5,
			OversplitAdvisory:   5,
			Deterministic:       false,
		},
		Coverage: CoverageConfig{
			MinSourceDomains: 3,
			RecencyWindow:    2 * 365 * 24 * time.Hour,
			MinEvidenceItems: 5,
		},
		Extraction: ExtractionConfig{
			Concurrency:      3,
			FailureThreshold: 0.5,
			MaxBackoff:       30 * time.Second,
		},
		Reliability: ReliabilityConfig{
			ConsensusThreshold: 0.1,
			ConfidenceGate:     0.6,
			DefaultScore:       0.4,
			CacheTTL:           90 * 24 * time.Hour,
			PoolSize:           4,
			RecencyHalfLife:    180 * 24 * time.Hour,
		},
		Verdict: VerdictConfig{
			MinSources:          3,
			MinEvidenceItems:    5,
			RecencyHalfLife:     365 * 24 * time.Hour,
			InterFrameThreshold: 0.25,
			MinFrameSimilarity:  0.15,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			SecondaryModel: "gpt-4o",
			Timeout:        60 * time.Second,
			MaxTokens:      2000,
			MaxRetries:     3,
		},
		Search: SearchConfig{
			Timeout:    20 * time.Second,
			MaxResults: 8,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}
