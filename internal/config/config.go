package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/alvmarrod/link-weaver/internal/graphmetrics"
	"github.com/alvmarrod/link-weaver/internal/opportunity"
	"github.com/alvmarrod/link-weaver/internal/report"
	"github.com/alvmarrod/link-weaver/internal/similarity"
)

// ScoreWeights weigh the opportunity score components
type ScoreWeights struct {
	Similarity float64 `json:"similarity"`
	Authority  float64 `json:"authority"`
	Anchor     float64 `json:"anchor"`
}

// CrawlerConfig holds the settings of the optional site crawler
type CrawlerConfig struct {
	SeedURL           string  `json:"seed_url"`
	MaxDepth          int     `json:"max_depth"`
	MaxPages          int     `json:"max_pages"`
	ConcurrentWorkers int     `json:"concurrent_workers"`
	RequestTimeoutMs  int     `json:"request_timeout_ms"`
	DelayMs           int     `json:"delay_ms"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	UserAgent         string  `json:"user_agent"`
}

// Config holds all runtime configuration parameters
type Config struct {
	Damping                   float64       `json:"damping"`
	ConvergenceEpsilon        float64       `json:"convergence_epsilon"`
	MaxIterations             int           `json:"max_iterations"`
	SimilarityThreshold       *float64      `json:"similarity_threshold"`
	TopKTerms                 int           `json:"top_k_terms"`
	MaxOpportunitiesPerSource int           `json:"max_opportunities_per_source"`
	ScoreWeights              ScoreWeights  `json:"score_weights"`
	StopWords                 []string      `json:"stop_words"`
	UseIDF                    *bool         `json:"use_idf"`
	EntryPoints               []string      `json:"entry_points"`
	SimilarityWorkers         int           `json:"similarity_workers"`
	AnchorReuseLimit          int           `json:"anchor_reuse_limit"`
	AnchorPenaltyFactor       float64       `json:"anchor_penalty_factor"`
	AnchorMaxWords            int           `json:"anchor_max_words"`
	DeepPageDepth             int           `json:"deep_page_depth"`
	DBPath                    string        `json:"db_path"`
	MetricsPath               string        `json:"metrics_path"`
	ReportPath                string        `json:"report_path"`
	Crawler                   CrawlerConfig `json:"crawler"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads and validates configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.Damping == 0 {
		cfg.Damping = 0.85
	}
	if cfg.ConvergenceEpsilon == 0 {
		cfg.ConvergenceEpsilon = 1e-6
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 100
	}
	if cfg.SimilarityThreshold == nil {
		threshold := 0.2
		cfg.SimilarityThreshold = &threshold
	}
	if cfg.TopKTerms == 0 {
		cfg.TopKTerms = 10
	}
	if cfg.MaxOpportunitiesPerSource == 0 {
		cfg.MaxOpportunitiesPerSource = 5
	}
	if cfg.ScoreWeights == (ScoreWeights{}) {
		cfg.ScoreWeights = ScoreWeights{Similarity: 0.6, Authority: 0.25, Anchor: 0.15}
	}
	if cfg.StopWords == nil {
		cfg.StopWords = similarity.DefaultStopWords()
	}
	if cfg.UseIDF == nil {
		useIDF := true
		cfg.UseIDF = &useIDF
	}
	if cfg.SimilarityWorkers == 0 {
		cfg.SimilarityWorkers = 4
	}
	if cfg.AnchorReuseLimit == 0 {
		cfg.AnchorReuseLimit = 3
	}
	if cfg.AnchorPenaltyFactor == 0 {
		cfg.AnchorPenaltyFactor = 0.25
	}
	if cfg.AnchorMaxWords == 0 {
		cfg.AnchorMaxWords = 3
	}
	if cfg.DeepPageDepth == 0 {
		cfg.DeepPageDepth = 3
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "linkweaver.db"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
	if cfg.ReportPath == "" {
		cfg.ReportPath = "report.json"
	}
	if cfg.Crawler.MaxDepth == 0 {
		cfg.Crawler.MaxDepth = 5
	}
	if cfg.Crawler.MaxPages == 0 {
		cfg.Crawler.MaxPages = 500
	}
	if cfg.Crawler.ConcurrentWorkers == 0 {
		cfg.Crawler.ConcurrentWorkers = 3
	}
	if cfg.Crawler.RequestTimeoutMs == 0 {
		cfg.Crawler.RequestTimeoutMs = 5000
	}
	if cfg.Crawler.RequestsPerSecond == 0 {
		cfg.Crawler.RequestsPerSecond = 10
	}
	if cfg.Crawler.UserAgent == "" {
		cfg.Crawler.UserAgent = "link-weaver/1.0"
	}
}

// validate checks that values are sensible
func validate(cfg *Config) error {
	if cfg.Damping <= 0 || cfg.Damping >= 1 {
		return fmt.Errorf("damping must be in (0, 1)")
	}
	if cfg.ConvergenceEpsilon <= 0 {
		return fmt.Errorf("convergence_epsilon must be > 0")
	}
	if cfg.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1")
	}
	if t := *cfg.SimilarityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("similarity_threshold must be in [0, 1]")
	}
	if cfg.TopKTerms < 1 {
		return fmt.Errorf("top_k_terms must be >= 1")
	}
	if cfg.MaxOpportunitiesPerSource < 1 {
		return fmt.Errorf("max_opportunities_per_source must be >= 1")
	}
	w := cfg.ScoreWeights
	if w.Similarity < 0 || w.Authority < 0 || w.Anchor < 0 {
		return fmt.Errorf("score_weights must be non-negative")
	}
	if sum := w.Similarity + w.Authority + w.Anchor; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("score_weights must sum to 1, got %g", sum)
	}
	if cfg.SimilarityWorkers < 1 {
		return fmt.Errorf("similarity_workers must be >= 1")
	}
	if cfg.AnchorReuseLimit < 1 {
		return fmt.Errorf("anchor_reuse_limit must be >= 1")
	}
	if cfg.AnchorPenaltyFactor < 0 || cfg.AnchorPenaltyFactor > 1 {
		return fmt.Errorf("anchor_penalty_factor must be in [0, 1]")
	}
	if cfg.AnchorMaxWords < 1 {
		return fmt.Errorf("anchor_max_words must be >= 1")
	}
	if cfg.Crawler.MaxDepth < 1 {
		return fmt.Errorf("crawler.max_depth must be >= 1")
	}
	if cfg.Crawler.ConcurrentWorkers < 1 {
		return fmt.Errorf("crawler.concurrent_workers must be >= 1")
	}
	if cfg.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	if cfg.Crawler.RequestTimeoutMs < 1000 {
		return fmt.Errorf("crawler.request_timeout_ms must be >= 1000")
	}
	return nil
}

// Metrics maps the configuration onto the metrics engine
func (c *Config) Metrics() graphmetrics.Config {
	return graphmetrics.Config{
		Damping:     c.Damping,
		EntryPoints: append([]string(nil), c.EntryPoints...),
		Policy:      graphmetrics.EpsilonPolicy{Epsilon: c.ConvergenceEpsilon, MaxIterations: c.MaxIterations},
	}
}

// Similarity maps the configuration onto the similarity engine
func (c *Config) Similarity() similarity.Config {
	// An empty, non-nil list disables stop word filtering
	stopWords := make([]string, len(c.StopWords))
	copy(stopWords, c.StopWords)

	return similarity.Config{
		Threshold: *c.SimilarityThreshold,
		TopK:      c.TopKTerms,
		UseIDF:    *c.UseIDF,
		StopWords: stopWords,
		Workers:   c.SimilarityWorkers,
	}
}

// Opportunity maps the configuration onto the opportunity detector
func (c *Config) Opportunity() opportunity.Config {
	cfg := opportunity.DefaultConfig()
	cfg.Weights = opportunity.Weights(c.ScoreWeights)
	cfg.MaxPerSource = c.MaxOpportunitiesPerSource
	cfg.AnchorReuseLimit = c.AnchorReuseLimit
	cfg.AnchorPenaltyFactor = c.AnchorPenaltyFactor
	cfg.AnchorMaxWords = c.AnchorMaxWords
	cfg.DeepPageDepth = c.DeepPageDepth
	return cfg
}

// Report maps the configuration onto the report audit options
func (c *Config) Report() report.Options {
	return report.Options{DeepPageDepth: c.DeepPageDepth}
}

// RequestTimeout returns the crawler request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.RequestTimeoutMs) * time.Millisecond
}
