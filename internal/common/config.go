// Package common provides configuration, logging and process-level helpers
// shared by every package.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig  `toml:"logging"`
	Crawler     CrawlerConfig  `toml:"crawler"`
	Pipeline    PipelineConfig `toml:"pipeline"`
	Sources     SourcesConfig  `toml:"sources"`
	Metrics     MetricsConfig  `toml:"metrics"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"` // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`                                             // "stdout", "file"
	FileName   string   `toml:"file_name"`                                          // Log file name, relative to the executable's logs directory
	TimeFormat string   `toml:"time_format"`                                        // Time format for logs (default: "15:04:05")
}

// CrawlerConfig controls the browser pool, retries and the result cache.
// The first four options are the fixed crawler surface; the rest tune it.
type CrawlerConfig struct {
	MaxRetries     int `toml:"max_retries" validate:"min=1,max=20"`      // Attempts per crawl, including the first
	SessionTimeout int `toml:"session_timeout" validate:"min=1,max=600"` // Seconds allowed per attempt
	PoolSize       int `toml:"pool_size" validate:"min=1,max=20"`        // Max concurrent browser sessions
	CacheTTL       int `toml:"cache_ttl" validate:"min=1"`               // Seconds before a cached result is stale

	CacheBackend        string  `toml:"cache_backend" validate:"oneof=memory badger"` // "memory" or "badger" (badger runs in-memory only)
	CacheSweepSchedule  string  `toml:"cache_sweep_schedule"`                         // Cron spec for expired-entry sweeps, e.g. "@every 5m"
	RetryBaseDelay      string  `toml:"retry_base_delay"`                             // e.g. "1s" - first backoff delay
	RetryMaxDelay       string  `toml:"retry_max_delay"`                              // e.g. "30s" - cap on backoff delay, "0" disables
	RetryJitter         float64 `toml:"retry_jitter" validate:"min=0,max=0.45"`       // Fractional jitter added to each delay
	ContentWait         string  `toml:"content_wait"`                                 // Max wait for the national phase table to populate
	PollInterval        string  `toml:"poll_interval"`                                // Interval between table population checks
	RequestDelay        string  `toml:"request_delay"`                                // Minimum spacing between page loads on one host
	BaseURL             string  `toml:"base_url" validate:"required,url"`             // Patent database host
	DefaultJurisdiction string  `toml:"default_jurisdiction" validate:"omitempty,len=2"`
	UserAgent           string  `toml:"user_agent"`
	AcceptLanguage      string  `toml:"accept_language"`
	Headless            bool    `toml:"headless"`
	NoSandbox           bool    `toml:"no_sandbox"`
	DisableGPU          bool    `toml:"disable_gpu"`
}

// PipelineConfig controls the orchestration run.
type PipelineConfig struct {
	RequestTimeout string          `toml:"request_timeout"`                        // Global deadline for one run
	DefaultLimit   int             `toml:"default_limit" validate:"min=1,max=50"`
	MaxLimit       int             `toml:"max_limit" validate:"min=1,max=50"`
	LayerTimeouts  LayerTimeouts   `toml:"layer_timeouts"`
	Discovery      DiscoveryConfig `toml:"discovery"`
	RegistryTerms  int             `toml:"registry_terms" validate:"min=0,max=20"` // Dev codes searched in the national registry
}

// LayerTimeouts holds one duration string per pipeline layer.
type LayerTimeouts struct {
	Synonyms      string `toml:"synonyms"`
	Discovery     string `toml:"discovery"`
	PatentDetails string `toml:"patent_details"`
	Jurisdiction  string `toml:"jurisdiction"`
	Approval      string `toml:"approval"`
	Trials        string `toml:"trials"`
}

// DiscoveryConfig is the candidate discovery query plan.
type DiscoveryConfig struct {
	YearFrom        int      `toml:"year_from" validate:"min=1978"`
	YearTo          int      `toml:"year_to" validate:"gtefield=YearFrom"`
	Companies       []string `toml:"companies"`
	MaxDevCodes     int      `toml:"max_dev_codes" validate:"min=0"`
	MaxQueries      int      `toml:"max_queries" validate:"min=1"`
	ResultsPerQuery int      `toml:"results_per_query" validate:"min=1,max=100"`
	Concurrency     int      `toml:"concurrency" validate:"min=1,max=20"`
}

// SourcesConfig configures each external lookup service.
type SourcesConfig struct {
	PubChem        SourceConfig `toml:"pubchem"`
	SerpAPI        SourceConfig `toml:"serpapi"`
	INPI           SourceConfig `toml:"inpi"`
	OpenFDA        SourceConfig `toml:"openfda"`
	ClinicalTrials SourceConfig `toml:"clinicaltrials"`
}

type SourceConfig struct {
	BaseURL   string `toml:"base_url" validate:"required,url"`
	APIKey    string `toml:"api_key"`
	Timeout   string `toml:"timeout"`    // e.g. "30s"
	RateLimit int    `toml:"rate_limit"` // Requests per second, 0 uses the client default
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"` // e.g. ":9090"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			FileName:   "pharmyrus.log",
			TimeFormat: "15:04:05",
		},
		Crawler: CrawlerConfig{
			MaxRetries:          5,
			SessionTimeout:      60,
			PoolSize:            3,
			CacheTTL:            3600,
			CacheBackend:        "memory",
			CacheSweepSchedule:  "@every 5m",
			RetryBaseDelay:      "1s",
			RetryMaxDelay:       "30s",
			RetryJitter:         0.2,
			ContentWait:         "10s",
			PollInterval:        "250ms",
			RequestDelay:        "500ms",
			BaseURL:             "https://patentscope.wipo.int",
			DefaultJurisdiction: "BR",
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			AcceptLanguage:      "en-US,en;q=0.9",
			Headless:            true,
			NoSandbox:           true,
			DisableGPU:          true,
		},
		Pipeline: PipelineConfig{
			RequestTimeout: "5m",
			DefaultLimit:   20,
			MaxLimit:       50,
			LayerTimeouts: LayerTimeouts{
				Synonyms:      "30s",
				Discovery:     "60s",
				PatentDetails: "4m",
				Jurisdiction:  "60s",
				Approval:      "30s",
				Trials:        "30s",
			},
			Discovery: DiscoveryConfig{
				YearFrom:        2011,
				YearTo:          2024,
				Companies:       []string{"Orion Corporation", "Bayer"},
				MaxDevCodes:     5,
				MaxQueries:      20,
				ResultsPerQuery: 10,
				Concurrency:     5,
			},
			RegistryTerms: 5,
		},
		Sources: SourcesConfig{
			PubChem:        SourceConfig{BaseURL: "https://pubchem.ncbi.nlm.nih.gov/rest/pug", Timeout: "30s", RateLimit: 5},
			SerpAPI:        SourceConfig{BaseURL: "https://serpapi.com", Timeout: "30s", RateLimit: 5},
			INPI:           SourceConfig{BaseURL: "https://crawler3-production.up.railway.app/api/data/inpi/patents", Timeout: "60s", RateLimit: 2},
			OpenFDA:        SourceConfig{BaseURL: "https://api.fda.gov/drug", Timeout: "30s", RateLimit: 4},
			ClinicalTrials: SourceConfig{BaseURL: "https://clinicaltrials.gov/api/v2", Timeout: "30s", RateLimit: 5},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies PHARMYRUS_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PHARMYRUS_ENV"); env != "" {
		config.Environment = env
	}

	// Logging
	if level := os.Getenv("PHARMYRUS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PHARMYRUS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		config.Logging.Output = outputs
	}

	// Crawler surface
	if v := os.Getenv("PHARMYRUS_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Crawler.MaxRetries = n
		}
	}
	if v := os.Getenv("PHARMYRUS_SESSION_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Crawler.SessionTimeout = n
		}
	}
	if v := os.Getenv("PHARMYRUS_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Crawler.PoolSize = n
		}
	}
	if v := os.Getenv("PHARMYRUS_CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Crawler.CacheTTL = n
		}
	}
	if v := os.Getenv("PHARMYRUS_CACHE_BACKEND"); v != "" {
		config.Crawler.CacheBackend = v
	}
	if v := os.Getenv("PHARMYRUS_CRAWLER_BASE_URL"); v != "" {
		config.Crawler.BaseURL = v
	}
	if v := os.Getenv("PHARMYRUS_CRAWLER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Crawler.Headless = b
		}
	}

	// Pipeline
	if v := os.Getenv("PHARMYRUS_REQUEST_TIMEOUT"); v != "" {
		config.Pipeline.RequestTimeout = v
	}

	// Source credentials
	if v := os.Getenv("PHARMYRUS_SERPAPI_KEY"); v != "" {
		config.Sources.SerpAPI.APIKey = v
	} else if v := os.Getenv("SERPAPI_KEY"); v != "" && config.Sources.SerpAPI.APIKey == "" {
		config.Sources.SerpAPI.APIKey = v
	}
	if v := os.Getenv("PHARMYRUS_OPENFDA_KEY"); v != "" {
		config.Sources.OpenFDA.APIKey = v
	}

	// Metrics
	if v := os.Getenv("PHARMYRUS_METRICS_ADDRESS"); v != "" {
		config.Metrics.Address = v
		config.Metrics.Enabled = true
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority).
// Zero values leave the loaded configuration untouched.
func ApplyFlagOverrides(config *Config, poolSize int, logLevel string, metricsAddr string) {
	if poolSize > 0 {
		config.Crawler.PoolSize = poolSize
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	if metricsAddr != "" {
		config.Metrics.Address = metricsAddr
		config.Metrics.Enabled = true
	}
}

// Validate checks struct constraints, duration strings and the sweep schedule.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"crawler.retry_base_delay":               c.Crawler.RetryBaseDelay,
		"crawler.retry_max_delay":                c.Crawler.RetryMaxDelay,
		"crawler.content_wait":                   c.Crawler.ContentWait,
		"crawler.poll_interval":                  c.Crawler.PollInterval,
		"crawler.request_delay":                  c.Crawler.RequestDelay,
		"pipeline.request_timeout":               c.Pipeline.RequestTimeout,
		"pipeline.layer_timeouts.synonyms":       c.Pipeline.LayerTimeouts.Synonyms,
		"pipeline.layer_timeouts.discovery":      c.Pipeline.LayerTimeouts.Discovery,
		"pipeline.layer_timeouts.patent_details": c.Pipeline.LayerTimeouts.PatentDetails,
		"pipeline.layer_timeouts.jurisdiction":   c.Pipeline.LayerTimeouts.Jurisdiction,
		"pipeline.layer_timeouts.approval":       c.Pipeline.LayerTimeouts.Approval,
		"pipeline.layer_timeouts.trials":         c.Pipeline.LayerTimeouts.Trials,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q: %w", key, value, err)
		}
	}

	if c.Pipeline.DefaultLimit > c.Pipeline.MaxLimit {
		return fmt.Errorf("pipeline.default_limit (%d) exceeds pipeline.max_limit (%d)", c.Pipeline.DefaultLimit, c.Pipeline.MaxLimit)
	}

	if c.Crawler.CacheSweepSchedule != "" {
		if err := ValidateSweepSchedule(c.Crawler.CacheSweepSchedule); err != nil {
			return err
		}
	}

	return nil
}

// ValidateSweepSchedule validates a cron expression or descriptor such as "@every 5m"
func ValidateSweepSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cache sweep schedule %q: %w", schedule, err)
	}
	return nil
}

// ParseDuration parses a duration string, returning fallback when the value
// is empty or malformed.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// SessionTimeoutDuration returns the per-attempt bound as a duration
func (c CrawlerConfig) SessionTimeoutDuration() time.Duration {
	return time.Duration(c.SessionTimeout) * time.Second
}

// CacheTTLDuration returns the cache TTL as a duration
func (c CrawlerConfig) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
