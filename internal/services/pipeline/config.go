package pipeline

import (
	"strings"
	"time"

	"github.com/ternarybob/pharmyrus/internal/common"
	"github.com/ternarybob/pharmyrus/internal/models"
)

// Config holds resolved orchestration settings.
type Config struct {
	RequestTimeout time.Duration
	LayerTimeouts  map[string]time.Duration
	DefaultLimit   int
	MaxLimit       int
	Discovery      DiscoveryPlan
	RegistryTerms  int // Development codes searched in the national registry
}

// DiscoveryPlan shapes the candidate discovery query plan.
type DiscoveryPlan struct {
	YearFrom        int
	YearTo          int
	Companies       []string
	MaxDevCodes     int
	MaxQueries      int
	ResultsPerQuery int
	Concurrency     int
}

// DefaultConfig mirrors the configuration file defaults.
func DefaultConfig() Config {
	return NewConfig(common.NewDefaultConfig().Pipeline)
}

// NewConfig parses the [pipeline] section. Malformed durations fall back to
// the defaults; Config.Validate has already rejected them at startup.
func NewConfig(cfg common.PipelineConfig) Config {
	timeouts := cfg.LayerTimeouts
	return Config{
		RequestTimeout: common.ParseDuration(cfg.RequestTimeout, 5*time.Minute),
		LayerTimeouts: map[string]time.Duration{
			models.LayerSynonyms:      common.ParseDuration(timeouts.Synonyms, 30*time.Second),
			models.LayerDiscovery:     common.ParseDuration(timeouts.Discovery, 60*time.Second),
			models.LayerPatentDetails: common.ParseDuration(timeouts.PatentDetails, 4*time.Minute),
			models.LayerJurisdiction:  common.ParseDuration(timeouts.Jurisdiction, 60*time.Second),
			models.LayerApproval:      common.ParseDuration(timeouts.Approval, 30*time.Second),
			models.LayerTrials:        common.ParseDuration(timeouts.Trials, 30*time.Second),
		},
		DefaultLimit: cfg.DefaultLimit,
		MaxLimit:     cfg.MaxLimit,
		Discovery: DiscoveryPlan{
			YearFrom:        cfg.Discovery.YearFrom,
			YearTo:          cfg.Discovery.YearTo,
			Companies:       append([]string{}, cfg.Discovery.Companies...),
			MaxDevCodes:     cfg.Discovery.MaxDevCodes,
			MaxQueries:      cfg.Discovery.MaxQueries,
			ResultsPerQuery: cfg.Discovery.ResultsPerQuery,
			Concurrency:     cfg.Discovery.Concurrency,
		},
		RegistryTerms: cfg.RegistryTerms,
	}
}

func (c Config) layerTimeout(layer string) time.Duration {
	if d, ok := c.LayerTimeouts[layer]; ok && d > 0 {
		return d
	}
	return c.RequestTimeout
}

// normalizeRequest trims the molecule, upper-cases the jurisdiction and
// resolves the limit against the configured default and cap.
func (c Config) normalizeRequest(req models.PipelineRequest) models.PipelineRequest {
	req.Molecule = strings.TrimSpace(req.Molecule)
	req.Jurisdiction = strings.ToUpper(strings.TrimSpace(req.Jurisdiction))
	if req.Limit <= 0 {
		req.Limit = c.DefaultLimit
	}
	if c.MaxLimit > 0 && req.Limit > c.MaxLimit {
		req.Limit = c.MaxLimit
	}
	return req
}
