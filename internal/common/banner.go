package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the settings that
// shape a run
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("Pharmyrus", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("patent_host", config.Crawler.BaseURL).
		Int("pool_size", config.Crawler.PoolSize).
		Int("max_retries", config.Crawler.MaxRetries).
		Int("cache_ttl_seconds", config.Crawler.CacheTTL).
		Str("request_timeout", config.Pipeline.RequestTimeout).
		Bool("search_key_set", config.Sources.SerpAPI.APIKey != "").
		Msg("Pharmyrus starting")
}
