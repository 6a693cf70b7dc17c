package am

import (
	"github.com/spf13/viper"
)

// Default values shared by SetDefaults and by callers that build a Config by hand.
const (
	DefaultDatabasePath         = "prov.db"
	DefaultMaxHistoryHops       = 10000
	DefaultAutoMergeThreshold   = 0.7
	DefaultFuzzyTitleSimilarity = 0.85
	DefaultFuzzyNameSimilarity  = 0.92
	DefaultReviewNameSimilarity = 0.75
	DefaultMaxSupersession      = 256
	DefaultBatchSize            = 500
)

// DefaultSourceRank prefers human judgment over automation.
var DefaultSourceRank = []string{"human", "hybrid", "model", "import"}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("database.busy_timeout_ms", 5000)

	// Consensus defaults
	v.SetDefault("consensus.source_rank", DefaultSourceRank)
	v.SetDefault("consensus.max_history_hops", DefaultMaxHistoryHops)

	// Biblio defaults
	v.SetDefault("biblio.auto_merge_threshold", DefaultAutoMergeThreshold)
	v.SetDefault("biblio.fuzzy_title_similarity", DefaultFuzzyTitleSimilarity)
	v.SetDefault("biblio.fuzzy_name_similarity", DefaultFuzzyNameSimilarity)
	v.SetDefault("biblio.review_name_similarity", DefaultReviewNameSimilarity)
	v.SetDefault("biblio.max_supersession_depth", DefaultMaxSupersession)
	v.SetDefault("biblio.identifier_cache_ttl_seconds", 600)

	// Ingest defaults
	v.SetDefault("ingest.batch_size", DefaultBatchSize)
	v.SetDefault("ingest.workers", 2)
	v.SetDefault("ingest.defer_consensus", true)
	v.SetDefault("ingest.max_batches_per_second", 0)

	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds configuration that deployments
// commonly override per environment
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "PROV_DATABASE_PATH")
	v.BindEnv("log.json", "PROV_LOG_JSON")
}
