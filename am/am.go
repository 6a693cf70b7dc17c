package am

// Config represents the provenance engine configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Consensus ConsensusConfig `mapstructure:"consensus" toml:"consensus" json:"consensus" yaml:"consensus"`
	Biblio    BiblioConfig    `mapstructure:"biblio" toml:"biblio" json:"biblio" yaml:"biblio"`
	Ingest    IngestConfig    `mapstructure:"ingest" toml:"ingest" json:"ingest" yaml:"ingest"`
	Log       LogConfig       `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path          string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms" toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// ConsensusConfig configures the consensus selector and decision log
type ConsensusConfig struct {
	// SourceRank orders source types from most to least trusted
	SourceRank     []string `mapstructure:"source_rank" toml:"source_rank" json:"source_rank" yaml:"source_rank"`
	MaxHistoryHops int      `mapstructure:"max_history_hops" toml:"max_history_hops" json:"max_history_hops" yaml:"max_history_hops"`
}

// BiblioConfig configures the identity & citation resolver and its dedup engine
type BiblioConfig struct {
	AutoMergeThreshold        float64 `mapstructure:"auto_merge_threshold" toml:"auto_merge_threshold" json:"auto_merge_threshold" yaml:"auto_merge_threshold"`
	FuzzyTitleSimilarity      float64 `mapstructure:"fuzzy_title_similarity" toml:"fuzzy_title_similarity" json:"fuzzy_title_similarity" yaml:"fuzzy_title_similarity"`
	FuzzyNameSimilarity       float64 `mapstructure:"fuzzy_name_similarity" toml:"fuzzy_name_similarity" json:"fuzzy_name_similarity" yaml:"fuzzy_name_similarity"`
	ReviewNameSimilarity      float64 `mapstructure:"review_name_similarity" toml:"review_name_similarity" json:"review_name_similarity" yaml:"review_name_similarity"`
	MaxSupersessionDepth      int     `mapstructure:"max_supersession_depth" toml:"max_supersession_depth" json:"max_supersession_depth" yaml:"max_supersession_depth"`
	IdentifierCacheTTLSeconds int     `mapstructure:"identifier_cache_ttl_seconds" toml:"identifier_cache_ttl_seconds" json:"identifier_cache_ttl_seconds" yaml:"identifier_cache_ttl_seconds"`
}

// IngestConfig configures the batch import runner
type IngestConfig struct {
	BatchSize           int     `mapstructure:"batch_size" toml:"batch_size" json:"batch_size" yaml:"batch_size"`
	Workers             int     `mapstructure:"workers" toml:"workers" json:"workers" yaml:"workers"`                                                 // Sources imported in parallel
	DeferConsensus      bool    `mapstructure:"defer_consensus" toml:"defer_consensus" json:"defer_consensus" yaml:"defer_consensus"`                 // Recompute consensus once after import instead of per claim
	MaxBatchesPerSecond float64 `mapstructure:"max_batches_per_second" toml:"max_batches_per_second" json:"max_batches_per_second" yaml:"max_batches_per_second"` // 0 = unlimited
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}
