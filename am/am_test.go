package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "prov.db", cfg.Database.Path)
	assert.Equal(t, []string{"human", "hybrid", "model", "import"}, cfg.Consensus.SourceRank)
	assert.Equal(t, 10000, cfg.Consensus.MaxHistoryHops)
	assert.InDelta(t, 0.7, cfg.Biblio.AutoMergeThreshold, 1e-9)
	assert.Equal(t, 500, cfg.Ingest.BatchSize)
	assert.True(t, cfg.Ingest.DeferConsensus)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"custom rank permutation is valid", func(c *Config) {
			c.Consensus.SourceRank = []string{"human", "model", "hybrid", "import"}
		}, false},
		{"unknown source type", func(c *Config) {
			c.Consensus.SourceRank = []string{"human", "oracle", "model", "import"}
		}, true},
		{"duplicate source type", func(c *Config) {
			c.Consensus.SourceRank = []string{"human", "human", "model", "import"}
		}, true},
		{"incomplete rank", func(c *Config) {
			c.Consensus.SourceRank = []string{"human", "model"}
		}, true},
		{"zero history bound", func(c *Config) { c.Consensus.MaxHistoryHops = 0 }, true},
		{"threshold above one", func(c *Config) { c.Biblio.AutoMergeThreshold = 1.2 }, true},
		{"review above auto-merge similarity", func(c *Config) {
			c.Biblio.ReviewNameSimilarity = 0.95
		}, true},
		{"zero batch size", func(c *Config) { c.Ingest.BatchSize = 0 }, true},
		{"negative pacing", func(c *Config) { c.Ingest.MaxBatchesPerSecond = -1 }, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	content := `
[database]
path = "/data/prov.db"

[ingest]
batch_size = 50
workers = 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/prov.db", cfg.Database.Path)
	assert.Equal(t, 50, cfg.Ingest.BatchSize)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	// Untouched keys keep their defaults
	assert.Equal(t, 10000, cfg.Consensus.MaxHistoryHops)
}

func TestGetDatabasePath_EnvOverride(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/override.db")
	path, err := GetDatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", path)
}
