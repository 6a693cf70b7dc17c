package am

import "github.com/teranos/provenance/errors"

var knownSourceTypes = map[string]bool{
	"human":  true,
	"hybrid": true,
	"model":  true,
	"import": true,
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Database.BusyTimeoutMS < 0 {
		return errors.Newf("database.busy_timeout_ms must be >= 0, got %d", c.Database.BusyTimeoutMS)
	}

	// Source rank must be a permutation of the known source types
	if len(c.Consensus.SourceRank) > 0 {
		seen := make(map[string]bool)
		for _, st := range c.Consensus.SourceRank {
			if !knownSourceTypes[st] {
				return errors.Newf("consensus.source_rank: unknown source type %q", st)
			}
			if seen[st] {
				return errors.Newf("consensus.source_rank: %q listed twice", st)
			}
			seen[st] = true
		}
		if len(seen) != len(knownSourceTypes) {
			return errors.Newf("consensus.source_rank must list all %d source types, got %d", len(knownSourceTypes), len(seen))
		}
	}
	if c.Consensus.MaxHistoryHops <= 0 {
		return errors.Newf("consensus.max_history_hops must be > 0, got %d", c.Consensus.MaxHistoryHops)
	}

	if err := inUnitInterval("biblio.auto_merge_threshold", c.Biblio.AutoMergeThreshold); err != nil {
		return err
	}
	if err := inUnitInterval("biblio.fuzzy_title_similarity", c.Biblio.FuzzyTitleSimilarity); err != nil {
		return err
	}
	if err := inUnitInterval("biblio.fuzzy_name_similarity", c.Biblio.FuzzyNameSimilarity); err != nil {
		return err
	}
	if err := inUnitInterval("biblio.review_name_similarity", c.Biblio.ReviewNameSimilarity); err != nil {
		return err
	}
	if c.Biblio.ReviewNameSimilarity > c.Biblio.FuzzyNameSimilarity {
		return errors.New("biblio.review_name_similarity cannot exceed biblio.fuzzy_name_similarity")
	}
	if c.Biblio.MaxSupersessionDepth <= 0 {
		return errors.Newf("biblio.max_supersession_depth must be > 0, got %d", c.Biblio.MaxSupersessionDepth)
	}
	if c.Biblio.IdentifierCacheTTLSeconds < 0 {
		return errors.Newf("biblio.identifier_cache_ttl_seconds must be >= 0, got %d", c.Biblio.IdentifierCacheTTLSeconds)
	}

	if c.Ingest.BatchSize <= 0 {
		return errors.Newf("ingest.batch_size must be > 0, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.Workers <= 0 {
		return errors.Newf("ingest.workers must be > 0, got %d", c.Ingest.Workers)
	}
	if c.Ingest.MaxBatchesPerSecond < 0 {
		return errors.Newf("ingest.max_batches_per_second must be >= 0, got %f", c.Ingest.MaxBatchesPerSecond)
	}

	return nil
}

func inUnitInterval(key string, v float64) error {
	if v <= 0 || v > 1 {
		return errors.Newf("%s must be in (0, 1], got %f", key, v)
	}
	return nil
}
