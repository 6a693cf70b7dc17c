// Package metrics holds the engine's Prometheus collectors.
//
// Collectors register with the default registry at init via promauto. The CLI
// is short-lived, so instead of serving /metrics it can dump the registry to a
// file for a node_exporter textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teranos/provenance/errors"
)

var (
	ClaimsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_claims_submitted_total",
		Help: "Claims written, by kind",
	}, []string{"kind"})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_decisions_total",
		Help: "Decision attempts, by result (recorded, implicit, conflict)",
	}, []string{"result"})

	ConsensusRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_consensus_refreshes_total",
		Help: "Consensus materializations, by outcome (unchanged, changed, cleared)",
	}, []string{"outcome"})

	IntegrityViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_integrity_violations_total",
		Help: "Refused operations that would break a structural invariant, by reason",
	}, []string{"reason"})

	DedupOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_dedup_outcomes_total",
		Help: "Deduplication results, by entity and outcome (created, merged, staged)",
	}, []string{"entity", "outcome"})

	DedupConfidence = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prov_dedup_match_confidence",
		Help:    "Confidence of the best deduplication match",
		Buckets: []float64{0.5, 0.7, 0.8, 0.95, 1.0},
	}, []string{"entity"})

	IngestRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prov_ingest_rows_total",
		Help: "Ingest rows, by stage and result (inserted, skipped, error)",
	}, []string{"stage", "result"})

	IngestBatchSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prov_ingest_batch_duration_seconds",
		Help:    "Wall time per committed ingest batch",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
)

// WriteTextfile dumps the default registry in the text exposition format
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
