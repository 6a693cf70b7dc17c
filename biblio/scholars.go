package biblio

import (
	"context"
	"database/sql"
	"strings"

	"github.com/teranos/provenance/biblio/dedup"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/metrics"
	"github.com/teranos/provenance/prov/ids"
	"github.com/teranos/provenance/prov/storage"
)

const scholarColumns = `id, orcid, surname, given_names, full_name, source, created_at`

// RegisterScholar deduplicates a person record. Routing follows
// RegisterPublication; scholars carry no claims, so runID is only recorded
// on staged candidates.
func (r *Resolver) RegisterScholar(ctx context.Context, runID string, rec dedup.ScholarRecord) (*Registration, error) {
	if strings.TrimSpace(rec.Surname) == "" {
		return nil, errors.NewValidationError("scholar surname is required")
	}

	var reg *Registration
	err := r.InTx(ctx, func(tx *Resolver) error {
		q := tx.store.Querier()
		keys := rec.Keys()
		pool, err := scholarPool(ctx, q, keys)
		if err != nil {
			return err
		}
		match := tx.matcher.MatchScholar(keys, pool)
		reg = &Registration{
			Entity:     EntityScholar,
			Outcome:    tx.matcher.Route(match),
			Confidence: match.Confidence,
			Tier:       match.Tier,
			Basis:      match.Basis,
		}

		switch reg.Outcome {
		case dedup.OutcomeCreate:
			reg.Confidence = 1
			reg.ID, err = tx.insertScholar(ctx, rec)
			return err
		case dedup.OutcomeMerge:
			reg.ID = match.ID
			return foldScholarKeys(ctx, q, match.ID, keys)
		default:
			reg.CandidateID, err = tx.stageCandidate(ctx, EntityScholar, rec, runID, match)
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	metrics.DedupOutcomes.WithLabelValues(string(EntityScholar), string(reg.Outcome)).Inc()
	if reg.Tier > 0 {
		metrics.DedupConfidence.WithLabelValues(string(EntityScholar)).Observe(reg.Confidence)
	}
	r.logger.Infow("Scholar registered",
		"scholar_id", reg.ID,
		"outcome", reg.Outcome,
		logger.FieldConfidence, reg.Confidence,
		logger.FieldTier, reg.Tier,
		logger.FieldCandidateID, reg.CandidateID,
	)
	return reg, nil
}

func (r *Resolver) insertScholar(ctx context.Context, rec dedup.ScholarRecord) (string, error) {
	id := ids.Scholar()
	q := r.store.Querier()
	_, err := q.ExecContext(ctx, `
		INSERT INTO scholars (id, orcid, surname, given_names, full_name, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, dedup.NormalizeORCID(rec.ORCID), rec.Surname, rec.GivenNames, rec.DisplayName(), rec.Source, r.store.Now())
	if err != nil {
		return "", errors.Wrap(err, "failed to insert scholar")
	}
	return id, foldScholarKeys(ctx, q, id, rec.Keys())
}

func foldScholarKeys(ctx context.Context, q storage.Querier, scholarID string, keys []dedup.Key) error {
	for _, k := range keys {
		if _, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO scholar_keys (scholar_id, key_type, key) VALUES (?, ?, ?)",
			scholarID, string(k.Type), k.Value); err != nil {
			return errors.Wrapf(err, "failed to add %s key to %s", k.Type, scholarID)
		}
	}
	return nil
}

// scholarPool gathers scholars sharing an exact key plus every scholar with
// a full name for the fuzzy tier. The scholar table is small next to claims.
func scholarPool(ctx context.Context, q storage.Querier, keys []dedup.Key) ([]dedup.Entry, error) {
	seen := make(map[string]bool)
	var poolIDs []string
	add := func(found []string) {
		for _, id := range found {
			if !seen[id] {
				seen[id] = true
				poolIDs = append(poolIDs, id)
			}
		}
	}
	for _, k := range keys {
		found, err := queryStrings(ctx, q, "SELECT scholar_id FROM scholar_keys WHERE key_type = ? AND key = ?", string(k.Type), k.Value)
		if err != nil {
			return nil, err
		}
		add(found)
	}
	found, err := queryStrings(ctx, q, "SELECT DISTINCT scholar_id FROM scholar_keys WHERE key_type = ?", string(dedup.KeyFullName))
	if err != nil {
		return nil, err
	}
	add(found)

	entries := make([]dedup.Entry, 0, len(poolIDs))
	for _, id := range poolIDs {
		e := dedup.Entry{ID: id}
		if err := q.QueryRowContext(ctx, "SELECT created_at FROM scholars WHERE id = ?", id).Scan(&e.CreatedAt); err != nil {
			return nil, errors.Wrapf(err, "failed to load scholar %s", id)
		}
		pairs, err := queryPairs(ctx, q, "SELECT key_type, key FROM scholar_keys WHERE scholar_id = ? ORDER BY key_type, key", id)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			e.Keys = append(e.Keys, dedup.Key{Type: dedup.KeyType(p[0]), Value: p[1]})
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetScholar fetches one scholar
func (r *Resolver) GetScholar(ctx context.Context, id string) (*Scholar, error) {
	var s Scholar
	err := r.store.Querier().QueryRowContext(ctx, "SELECT "+scholarColumns+" FROM scholars WHERE id = ?", id).
		Scan(&s.ID, &s.ORCID, &s.Surname, &s.GivenNames, &s.FullName, &s.Source, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("scholar %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load scholar")
	}
	return &s, nil
}
