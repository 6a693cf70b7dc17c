package biblio

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"

	"github.com/teranos/provenance/biblio/dedup"
	"github.com/teranos/provenance/db"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/metrics"
	"github.com/teranos/provenance/prov/ids"
	"github.com/teranos/provenance/prov/storage"
	"github.com/teranos/provenance/prov/types"
)

const (
	publicationInsertQuery = `
		INSERT INTO publications (id, title, short_title, authors, year, volume, doi, bib_key, source, source_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	publicationColumns = `id, title, short_title, authors, year, volume, doi, bib_key, source, source_key, supersedes_id, created_at`

	publicationKeyInsertQuery = `INSERT OR IGNORE INTO publication_keys (publication_id, key_type, key) VALUES (?, ?, ?)`
)

// RegisterPublication deduplicates rec against existing publications.
//
// A confident match returns the existing id with rec's keys folded into it;
// no match creates a publication; an ambiguous or weak match is staged as a
// DedupCandidate and the returned Registration has no id. In the first two
// cases rec is also recorded as a bibliographic claim on the publication,
// attributed to runID.
func (r *Resolver) RegisterPublication(ctx context.Context, runID string, rec dedup.PublicationRecord) (*Registration, error) {
	if strings.TrimSpace(rec.Title) == "" {
		return nil, errors.NewValidationError("publication title is required")
	}
	if err := r.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	var reg *Registration
	err := r.InTx(ctx, func(tx *Resolver) error {
		q := tx.store.Querier()
		keys := rec.Keys()
		pool, err := publicationPool(ctx, q, keys, rec.Year)
		if err != nil {
			return err
		}
		match := tx.matcher.MatchPublication(keys, pool)
		reg = &Registration{
			Entity:     EntityPublication,
			Outcome:    tx.matcher.Route(match),
			Confidence: match.Confidence,
			Tier:       match.Tier,
			Basis:      match.Basis,
		}

		switch reg.Outcome {
		case dedup.OutcomeCreate:
			reg.ID, err = tx.insertPublication(ctx, rec)
			reg.Confidence = 1
		case dedup.OutcomeMerge:
			reg.ID = match.ID
			err = foldPublicationKeys(ctx, q, match.ID, rec)
		case dedup.OutcomeStage:
			reg.CandidateID, err = tx.stageCandidate(ctx, EntityPublication, rec, runID, match)
			return err
		}
		if err != nil {
			return err
		}
		reg.ClaimID, err = tx.recordBibliographicClaim(ctx, runID, reg.ID, rec, reg.Confidence)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.DedupOutcomes.WithLabelValues(string(EntityPublication), string(reg.Outcome)).Inc()
	if reg.Tier > 0 {
		metrics.DedupConfidence.WithLabelValues(string(EntityPublication)).Observe(reg.Confidence)
	}
	r.logger.Infow("Publication registered",
		logger.FieldPublicationID, reg.ID,
		"outcome", reg.Outcome,
		logger.FieldConfidence, reg.Confidence,
		logger.FieldTier, reg.Tier,
		logger.FieldCandidateID, reg.CandidateID,
		logger.FieldRunID, runID,
	)
	return reg, nil
}

func (r *Resolver) insertPublication(ctx context.Context, rec dedup.PublicationRecord) (string, error) {
	id := ids.Publication()
	_, err := r.store.Querier().ExecContext(ctx, publicationInsertQuery,
		id, rec.Title, rec.ShortTitle, rec.Authors, rec.Year, rec.Volume,
		dedup.NormalizeDOI(rec.DOI), rec.BibKey, rec.Source, rec.SourceKey, r.store.Now())
	if err != nil {
		return "", errors.Wrap(err, "failed to insert publication")
	}
	return id, foldPublicationKeys(ctx, r.store.Querier(), id, rec)
}

// foldPublicationKeys adds rec's keys to an existing publication. Keys are
// only ever added, so the publication's id stays the anchor.
func foldPublicationKeys(ctx context.Context, q storage.Querier, publicationID string, rec dedup.PublicationRecord) error {
	keys := rec.Keys()
	if title := dedup.NormalizeTitle(rec.Title); title != "" {
		keys = append(keys, dedup.Key{Type: dedup.KeyTitle, Value: title})
	}
	if rec.Source != "" && rec.SourceKey != "" {
		keys = append(keys, dedup.Key{Type: dedup.KeySource, Value: rec.Source + "|" + rec.SourceKey})
	}
	for _, k := range keys {
		if _, err := q.ExecContext(ctx, publicationKeyInsertQuery, publicationID, string(k.Type), k.Value); err != nil {
			return errors.Wrapf(err, "failed to add %s key to %s", k.Type, publicationID)
		}
	}
	return nil
}

func (r *Resolver) recordBibliographicClaim(ctx context.Context, runID, publicationID string, rec dedup.PublicationRecord, confidence float64) (string, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode bibliographic record")
	}
	return r.store.SubmitClaim(ctx, types.ClaimInput{
		Subject:    types.PublicationSubject(publicationID),
		Kind:       types.KindBibliographic,
		Value:      string(value),
		Confidence: confidence,
		RunID:      runID,
	})
}

// publicationPool gathers every publication sharing an exact key with the
// candidate, plus every publication from the same year for the fuzzy tier.
func publicationPool(ctx context.Context, q storage.Querier, keys []dedup.Key, year int) ([]dedup.Entry, error) {
	seen := make(map[string]bool)
	var poolIDs []string
	collect := func(query string, args ...interface{}) error {
		found, err := queryStrings(ctx, q, query, args...)
		if err != nil {
			return err
		}
		for _, id := range found {
			if !seen[id] {
				seen[id] = true
				poolIDs = append(poolIDs, id)
			}
		}
		return nil
	}

	for _, k := range keys {
		if err := collect("SELECT publication_id FROM publication_keys WHERE key_type = ? AND key = ?", string(k.Type), k.Value); err != nil {
			return nil, err
		}
	}
	if year > 0 {
		if err := collect("SELECT id FROM publications WHERE year = ?", year); err != nil {
			return nil, err
		}
	}
	return publicationEntries(ctx, q, poolIDs)
}

func publicationEntries(ctx context.Context, q storage.Querier, publicationIDs []string) ([]dedup.Entry, error) {
	entries := make([]dedup.Entry, 0, len(publicationIDs))
	for _, id := range publicationIDs {
		e := dedup.Entry{ID: id}
		if err := q.QueryRowContext(ctx, "SELECT created_at FROM publications WHERE id = ?", id).Scan(&e.CreatedAt); err != nil {
			return nil, errors.Wrapf(err, "failed to load publication %s", id)
		}
		keys, err := publicationKeys(ctx, q, id)
		if err != nil {
			return nil, err
		}
		e.Keys = keys
		entries = append(entries, e)
	}
	return entries, nil
}

func publicationKeys(ctx context.Context, q storage.Querier, publicationID string) ([]dedup.Key, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT key_type, key FROM publication_keys WHERE publication_id = ? ORDER BY key_type, key", publicationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load publication keys")
	}
	defer rows.Close()

	var keys []dedup.Key
	for rows.Next() {
		var k dedup.Key
		var kt string
		if err := rows.Scan(&kt, &k.Value); err != nil {
			return nil, errors.Wrap(err, "failed to scan publication key")
		}
		k.Type = dedup.KeyType(kt)
		keys = append(keys, k)
	}
	return keys, errors.Wrap(rows.Err(), "failed to iterate publication keys")
}

// GetPublication fetches a publication with its accumulated keys
func (r *Resolver) GetPublication(ctx context.Context, id string) (*Publication, error) {
	q := r.store.Querier()
	p, err := scanPublication(q.QueryRowContext(ctx, "SELECT "+publicationColumns+" FROM publications WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("publication %s", id)
	}
	if err != nil {
		return nil, err
	}
	p.Keys, err = publicationKeys(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PublicationQuery is the input to FindPublication
type PublicationQuery struct {
	Text  string // DOI, bibliographic key or title
	Year  int
	Limit int
}

// FindPublication returns publications matching a free-text query, best first.
// Staged candidates are not publications yet, so they never appear here.
func (r *Resolver) FindPublication(ctx context.Context, query PublicationQuery) ([]PublicationHit, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, errors.NewValidationError("search text is required")
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}

	q := r.store.Querier()
	candidate := dedup.PublicationRecord{Title: text, DOI: text, BibKey: text, Year: query.Year}
	keys := candidate.Keys()
	pool, err := publicationPool(ctx, q, keys, query.Year)
	if err != nil {
		return nil, err
	}

	// Title-only search when no year narrows the pool
	normTitle := dedup.NormalizeTitle(text)
	known := make(map[string]bool, len(pool))
	for _, e := range pool {
		known[e.ID] = true
	}
	titleRows, err := queryPairs(ctx, q, "SELECT publication_id, key FROM publication_keys WHERE key_type = ?", string(dedup.KeyTitle))
	if err != nil {
		return nil, err
	}
	var extra []string
	for _, pair := range titleRows {
		if known[pair[0]] {
			continue
		}
		if strings.Contains(pair[1], normTitle) || dedup.Similarity(normTitle, pair[1]) >= r.matcher.FuzzyTitleSimilarity {
			known[pair[0]] = true
			extra = append(extra, pair[0])
		}
	}
	extraEntries, err := publicationEntries(ctx, q, extra)
	if err != nil {
		return nil, err
	}
	pool = append(pool, extraEntries...)

	type scored struct {
		entry dedup.Entry
		conf  float64
		basis dedup.KeyType
	}
	var hits []scored
	for _, e := range pool {
		if m := r.matcher.MatchPublication(keys, []dedup.Entry{e}); m.Found() {
			hits = append(hits, scored{e, m.Confidence, m.Basis})
			continue
		}
		conf := titleScore(normTitle, e.Keys, r.matcher.FuzzyTitleSimilarity)
		if conf > 0 {
			hits = append(hits, scored{e, conf, dedup.KeyTitle})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].conf != hits[j].conf {
			return hits[i].conf > hits[j].conf
		}
		if !hits[i].entry.CreatedAt.Equal(hits[j].entry.CreatedAt) {
			return hits[i].entry.CreatedAt.Before(hits[j].entry.CreatedAt)
		}
		return hits[i].entry.ID < hits[j].entry.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]PublicationHit, 0, len(hits))
	for _, h := range hits {
		p, err := r.GetPublication(ctx, h.entry.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, PublicationHit{Publication: *p, Confidence: h.conf, Basis: h.basis})
	}
	return out, nil
}

// titleScore rates a title-only hit: exact 0.8, fuzzy 0.5, substring 0.3
func titleScore(normTitle string, keys []dedup.Key, fuzzy float64) float64 {
	best := 0.0
	for _, k := range keys {
		if k.Type != dedup.KeyTitle {
			continue
		}
		switch {
		case k.Value == normTitle:
			return dedup.ConfidenceTitleYear
		case dedup.Similarity(normTitle, k.Value) >= fuzzy:
			best = max(best, dedup.ConfidenceFuzzyTitle)
		case strings.Contains(k.Value, normTitle):
			best = max(best, 0.3)
		}
	}
	return best
}

// SupersedePublication records that newID replaces oldID (a newer edition of
// the same volume). Any link that would make the chain cyclic is a CycleError;
// a chain longer than the configured bound is an IntegrityViolation.
func (r *Resolver) SupersedePublication(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return errors.NewCycleError("publication %s cannot supersede itself", oldID)
	}
	err := r.InTx(ctx, func(tx *Resolver) error {
		q := tx.store.Querier()
		newPub, err := tx.GetPublication(ctx, newID)
		if err != nil {
			return err
		}
		if _, err := tx.GetPublication(ctx, oldID); err != nil {
			return err
		}

		newAncestors, err := tx.publicationAncestors(ctx, q, newID)
		if err != nil {
			return err
		}
		if contains(newAncestors, oldID) {
			return errors.NewCycleError("publication %s already precedes %s", oldID, newID)
		}
		oldAncestors, err := tx.publicationAncestors(ctx, q, oldID)
		if err != nil {
			return err
		}
		if contains(oldAncestors, newID) {
			return errors.NewCycleError("publication %s precedes %s; linking back would form a cycle", newID, oldID)
		}
		newDescendants, err := walkDescendants(ctx, q, "publications", newID, tx.maxSupersession)
		if err != nil {
			return err
		}
		if len(oldAncestors)+len(newAncestors)+len(newDescendants)+2 > tx.maxSupersession {
			return errors.NewIntegrityViolation("supersession chain through %s would exceed %d publications", newID, tx.maxSupersession)
		}
		if newPub.SupersedesID != "" {
			return errors.NewConflictError("publication %s already supersedes %s", newID, newPub.SupersedesID)
		}

		_, err = q.ExecContext(ctx, "UPDATE publications SET supersedes_id = ? WHERE id = ? AND supersedes_id IS NULL", oldID, newID)
		if db.IsUniqueViolation(err) {
			return errors.NewConflictError("publication %s is already superseded", oldID)
		}
		return errors.Wrap(err, "failed to link publications")
	})
	if err != nil {
		if errors.IsCycleError(err) {
			r.logger.Warnw("Publication supersession refused", "old_id", oldID, "new_id", newID, logger.FieldError, err)
		}
		return err
	}
	r.logger.Infow("Publication superseded", "old_id", oldID, "new_id", newID)
	return nil
}

// PublicationChain returns id followed by every publication it supersedes, newest first
func (r *Resolver) PublicationChain(ctx context.Context, id string) ([]Publication, error) {
	head, err := r.GetPublication(ctx, id)
	if err != nil {
		return nil, err
	}
	ancestors, err := r.publicationAncestors(ctx, r.store.Querier(), id)
	if err != nil {
		return nil, err
	}
	chain := []Publication{*head}
	for _, a := range ancestors {
		p, err := r.GetPublication(ctx, a)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *p)
	}
	return chain, nil
}

// publicationAncestors walks supersedes_id from id, nearest first, bounded
func (r *Resolver) publicationAncestors(ctx context.Context, q storage.Querier, id string) ([]string, error) {
	return walkChain(ctx, q, "publications", id, r.maxSupersession)
}

func (r *Resolver) stageCandidate(ctx context.Context, entity Entity, payload interface{}, runID string, match dedup.Match) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode candidate payload")
	}
	matchIDs, err := json.Marshal(match.Candidates)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode candidate matches")
	}
	id := ids.Candidate()
	_, err = r.store.Querier().ExecContext(ctx, `
		INSERT INTO dedup_candidates (id, entity, payload, run_id, match_ids, confidence, tier, basis, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(entity), string(body), runID, string(matchIDs), match.Confidence, match.Tier,
		string(match.Basis), match.Reason(), r.store.Now())
	if err != nil {
		return "", errors.Wrap(err, "failed to stage dedup candidate")
	}
	r.logger.Infow("Record staged for review",
		logger.FieldCandidateID, id,
		"entity", entity,
		logger.FieldConfidence, match.Confidence,
		"reason", match.Reason(),
	)
	return id, nil
}

func scanPublication(row interface{ Scan(...interface{}) error }) (*Publication, error) {
	var (
		p          Publication
		supersedes sql.NullString
	)
	err := row.Scan(&p.ID, &p.Title, &p.ShortTitle, &p.Authors, &p.Year, &p.Volume, &p.DOI, &p.BibKey,
		&p.Source, &p.SourceKey, &supersedes, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan publication")
	}
	p.SupersedesID = supersedes.String
	return &p, nil
}

// PublicationBySource resolves a source's own key for a publication, as
// recorded by RegisterPublication, to the publication id.
func (r *Resolver) PublicationBySource(ctx context.Context, source, sourceKey string) (string, error) {
	found, err := queryStrings(ctx, r.store.Querier(),
		"SELECT publication_id FROM publication_keys WHERE key_type = ? AND key = ? ORDER BY publication_id LIMIT 1",
		string(dedup.KeySource), source+"|"+sourceKey)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", errors.NewNotFoundError("publication %s:%s", source, sourceKey)
	}
	return found[0], nil
}
