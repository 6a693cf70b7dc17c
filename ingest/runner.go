package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teranos/provenance/am"
	"github.com/teranos/provenance/biblio"
	"github.com/teranos/provenance/biblio/dedup"
	"github.com/teranos/provenance/db"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/metrics"
	"github.com/teranos/provenance/prov"
	"github.com/teranos/provenance/prov/storage"
	"github.com/teranos/provenance/prov/types"
)

// dryRunID stands in for the run id when nothing is written
const dryRunID = "run_dry"

// Options control one import
type Options struct {
	Reset  bool  // wipe engine tables first
	DryRun bool  // validate every row, write nothing
	From   Stage // skip stages before this one
}

// StageResult counts one source's rows through one stage
type StageResult struct {
	Source string `json:"source"`
	Stage  Stage  `json:"stage"`
	RunID  string `json:"run_id,omitempty"`
	prov.BatchResult
}

// Report summarizes an import
type Report struct {
	DryRun           bool          `json:"dry_run"`
	Stages           []StageResult `json:"stages"`
	ConsensusChanged int           `json:"consensus_changed"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`

	mu sync.Mutex
}

func (r *Report) add(results ...StageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stages = append(r.Stages, results...)
}

// Totals folds the per-source results by stage
func (r *Report) Totals() map[Stage]*prov.BatchResult {
	totals := make(map[Stage]*prov.BatchResult)
	for i := range r.Stages {
		s := &r.Stages[i]
		if totals[s.Stage] == nil {
			totals[s.Stage] = &prov.BatchResult{}
		}
		totals[s.Stage].Add(&s.BatchResult)
	}
	return totals
}

// Runner imports manifests
type Runner struct {
	store    *storage.SQLStore
	resolver *biblio.Resolver
	cfg      am.IngestConfig
	limiter  *rate.Limiter
	logger   *zap.SugaredLogger
}

// NewRunner creates a runner writing through resolver and its store
func NewRunner(resolver *biblio.Resolver, cfg am.IngestConfig, log *zap.SugaredLogger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = am.DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	limit := rate.Inf
	if cfg.MaxBatchesPerSecond > 0 {
		limit = rate.Limit(cfg.MaxBatchesPerSecond)
	}
	return &Runner{
		store:    resolver.Store(),
		resolver: resolver,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.OrNop(log),
	}
}

// Run imports every source of m. Sources run in parallel up to the
// configured worker count; the consensus stage runs once at the end.
func (r *Runner) Run(ctx context.Context, m *Manifest, opts Options) (*Report, error) {
	report := &Report{DryRun: opts.DryRun, StartedAt: time.Now()}
	from := 0
	if opts.From != "" {
		from = opts.From.index()
		if from < 0 {
			return nil, errors.NewValidationError("unknown stage %q", opts.From)
		}
	}

	if opts.Reset && !opts.DryRun {
		if err := db.Reset(ctx, r.store.DB()); err != nil {
			return nil, err
		}
		r.logger.Warnw("Engine tables reset before import")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, src := range m.Sources {
		src := src
		g.Go(func() error {
			results, err := r.importSource(gctx, src, from, opts.DryRun)
			report.add(results...)
			return errors.Wrapf(err, "source %s", src.Name)
		})
	}
	err := g.Wait()
	r.sortStages(m, report)
	if err != nil {
		report.FinishedAt = time.Now()
		return report, err
	}

	if from <= StageConsensus.index() && !opts.DryRun {
		changed, err := r.store.RecomputeConsensus(ctx)
		if err != nil {
			return report, errors.Wrap(err, "consensus stage")
		}
		report.ConsensusChanged = changed
		r.logger.Infow("Consensus recomputed", logger.FieldStage, StageConsensus, "changed", changed)
	}
	report.FinishedAt = time.Now()
	return report, nil
}

func (r *Runner) sortStages(m *Manifest, report *Report) {
	order := make(map[string]int, len(m.Sources))
	for i, src := range m.Sources {
		order[src.Name] = i
	}
	sort.SliceStable(report.Stages, func(i, j int) bool {
		a, b := report.Stages[i], report.Stages[j]
		if order[a.Source] != order[b.Source] {
			return order[a.Source] < order[b.Source]
		}
		return a.Stage.index() < b.Stage.index()
	})
}

func (r *Runner) importSource(ctx context.Context, src Source, from int, dryRun bool) ([]StageResult, error) {
	ctx = logger.WithSource(ctx, src.Name)
	log := logger.FromContext(ctx, r.logger)
	checkpoints := map[Stage]Checkpoint{}
	runID := dryRunID
	if !dryRun {
		var err error
		checkpoints, err = LoadCheckpoints(ctx, r.store.Querier(), src.Name)
		if err != nil {
			return nil, err
		}
		runID, err = r.sourceRun(ctx, src, checkpoints)
		if err != nil {
			return nil, err
		}
		ctx = logger.WithRunID(ctx, runID)
		log = logger.FromContext(ctx, r.logger)
	}

	var results []StageResult
	for _, stage := range Stages[from:] {
		stage := stage
		if stage == StageConsensus {
			break
		}
		path := src.File(stage)
		if path == "" {
			continue
		}
		res := StageResult{Source: src.Name, Stage: stage, RunID: runID}
		cp := checkpoints[stage]
		if cp.Done {
			res.Skipped = cp.Offset
			results = append(results, res)
			log.Infow("Stage already imported", logger.FieldStage, stage, logger.FieldCount, cp.Offset)
			continue
		}

		stageStart := time.Now()
		err := eachBatch(path, cp.Offset, r.cfg.BatchSize, func(offset int, lines []json.RawMessage) error {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
			start := time.Now()
			batch, err := r.applyBatch(ctx, src, stage, runID, offset, lines, dryRun)
			if err != nil {
				return errors.Wrapf(err, "%s batch at row %d", stage, offset)
			}
			metrics.IngestBatchSeconds.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
			res.Add(batch)
			log.Debugw("Batch committed", logger.FieldStage, stage, logger.FieldBatchOffset, offset, logger.FieldBatchSize, len(lines))
			return nil
		})
		res.Skipped += cp.Offset
		results = append(results, res)
		recordRows(stage, &res.BatchResult)
		if err != nil {
			return results, err
		}

		if !dryRun {
			done := Checkpoint{Source: src.Name, Stage: stage, RunID: runID, Offset: cp.Offset + res.Processed, Done: true, UpdatedAt: r.store.Now()}
			if err := saveCheckpoint(ctx, r.store.Querier(), done); err != nil {
				return results, err
			}
		}
		log.Infow("Stage imported",
			logger.FieldStage, stage,
			"processed", res.Processed,
			"inserted", res.Inserted,
			"skipped", res.Skipped,
			"errors", res.Failed,
			logger.FieldDurationMS, time.Since(stageStart).Milliseconds(),
		)
	}

	if dryRun {
		return results, nil
	}
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return results, err
	}
	if run.CompletedAt == nil {
		if err := r.store.CompleteRun(ctx, runID, -1); err != nil {
			return results, err
		}
	}
	return results, nil
}

// sourceRun reuses the run a previous attempt began, or begins one
func (r *Runner) sourceRun(ctx context.Context, src Source, checkpoints map[Stage]Checkpoint) (string, error) {
	if cp, ok := checkpoints[stageRun]; ok && cp.RunID != "" {
		return cp.RunID, nil
	}
	var runID string
	err := r.store.InTx(ctx, func(tx *storage.SQLStore) error {
		var err error
		runID, err = tx.BeginRun(ctx, src.Run.Spec())
		if err != nil {
			return err
		}
		return saveCheckpoint(ctx, tx.Querier(), Checkpoint{
			Source: src.Name, Stage: stageRun, RunID: runID, Done: true, UpdatedAt: tx.Now(),
		})
	})
	return runID, err
}

func recordRows(stage Stage, res *prov.BatchResult) {
	metrics.IngestRows.WithLabelValues(string(stage), "inserted").Add(float64(res.Inserted))
	metrics.IngestRows.WithLabelValues(string(stage), "skipped").Add(float64(res.Skipped))
	metrics.IngestRows.WithLabelValues(string(stage), "error").Add(float64(res.Failed))
}

// rowLevel errors reject one row; anything else aborts the batch
func rowLevel(err error) bool {
	return errors.IsValidationError(err) ||
		errors.IsConflictError(err) ||
		errors.IsCycleError(err) ||
		errors.IsNotFoundError(err) ||
		errors.IsIntegrityViolation(err) ||
		errors.Is(err, errors.ErrDedupAmbiguous)
}

func tally(res *prov.BatchResult, row int, err error) {
	res.Failed++
	res.Errors = append(res.Errors, prov.RowError{Row: row, Category: errors.Category(err), Message: err.Error()})
}

func (r *Runner) applyBatch(ctx context.Context, src Source, stage Stage, runID string, offset int, lines []json.RawMessage, dryRun bool) (*prov.BatchResult, error) {
	if stage == StageClaims {
		return r.applyClaims(ctx, src, runID, offset, lines, dryRun)
	}

	res := &prov.BatchResult{Processed: len(lines)}
	if dryRun {
		for i, line := range lines {
			if err := checkRow(stage, line); err != nil {
				tally(res, offset+i, err)
				continue
			}
			res.Inserted++
		}
		return res, nil
	}

	checkpoint := Checkpoint{Source: src.Name, Stage: stage, RunID: runID, Offset: offset + len(lines)}
	err := r.resolver.InTx(ctx, func(tx *biblio.Resolver) error {
		for i, line := range lines {
			err := r.applyRow(ctx, tx, src, stage, runID, line)
			if err != nil {
				if !rowLevel(err) {
					return errors.Wrapf(err, "row %d", offset+i)
				}
				tally(res, offset+i, err)
				continue
			}
			res.Inserted++
		}
		checkpoint.UpdatedAt = tx.Store().Now()
		return saveCheckpoint(ctx, tx.Store().Querier(), checkpoint)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) applyClaims(ctx context.Context, src Source, runID string, offset int, lines []json.RawMessage, dryRun bool) (*prov.BatchResult, error) {
	res := &prov.BatchResult{Processed: len(lines)}
	var (
		inputs []types.ClaimInput
		rows   []int
	)
	for i, line := range lines {
		var rec ClaimRecord
		err := decodeRow(line, &rec)
		if err == nil {
			var in types.ClaimInput
			if in, err = rec.Input(runID); err == nil {
				inputs = append(inputs, in)
				rows = append(rows, offset+i)
				continue
			}
		}
		tally(res, offset+i, err)
	}
	if dryRun {
		res.Inserted = len(inputs)
		return res, nil
	}

	checkpoint := Checkpoint{Source: src.Name, Stage: StageClaims, RunID: runID, Offset: offset + len(lines)}
	batch, err := r.store.SubmitClaims(ctx, inputs, prov.BatchOptions{
		DeferConsensus: r.cfg.DeferConsensus,
		BeforeCommit: func(ctx context.Context, tx *sql.Tx) error {
			checkpoint.UpdatedAt = r.store.Now()
			return saveCheckpoint(ctx, tx, checkpoint)
		},
	})
	if err != nil {
		return nil, err
	}
	res.Inserted = batch.Inserted
	res.Failed += batch.Failed
	for _, e := range batch.Errors {
		e.Row = rows[e.Row]
		res.Errors = append(res.Errors, e)
	}
	return res, nil
}

func (r *Runner) applyRow(ctx context.Context, tx *biblio.Resolver, src Source, stage Stage, runID string, line json.RawMessage) error {
	switch stage {
	case StageIdentifiers:
		var rec IdentifierRecord
		if err := decodeRow(line, &rec); err != nil {
			return err
		}
		_, err := tx.RegisterIdentifier(ctx, rec.Raw, rec.Kind, rec.ArtifactID)
		return err

	case StagePublications:
		var rec dedup.PublicationRecord
		if err := decodeRow(line, &rec); err != nil {
			return err
		}
		if rec.Source == "" {
			rec.Source = src.Name
		}
		reg, err := tx.RegisterPublication(ctx, runID, rec)
		if err != nil {
			return err
		}
		if reg.Outcome == dedup.OutcomeStage {
			return errors.Wrapf(errors.ErrDedupAmbiguous, "staged as %s (%s)", reg.CandidateID, reg.Basis)
		}
		return nil

	case StageEditions:
		var rec EditionRecord
		if err := decodeRow(line, &rec); err != nil {
			return err
		}
		if err := rec.check(); err != nil {
			return err
		}
		pubID := rec.PublicationID
		if pubID == "" {
			source := rec.Source
			if source == "" {
				source = src.Name
			}
			var err error
			if pubID, err = tx.PublicationBySource(ctx, source, rec.SourceKey); err != nil {
				return errors.NewValidationError("edition of %s: %v", rec.ArtifactID, err)
			}
		}
		_, err := tx.LinkEdition(ctx, runID, biblio.EditionInput{
			ArtifactID:    rec.ArtifactID,
			PublicationID: pubID,
			EditionType:   rec.EditionType,
			Metadata:      rec.Metadata,
		})
		return err

	case StageEvidence:
		var rec EvidenceRecord
		if err := decodeRow(line, &rec); err != nil {
			return err
		}
		target := rec.explicitTarget()
		if target.Arity() == 0 {
			claimID, err := findRunClaim(ctx, tx.Store(), rec, runID)
			if err != nil {
				return err
			}
			target = types.ClaimTarget(claimID)
		}
		_, err := tx.Store().AttachEvidence(ctx, types.EvidenceInput{
			Target:       target,
			EvidenceType: rec.EvidenceType,
			EvidenceRef:  rec.EvidenceRef,
			AddedBy:      rec.AddedBy,
			Note:         rec.Note,
		})
		return err
	}
	return errors.AssertionFailedf("no row handler for stage %s", stage)
}

// findRunClaim finds the claim this run made with the row's subject, kind and value
func findRunClaim(ctx context.Context, store *storage.SQLStore, rec EvidenceRecord, runID string) (string, error) {
	in, err := ClaimRecord{Subject: rec.Subject, Kind: rec.Kind, Value: rec.Value, Confidence: 1}.Input(runID)
	if err != nil {
		return "", err
	}
	claims, err := store.ListClaims(ctx, in.Subject, in.Kind)
	if err != nil {
		return "", err
	}
	for _, c := range claims {
		if c.AnnotationRunID == runID && c.Value == rec.Value {
			return c.ID, nil
		}
	}
	return "", errors.NewValidationError("no %s claim %q on %s in run %s", rec.Kind, rec.Value, rec.Subject, runID)
}

// checkRow validates a row without touching the database
func checkRow(stage Stage, line json.RawMessage) error {
	switch stage {
	case StageIdentifiers:
		var rec IdentifierRecord
		if err := decodeRow(line, &rec); err != nil {
			return err
		}
		if dedup.NormalizeIdentifier(rec.Raw) == "" || rec.Kind == "" || rec.ArtifactID == "" {
			return errors.NewValidationError("identifier row needs raw, kind and artifact_id")
		}
	case StagePublications:
		var rec dedup.PublicationRecord
		if err := decodeRow(line, &rec); err != nil {
			return err
		}
		if rec.Title == "" {
			return errors.NewValidationError("publication title is required")
		}
	case StageEditions:
		var rec EditionRecord
		if err := decodeRow(line, &rec); err != nil {
			return err
		}
		return rec.check()
	case StageEvidence:
		var rec EvidenceRecord
		if err := decodeRow(line, &rec); err != nil {
			return err
		}
		if rec.explicitTarget().Arity() == 0 {
			if _, err := (ClaimRecord{Subject: rec.Subject, Kind: rec.Kind, Value: rec.Value}).Input(dryRunID); err != nil {
				return err
			}
		}
		return types.Validate(types.EvidenceInput{
			Target:       rec.explicitTarget(),
			EvidenceType: rec.EvidenceType,
			EvidenceRef:  rec.EvidenceRef,
			AddedBy:      rec.AddedBy,
		})
	}
	return nil
}
