// Package biblio resolves identity and citation questions on top of the
// provenance primitives: raw catalog identifiers map to artifacts,
// externally sourced bibliographic records deduplicate into publications,
// and editions link artifacts to publications.
//
// Which edition of an artifact is current is an ordinary edition-kind
// consensus question, so scholars override it with the same decision log
// used for readings.
package biblio

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/teranos/provenance/am"
	"github.com/teranos/provenance/biblio/dedup"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/prov/storage"
	"github.com/teranos/provenance/prov/types"
)

const defaultIdentifierTTL = 10 * time.Minute

// Resolver is the identity and citation resolver
type Resolver struct {
	store           *storage.SQLStore
	matcher         *dedup.Matcher
	identifiers     *cache.Cache
	maxSupersession int
	logger          *zap.SugaredLogger
}

// NewResolver creates a resolver with default thresholds and installs the
// edition consensus handler on store.
func NewResolver(store *storage.SQLStore, log *zap.SugaredLogger) *Resolver {
	r := &Resolver{
		store:           store,
		matcher:         dedup.NewMatcher(),
		identifiers:     cache.New(defaultIdentifierTTL, 2*defaultIdentifierTTL),
		maxSupersession: am.DefaultMaxSupersession,
		logger:          logger.OrNop(log),
	}
	store.RegisterKindHandler(types.KindEdition, &editionHandler{r: r})
	store.RegisterObserver(storage.DecisionObserverFunc(r.onDecision))
	return r
}

// NewResolverFromConfig applies the biblio config section
func NewResolverFromConfig(store *storage.SQLStore, cfg am.BiblioConfig, log *zap.SugaredLogger) *Resolver {
	r := NewResolver(store, log)
	r.matcher = dedup.MatcherFromConfig(cfg)
	if cfg.MaxSupersessionDepth > 0 {
		r.maxSupersession = cfg.MaxSupersessionDepth
	}
	if cfg.IdentifierCacheTTLSeconds > 0 {
		ttl := time.Duration(cfg.IdentifierCacheTTLSeconds) * time.Second
		r.identifiers = cache.New(ttl, 2*ttl)
	}
	return r
}

// Store returns the underlying provenance store
func (r *Resolver) Store() *storage.SQLStore {
	return r.store
}

// Matcher returns the deduplication matcher
func (r *Resolver) Matcher() *dedup.Matcher {
	return r.matcher
}

// InTx runs fn against a resolver bound to one transaction
func (r *Resolver) InTx(ctx context.Context, fn func(tx *Resolver) error) error {
	if r.store.Tx() != nil {
		return fn(r)
	}
	return r.store.InTx(ctx, func(tx *storage.SQLStore) error {
		bound := *r
		bound.store = tx
		return fn(&bound)
	})
}

// requireRun turns a missing run into a ValidationError; every write that
// records a claim needs one.
func (r *Resolver) requireRun(ctx context.Context, runID string) error {
	if runID == "" {
		return errors.NewValidationError("run id is required")
	}
	_, err := r.store.GetRun(ctx, runID)
	if errors.IsNotFoundError(err) {
		return errors.NewValidationError("annotation run %s does not exist", runID)
	}
	return err
}

// onDecision warns when an edition decision pins an edition that has since
// been superseded. The decision stands; a scholar may want to revisit it.
func (r *Resolver) onDecision(ctx context.Context, d *types.Decision) error {
	if d.Kind != types.KindEdition {
		return nil
	}
	claim, err := r.store.GetClaim(ctx, d.ChosenClaimID)
	if err != nil {
		return err
	}
	ed, err := r.GetEdition(ctx, claim.Value)
	if err != nil {
		return err
	}
	superseded, err := r.isEditionSuperseded(ctx, r.store.Querier(), ed.ID)
	if err != nil {
		return err
	}
	if superseded {
		r.logger.Warnw("Edition decision pins a superseded edition",
			logger.FieldDecisionID, d.ID,
			logger.FieldArtifactID, ed.ArtifactID,
			logger.FieldEditionID, ed.ID,
		)
	}
	return nil
}
