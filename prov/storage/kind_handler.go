package storage

import (
	"context"

	"github.com/teranos/provenance/prov/types"
)

// KindHandler replaces the source-ranking selector for one claim kind and is
// told, inside the writing transaction, whenever that kind's consensus moves.
// Edition identity uses it: the current edition is chosen by edition type and
// publication year rather than by who asserted it.
type KindHandler interface {
	// Pick returns the algorithmic winner among claims. It may return an
	// ErrDecisionRequired error when only a recorded decision can settle it.
	Pick(ctx context.Context, q Querier, subject types.Subject, claims []types.Claim) (types.Claim, bool, error)

	// ConsensusChanged runs in the same transaction as the consensus write.
	// claimID is empty when the subject no longer has a current claim.
	ConsensusChanged(ctx context.Context, q Querier, subject types.Subject, claimID string) error

	// CheckClaim rejects a claim value before it is written. The referenced
	// record may not exist yet; only values that can never be valid fail.
	CheckClaim(ctx context.Context, q Querier, in types.ClaimInput) error

	// CheckChoice rejects a claim that a decision may not choose.
	CheckChoice(ctx context.Context, q Querier, claim types.Claim) error
}

// RegisterKindHandler installs h for kind. Register before use; the registry
// is not guarded for concurrent mutation.
func (s *SQLStore) RegisterKindHandler(kind types.Kind, h KindHandler) {
	if s.handlers == nil {
		s.handlers = make(map[types.Kind]KindHandler)
	}
	s.handlers[kind] = h
}

// algorithmic picks the winner without looking at decisions
func (s *SQLStore) algorithmic(ctx context.Context, q Querier, subject types.Subject, kind types.Kind, claims []types.Claim) (types.Claim, bool, error) {
	if h, ok := s.handlers[kind]; ok {
		return h.Pick(ctx, q, subject, claims)
	}
	best, ok := s.ranking.Pick(claims)
	return best, ok, nil
}

func (s *SQLStore) consensusChanged(ctx context.Context, q Querier, subject types.Subject, kind types.Kind, claimID string) error {
	if h, ok := s.handlers[kind]; ok {
		return h.ConsensusChanged(ctx, q, subject, claimID)
	}
	return nil
}

func (s *SQLStore) checkClaim(ctx context.Context, q Querier, in types.ClaimInput) error {
	if h, ok := s.handlers[in.Kind]; ok {
		return h.CheckClaim(ctx, q, in)
	}
	return nil
}

func (s *SQLStore) checkChoice(ctx context.Context, q Querier, claim types.Claim) error {
	if h, ok := s.handlers[claim.Kind]; ok {
		return h.CheckChoice(ctx, q, claim)
	}
	return nil
}
