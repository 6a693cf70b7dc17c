// Package consensus picks the current claim for a Subject+Kind.
//
// Selection is a pure function of the claim set, the active decision and the
// configured source ranking. An active decision always wins. Without one the
// algorithmic order applies:
//
//  1. source type rank (default human > hybrid > model > import)
//  2. confidence, highest first
//  3. creation time, earliest first
//  4. claim id, lexically smallest first
//
// The final id comparison makes the choice total, so recomputing over an
// unchanged claim set always yields the same claim.
package consensus

import (
	"sort"
	"strings"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
)

// DefaultRank is used when no ranking is configured
var DefaultRank = []types.SourceType{types.SourceHuman, types.SourceHybrid, types.SourceModel, types.SourceImport}

// Ranking orders source types; lower position wins.
type Ranking struct {
	order map[types.SourceType]int
}

// NewRanking builds a ranking from configured source type names.
// Source types missing from the list rank after every listed one.
func NewRanking(order []string) (*Ranking, error) {
	if len(order) == 0 {
		return DefaultRanking(), nil
	}
	r := &Ranking{order: make(map[types.SourceType]int, len(order))}
	for i, name := range order {
		st := types.SourceType(strings.ToLower(strings.TrimSpace(name)))
		if !st.Valid() {
			return nil, errors.NewValidationError("unknown source type %q in consensus.source_rank", name)
		}
		if _, dup := r.order[st]; dup {
			return nil, errors.NewValidationError("source type %q listed twice in consensus.source_rank", name)
		}
		r.order[st] = i
	}
	return r, nil
}

// DefaultRanking returns human > hybrid > model > import
func DefaultRanking() *Ranking {
	r := &Ranking{order: make(map[types.SourceType]int, len(DefaultRank))}
	for i, st := range DefaultRank {
		r.order[st] = i
	}
	return r
}

// Position returns the rank of a source type
func (r *Ranking) Position(st types.SourceType) int {
	if pos, ok := r.order[st]; ok {
		return pos
	}
	return len(r.order)
}

// Less reports whether a beats b
func (r *Ranking) Less(a, b types.Claim) bool {
	if pa, pb := r.Position(a.SourceType), r.Position(b.SourceType); pa != pb {
		return pa < pb
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Sort orders claims best first, in place
func (r *Ranking) Sort(claims []types.Claim) {
	sort.SliceStable(claims, func(i, j int) bool {
		return r.Less(claims[i], claims[j])
	})
}

// Pick returns the algorithmic winner among claims. ok is false for an empty set.
func (r *Ranking) Pick(claims []types.Claim) (best types.Claim, ok bool) {
	for i, c := range claims {
		if i == 0 || r.Less(c, best) {
			best = c
		}
	}
	return best, len(claims) > 0
}

// Outcome is the result of Select
type Outcome struct {
	Claim   types.Claim
	Decided bool // chosen by an active decision rather than the algorithm
}

// Select returns the consensus claim. An active decision takes precedence; its
// chosen claim must be present in claims or the audit chain is broken.
// ok is false when there are no claims.
func (r *Ranking) Select(claims []types.Claim, active *types.Decision) (Outcome, bool, error) {
	if active != nil {
		for _, c := range claims {
			if c.ID == active.ChosenClaimID {
				return Outcome{Claim: c, Decided: true}, true, nil
			}
		}
		return Outcome{}, false, errors.NewIntegrityViolation(
			"active decision %s chooses claim %s which is not a claim on %s/%s",
			active.ID, active.ChosenClaimID, active.Subject.Key(), active.Kind)
	}
	best, ok := r.Pick(claims)
	if !ok {
		return Outcome{}, false, nil
	}
	return Outcome{Claim: best}, true, nil
}
