package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
)

func decide(subject types.Subject, claimID, base string) types.DecisionRequest {
	return types.DecisionRequest{
		Subject:        subject,
		Kind:           types.KindReading,
		ChosenClaimID:  claimID,
		DecidedBy:      "scholar-3",
		Method:         types.MethodEditorial,
		Rationale:      "collated against photo",
		BaseDecisionID: base,
	}
}

func TestScenarioDecisionOverridesHumanReading(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	oracc := beginRun(t, s, types.SourceHuman, "ORACC")
	ml := beginRun(t, s, types.SourceModel, "ML")
	token := types.TokenSubject("P010123", "o.1.2")

	a := submit(t, s, token, types.KindReading, "du₃", 0.95, oracc)
	b := submit(t, s, token, types.KindReading, "KAK", 0.72, ml)

	current, err := s.SelectConsensus(ctx, token, types.KindReading)
	require.NoError(t, err)
	assert.Equal(t, a, current.ID, "human beats model")

	decisionID, err := s.RecordDecision(ctx, decide(token, b, ""))
	require.NoError(t, err)

	current, err = s.GetConsensus(ctx, token, types.KindReading)
	require.NoError(t, err)
	assert.Equal(t, b, current.ID)
	assert.True(t, current.IsConsensus)

	history, err := s.GetHistory(ctx, token, types.KindReading)
	require.NoError(t, err)
	require.Len(t, history, 2)

	implicit := history[0]
	assert.Equal(t, types.MethodAlgorithm, implicit.Method)
	assert.Equal(t, types.SelectorActor, implicit.DecidedBy)
	assert.Equal(t, a, implicit.ChosenClaimID)
	assert.Empty(t, implicit.SupersedesID)

	assert.Equal(t, decisionID, history[1].ID)
	assert.Equal(t, implicit.ID, history[1].SupersedesID)
	assert.Equal(t, b, history[1].ChosenClaimID)

	// A new, better-ranked claim no longer moves the decided consensus
	submit(t, s, token, types.KindReading, "gag", 1.0, oracc)
	current, err = s.SelectConsensus(ctx, token, types.KindReading)
	require.NoError(t, err)
	assert.Equal(t, b, current.ID)
}

func TestFirstDecisionAgreeingWithAlgorithmHasNoImplicitEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := beginRun(t, s, types.SourceHuman, "editor")
	token := types.TokenSubject("P1", "o.1")
	a := submit(t, s, token, types.KindReading, "lugal", 0.9, run)

	_, err := s.RecordDecision(ctx, decide(token, a, ""))
	require.NoError(t, err)

	history, err := s.GetHistory(ctx, token, types.KindReading)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestHistoryIsChainedInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := beginRun(t, s, types.SourceHuman, "editor")
	token := types.TokenSubject("P7", "o.4")

	claims := []string{
		submit(t, s, token, types.KindReading, "a", 0.9, run),
		submit(t, s, token, types.KindReading, "b", 0.5, run),
		submit(t, s, token, types.KindReading, "c", 0.5, run),
	}

	// First decision confirms the algorithmic winner, so every entry is explicit
	const n = 7
	var ids []string
	base := ""
	for i := 0; i < n; i++ {
		id, err := s.RecordDecision(ctx, decide(token, claims[i%len(claims)], base))
		require.NoError(t, err)
		ids = append(ids, id)
		base = id
	}

	history, err := s.GetHistory(ctx, token, types.KindReading)
	require.NoError(t, err)
	require.Len(t, history, n)
	for i, d := range history {
		assert.Equal(t, ids[i], d.ID)
		if i == 0 {
			assert.Empty(t, d.SupersedesID)
		} else {
			assert.Equal(t, ids[i-1], d.SupersedesID)
			assert.False(t, d.CreatedAt.Before(history[i-1].CreatedAt))
		}
	}

	active, err := s.GetActiveDecision(ctx, token, types.KindReading)
	require.NoError(t, err)
	assert.Equal(t, ids[n-1], active.ID)
}

func TestRecordDecisionStaleBaseConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := beginRun(t, s, types.SourceHuman, "editor")
	token := types.TokenSubject("P8", "o.1")
	a := submit(t, s, token, types.KindReading, "a", 0.9, run)
	b := submit(t, s, token, types.KindReading, "b", 0.5, run)

	d1, err := s.RecordDecision(ctx, decide(token, a, ""))
	require.NoError(t, err)
	_, err = s.RecordDecision(ctx, decide(token, b, d1))
	require.NoError(t, err)

	// Stale base
	_, err = s.RecordDecision(ctx, decide(token, a, d1))
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
	assert.NotEmpty(t, errors.GetAllHints(err))

	// Claiming there is no decision yet is stale too
	_, err = s.RecordDecision(ctx, decide(token, a, ""))
	assert.True(t, errors.IsConflictError(err))

	history, err := s.GetHistory(ctx, token, types.KindReading)
	require.NoError(t, err)
	assert.Len(t, history, 2, "refused decisions leave no trace")

	current, err := s.GetConsensus(ctx, token, types.KindReading)
	require.NoError(t, err)
	assert.Equal(t, b, current.ID)
}

func TestConcurrentDecisionsOnSameBase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := beginRun(t, s, types.SourceHuman, "editor")
	token := types.TokenSubject("P9", "o.1")
	a := submit(t, s, token, types.KindReading, "a", 0.9, run)
	b := submit(t, s, token, types.KindReading, "b", 0.8, run)
	c := submit(t, s, token, types.KindReading, "c", 0.7, run)

	d1, err := s.RecordDecision(ctx, decide(token, a, ""))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, claimID := range []string{b, c} {
		wg.Add(1)
		go func(claimID string) {
			defer wg.Done()
			_, err := s.RecordDecision(ctx, decide(token, claimID, d1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.IsConflictError(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(claimID)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	history, err := s.GetHistory(ctx, token, types.KindReading)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRecordDecisionValidatesChosenClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := beginRun(t, s, types.SourceHuman, "editor")
	t1 := types.TokenSubject("P10", "o.1")
	t2 := types.TokenSubject("P10", "o.2")
	other := submit(t, s, t2, types.KindReading, "x", 0.5, run)

	_, err := s.RecordDecision(ctx, decide(t1, "clm_missing", ""))
	assert.True(t, errors.IsValidationError(err))

	_, err = s.RecordDecision(ctx, decide(t1, other, ""))
	assert.True(t, errors.IsValidationError(err))

	_, err = s.GetActiveDecision(ctx, t1, types.KindReading)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestGetHistoryEmpty(t *testing.T) {
	s := newTestStore(t)
	history, err := s.GetHistory(context.Background(), types.TokenSubject("P0", "o.0"), types.KindReading)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGetHistoryBound(t *testing.T) {
	s := newTestStore(t).WithMaxHistoryHops(2)
	ctx := context.Background()
	run := beginRun(t, s, types.SourceHuman, "editor")
	token := types.TokenSubject("P11", "o.1")
	a := submit(t, s, token, types.KindReading, "a", 0.9, run)

	base := ""
	for i := 0; i < 3; i++ {
		id, err := s.RecordDecision(ctx, decide(token, a, base))
		require.NoError(t, err)
		base = id
	}

	_, err := s.GetHistory(ctx, token, types.KindReading)
	assert.True(t, errors.IsIntegrityViolation(err))
}

func TestGetHistoryDetectsCorruptCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := beginRun(t, s, types.SourceHuman, "editor")
	token := types.TokenSubject("P12", "o.1")
	a := submit(t, s, token, types.KindReading, "a", 0.9, run)

	d1, err := s.RecordDecision(ctx, decide(token, a, ""))
	require.NoError(t, err)
	d2, err := s.RecordDecision(ctx, decide(token, a, d1))
	require.NoError(t, err)

	// Simulate corruption below the API
	_, err = s.DB().Exec("UPDATE decisions SET supersedes_id = ? WHERE id = ?", d2, d1)
	require.NoError(t, err)

	_, err = s.GetHistory(ctx, token, types.KindReading)
	require.Error(t, err)
	assert.True(t, errors.IsIntegrityViolation(err))
	assert.Contains(t, err.Error(), "cycles")
}

func TestDecisionObserversFireAfterCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := beginRun(t, s, types.SourceHuman, "editor")
	token := types.TokenSubject("P13", "o.1")
	a := submit(t, s, token, types.KindReading, "a", 0.9, run)

	var seen []string
	s.RegisterObserver(DecisionObserverFunc(func(ctx context.Context, d *types.Decision) error {
		// The decision is visible to readers by the time observers run
		active, err := s.GetActiveDecision(ctx, d.Subject, d.Kind)
		require.NoError(t, err)
		seen = append(seen, active.ID)
		return nil
	}))

	d1, err := s.RecordDecision(ctx, decide(token, a, ""))
	require.NoError(t, err)
	assert.Equal(t, []string{d1}, seen)

	_, err = s.RecordDecision(ctx, decide(token, a, "dec_stale"))
	require.Error(t, err)
	assert.Len(t, seen, 1, "refused decisions are not announced")
}

func TestInTxDefersObserversUntilCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := beginRun(t, s, types.SourceHuman, "editor")
	token := types.TokenSubject("P14", "o.1")
	a := submit(t, s, token, types.KindReading, "a", 0.9, run)

	calls := 0
	s.RegisterObserver(DecisionObserverFunc(func(ctx context.Context, d *types.Decision) error {
		calls++
		return nil
	}))

	err := s.InTx(ctx, func(tx *SQLStore) error {
		if _, err := tx.RecordDecision(ctx, decide(token, a, "")); err != nil {
			return err
		}
		assert.Equal(t, 0, calls)
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls)

	_, err = s.GetActiveDecision(ctx, token, types.KindReading)
	assert.True(t, errors.IsNotFoundError(err), "aborted transaction leaves no decision")

	require.NoError(t, s.InTx(ctx, func(tx *SQLStore) error {
		_, err := tx.RecordDecision(ctx, decide(token, a, ""))
		return err
	}))
	assert.Equal(t, 1, calls)
}
