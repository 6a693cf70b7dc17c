package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teranos/provenance/prov/storage/testutil"
	"github.com/teranos/provenance/prov/types"
)

// stepClock advances one second per call so created_at ordering is predictable
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	return NewSQLStore(testutil.SetupTestDB(t), nil).WithClock(newStepClock().Now)
}

func beginRun(t *testing.T, s *SQLStore, st types.SourceType, name string) string {
	t.Helper()
	id, err := s.BeginRun(context.Background(), types.RunSpec{
		SourceType: st,
		SourceName: name,
		Method:     "test",
	})
	require.NoError(t, err)
	return id
}

func submit(t *testing.T, s *SQLStore, subject types.Subject, kind types.Kind, value string, conf float64, runID string) string {
	t.Helper()
	id, err := s.SubmitClaim(context.Background(), types.ClaimInput{
		Subject:    subject,
		Kind:       kind,
		Value:      value,
		Confidence: conf,
		RunID:      runID,
	})
	require.NoError(t, err)
	return id
}

// consensusCount counts claims flagged current for a subject+kind
func consensusCount(t *testing.T, s *SQLStore, subject types.Subject, kind types.Kind) int {
	t.Helper()
	claims, err := s.ListClaims(context.Background(), subject, kind)
	require.NoError(t, err)
	n := 0
	for _, c := range claims {
		if c.IsConsensus {
			n++
		}
	}
	return n
}
