package biblio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/provenance/biblio/dedup"
	"github.com/teranos/provenance/prov/storage"
	"github.com/teranos/provenance/prov/storage/testutil"
	"github.com/teranos/provenance/prov/types"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) *storage.SQLStore {
	t.Helper()
	clock := &stepClock{t: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	return storage.NewSQLStore(testutil.SetupTestDB(t), nil).WithClock(clock.Now)
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(newTestStore(t), nil)
}

func newLoggedResolver(t *testing.T, log *zap.SugaredLogger) *Resolver {
	t.Helper()
	return NewResolver(newTestStore(t), log)
}

func beginImport(t *testing.T, r *Resolver, name string) string {
	t.Helper()
	id, err := r.Store().BeginRun(context.Background(), types.RunSpec{
		SourceType: types.SourceImport,
		SourceName: name,
		Method:     "catalog",
	})
	require.NoError(t, err)
	return id
}

func register(t *testing.T, r *Resolver, runID string, rec dedup.PublicationRecord) *Registration {
	t.Helper()
	reg, err := r.RegisterPublication(context.Background(), runID, rec)
	require.NoError(t, err)
	return reg
}

func publication(t *testing.T, r *Resolver, runID, title string, year int) string {
	t.Helper()
	reg := register(t, r, runID, dedup.PublicationRecord{Title: title, Year: year})
	require.Equal(t, dedup.OutcomeCreate, reg.Outcome, title)
	return reg.ID
}
