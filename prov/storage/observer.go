package storage

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/prov/types"
)

// DecisionObserver is notified after a decision commits.
// Callbacks run synchronously in registration order on the recording goroutine;
// the *types.Decision is shared across observers and must not be mutated.
type DecisionObserver interface {
	OnDecisionRecorded(ctx context.Context, d *types.Decision) error
}

// DecisionObserverFunc adapts a function to DecisionObserver
type DecisionObserverFunc func(ctx context.Context, d *types.Decision) error

func (f DecisionObserverFunc) OnDecisionRecorded(ctx context.Context, d *types.Decision) error {
	return f(ctx, d)
}

type observerSet struct {
	mu        sync.RWMutex
	observers []DecisionObserver
}

type pendingDecision struct {
	decision *types.Decision
}

// RegisterObserver adds an observer notified of every committed decision
func (s *SQLStore) RegisterObserver(o DecisionObserver) {
	s.observers.mu.Lock()
	defer s.observers.mu.Unlock()
	s.observers.observers = append(s.observers.observers, o)
}

// notifyDecision defers to the outer commit when the store is transaction-bound
func (s *SQLStore) notifyDecision(ctx context.Context, d *types.Decision) {
	if s.pending != nil {
		*s.pending = append(*s.pending, &pendingDecision{decision: d})
		return
	}
	s.observers.notify(ctx, d, s.logger)
}

// notify calls every observer. The decision is already durable, so observer
// errors are logged rather than returned.
func (set *observerSet) notify(ctx context.Context, d *types.Decision, log *zap.SugaredLogger) {
	set.mu.RLock()
	observers := make([]DecisionObserver, len(set.observers))
	copy(observers, set.observers)
	set.mu.RUnlock()

	for _, o := range observers {
		if err := o.OnDecisionRecorded(ctx, d); err != nil {
			log.Warnw("Decision observer failed",
				logger.FieldDecisionID, d.ID,
				logger.FieldSubject, d.Subject.Key(),
				logger.FieldKind, d.Kind,
				logger.FieldError, err,
			)
		}
	}
}
