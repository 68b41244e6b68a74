package workers

import (
	"context"
	"log/slog"
	"study-relay/contract"
	"study-relay/domain"
)

// EvictionWorker removes sessions whose push failed, away from the fan-out path.
type EvictionWorker struct {
	log       *slog.Logger
	evictions <-chan domain.Eviction
	cleaner   contract.SessionCleaner
}

func NewEvictionWorker(log *slog.Logger, evictions <-chan domain.Eviction, cleaner contract.SessionCleaner) *EvictionWorker {
	return &EvictionWorker{log: log, evictions: evictions, cleaner: cleaner}
}

func (w *EvictionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case eviction, ok := <-w.evictions:
			if !ok {
				return nil
			}
			w.log.Info("Evicting session", "session_id", eviction.SessionID, "reason", eviction.Reason)
			w.cleaner.Disconnect(eviction.SessionID)
		}
	}
}
