package workers

import (
	"context"
	"log/slog"
	"study-relay/contract"
	"study-relay/domain"
)

// PresenceWorker turns registry presence events into presence frames.
// A JOINED event reaches the whole room including the newcomer, a LEFT event
// reaches whoever remains. Recipients are the room as it is when the event is
// processed, so a session that joined in between also sees the earlier event.
type PresenceWorker struct {
	log         *slog.Logger
	events      <-chan domain.PresenceEvent
	broadcaster contract.Broadcaster
}

func NewPresenceWorker(log *slog.Logger, events <-chan domain.PresenceEvent, broadcaster contract.Broadcaster) *PresenceWorker {
	return &PresenceWorker{log: log, events: events, broadcaster: broadcaster}
}

func (w *PresenceWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Presence channel closed")
				return nil
			}
			result := w.broadcaster.Broadcast(ctx, evt.RoomID, domain.Frame{Event: domain.FramePresence, Data: evt})
			w.log.Debug("Presence broadcast",
				"room_id", evt.RoomID, "user_id", evt.UserID, "kind", evt.Kind,
				"recipients", result.Recipients, "failed", len(result.Failed))
		}
	}
}
