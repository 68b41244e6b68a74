package workers

import (
	"context"
	"log/slog"
	"study-relay/contract"
	"study-relay/domain"
)

// IndexWorker feeds dispatched messages to the search index.
// Indexing errors are logged, the message is already persisted.
type IndexWorker struct {
	log      *slog.Logger
	messages <-chan domain.ChatMessage
	indexer  contract.MessageIndexer
}

func NewIndexWorker(log *slog.Logger, messages <-chan domain.ChatMessage, indexer contract.MessageIndexer) *IndexWorker {
	return &IndexWorker{log: log, messages: messages, indexer: indexer}
}

func (w *IndexWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-w.messages:
			if !ok {
				return nil
			}
			if err := w.indexer.Index(msg); err != nil {
				w.log.Error("Unable to index message", "message_id", msg.ID, "room_id", msg.RoomID, "error", err)
			}
		}
	}
}
