package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"study-relay/contract"
	"study-relay/domain"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	_ contract.ChatStore      = (*MessageRepository)(nil)
	_ contract.MessageHistory = (*MessageRepository)(nil)
)

const MessagePrefix = "msg:"

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// MessageKey is "msg:{room_id}:{timestamp_padded}:{uuid}".
// The 19 digit padding keeps lexicographical order chronological, the uuid
// separates two messages stored at the same nanosecond.
func MessageKey(message domain.ChatMessage) []byte {
	return []byte(fmt.Sprintf("%s%d:%019d:%s", MessagePrefix, message.RoomID, message.Timestamp.UnixNano(), message.ID))
}

func (m *MessageRepository) Append(ctx context.Context, message domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bytes, err := EncodeMessage(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(MessageKey(message), bytes)
	})
}

// GetMessages pages backwards through a room, newest first.
// The returned cursor is nil once the oldest message has been reached.
func (m *MessageRepository) GetMessages(roomID domain.RoomID, cursor *string) ([]domain.ChatMessage, *string, error) {
	var values [][]byte
	var lastKey string
	full := false

	prefixStr := fmt.Sprintf("%s%d:", MessagePrefix, roomID)
	prefix := []byte(prefixStr)
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Past the newest possible key, then walk back
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999;")...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefixStr):]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages > 0 && len(values) == m.limitMessages {
				full = true
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.ChatMessage, 0, len(values))
	for _, value := range values {
		message, err := DecodeMessage(value)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	if !full {
		return messages, nil, nil
	}
	m.log.Debug(fmt.Sprintf("Maximum of %d message reached", m.limitMessages), "room_id", roomID)
	return messages, &lastKey, nil
}

// EncodeMessage stores a message as a protobuf Struct.
func EncodeMessage(message domain.ChatMessage) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"id":      message.ID.String(),
		"room":    message.RoomID.String(),
		"sender":  string(message.SenderID),
		"content": message.Content,
		"type":    string(message.Type),
		"at":      strconv.FormatInt(message.Timestamp.UnixNano(), 10),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func DecodeMessage(value []byte) (domain.ChatMessage, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(value, &s); err != nil {
		return domain.ChatMessage{}, err
	}
	fields := s.GetFields()
	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return domain.ChatMessage{}, err
	}
	roomID, err := domain.ParseRoomID(fields["room"].GetStringValue())
	if err != nil {
		return domain.ChatMessage{}, err
	}
	at, err := strconv.ParseInt(fields["at"].GetStringValue(), 10, 64)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return domain.ChatMessage{
		ID:        id,
		RoomID:    roomID,
		SenderID:  domain.UserID(fields["sender"].GetStringValue()),
		Content:   fields["content"].GetStringValue(),
		Type:      domain.MessageType(fields["type"].GetStringValue()),
		Timestamp: time.Unix(0, at).UTC(),
	}, nil
}
