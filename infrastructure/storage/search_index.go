package storage

import (
	"context"
	"fmt"
	"log/slog"
	"study-relay/contract"
	"study-relay/domain"

	"github.com/abadojack/whatlanggo"
	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/search"
	"github.com/google/uuid"
)

var (
	_ contract.MessageIndexer  = (*SearchIndex)(nil)
	_ contract.MessageSearcher = (*SearchIndex)(nil)
)

const (
	fieldRoom     = "room"
	fieldSender   = "sender"
	fieldContent  = "content"
	fieldType     = "type"
	fieldLanguage = "lang"
	fieldAt       = "at"
)

// SearchIndex is the full-text index of chat messages.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

// Index stores a message with its detected language. Indexing the same message twice replaces it.
func (s *SearchIndex) Index(message domain.ChatMessage) error {
	lang := ""
	if info := whatlanggo.Detect(message.Content); info.IsReliable() {
		lang = info.Lang.Iso6391()
	}
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(fieldRoom, message.RoomID.String()).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSender, string(message.SenderID)).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, message.Content).StoreValue()).
		AddField(bluge.NewKeywordField(fieldType, string(message.Type)).StoreValue()).
		AddField(bluge.NewKeywordField(fieldLanguage, lang).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldAt, message.Timestamp).StoreValue().Sortable())
	return s.writer.Update(doc.ID(), doc)
}

// Search returns the messages of a room matching the query, newest first.
func (s *SearchIndex) Search(ctx context.Context, roomID domain.RoomID, query string, limit int) ([]domain.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("unable to open index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Debug("Unable to close index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(roomID.String()).SetField(fieldRoom)).
		AddMust(bluge.NewMatchQuery(query).SetField(fieldContent))
	request := bluge.NewTopNSearch(limit, q).SortBy([]string{"-" + fieldAt})

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}
	var hits []domain.SearchHit
	match, err := matches.Next()
	for err == nil && match != nil {
		hit, visitErr := toSearchHit(match)
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func toSearchHit(match *search.DocumentMatch) (domain.SearchHit, error) {
	var hit domain.SearchHit
	var decodeErr error
	err := match.VisitStoredFields(func(field string, value []byte) bool {
		switch field {
		case "_id":
			hit.MessageID, decodeErr = uuid.ParseBytes(value)
		case fieldRoom:
			hit.RoomID, decodeErr = domain.ParseRoomID(string(value))
		case fieldSender:
			hit.SenderID = domain.UserID(value)
		case fieldContent:
			hit.Content = string(value)
		case fieldType:
			hit.Type = domain.MessageType(value)
		case fieldLanguage:
			hit.Language = string(value)
		case fieldAt:
			hit.Timestamp, decodeErr = bluge.DecodeDateTime(value)
			hit.Timestamp = hit.Timestamp.UTC()
		}
		return decodeErr == nil
	})
	if err != nil {
		return domain.SearchHit{}, err
	}
	return hit, decodeErr
}
