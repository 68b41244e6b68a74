package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"study-relay/contract"
	"study-relay/domain"
	"study-relay/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	_ contract.GroupStateStore  = (*GroupRepository)(nil)
	_ contract.GroupStateWriter = (*GroupRepository)(nil)
)

const GroupPrefix = "group:"

// GroupRepository keeps the last lifecycle state pushed by the group platform.
type GroupRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewGroupRepository(db *badger.DB, log *slog.Logger) *GroupRepository {
	return &GroupRepository{db: db, log: log}
}

func GroupKey(roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("%s%d", GroupPrefix, roomID))
}

func (g *GroupRepository) GetState(ctx context.Context, roomID domain.RoomID) (domain.GroupState, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var value []byte
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(GroupKey(roomID))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: room %d", errors.ErrGroupNotFound, roomID)
	}
	if err != nil {
		return "", err
	}
	state, _, err := DecodeGroupState(value)
	return state, err
}

func (g *GroupRepository) SetState(ctx context.Context, roomID domain.RoomID, state domain.GroupState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !state.Valid() {
		return fmt.Errorf("%w: unknown group state %q", errors.ErrValidationFailed, state)
	}
	s, err := structpb.NewStruct(map[string]any{
		"state":     string(state),
		"updatedAt": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	bytes, err := proto.Marshal(s)
	if err != nil {
		return err
	}
	g.log.Info("Group state updated", "room_id", roomID, "state", state)
	return g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(GroupKey(roomID), bytes)
	})
}

func DecodeGroupState(value []byte) (domain.GroupState, time.Time, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(value, &s); err != nil {
		return "", time.Time{}, err
	}
	state, err := domain.ParseGroupState(s.GetFields()["state"].GetStringValue())
	if err != nil {
		return "", time.Time{}, err
	}
	updatedAt, _ := time.Parse(time.RFC3339Nano, s.GetFields()["updatedAt"].GetStringValue())
	return state, updatedAt, nil
}
