package domain

import (
	"fmt"
	"strconv"
)

// RoomID is the identifier of a study group, shared with the group platform.
type RoomID int64

func (r RoomID) String() string {
	return strconv.FormatInt(int64(r), 10)
}

// ParseRoomID reads a room identifier from a path or query value.
func ParseRoomID(raw string) (RoomID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid room id %q", raw)
	}
	return RoomID(id), nil
}

// GroupState is the lifecycle state owned by the group platform.
type GroupState string

const (
	GroupRecruiting GroupState = "RECRUITING"
	GroupStart      GroupState = "START"
	GroupClose      GroupState = "CLOSE"
)

func (s GroupState) Valid() bool {
	switch s {
	case GroupRecruiting, GroupStart, GroupClose:
		return true
	default:
		return false
	}
}

func ParseGroupState(raw string) (GroupState, error) {
	s := GroupState(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown group state %q", raw)
	}
	return s, nil
}

// Action is the kind of traffic the lifecycle gate is asked about.
type Action string

const (
	ActionJoin    Action = "JOIN"
	ActionMessage Action = "MESSAGE"
)
