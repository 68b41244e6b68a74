package main

import (
	"strings"
	"study-relay/infrastructure/storage"

	"github.com/mama165/sdk-go/database"
)

// RelayMapper renders stored messages and group states in the debug inspector.
func RelayMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, storage.MessagePrefix):
		message, err := storage.DecodeMessage(val)
		if err != nil {
			row.Detail = "Error: decode failed"
			return row
		}
		row.Type = string(message.Type)
		row.Detail = string(message.SenderID) + ": " + message.Content
	case strings.HasPrefix(key, storage.GroupPrefix):
		state, updatedAt, err := storage.DecodeGroupState(val)
		if err != nil {
			row.Detail = "Error: decode failed"
			return row
		}
		row.Type = "GROUP"
		row.Detail = string(state) + " since " + updatedAt.Format("2006-01-02 15:04:05")
	}
	return row
}
