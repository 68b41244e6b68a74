package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"study-relay/infrastructure/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", storage.MessagePrefix, "Prefix to scan (msg: or group:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Room", "Type", "Timestamp", "Sender", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(v []byte) error {
				row, err := toRow(key, v)
				if err != nil {
					// One corrupted entry should not hide the others
					fmt.Printf("Error decoding key %s: %v\n", key, err)
					return nil
				}
				table.Append(row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func toRow(key string, value []byte) ([]string, error) {
	switch {
	case strings.HasPrefix(key, storage.MessagePrefix):
		message, err := storage.DecodeMessage(value)
		if err != nil {
			return nil, err
		}
		content := message.Content
		if len(content) > 60 {
			content = content[:60] + "..."
		}
		return []string{key, message.RoomID.String(), string(message.Type),
			message.Timestamp.Format("2006-01-02 15:04:05"), string(message.SenderID), content}, nil
	case strings.HasPrefix(key, storage.GroupPrefix):
		state, updatedAt, err := storage.DecodeGroupState(value)
		if err != nil {
			return nil, err
		}
		return []string{key, strings.TrimPrefix(key, storage.GroupPrefix), "GROUP",
			updatedAt.Format("2006-01-02 15:04:05"), "-", string(state)}, nil
	default:
		return []string{key, "-", "RAW", "-", "-", fmt.Sprintf("%d bytes", len(value))}, nil
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
