// Viewer renders a read-only snapshot of the chat store as a terminal
// table: one row per group with member counts and message volume. It can
// run next to a live server thanks to the Badger lock bypass.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"groupchat/internal"
)

// groupRecord mirrors the stored group JSON; the viewer decodes it on its
// own to stay decoupled from the server wiring.
type groupRecord struct {
	ID        string    `json:"ID"`
	Name      string    `json:"Name"`
	Members   []string  `json:"Members"`
	Admins    []string  `json:"Admins"`
	CreatedAt time.Time `json:"CreatedAt"`
}

func main() {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	groups, counts, err := snapshot(db)
	if err != nil {
		log.Fatalf("Failed to read store: %v", err)
	}

	color.Bold.Printf("Chat store: %d group(s)\n\n", len(groups))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Members", "Admins", "Messages", "Created"})
	for _, g := range groups {
		table.Append([]string{
			shorten(g.ID),
			g.Name,
			strconv.Itoa(len(g.Members)),
			strconv.Itoa(len(g.Admins)),
			strconv.Itoa(counts[g.ID]),
			g.CreatedAt.Format(time.RFC822),
		})
	}
	table.Render()

	if len(groups) == 0 {
		color.Yellow.Println("Store is empty.")
	}
}

func snapshot(db *badger.DB) ([]groupRecord, map[string]int, error) {
	var groups []groupRecord
	counts := make(map[string]int)
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("group:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var g groupRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &g)
			})
			if err != nil {
				return err
			}
			groups = append(groups, g)
		}

		for _, g := range groups {
			msgPrefix := []byte(fmt.Sprintf("msg:%s:", g.ID))
			for it.Seek(msgPrefix); it.ValidForPrefix(msgPrefix); it.Next() {
				counts[g.ID]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return groups, counts, nil
}

func shorten(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
