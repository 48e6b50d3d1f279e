package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key    string
	Kind   string
	Detail string
}

type PageData struct {
	Prefix string
	Items  []InspectRow
}

// StartDebugServer serves a read-only view over the chat keyspace, one row
// per Badger entry under the requested prefix. Meant for local inspection,
// never for production exposure.
func StartDebugServer(db *badger.DB, port int, endpoint string) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "group:"
		}

		data := PageData{Prefix: prefix}
		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapRow(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("127.0.0.1:%d", port), mux)
	}()
}

func mapRow(key string, val []byte) InspectRow {
	row := InspectRow{Key: key, Kind: "raw"}
	switch {
	case strings.HasPrefix(key, "group:"):
		row.Kind = "group"
		row.Detail = summarizeJSON(val, "Name", "Members")
	case strings.HasPrefix(key, "msg:"):
		row.Kind = "message"
		row.Detail = summarizeJSON(val, "sender_id", "kind", "unseen_by")
	case strings.HasPrefix(key, "dir:"):
		row.Kind = "directory"
		row.Detail = string(val)
	case strings.HasPrefix(key, "msgref:"):
		row.Kind = "ref"
		row.Detail = string(val)
	default:
		row.Detail = fmt.Sprintf("%d bytes", len(val))
	}
	return row
}

func summarizeJSON(val []byte, fields ...string) string {
	var record map[string]any
	if err := json.Unmarshal(val, &record); err != nil {
		return fmt.Sprintf("%d bytes (not JSON)", len(val))
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		if v, ok := record[field]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", field, v))
		}
	}
	return strings.Join(parts, " ")
}
