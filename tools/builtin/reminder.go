// Package builtin provides the concrete tools exposed to the reasoning
// loop: a small, safety-gated surface for creating reminders, appending
// notes, moving files, and searching or browsing the index.
package builtin

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kenny-project/kenny/broker"
	"github.com/kenny-project/kenny/store"
	"github.com/kenny-project/kenny/tools"
)

// CreateReminder returns the mutating create_reminder tool, which writes
// a new reminder document (plus its reminder_meta satellite row) through
// the broker's single writer.
func CreateReminder(b *broker.Broker) *tools.Tool {
	return &tools.Tool{
		Name:        "create_reminder",
		Description: "Create a new reminder with a title, optional due date (RFC3339), and list name.",
		Mutating:    true,
		Parameters: map[string]tools.ParamSpec{
			"title":     {Type: tools.TypeString, Required: true, Description: "reminder text"},
			"due_at":    {Type: tools.TypeString, Required: false, Description: "RFC3339 due date"},
			"list_name": {Type: tools.TypeString, Required: false, Description: "reminder list"},
		},
		Execute: func(ctx context.Context, args tools.Args) (tools.Result, error) {
			title, _ := args["title"].(string)
			if title == "" {
				return tools.Result{}, fmt.Errorf("title must not be empty")
			}
			listName, _ := args["list_name"].(string)

			var dueAt int64
			if raw, ok := args["due_at"].(string); ok && raw != "" {
				t, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					return tools.Result{}, fmt.Errorf("due_at: %w", err)
				}
				dueAt = t.Unix()
			}

			sourceID := store.HashDocument("kenny-tool", title, listName)[:16]
			now := time.Now().Unix()

			var docID int64
			err := b.Transaction(ctx, func(tx *sql.Tx) error {
				res, err := tx.ExecContext(ctx, `
					INSERT INTO documents (type, title, content, app_source, source_id, hash, deleted, last_seen_at)
					VALUES (?, ?, ?, 'kenny-tool', ?, ?, 0, ?)
				`, store.TypeReminder, title, title, sourceID, store.HashDocument(sourceID, title), now)
				if err != nil {
					return err
				}
				docID, err = res.LastInsertId()
				if err != nil {
					return err
				}
				_, err = tx.ExecContext(ctx,
					"INSERT INTO reminder_meta (document_id, due_at, completed, list_name) VALUES (?, ?, 0, ?)",
					docID, dueAt, listName)
				return err
			})
			if err != nil {
				return tools.Result{}, err
			}

			return tools.Result{
				Output:  fmt.Sprintf("reminder %d created: %s", docID, title),
				Summary: "created reminder " + title,
			}, nil
		},
	}
}
