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

// AppendNote returns the mutating append_note tool. It appends text to an
// existing note identified by title, creating the note if none exists
// yet, all inside one broker transaction so a concurrent append can
// never interleave with this one.
func AppendNote(b *broker.Broker) *tools.Tool {
	return &tools.Tool{
		Name:        "append_note",
		Description: "Append a line of text to a note, creating it if it doesn't exist yet.",
		Mutating:    true,
		Parameters: map[string]tools.ParamSpec{
			"title":  {Type: tools.TypeString, Required: true, Description: "note title"},
			"text":   {Type: tools.TypeString, Required: true, Description: "text to append"},
			"folder": {Type: tools.TypeString, Required: false, Description: "note folder"},
		},
		Execute: func(ctx context.Context, args tools.Args) (tools.Result, error) {
			title, _ := args["title"].(string)
			text, _ := args["text"].(string)
			if title == "" || text == "" {
				return tools.Result{}, fmt.Errorf("title and text must not be empty")
			}
			folder, _ := args["folder"].(string)
			sourceID := store.HashDocument("kenny-tool-note", title)[:16]
			now := time.Now().Unix()

			var docID int64
			var appended string
			err := b.Transaction(ctx, func(tx *sql.Tx) error {
				var existingID int64
				var existingContent string
				row := tx.QueryRowContext(ctx,
					"SELECT id, content FROM documents WHERE app_source = 'kenny-tool-note' AND source_id = ?", sourceID)
				switch err := row.Scan(&existingID, &existingContent); err {
				case nil:
					appended = existingContent + "\n" + text
					docID = existingID
					_, err := tx.ExecContext(ctx, `
						UPDATE documents SET content = ?, hash = ?, updated_at = CURRENT_TIMESTAMP, last_seen_at = ?
						WHERE id = ?
					`, appended, store.HashDocument(sourceID, title, appended), now, docID)
					return err
				case sql.ErrNoRows:
					appended = text
					res, err := tx.ExecContext(ctx, `
						INSERT INTO documents (type, title, content, app_source, source_id, hash, deleted, last_seen_at)
						VALUES (?, ?, ?, 'kenny-tool-note', ?, ?, 0, ?)
					`, store.TypeNote, title, appended, sourceID, store.HashDocument(sourceID, title, appended), now)
					if err != nil {
						return err
					}
					docID, err = res.LastInsertId()
					if err != nil {
						return err
					}
					_, err = tx.ExecContext(ctx,
						"INSERT INTO note_meta (document_id, folder) VALUES (?, ?)", docID, folder)
					return err
				default:
					return err
				}
			})
			if err != nil {
				return tools.Result{}, err
			}

			return tools.Result{
				Output:  fmt.Sprintf("note %d updated: %s", docID, title),
				Summary: "appended to note " + title,
			}, nil
		},
	}
}
