package builtin

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/kenny-project/kenny/broker"
	"github.com/kenny-project/kenny/tools"
)

// MoveFile returns the mutating move_file tool: it relocates an indexed
// file on disk and updates its document's source_path to match. The
// rename happens outside the broker transaction (os.Rename isn't
// SQLite's to serialize); only the metadata update goes through it.
func MoveFile(b *broker.Broker) *tools.Tool {
	return &tools.Tool{
		Name:        "move_file",
		Description: "Move an indexed file to a new path on disk and update its record.",
		Mutating:    true,
		Parameters: map[string]tools.ParamSpec{
			"document_id": {Type: tools.TypeInteger, Required: true, Description: "id of the file document to move"},
			"destination": {Type: tools.TypeString, Required: true, Description: "new absolute path"},
		},
		Execute: func(ctx context.Context, args tools.Args) (tools.Result, error) {
			docID, err := asInt64(args["document_id"])
			if err != nil {
				return tools.Result{}, err
			}
			destination, _ := args["destination"].(string)
			if destination == "" {
				return tools.Result{}, fmt.Errorf("destination must not be empty")
			}

			var currentPath string
			if err := b.Execute(ctx, func(ctx context.Context, db *sql.DB) error {
				return db.QueryRowContext(ctx, "SELECT source_path FROM documents WHERE id = ?", docID).Scan(&currentPath)
			}); err != nil {
				return tools.Result{}, fmt.Errorf("lookup document %d: %w", docID, err)
			}
			if currentPath == "" {
				return tools.Result{}, fmt.Errorf("document %d has no source_path to move", docID)
			}

			if err := os.Rename(currentPath, destination); err != nil {
				return tools.Result{}, fmt.Errorf("move file: %w", err)
			}

			var info os.FileInfo
			info, statErr := os.Stat(destination)

			err = b.Transaction(ctx, func(tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx,
					"UPDATE documents SET source_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
					destination, docID); err != nil {
					return err
				}
				if statErr == nil {
					_, err := tx.ExecContext(ctx, `
						INSERT INTO file_meta (document_id, modified_at) VALUES (?, ?)
						ON CONFLICT(document_id) DO UPDATE SET modified_at = excluded.modified_at
					`, docID, info.ModTime().Unix())
					return err
				}
				return nil
			})
			if err != nil {
				return tools.Result{}, err
			}

			return tools.Result{
				Output:  fmt.Sprintf("moved document %d to %s", docID, destination),
				Summary: "moved file to " + destination,
			}, nil
		},
	}
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}
