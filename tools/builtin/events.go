package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kenny-project/kenny/store"
	"github.com/kenny-project/kenny/tools"
)

// eventRow is the shape list_upcoming_events returns to the reasoning loop.
type eventRow struct {
	DocumentID int64  `json:"document_id"`
	Title      string `json:"title"`
	StartAt    string `json:"start_at"`
}

// ListUpcomingEvents returns the read-only list_upcoming_events tool.
func ListUpcomingEvents(s *store.Store) *tools.Tool {
	return &tools.Tool{
		Name:        "list_upcoming_events",
		Description: "List calendar events starting within the next N days (default 7).",
		Mutating:    false,
		Parameters: map[string]tools.ParamSpec{
			"days":  {Type: tools.TypeInteger, Required: false, Description: "lookahead window in days, default 7"},
			"limit": {Type: tools.TypeInteger, Required: false, Description: "max results, default 20"},
		},
		Execute: func(ctx context.Context, args tools.Args) (tools.Result, error) {
			days := 7
			if raw, ok := args["days"]; ok {
				n, err := asInt64(raw)
				if err != nil {
					return tools.Result{}, err
				}
				days = int(n)
			}
			limit := 20
			if raw, ok := args["limit"]; ok {
				n, err := asInt64(raw)
				if err != nil {
					return tools.Result{}, err
				}
				limit = int(n)
			}

			now := time.Now()
			events, err := s.UpcomingEvents(ctx, now.Unix(), now.AddDate(0, 0, days).Unix(), limit)
			if err != nil {
				return tools.Result{}, err
			}

			rows := make([]eventRow, 0, len(events))
			for _, ev := range events {
				rows = append(rows, eventRow{
					DocumentID: ev.Document.ID,
					Title:      ev.Document.Title,
					StartAt:    time.Unix(ev.StartAt, 0).UTC().Format(time.RFC3339),
				})
			}
			out, err := json.Marshal(rows)
			if err != nil {
				return tools.Result{}, err
			}

			return tools.Result{
				Output:  string(out),
				Summary: fmt.Sprintf("%d upcoming events in the next %d days", len(rows), days),
			}, nil
		},
	}
}
