package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kenny-project/kenny/retrieval"
	"github.com/kenny-project/kenny/tools"
)

// resultRow mirrors store.RetrievalResult's fields the tool surfaces to
// the reasoning loop, kept local so this file doesn't need to import
// store just to re-shape a response.
type resultRow struct {
	DocumentID int64   `json:"document_id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	AppSource  string  `json:"app_source"`
	Score      float64 `json:"score"`
}

// SearchData returns the read-only search_data tool, delegating to the
// hybrid retrieval engine.
func SearchData(engine *retrieval.Engine) *tools.Tool {
	return &tools.Tool{
		Name:        "search_data",
		Description: "Search indexed documents (mail, calendar, notes, messages, files, contacts) by query.",
		Mutating:    false,
		Parameters: map[string]tools.ParamSpec{
			"query": {Type: tools.TypeString, Required: true, Description: "search query"},
			"limit": {Type: tools.TypeInteger, Required: false, Description: "max results, default 20"},
		},
		Execute: func(ctx context.Context, args tools.Args) (tools.Result, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return tools.Result{}, fmt.Errorf("query must not be empty")
			}
			limit := 20
			if raw, ok := args["limit"]; ok {
				n, err := asInt64(raw)
				if err != nil {
					return tools.Result{}, err
				}
				limit = int(n)
			}

			results, _, err := engine.Search(ctx, query, retrieval.SearchOptions{MaxResults: limit})
			if err != nil {
				return tools.Result{}, err
			}

			rows := make([]resultRow, 0, len(results))
			for _, r := range results {
				rows = append(rows, resultRow{
					DocumentID: r.DocumentID,
					Title:      r.Title,
					Content:    r.Content,
					AppSource:  r.AppSource,
					Score:      r.Score,
				})
			}
			out, err := json.Marshal(rows)
			if err != nil {
				return tools.Result{}, err
			}

			return tools.Result{
				Output:  string(out),
				Summary: fmt.Sprintf("%d results for %q", len(rows), query),
			}, nil
		},
	}
}
