// Package recordsource implements an in-memory ingest.Source that
// replays a fixed slice of records — the feed used by tests and by
// scenario walkthroughs that don't need a real OS data source wired up.
package recordsource

import (
	"context"
	"time"

	"github.com/kenny-project/kenny/ingest"
)

// Source replays Records verbatim every time Ingest is called,
// regardless of fullSync/since — it has no notion of incremental
// change, since its whole point is deterministic replay for tests.
type Source struct {
	name    string
	Records []ingest.RawRecord
}

// New returns a Source named name that replays records on every Ingest call.
func New(name string, records []ingest.RawRecord) *Source {
	return &Source{name: name, Records: records}
}

func (s *Source) Name() string { return s.name }

func (s *Source) Ingest(ctx context.Context, fullSync bool, since *time.Time) (<-chan ingest.RawRecord, error) {
	out := make(chan ingest.RawRecord, len(s.Records))
	go func() {
		defer close(out)
		for _, r := range s.Records {
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
