// Package graph scores the contact-identity graph: it recomputes each
// contact's relationship strength/frequency/recency from
// communication_events. Contact entities and their per-platform
// identities are written by ingestion through the store, not by this
// package; kenny.Engine runs the recompute after an ingest run. It is out
// of strict core.
package graph

// RelationshipScore is the recomputed strength/frequency/recency triple
// for one contact entity.
type RelationshipScore struct {
	ContactEntityID int64
	Strength        float64
	Frequency       int64
	LastEventAt     int64
}
