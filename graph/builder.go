package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// contactStore is the subset of *store.Store the builder needs, kept
// narrow so tests can substitute a fake for the concrete store.
type contactStore interface {
	ContactIDsWithEvents(ctx context.Context) ([]int64, error)
	CommunicationEventTimestamps(ctx context.Context, contactID int64) ([]int64, error)
	UpsertContactRelationship(ctx context.Context, contactID int64, strength float64, frequency int64, lastEventAt int64) error
}

// halfLifeDays controls how fast a contact's relationship strength decays
// as time passes without a new communication event.
const halfLifeDays = 30.0

// Builder recomputes contact-relationship strength scores from the raw
// communication_events log. Unlike a one-shot extraction pass, it is safe
// to re-run after every ingestion cycle: each contact's score depends only
// on its own event history, not on prior runs.
type Builder struct {
	store       contactStore
	concurrency int
}

// NewBuilder constructs a Builder with the given fan-out width for
// recomputing contacts concurrently. concurrency <= 0 defaults to 4.
func NewBuilder(store contactStore, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Builder{store: store, concurrency: concurrency}
}

// RecomputeAll recomputes and persists the relationship score for every
// contact entity that has at least one communication event, fanning the
// work out across a bounded worker pool so a large contact list doesn't
// serialize on one connection.
func (b *Builder) RecomputeAll(ctx context.Context) error {
	ids, err := b.store.ContactIDsWithEvents(ctx)
	if err != nil {
		return fmt.Errorf("listing contacts with events: %w", err)
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		sem      = make(chan struct{}, b.concurrency)
		firstErr error
	)

	now := time.Now()

	for _, contactID := range ids {
		contactID := contactID
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := b.recomputeOne(ctx, contactID, now); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				slog.Warn("recompute contact relationship failed", "contact_id", contactID, "error", err)
			}
		}()
	}

	wg.Wait()

	slog.Info("contact relationship recompute complete", "contacts", len(ids))
	return firstErr
}

func (b *Builder) recomputeOne(ctx context.Context, contactID int64, now time.Time) error {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	timestamps, err := b.store.CommunicationEventTimestamps(opCtx, contactID)
	if err != nil {
		return fmt.Errorf("loading events for contact %d: %w", contactID, err)
	}
	if len(timestamps) == 0 {
		return nil
	}

	score := RelationshipScore{
		ContactEntityID: contactID,
		Frequency:       int64(len(timestamps)),
		LastEventAt:     timestamps[0],
		Strength:        decayedStrength(timestamps, now),
	}

	return b.store.UpsertContactRelationship(opCtx, score.ContactEntityID, score.Strength, score.Frequency, score.LastEventAt)
}

// decayedStrength sums an exponential recency decay over every event:
// a communication today contributes 1.0, one a half-life old contributes
// 0.5, and so on. More frequent, more recent contacts score higher.
func decayedStrength(occurredAtUnix []int64, now time.Time) float64 {
	var total float64
	for _, ts := range occurredAtUnix {
		ageDays := now.Sub(time.Unix(ts, 0)).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		total += math.Exp(-math.Ln2 * ageDays / halfLifeDays)
	}
	return total
}
