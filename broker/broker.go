// Package broker serializes every mutating database access behind a
// single writer goroutine. SQLite in WAL mode allows unlimited
// concurrent readers against one writer; the broker is what makes that
// one writer a queue instead of a lock contended by every caller.
package broker

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// DefaultQueueDepth bounds how many pending work items the broker will
// buffer before Execute and Transaction start blocking the caller.
const DefaultQueueDepth = 64

// workItem is one unit of serialized work: a function given the shared
// *sql.DB (wrapped in a transaction by Transaction, or used directly by
// Execute) and a channel to report its outcome back to the caller.
type workItem struct {
	run  func(ctx context.Context, db *sql.DB) error
	done chan error
}

// Broker owns the shared *sql.DB and drains a queue of mutating work
// items one at a time, in submission order.
type Broker struct {
	db     *sql.DB
	queue  chan workItem
	done   chan struct{}
	closed chan struct{}
}

// New starts a Broker's writer goroutine over db. queueDepth <= 0 uses
// DefaultQueueDepth.
func New(db *sql.DB, queueDepth int) *Broker {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	b := &Broker{
		db:     db,
		queue:  make(chan workItem, queueDepth),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.closed)
	for {
		select {
		case item := <-b.queue:
			item.done <- item.run(context.Background(), b.db)
		case <-b.done:
			// Drain whatever already made it into the channel before exiting.
			for {
				select {
				case item := <-b.queue:
					item.done <- item.run(context.Background(), b.db)
				default:
					return
				}
			}
		}
	}
}

// Close stops the writer goroutine after draining any queued work,
// waiting up to the context's deadline.
func (b *Broker) Close(ctx context.Context) error {
	close(b.done)
	select {
	case <-b.closed:
		return nil
	case <-ctx.Done():
		return &OperationTimeoutError{Op: "close"}
	}
}

// Execute submits fn to run on the writer goroutine outside a
// transaction, for operations (like reads that must serialize with
// writes) that don't need BEGIN/COMMIT.
func (b *Broker) Execute(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	return b.submit(ctx, fn)
}

// Transaction submits fn wrapped in BEGIN/COMMIT/ROLLBACK, the broker's
// analogue of the teacher's Store.inTx — lifted up one layer so callers
// in ingest and tools never open a transaction against *sql.DB directly.
func (b *Broker) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return b.submit(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return &ConnectionFailedError{Reason: err.Error()}
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("broker: rollback failed", "error", rbErr)
			}
			return err
		}
		return tx.Commit()
	})
}

func (b *Broker) submit(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	if b == nil || b.db == nil {
		return &NotInitializedError{}
	}
	item := workItem{run: fn, done: make(chan error, 1)}

	select {
	case b.queue <- item:
	case <-ctx.Done():
		return &OperationTimeoutError{Op: "submit"}
	case <-b.done:
		return &NotInitializedError{}
	}

	select {
	case err := <-item.done:
		return err
	case <-ctx.Done():
		return &OperationTimeoutError{Op: "execute"}
	}
}

// WithTimeout is a convenience for callers that want a bounded broker
// call without threading context.WithTimeout through every call site.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
