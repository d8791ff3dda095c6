// Package store implements the embedded relational storage engine (C1):
// it opens and maintains the SQLite-backed document store, runs schema
// migrations, and provides parameterized access to documents, chunks,
// embeddings, relationships, the contact-identity graph, and the audit
// log. Concurrency discipline (single writer, many readers) is enforced
// one layer up, by package broker; Store itself is a thin, synchronous
// wrapper around *sql.DB.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// DocumentType enumerates the supported Document.Type values.
type DocumentType string

const (
	TypeEmail    DocumentType = "email"
	TypeEvent    DocumentType = "event"
	TypeReminder DocumentType = "reminder"
	TypeNote     DocumentType = "note"
	TypeFile     DocumentType = "file"
	TypeMessage  DocumentType = "message"
	TypeContact  DocumentType = "contact"
)

// Document is the unit of search: a normalized, content-addressed record
// from any ingested source.
type Document struct {
	ID          int64        `json:"id"`
	Type        DocumentType `json:"type"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	AppSource   string       `json:"app_source"`
	SourceID    string       `json:"source_id"`
	SourcePath  string       `json:"source_path,omitempty"`
	Hash        string       `json:"hash"`
	Metadata    string       `json:"metadata,omitempty"`
	Deleted     bool         `json:"deleted"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
	LastSeenAt  int64        `json:"last_seen_at"`
}

// HashDocument computes the content-addressed hash over the canonical
// tuple (sourceID, title, stableFields...). Re-ingesting unchanged data
// produces the same hash, which is what makes ingestion idempotent.
func HashDocument(sourceID, title string, stableFields ...string) string {
	h := sha256.New()
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(title))
	for _, f := range stableFields {
		h.Write([]byte{0})
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Chunk is a contiguous text slice of a Document.
type Chunk struct {
	ID          int64  `json:"id"`
	DocumentID  int64  `json:"document_id"`
	ChunkIndex  int    `json:"chunk_index"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Metadata    string `json:"metadata,omitempty"`
}

// Relationship is a directed typed edge between two documents.
type Relationship struct {
	ID              int64   `json:"id"`
	FromDocumentID  int64   `json:"from_document_id"`
	ToDocumentID    int64   `json:"to_document_id"`
	RelationshipType string `json:"relationship_type"`
	Strength        float64 `json:"strength"`
}

// QueryLog represents a row in the query_log diagnostic table.
type QueryLog struct {
	Query       string `json:"query"`
	SearchType  string `json:"search_type"`
	ResultCount int    `json:"result_count"`
	ElapsedMS   int64  `json:"elapsed_ms"`
}

// RetrievalResult holds a document with its retrieval score, produced by
// either the lexical or vector branch of hybrid search, or by fusion.go
// combining both. BM25Score/EmbeddingScore carry each branch's own
// min-max-normalized [0,1] contribution to the fused Score; a result
// found by only one branch leaves the other at zero.
type RetrievalResult struct {
	ChunkID        int64   `json:"chunk_id"`
	DocumentID     int64   `json:"document_id"`
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	AppSource      string  `json:"app_source"`
	SourcePath     string  `json:"source_path"`
	UpdatedAt      string  `json:"updated_at"`
	Score          float64 `json:"score"`
	BM25Score      float64 `json:"bm25_score"`
	EmbeddingScore float64 `json:"embedding_score"`
}

// DBStats holds counts of key database objects.
type DBStats struct {
	Documents    int `json:"documents"`
	Chunks       int `json:"chunks"`
	Embeddings   int `json:"embeddings"`
	Relationships int `json:"relationships"`
}

// Store wraps the SQLite database for all kenny persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
	path         string
}

// New opens (or creates) a SQLite database at the given path and
// initializes the schema including sqlite-vec and FTS5 virtual tables.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim, path: dbPath}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying *sql.DB for advanced queries. Only package
// broker should call this outside of Store itself.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Document operations ---

// UpsertDocument implements the C3 insert contract: identical hash for the
// same (app_source, source_id) only bumps last_seen_at; a changed hash
// updates mutable fields in place; an unseen (app_source, source_id)
// inserts a new row. Returns the document ID and whether a new row was
// created (as opposed to updated or left untouched).
func (s *Store) UpsertDocument(ctx context.Context, doc Document, seenAt int64) (id int64, created bool, updated bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		var existingHash string
		row := tx.QueryRowContext(ctx,
			"SELECT id, hash FROM documents WHERE app_source = ? AND source_id = ?",
			doc.AppSource, doc.SourceID)
		scanErr := row.Scan(&existingID, &existingHash)

		switch {
		case scanErr == sql.ErrNoRows:
			res, insErr := tx.ExecContext(ctx, `
				INSERT INTO documents (type, title, content, app_source, source_id, source_path, hash, metadata, deleted, last_seen_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
			`, doc.Type, doc.Title, doc.Content, doc.AppSource, doc.SourceID, doc.SourcePath, doc.Hash, doc.Metadata, seenAt)
			if insErr != nil {
				return insErr
			}
			id, insErr = res.LastInsertId()
			if insErr != nil {
				return insErr
			}
			created = true
			return nil
		case scanErr != nil:
			return scanErr
		}

		id = existingID
		if existingHash == doc.Hash {
			_, upErr := tx.ExecContext(ctx,
				"UPDATE documents SET last_seen_at = ?, deleted = 0 WHERE id = ?", seenAt, id)
			return upErr
		}

		updated = true
		_, upErr := tx.ExecContext(ctx, `
			UPDATE documents SET title = ?, content = ?, source_path = ?, hash = ?,
				metadata = ?, deleted = 0, updated_at = CURRENT_TIMESTAMP, last_seen_at = ?
			WHERE id = ?
		`, doc.Title, doc.Content, doc.SourcePath, doc.Hash, doc.Metadata, seenAt, id)
		return upErr
	})
	return id, created, updated, err
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	return s.scanDocument(s.db.QueryRowContext(ctx, `
		SELECT id, type, title, content, app_source, source_id, COALESCE(source_path,''),
			hash, COALESCE(metadata,''), deleted, created_at, updated_at, last_seen_at
		FROM documents WHERE id = ?
	`, id))
}

// GetDocumentBySource retrieves a document by its (app_source, source_id) key.
func (s *Store) GetDocumentBySource(ctx context.Context, appSource, sourceID string) (*Document, error) {
	return s.scanDocument(s.db.QueryRowContext(ctx, `
		SELECT id, type, title, content, app_source, source_id, COALESCE(source_path,''),
			hash, COALESCE(metadata,''), deleted, created_at, updated_at, last_seen_at
		FROM documents WHERE app_source = ? AND source_id = ?
	`, appSource, sourceID))
}

func (s *Store) scanDocument(row *sql.Row) (*Document, error) {
	doc := &Document{}
	var deleted int
	if err := row.Scan(&doc.ID, &doc.Type, &doc.Title, &doc.Content, &doc.AppSource,
		&doc.SourceID, &doc.SourcePath, &doc.Hash, &doc.Metadata, &deleted,
		&doc.CreatedAt, &doc.UpdatedAt, &doc.LastSeenAt); err != nil {
		return nil, err
	}
	doc.Deleted = deleted != 0
	return doc, nil
}

// UpsertReminderMeta writes the reminder satellite row for a document.
func (s *Store) UpsertReminderMeta(ctx context.Context, documentID int64, dueAt int64, completed bool, listName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminder_meta (document_id, due_at, completed, list_name) VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET due_at = excluded.due_at,
			completed = excluded.completed, list_name = excluded.list_name
	`, documentID, dueAt, boolToInt(completed), listName)
	return err
}

// UpsertNoteMeta writes the note satellite row for a document.
func (s *Store) UpsertNoteMeta(ctx context.Context, documentID int64, folder string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO note_meta (document_id, folder) VALUES (?, ?)
		ON CONFLICT(document_id) DO UPDATE SET folder = excluded.folder
	`, documentID, folder)
	return err
}

// UpsertFileMeta writes the file satellite row for a document, e.g. after
// a move changes its source_path, mime type, or modification time.
func (s *Store) UpsertFileMeta(ctx context.Context, documentID int64, mimeType string, sizeBytes, modifiedAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_meta (document_id, mime_type, size_bytes, modified_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET mime_type = excluded.mime_type,
			size_bytes = excluded.size_bytes, modified_at = excluded.modified_at
	`, documentID, mimeType, sizeBytes, modifiedAt)
	return err
}

// UpdateDocumentSourcePath rewrites a document's source_path, e.g. after a
// move_file tool call relocates the underlying file on disk.
func (s *Store) UpdateDocumentSourcePath(ctx context.Context, documentID int64, newPath string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET source_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", newPath, documentID)
	return err
}

// UpcomingEvent pairs a live event document with its event_meta.start_at,
// since Document itself carries no per-type columns.
type UpcomingEvent struct {
	Document Document
	StartAt  int64
	EndAt    int64
	Location string
}

// UpcomingEvents returns live event documents whose event_meta.start_at
// falls within [fromUnix, toUnix], soonest first.
func (s *Store) UpcomingEvents(ctx context.Context, fromUnix, toUnix int64, limit int) ([]UpcomingEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.type, d.title, d.content, d.app_source, d.source_id, COALESCE(d.source_path,''),
			d.hash, COALESCE(d.metadata,''), d.deleted, d.created_at, d.updated_at, d.last_seen_at,
			em.start_at, COALESCE(em.end_at, 0), COALESCE(em.location, '')
		FROM documents d
		JOIN event_meta em ON em.document_id = d.id
		WHERE d.deleted = 0 AND em.start_at BETWEEN ? AND ?
		ORDER BY em.start_at ASC
		LIMIT ?
	`, fromUnix, toUnix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []UpcomingEvent
	for rows.Next() {
		var d Document
		var deleted int
		var e UpcomingEvent
		if err := rows.Scan(&d.ID, &d.Type, &d.Title, &d.Content, &d.AppSource,
			&d.SourceID, &d.SourcePath, &d.Hash, &d.Metadata, &deleted,
			&d.CreatedAt, &d.UpdatedAt, &d.LastSeenAt,
			&e.StartAt, &e.EndAt, &e.Location); err != nil {
			return nil, err
		}
		d.Deleted = deleted != 0
		e.Document = d
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListDocuments returns live (non-tombstoned) documents, optionally filtered by type.
func (s *Store) ListDocuments(ctx context.Context, docType DocumentType) ([]Document, error) {
	query := `
		SELECT id, type, title, content, app_source, source_id, COALESCE(source_path,''),
			hash, COALESCE(metadata,''), deleted, created_at, updated_at, last_seen_at
		FROM documents WHERE deleted = 0`
	args := []interface{}{}
	if docType != "" {
		query += " AND type = ?"
		args = append(args, docType)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var deleted int
		if err := rows.Scan(&d.ID, &d.Type, &d.Title, &d.Content, &d.AppSource,
			&d.SourceID, &d.SourcePath, &d.Hash, &d.Metadata, &deleted,
			&d.CreatedAt, &d.UpdatedAt, &d.LastSeenAt); err != nil {
			return nil, err
		}
		d.Deleted = deleted != 0
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// TombstoneStaleDocuments marks as deleted every document of the given
// app_source whose last_seen_at predates syncStartedAt — the documents a
// full sync did not observe this run.
func (s *Store) TombstoneStaleDocuments(ctx context.Context, appSource string, syncStartedAt int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET deleted = 1, updated_at = CURRENT_TIMESTAMP
		WHERE app_source = ? AND last_seen_at < ? AND deleted = 0
	`, appSource, syncStartedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteDocument removes a document and cascades to all related data
// (satellite rows, chunks, embeddings, relationships — all ON DELETE CASCADE).
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	return err
}

// DeleteDocumentChunks removes all chunks (and therefore embeddings) for
// a document but keeps the document record itself, so re-chunking can
// replace them atomically.
func (s *Store) DeleteDocumentChunks(ctx context.Context, docID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_chunks WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)
		`, docID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", docID)
		return err
	})
}

// --- Chunk operations ---

// InsertChunks inserts a batch of chunks for one document and returns
// their IDs, in the same order as the input slice.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) ([]int64, error) {
	ids := make([]int64, len(chunks))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (document_id, chunk_index, text, start_offset, end_offset, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, c := range chunks {
			res, err := stmt.ExecContext(ctx, c.DocumentID, c.ChunkIndex, c.Text, c.StartOffset, c.EndOffset, c.Metadata)
			if err != nil {
				return err
			}
			ids[i], err = res.LastInsertId()
			if err != nil {
				return err
			}
		}
		return nil
	})
	return ids, err
}

// GetChunksByDocument returns all chunks for a document, ordered by chunk_index.
func (s *Store) GetChunksByDocument(ctx context.Context, docID int64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, text, start_offset, end_offset, COALESCE(metadata,'')
		FROM chunks WHERE document_id = ? ORDER BY chunk_index
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.StartOffset, &c.EndOffset, &c.Metadata); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunksMissingEmbedding returns chunks for the given model that have no
// row in embeddings_meta yet, bounded by limit.
func (s *Store) ChunksMissingEmbedding(ctx context.Context, model string, limit int) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.text, c.start_offset, c.end_offset, COALESCE(c.metadata,'')
		FROM chunks c
		LEFT JOIN embeddings_meta em ON em.chunk_id = c.id AND em.model = ?
		WHERE em.chunk_id IS NULL
		LIMIT ?
	`, model, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.StartOffset, &c.EndOffset, &c.Metadata); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// --- Embedding operations ---

// InsertEmbedding stores a vector embedding for a chunk. The vector is
// expected to already be L2-normalized (normalization happens once, in
// chunker.Embedder, before this call; the vector is stored as given).
func (s *Store) InsertEmbedding(ctx context.Context, chunkID int64, model string, embedding []float32) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)",
			chunkID, serializeFloat32(embedding)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO embeddings_meta (chunk_id, model, dimensions) VALUES (?, ?, ?)",
			chunkID, model, len(embedding))
		return err
	})
}

// vectorRelevanceFloor is the minimum cosine similarity a vector hit must
// clear to be returned; below it, a result is considered noise rather
// than a match and is discarded.
const vectorRelevanceFloor = 0.1

// VectorSearch performs a KNN search over candidate embeddings, bounded by
// kCand, returning the top-k nearest chunks as RetrievalResults with
// Score = cosine similarity (1 - cosine distance). Results scoring below
// vectorRelevanceFloor are discarded rather than returned as noise.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, k, kCand int) ([]RetrievalResult, error) {
	if kCand <= 0 {
		kCand = 1000
	}
	var sumSq float64
	for _, v := range queryEmbedding {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		// A zero-magnitude query has similarity 0 to every vector, which
		// is below vectorRelevanceFloor, so nothing qualifies.
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.chunk_id, v.distance,
			c.document_id, c.text,
			d.title, d.app_source, COALESCE(d.source_path,''), d.updated_at
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE v.embedding MATCH ? AND k = ? AND d.deleted = 0
		ORDER BY v.distance
	`, serializeFloat32(queryEmbedding), kCand)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RetrievalResult
	for rows.Next() {
		var r RetrievalResult
		var distance float64
		if err := rows.Scan(&r.ChunkID, &distance, &r.DocumentID, &r.Content,
			&r.Title, &r.AppSource, &r.SourcePath, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Score = 1.0 - distance
		if r.Score < vectorRelevanceFloor {
			// Rows arrive ordered by increasing distance (decreasing
			// similarity); once one falls below the floor, every
			// remaining row does too.
			break
		}
		results = append(results, r)
		if len(results) >= k {
			break
		}
	}
	return results, rows.Err()
}

// FTSSearch performs a BM25-ranked lexical search over documents_fts,
// canonicalized to the (title, content) columns only. bm25() returns more
// negative values for better matches; Score is inverted (negated) so
// that, like VectorSearch, higher is better and fusion.go can min-max
// normalize both branches onto the same [0,1] scale.
func (s *Store) FTSSearch(ctx context.Context, ftsQuery string, limit int) ([]RetrievalResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, bm25(documents_fts, 1.0, 0.75) AS rank,
			COALESCE(c.id, 0), d.title, d.content, d.app_source, COALESCE(d.source_path,''), d.updated_at
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		LEFT JOIN chunks c ON c.document_id = d.id AND c.chunk_index = 0
		WHERE documents_fts MATCH ? AND d.deleted = 0
		ORDER BY rank, d.updated_at DESC, d.id ASC
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RetrievalResult
	for rows.Next() {
		var r RetrievalResult
		var rank float64
		if err := rows.Scan(&r.DocumentID, &rank, &r.ChunkID, &r.Title, &r.Content,
			&r.AppSource, &r.SourcePath, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Score = -rank
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Relationship operations ---

// InsertRelationship creates a directed edge between two documents.
func (s *Store) InsertRelationship(ctx context.Context, r Relationship) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (from_document_id, to_document_id, relationship_type, strength)
		VALUES (?, ?, ?, ?)
	`, r.FromDocumentID, r.ToDocumentID, r.RelationshipType, r.Strength)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// --- Contact-identity graph ---

// ContactEntity represents a deduplicated person/organization.
type ContactEntity struct {
	ID           int64  `json:"id"`
	DisplayName  string `json:"display_name"`
	Organization string `json:"organization,omitempty"`
}

// UpsertContactIdentity finds or creates the contact_entity owning the
// given (platform, handle) identity, recording a communication event for it.
func (s *Store) UpsertContactIdentity(ctx context.Context, platform, handle, displayName string, docID *int64, occurredAt int64) (int64, error) {
	var contactID int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT contact_entity_id FROM contact_identities WHERE platform = ? AND handle = ?
		`, platform, handle)
		scanErr := row.Scan(&contactID)
		if scanErr == sql.ErrNoRows {
			res, insErr := tx.ExecContext(ctx,
				"INSERT INTO contact_entities (display_name) VALUES (?)", displayName)
			if insErr != nil {
				return insErr
			}
			contactID, insErr = res.LastInsertId()
			if insErr != nil {
				return insErr
			}
			if _, insErr := tx.ExecContext(ctx,
				"INSERT INTO contact_identities (contact_entity_id, platform, handle) VALUES (?, ?, ?)",
				contactID, platform, handle); insErr != nil {
				return insErr
			}
		} else if scanErr != nil {
			return scanErr
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO communication_events (contact_entity_id, document_id, occurred_at) VALUES (?, ?, ?)",
			contactID, docID, occurredAt)
		return err
	})
	return contactID, err
}

// ContactIDsWithEvents returns the id of every contact entity that has at
// least one recorded communication event, for relationship recomputation.
func (s *Store) ContactIDsWithEvents(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT contact_entity_id FROM communication_events")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CommunicationEventTimestamps returns the occurred_at of every event for
// a contact, most recent first, used to derive frequency/recency scores.
func (s *Store) CommunicationEventTimestamps(ctx context.Context, contactID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT occurred_at FROM communication_events WHERE contact_entity_id = ? ORDER BY occurred_at DESC",
		contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ts []int64
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	return ts, rows.Err()
}

// UpsertContactRelationship replaces the single relationship-score row for
// a contact entity with a freshly computed strength/frequency/last_event_at.
func (s *Store) UpsertContactRelationship(ctx context.Context, contactID int64, strength float64, frequency int64, lastEventAt int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		row := tx.QueryRowContext(ctx,
			"SELECT id FROM contact_relationships WHERE contact_entity_id = ?", contactID)
		switch err := row.Scan(&existingID); err {
		case sql.ErrNoRows:
			_, err := tx.ExecContext(ctx,
				"INSERT INTO contact_relationships (contact_entity_id, strength, frequency, last_event_at) VALUES (?, ?, ?, ?)",
				contactID, strength, frequency, lastEventAt)
			return err
		case nil:
			_, err := tx.ExecContext(ctx,
				"UPDATE contact_relationships SET strength = ?, frequency = ?, last_event_at = ? WHERE id = ?",
				strength, frequency, lastEventAt, existingID)
			return err
		default:
			return err
		}
	})
}

// TopContactRelationships returns up to limit contacts ordered by strength
// descending, joined with their display name, for "who do I talk to most"
// style tool queries.
func (s *Store) TopContactRelationships(ctx context.Context, limit int) ([]ContactEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ce.id, ce.display_name, COALESCE(ce.organization, '')
		FROM contact_relationships cr
		JOIN contact_entities ce ON ce.id = cr.contact_entity_id
		ORDER BY cr.strength DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContactEntity
	for rows.Next() {
		var c ContactEntity
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.Organization); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Query log ---

// LogQuery writes an entry to the diagnostic query audit log.
func (s *Store) LogQuery(ctx context.Context, q QueryLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (query, search_type, result_count, elapsed_ms)
		VALUES (?, ?, ?, ?)
	`, q.Query, q.SearchType, q.ResultCount, q.ElapsedMS)
	return err
}

// --- Audit records ---

// AuditRecord is an immutable record of one tool invocation.
type AuditRecord struct {
	ID            int64  `json:"id"`
	CorrelationID string `json:"correlation_id"`
	PlanID        string `json:"plan_id"`
	StepIndex     int    `json:"step_index"`
	ToolName      string `json:"tool_name"`
	Arguments     string `json:"arguments"`
	IsDryRun      bool   `json:"is_dry_run"`
	Result        string `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
	OperationHash string `json:"operation_hash"`
	CreatedAt     string `json:"created_at"`
}

// InsertAuditRecord appends an audit record. Audit records are never updated.
func (s *Store) InsertAuditRecord(ctx context.Context, a AuditRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (correlation_id, plan_id, step_index, tool_name, arguments,
			is_dry_run, result, error, duration_ms, operation_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.CorrelationID, a.PlanID, a.StepIndex, a.ToolName, a.Arguments,
		boolToInt(a.IsDryRun), a.Result, a.Error, a.DurationMS, a.OperationHash)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// HasDryRunAudit reports whether a dry-run audit record with the given
// operation_hash exists for the given plan_id — the safety invariant that
// gates a real (non-dry-run) tool execution.
func (s *Store) HasDryRunAudit(ctx context.Context, planID, operationHash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_records
		WHERE plan_id = ? AND operation_hash = ? AND is_dry_run = 1
	`, planID, operationHash).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AuditRecordsByCorrelation returns all audit records for a correlation_id, in insertion order.
func (s *Store) AuditRecordsByCorrelation(ctx context.Context, correlationID string) ([]AuditRecord, error) {
	return s.queryAuditRecords(ctx, "correlation_id = ?", correlationID)
}

// AuditRecordsByPlan returns all audit records for a plan_id, in insertion order.
func (s *Store) AuditRecordsByPlan(ctx context.Context, planID string) ([]AuditRecord, error) {
	return s.queryAuditRecords(ctx, "plan_id = ?", planID)
}

func (s *Store) queryAuditRecords(ctx context.Context, where string, arg string) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, plan_id, step_index, tool_name, COALESCE(arguments,''),
			is_dry_run, COALESCE(result,''), COALESCE(error,''), duration_ms, operation_hash, created_at
		FROM audit_records WHERE `+where+` ORDER BY id ASC
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		var a AuditRecord
		var isDryRun int
		if err := rows.Scan(&a.ID, &a.CorrelationID, &a.PlanID, &a.StepIndex, &a.ToolName,
			&a.Arguments, &isDryRun, &a.Result, &a.Error, &a.DurationMS, &a.OperationHash, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.IsDryRun = isDryRun != 0
		records = append(records, a)
	}
	return records, rows.Err()
}

// --- Diagnostics ---

// DBStats returns counts of documents, chunks, embeddings, and relationships.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents WHERE deleted = 0", &stats.Documents},
		{"SELECT COUNT(*) FROM chunks", &stats.Chunks},
		{"SELECT COUNT(*) FROM vec_chunks", &stats.Embeddings},
		{"SELECT COUNT(*) FROM relationships", &stats.Relationships},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// MarshalMetadata is a small convenience used by callers assembling the
// opaque metadata bag before an UpsertDocument/InsertChunks call.
func MarshalMetadata(v interface{}) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// serializeFloat32 converts a float32 slice to little-endian bytes matching
// sqlite-vec's wire format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DeserializeFloat32 is the inverse of serializeFloat32. It panics if blob
// is not a multiple of 4 bytes — that indicates storage corruption or a
// programmer error upstream, not a recoverable condition.
func DeserializeFloat32(blob []byte) []float32 {
	if len(blob)%4 != 0 {
		panic(fmt.Sprintf("store: embedding blob length %d is not a multiple of 4", len(blob)))
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
