package store

import "fmt"

// schemaSQL returns the bootstrap DDL for all tables. embeddingDim controls
// the vec0 virtual table dimension. This is the version-1 bootstrap schema;
// later structural changes belong in migrations.go, not here.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Document registry: the unit of search, content-addressed for idempotent
-- ingestion. Uniqueness on (app_source, source_id) *and* hash lets the
-- coordinator tell "unseen" from "changed" from "identical" in one lookup.
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    app_source TEXT NOT NULL,
    source_id TEXT NOT NULL,
    source_path TEXT,
    hash TEXT NOT NULL,
    metadata JSON,
    deleted INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_seen_at INTEGER NOT NULL DEFAULT 0,
    UNIQUE(app_source, source_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_hash ON documents(hash);
CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(type);
CREATE INDEX IF NOT EXISTS idx_documents_deleted ON documents(deleted);

-- Per-type satellite tables. Each row is owned by exactly one document
-- and is destroyed with it (ON DELETE CASCADE).
CREATE TABLE IF NOT EXISTS email_meta (
    document_id INTEGER PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
    thread_id TEXT,
    from_addr TEXT,
    to_addrs TEXT,
    cc_addrs TEXT,
    sent_at INTEGER,
    flags TEXT,
    mailbox TEXT
);

CREATE TABLE IF NOT EXISTS event_meta (
    document_id INTEGER PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
    start_at INTEGER,
    end_at INTEGER,
    location TEXT
);

CREATE TABLE IF NOT EXISTS reminder_meta (
    document_id INTEGER PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
    due_at INTEGER,
    completed INTEGER NOT NULL DEFAULT 0,
    list_name TEXT
);

CREATE TABLE IF NOT EXISTS note_meta (
    document_id INTEGER PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
    folder TEXT
);

CREATE TABLE IF NOT EXISTS file_meta (
    document_id INTEGER PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
    mime_type TEXT,
    size_bytes INTEGER,
    modified_at INTEGER
);

CREATE TABLE IF NOT EXISTS message_meta (
    document_id INTEGER PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
    thread_id TEXT,
    from_contact TEXT,
    is_from_me INTEGER NOT NULL DEFAULT 0,
    service TEXT,
    chat_name TEXT
);

CREATE TABLE IF NOT EXISTS contact_meta (
    document_id INTEGER PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
    display_name TEXT,
    organization TEXT
);

-- Chunks: contiguous, totally-ordered text slices of a document.
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    chunk_index INTEGER NOT NULL,
    text TEXT NOT NULL,
    start_offset INTEGER NOT NULL,
    end_offset INTEGER NOT NULL,
    metadata JSON
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index);

-- Dense vector embeddings over chunks, via sqlite-vec. One embedding per
-- chunk (chunk_id is the key); vec0 stores the packed float32 blob and
-- measures cosine distance.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);
CREATE TABLE IF NOT EXISTS embeddings_meta (
    chunk_id INTEGER PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
    model TEXT NOT NULL,
    dimensions INTEGER NOT NULL
);

-- Lexical index over (title, content), external-content against documents.
-- Canonicalized to exactly these two columns (see REDESIGN FLAGS).
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    title,
    content,
    content='documents',
    content_rowid='id',
    tokenize='porter unicode61'
);
CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, title, content) VALUES (new.id, new.title, new.content);
END;
CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, title, content) VALUES ('delete', old.id, old.title, old.content);
END;
CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, title, content) VALUES ('delete', old.id, old.title, old.content);
    INSERT INTO documents_fts(rowid, title, content) VALUES (new.id, new.title, new.content);
END;

-- Directed typed edges between documents (e.g. sent_message, mentioned_in_note).
CREATE TABLE IF NOT EXISTS relationships (
    id INTEGER PRIMARY KEY,
    from_document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    to_document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    relationship_type TEXT NOT NULL,
    strength REAL NOT NULL DEFAULT 1.0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_document_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_document_id);

-- Contact-identity graph: optional module, referenced by ingestion only.
CREATE TABLE IF NOT EXISTS contact_entities (
    id INTEGER PRIMARY KEY,
    display_name TEXT NOT NULL,
    organization TEXT,
    metadata JSON
);
CREATE TABLE IF NOT EXISTS contact_identities (
    id INTEGER PRIMARY KEY,
    contact_entity_id INTEGER NOT NULL REFERENCES contact_entities(id) ON DELETE CASCADE,
    platform TEXT NOT NULL,
    handle TEXT NOT NULL,
    UNIQUE(platform, handle)
);
CREATE TABLE IF NOT EXISTS contact_relationships (
    id INTEGER PRIMARY KEY,
    contact_entity_id INTEGER NOT NULL REFERENCES contact_entities(id) ON DELETE CASCADE,
    strength REAL NOT NULL DEFAULT 0,
    frequency INTEGER NOT NULL DEFAULT 0,
    last_event_at INTEGER
);
CREATE TABLE IF NOT EXISTS communication_events (
    id INTEGER PRIMARY KEY,
    contact_entity_id INTEGER NOT NULL REFERENCES contact_entities(id) ON DELETE CASCADE,
    document_id INTEGER REFERENCES documents(id) ON DELETE SET NULL,
    occurred_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comm_events_contact ON communication_events(contact_entity_id);

-- Append-only audit log of tool invocations.
CREATE TABLE IF NOT EXISTS audit_records (
    id INTEGER PRIMARY KEY,
    correlation_id TEXT NOT NULL,
    plan_id TEXT NOT NULL,
    step_index INTEGER NOT NULL,
    tool_name TEXT NOT NULL,
    arguments JSON,
    is_dry_run INTEGER NOT NULL,
    result JSON,
    error TEXT,
    duration_ms INTEGER NOT NULL,
    operation_hash TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_records(correlation_id);
CREATE INDEX IF NOT EXISTS idx_audit_plan ON audit_records(plan_id);
CREATE INDEX IF NOT EXISTS idx_audit_operation_hash ON audit_records(operation_hash, plan_id);

-- Query audit log (diagnostic: what was asked, what search shape answered it).
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    query TEXT NOT NULL,
    search_type TEXT,
    result_count INTEGER,
    elapsed_ms INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`, embeddingDim)
}
