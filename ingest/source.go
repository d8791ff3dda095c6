// Package ingest implements the source-extractor interface (C4) and the
// coordinator that drives every registered source through chunking,
// embedding, and tombstoning (C5), in the teacher's batched-transaction
// idiom generalized from a single store into a multi-source pipeline.
package ingest

import (
	"context"
	"time"

	"github.com/kenny-project/kenny/store"
)

// RawRecord is one unvarnished item read from a source, before it's
// turned into a store.Document. SourceID, together with the app source
// the coordinator derives from the source's registered name, identifies
// it for the upsert contract; Stable carries the fields HashDocument should hash
// alongside (title, source_id) to decide whether the content changed.
type RawRecord struct {
	Type       store.DocumentType
	Title      string
	Content    string
	SourceID   string
	SourcePath string
	Stable     []string
	Metadata   map[string]string

	// Satellite carries type-specific fields the coordinator writes into
	// the matching satellite table after the document row is upserted.
	Satellite any
}

// EmailSatellite maps to the email_meta table.
type EmailSatellite struct {
	ThreadID string
	From     string
	To       string
	CC       string
	SentAt   int64
	Flags    string
	Mailbox  string
}

// EventSatellite maps to the event_meta table.
type EventSatellite struct {
	StartAt  int64
	EndAt    int64
	Location string
}

// MessageSatellite maps to the message_meta table.
type MessageSatellite struct {
	ThreadID    string
	FromContact string
	IsFromMe    bool
	Service     string
	ChatName    string
	OccurredAt  int64
}

// ReminderSatellite maps to the reminder_meta table.
type ReminderSatellite struct {
	DueAt     int64
	Completed bool
	ListName  string
}

// NoteSatellite maps to the note_meta table.
type NoteSatellite struct {
	Folder string
}

// FileSatellite maps to the file_meta table.
type FileSatellite struct {
	MimeType   string
	SizeBytes  int64
	ModifiedAt int64
}

// ContactSatellite maps to the contact_meta table, plus the
// platform/handle pairs that resolve this contact in the
// contact-identity graph (e.g. an email address and a phone number
// both belonging to the same person).
type ContactSatellite struct {
	DisplayName  string
	Organization string
	Identities   []ContactIdentity
}

// ContactIdentity is one platform-specific handle for a contact.
type ContactIdentity struct {
	Platform string
	Handle   string
}

// Source is implemented by every concrete extractor (Calendar, Mail,
// Messages, Contacts, WhatsApp, Notes, Files, Reminders). Ingest streams
// records on the returned channel and closes it when done, or when ctx
// is canceled. fullSync requests every item the source has; an
// incremental sync requests only items changed since the given time.
type Source interface {
	Name() string
	Ingest(ctx context.Context, fullSync bool, since *time.Time) (<-chan RawRecord, error)
}
