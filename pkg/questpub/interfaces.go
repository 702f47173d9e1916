package questpub

import (
	"context"
	"io"
)

// BlobStore defines the interface for storage backends holding quest
// content artifacts
type BlobStore interface {
	// Upload uploads content directly
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// PublicURL returns the externally resolvable URL of an object
	PublicURL(objectKey string) string

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error
}

// Repository defines the record store for quest metadata
type Repository interface {
	// GetQuest returns the quest with id, tombstoned or not, or ErrQuestNotFound
	GetQuest(ctx context.Context, id string) (*Quest, error)

	// UpsertQuest inserts q or replaces every column of the existing row.
	// Tombstoned rows are left untouched and ErrTombstoned is returned.
	UpsertQuest(ctx context.Context, q *Quest) error

	// UpsertQuestColumns inserts a row holding only the given columns, or
	// overwrites exactly those columns of the existing row.
	UpsertQuestColumns(ctx context.Context, id string, values ColumnValues) error

	// SearchQuests executes a built search
	SearchQuests(ctx context.Context, q *SearchQuery) ([]*Quest, error)
}

// Translator derives quest metadata from document content
type Translator interface {
	Translate(content []byte) (*Quest, error)
}

// EventSink defines the interface for lifecycle event handling
type EventSink interface {
	// QuestPublished is fired after a quest record was written by publish
	QuestPublished(ctx context.Context, quest *Quest) error

	// QuestUnpublished is fired after a quest was tombstoned
	QuestUnpublished(ctx context.Context, questID string) error
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}
