package content

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Status is the publication state of a document.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// ParseStatus validates raw input and returns a Status.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusDraft, StatusPublished:
		return Status(raw), nil
	default:
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", raw)}
	}
}

// DefaultKind is the content family assigned to new documents.
const DefaultKind = "post"

// Document is a post: metadata plus an ordered list of blocks.
type Document struct {
	ID        string    `json:"id,omitempty"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Status    Status    `json:"status"`
	Blocks    []Block   `json:"blocks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocument returns an empty, unsaved draft.
func NewDocument() Document {
	return Document{
		Kind:   DefaultKind,
		Status: StatusDraft,
		Blocks: []Block{},
	}
}

// Clone returns a deep copy of the document, blocks included.
func (d Document) Clone() Document {
	clone := d
	clone.Blocks = cloneBlocks(d.Blocks)
	return clone
}

// BlockIndex returns the position of the block with blockID, or -1.
func (d Document) BlockIndex(blockID string) int {
	return slices.IndexFunc(d.Blocks, func(block Block) bool {
		return block.ID == blockID
	})
}

// VersionSnapshot is an immutable copy of a document's blocks taken at save time.
type VersionSnapshot struct {
	ID         string    `json:"id,omitempty"`
	DocumentID string    `json:"content_id"`
	Blocks     []Block   `json:"snapshot"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListFilter narrows ListDocuments; zero values match everything.
type ListFilter struct {
	Kind   string
	Status Status
}

// Gateway is the storage boundary the editor depends on. Implementations
// convert transport and store failures into PersistenceError.
type Gateway interface {
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error)
	GetDocument(ctx context.Context, documentID string) (Document, error)
	UpsertDocument(ctx context.Context, document Document) (Document, error)
	AppendVersionSnapshot(ctx context.Context, snapshot VersionSnapshot) error
	ListVersionSnapshots(ctx context.Context, documentID string) ([]VersionSnapshot, error)
}
