package documents

import (
	"gorm.io/datatypes"
)

// DocumentRecord stores the current state of one document. Blocks are kept
// as a JSON array in their wire shape.
type DocumentRecord struct {
	DocumentID      string         `gorm:"column:document_id;primaryKey;size:190;not null"`
	Kind            string         `gorm:"column:kind;size:64;not null;index:idx_documents_kind_status,priority:1"`
	Status          string         `gorm:"column:status;size:32;not null;index:idx_documents_kind_status,priority:2"`
	Title           string         `gorm:"column:title;type:text;not null"`
	Slug            string         `gorm:"column:slug;size:190;not null;default:'';index:idx_documents_slug"`
	BlocksJSON      datatypes.JSON `gorm:"column:blocks_json;not null"`
	CreatedAtMillis int64          `gorm:"column:created_at_ms;not null"`
	UpdatedAtMillis int64          `gorm:"column:updated_at_ms;not null;index:idx_documents_updated"`
}

// TableName provides the explicit table binding for GORM.
func (DocumentRecord) TableName() string {
	return "documents"
}

// VersionRecord is an append-only copy of a document's blocks at save time.
type VersionRecord struct {
	VersionID       string         `gorm:"column:version_id;primaryKey;size:190;not null"`
	DocumentID      string         `gorm:"column:document_id;size:190;not null;index:idx_versions_document_time,priority:1"`
	SnapshotJSON    datatypes.JSON `gorm:"column:snapshot_json;not null"`
	CreatedAtMillis int64          `gorm:"column:created_at_ms;not null;index:idx_versions_document_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (VersionRecord) TableName() string {
	return "document_versions"
}

// Models lists the tables owned by this package for schema migration.
func Models() []any {
	return []any{&DocumentRecord{}, &VersionRecord{}}
}
