package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/content"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingDocumentID = errors.New("document identifier is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a dotted operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew       = "documents.store.new"
	opListDocuments  = "documents.list"
	opGetDocument    = "documents.get"
	opUpsertDocument = "documents.upsert"
	opAppendVersion  = "documents.append_version"
	opListVersions   = "documents.list_versions"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// StoreConfig wires the collaborators of a Store.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider content.IDProvider
	Logger     *zap.Logger
}

// Store is the gorm-backed content.Gateway.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider content.IDProvider
	logger     *zap.Logger
}

var _ content.Gateway = (*Store)(nil)

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ListDocuments returns documents matching filter, most recently updated first.
func (s *Store) ListDocuments(ctx context.Context, filter content.ListFilter) ([]content.Document, error) {
	query := s.db.WithContext(ctx).Model(&DocumentRecord{})
	if kind := strings.TrimSpace(filter.Kind); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}

	var records []DocumentRecord
	if err := query.Order("updated_at_ms DESC").Order("document_id ASC").Find(&records).Error; err != nil {
		return nil, s.fail(opListDocuments, "query_failed", err, zap.String("kind", filter.Kind))
	}

	documents := make([]content.Document, 0, len(records))
	for _, record := range records {
		document, err := record.toDocument()
		if err != nil {
			return nil, s.fail(opListDocuments, "decode_failed", err, zap.String("document_id", record.DocumentID))
		}
		documents = append(documents, document)
	}
	return documents, nil
}

// GetDocument loads one document by id.
func (s *Store) GetDocument(ctx context.Context, documentID string) (content.Document, error) {
	trimmed := strings.TrimSpace(documentID)
	if trimmed == "" {
		return content.Document{}, s.fail(opGetDocument, "missing_document_id", errMissingDocumentID)
	}

	var record DocumentRecord
	err := s.db.WithContext(ctx).Where("document_id = ?", trimmed).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return content.Document{}, &content.PersistenceError{
			Op:  opGetDocument,
			Err: newServiceError(opGetDocument, "not_found", content.ErrDocumentNotFound),
		}
	}
	if err != nil {
		return content.Document{}, s.fail(opGetDocument, "query_failed", err, zap.String("document_id", trimmed))
	}

	document, err := record.toDocument()
	if err != nil {
		return content.Document{}, s.fail(opGetDocument, "decode_failed", err, zap.String("document_id", trimmed))
	}
	return document, nil
}

// UpsertDocument inserts a document without an id under a fresh id, or
// replaces the stored row for an existing id. CreatedAt is kept from the
// first insert.
func (s *Store) UpsertDocument(ctx context.Context, document content.Document) (content.Document, error) {
	updatedAt := document.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.clock()
	}
	updatedAt = updatedAt.UTC()

	blocks := document.Blocks
	if blocks == nil {
		blocks = []content.Block{}
	}
	blocksJSON, err := json.Marshal(blocks)
	if err != nil {
		return content.Document{}, s.fail(opUpsertDocument, "encode_failed", err)
	}

	record := DocumentRecord{
		DocumentID:      strings.TrimSpace(document.ID),
		Kind:            document.Kind,
		Status:          string(document.Status),
		Title:           document.Title,
		Slug:            document.Slug,
		BlocksJSON:      datatypes.JSON(blocksJSON),
		UpdatedAtMillis: updatedAt.UnixMilli(),
	}
	if record.Kind == "" {
		record.Kind = content.DefaultKind
	}
	if record.Status == "" {
		record.Status = string(content.StatusDraft)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if record.DocumentID == "" {
			documentID, err := s.idProvider.NewID()
			if err != nil {
				return newServiceError(opUpsertDocument, "id_generation_failed", err)
			}
			record.DocumentID = documentID
			record.CreatedAtMillis = record.UpdatedAtMillis
			if err := tx.Create(&record).Error; err != nil {
				return newServiceError(opUpsertDocument, "insert_failed", err)
			}
			return nil
		}

		var existing DocumentRecord
		err := tx.Where("document_id = ?", record.DocumentID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			record.CreatedAtMillis = record.UpdatedAtMillis
		case err != nil:
			return newServiceError(opUpsertDocument, "select_failed", err)
		default:
			record.CreatedAtMillis = existing.CreatedAtMillis
		}
		if err := tx.Save(&record).Error; err != nil {
			return newServiceError(opUpsertDocument, "save_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opUpsertDocument, "transaction_failed", txErr,
			zap.String("document_id", record.DocumentID),
			zap.String("slug", record.Slug))
		return content.Document{}, &content.PersistenceError{Op: opUpsertDocument, Err: txErr}
	}

	return record.toDocument()
}

// AppendVersionSnapshot records snapshot as a new version row. Rows are
// never updated.
func (s *Store) AppendVersionSnapshot(ctx context.Context, snapshot content.VersionSnapshot) error {
	documentID := strings.TrimSpace(snapshot.DocumentID)
	if documentID == "" {
		return s.fail(opAppendVersion, "missing_document_id", errMissingDocumentID)
	}
	versionID, err := s.idProvider.NewID()
	if err != nil {
		return s.fail(opAppendVersion, "id_generation_failed", err, zap.String("document_id", documentID))
	}

	blocks := snapshot.Blocks
	if blocks == nil {
		blocks = []content.Block{}
	}
	snapshotJSON, err := json.Marshal(blocks)
	if err != nil {
		return s.fail(opAppendVersion, "encode_failed", err, zap.String("document_id", documentID))
	}
	createdAt := snapshot.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}

	record := VersionRecord{
		VersionID:       versionID,
		DocumentID:      documentID,
		SnapshotJSON:    datatypes.JSON(snapshotJSON),
		CreatedAtMillis: createdAt.UTC().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return s.fail(opAppendVersion, "insert_failed", err, zap.String("document_id", documentID))
	}
	return nil
}

// ListVersionSnapshots returns the versions of documentID, newest first.
func (s *Store) ListVersionSnapshots(ctx context.Context, documentID string) ([]content.VersionSnapshot, error) {
	trimmed := strings.TrimSpace(documentID)
	if trimmed == "" {
		return nil, s.fail(opListVersions, "missing_document_id", errMissingDocumentID)
	}

	var records []VersionRecord
	err := s.db.WithContext(ctx).
		Where("document_id = ?", trimmed).
		Order("created_at_ms DESC").
		Order("version_id DESC").
		Find(&records).Error
	if err != nil {
		return nil, s.fail(opListVersions, "query_failed", err, zap.String("document_id", trimmed))
	}

	snapshots := make([]content.VersionSnapshot, 0, len(records))
	for _, record := range records {
		var blocks []content.Block
		if err := json.Unmarshal(record.SnapshotJSON, &blocks); err != nil {
			return nil, s.fail(opListVersions, "decode_failed", err, zap.String("version_id", record.VersionID))
		}
		snapshots = append(snapshots, content.VersionSnapshot{
			ID:         record.VersionID,
			DocumentID: record.DocumentID,
			Blocks:     blocks,
			CreatedAt:  time.UnixMilli(record.CreatedAtMillis).UTC(),
		})
	}
	return snapshots, nil
}

func (r DocumentRecord) toDocument() (content.Document, error) {
	blocks := []content.Block{}
	if len(r.BlocksJSON) > 0 {
		if err := json.Unmarshal(r.BlocksJSON, &blocks); err != nil {
			return content.Document{}, err
		}
	}
	return content.Document{
		ID:        r.DocumentID,
		Kind:      r.Kind,
		Title:     r.Title,
		Slug:      r.Slug,
		Status:    content.Status(r.Status),
		Blocks:    blocks,
		CreatedAt: time.UnixMilli(r.CreatedAtMillis).UTC(),
		UpdatedAt: time.UnixMilli(r.UpdatedAtMillis).UTC(),
	}, nil
}

func (s *Store) fail(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return &content.PersistenceError{Op: operation, Err: newServiceError(operation, reason, err)}
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("documents store error", attrs...)
}
