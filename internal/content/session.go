package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the position of a Session in its editing lifecycle.
type State int

const (
	StateIdle State = iota
	StateEditing
	StateSaving
	StateSaved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateSaving:
		return "saving"
	case StateSaved:
		return "saved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	opSessionNew    = "content.session.new"
	opSessionLoad   = "content.session.load"
	opSessionSave   = "content.session.save"
	opSessionMutate = "content.session.mutate"

	maxBlockIDAttempts = 8
	snapshotTimeout    = 30 * time.Second
)

var (
	errMissingGateway    = errors.New("content: gateway is required")
	errMissingIDProvider = errors.New("content: id provider is required")
	errBlockIDExhausted  = errors.New("content: could not allocate a unique block id")
	noOpLogger           = zap.NewNop()
)

// SessionConfig describes the collaborators of an editing session.
type SessionConfig struct {
	Gateway    Gateway
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger

	// OnSaved runs after a successful upsert with the stored document.
	OnSaved func(Document)
	// OnSnapshotFailed runs when the detached version append fails.
	OnSnapshotFailed func(*SnapshotError)
}

// Session owns one document as a mutable working copy. All operations are
// safe for concurrent use; mutations are serialized.
type Session struct {
	mu       sync.Mutex
	state    State
	document *Document
	revision uint64
	closed   bool

	gateway          Gateway
	idProvider       IDProvider
	clock            func() time.Time
	logger           *zap.Logger
	onSaved          func(Document)
	onSnapshotFailed func(*SnapshotError)

	snapshots sync.WaitGroup
}

// NewSession constructs an idle session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("%s: %w", opSessionNew, errMissingGateway)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("%s: %w", opSessionNew, errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Session{
		state:            StateIdle,
		gateway:          cfg.Gateway,
		idProvider:       cfg.IDProvider,
		clock:            clock,
		logger:           logger,
		onSaved:          cfg.OnSaved,
		onSnapshotFailed: cfg.OnSnapshotFailed,
	}, nil
}

// New binds an empty draft and enters the editing state.
func (s *Session) New() Document {
	return s.Bind(NewDocument())
}

// Bind makes a copy of document the working copy.
func (s *Session) Bind(document Document) Document {
	working := document.Clone()
	if working.Blocks == nil {
		working.Blocks = []Block{}
	}
	if working.Kind == "" {
		working.Kind = DefaultKind
	}
	if working.Status == "" {
		working.Status = StatusDraft
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = &working
	s.state = StateEditing
	s.revision++
	return working.Clone()
}

// Load reads documentID from the gateway and binds it.
func (s *Session) Load(ctx context.Context, documentID string) (Document, error) {
	document, err := s.gateway.GetDocument(ctx, documentID)
	if err != nil {
		s.logError(opSessionLoad, "gateway_get_failed", err, zap.String("document_id", documentID))
		return Document{}, err
	}
	return s.Bind(document), nil
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Document returns a deep copy of the working copy.
func (s *Session) Document() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.document == nil {
		return Document{}, ErrNoDocument
	}
	return s.document.Clone(), nil
}

// Block returns a copy of the block with blockID.
func (s *Session) Block(blockID string) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.document == nil {
		return Block{}, ErrNoDocument
	}
	index := s.document.BlockIndex(blockID)
	if index < 0 {
		return Block{}, ErrBlockNotFound
	}
	return s.document.Blocks[index].Clone(), nil
}

// AddBlock appends a block of blockType initialised with the variant default.
func (s *Session) AddBlock(blockType BlockType) (Block, error) {
	data, err := DefaultData(blockType)
	if err != nil {
		return Block{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.document == nil {
		return Block{}, ErrNoDocument
	}
	blockID, err := s.nextBlockID()
	if err != nil {
		s.logError(opSessionMutate, "block_id_failed", err)
		return Block{}, err
	}
	block := Block{ID: blockID, Data: data}
	s.document.Blocks = append(s.document.Blocks, block)
	s.touch()
	return block.Clone(), nil
}

// UpdateBlockData shallow-merges patch into the block's data.
func (s *Session) UpdateBlockData(blockID string, patch DataPatch) (Block, error) {
	if missingPatch(patch) {
		return Block{}, &ValidationError{Field: "data", Reason: "patch is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.document == nil {
		return Block{}, ErrNoDocument
	}
	index := s.document.BlockIndex(blockID)
	if index < 0 {
		s.logMissingBlock("update_block_data", blockID)
		return Block{}, ErrBlockNotFound
	}
	updated, err := patch.apply(s.document.Blocks[index].Data)
	if err != nil {
		return Block{}, err
	}
	s.document.Blocks[index].Data = updated
	s.touch()
	return s.document.Blocks[index].Clone(), nil
}

// AppendGalleryURLs adds uploaded URLs after the gallery's existing ones.
func (s *Session) AppendGalleryURLs(blockID string, urls []string) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.document == nil {
		return Block{}, ErrNoDocument
	}
	index := s.document.BlockIndex(blockID)
	if index < 0 {
		s.logMissingBlock("append_gallery_urls", blockID)
		return Block{}, ErrBlockNotFound
	}
	gallery, ok := s.document.Blocks[index].Data.(GalleryData)
	if !ok {
		return Block{}, &ValidationError{
			Field:  "type",
			Reason: fmt.Sprintf("block %s is a %s block, not a gallery", blockID, s.document.Blocks[index].Type()),
		}
	}
	merged := make([]string, 0, len(gallery.URLs)+len(urls))
	merged = append(merged, gallery.URLs...)
	merged = append(merged, urls...)
	s.document.Blocks[index].Data = GalleryData{URLs: merged}
	s.touch()
	return s.document.Blocks[index].Clone(), nil
}

// RemoveBlock deletes the block with blockID; later blocks shift left.
func (s *Session) RemoveBlock(blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.document == nil {
		return ErrNoDocument
	}
	index := s.document.BlockIndex(blockID)
	if index < 0 {
		s.logMissingBlock("remove_block", blockID)
		return ErrBlockNotFound
	}
	blocks := make([]Block, 0, len(s.document.Blocks)-1)
	blocks = append(blocks, s.document.Blocks[:index]...)
	blocks = append(blocks, s.document.Blocks[index+1:]...)
	s.document.Blocks = blocks
	s.touch()
	return nil
}

// ReorderBlock moves the block at from to to on the live block list.
func (s *Session) ReorderBlock(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.document == nil {
		return ErrNoDocument
	}
	reordered, err := Reorder(s.document.Blocks, from, to)
	if err != nil {
		return fmt.Errorf("%w: from=%d to=%d len=%d", err, from, to, len(s.document.Blocks))
	}
	if from == to {
		return nil
	}
	s.document.Blocks = reordered
	s.touch()
	return nil
}

// SetTitle replaces the title. Empty titles are allowed until save.
func (s *Session) SetTitle(title string) error {
	return s.mutateMetadata(func(document *Document) { document.Title = title })
}

// SetSlug replaces the slug; it is never derived from the title.
func (s *Session) SetSlug(slug string) error {
	return s.mutateMetadata(func(document *Document) { document.Slug = slug })
}

// SetStatus replaces the publication status.
func (s *Session) SetStatus(status Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	return s.mutateMetadata(func(document *Document) { document.Status = status })
}

// SetKind replaces the content family used by list filters.
func (s *Session) SetKind(kind string) error {
	trimmed := strings.TrimSpace(kind)
	if trimmed == "" {
		trimmed = DefaultKind
	}
	return s.mutateMetadata(func(document *Document) { document.Kind = trimmed })
}

// SetMetadata sets one of title, slug, status or kind by name.
func (s *Session) SetMetadata(field, value string) error {
	switch field {
	case "title":
		return s.SetTitle(value)
	case "slug":
		return s.SetSlug(value)
	case "status":
		return s.SetStatus(Status(value))
	case "kind":
		return s.SetKind(value)
	default:
		return &ValidationError{Field: "field", Reason: fmt.Sprintf("unknown metadata field %q", field)}
	}
}

func (s *Session) mutateMetadata(mutate func(*Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.document == nil {
		return ErrNoDocument
	}
	mutate(s.document)
	s.touch()
	return nil
}

// touch records a mutation. Callers hold s.mu.
func (s *Session) touch() {
	s.revision++
	if s.state == StateSaved {
		s.state = StateEditing
	}
}

// nextBlockID returns an id not used by any block of the working copy.
// Callers hold s.mu.
func (s *Session) nextBlockID() (string, error) {
	for attempt := 0; attempt < maxBlockIDAttempts; attempt++ {
		candidate, err := s.idProvider.NewID()
		if err != nil {
			return "", err
		}
		if candidate != "" && s.document.BlockIndex(candidate) < 0 {
			return candidate, nil
		}
	}
	return "", errBlockIDExhausted
}

func (s *Session) logMissingBlock(operation, blockID string) {
	s.logger.Debug("block not found",
		zap.String("operation", opSessionMutate),
		zap.String("mutation", operation),
		zap.String("block_id", blockID))
}

func (s *Session) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("content session error", attrs...)
}
