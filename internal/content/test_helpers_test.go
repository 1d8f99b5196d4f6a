package content

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type stubGateway struct {
	mu          sync.Mutex
	documents   map[string]Document
	snapshots   []VersionSnapshot
	upsertCalls int
	upserted    []Document
	upsertErr   error
	snapshotErr error
	getErr      error
	beforeReply func(Document)
	nextID      int
}

func newStubGateway() *stubGateway {
	return &stubGateway{documents: make(map[string]Document)}
}

func (g *stubGateway) ListDocuments(_ context.Context, filter ListFilter) ([]Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	documents := make([]Document, 0, len(g.documents))
	for _, document := range g.documents {
		if filter.Kind != "" && document.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && document.Status != filter.Status {
			continue
		}
		documents = append(documents, document.Clone())
	}
	return documents, nil
}

func (g *stubGateway) GetDocument(_ context.Context, documentID string) (Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return Document{}, g.getErr
	}
	document, ok := g.documents[documentID]
	if !ok {
		return Document{}, &PersistenceError{Op: "get", Err: ErrDocumentNotFound}
	}
	return document.Clone(), nil
}

func (g *stubGateway) UpsertDocument(_ context.Context, document Document) (Document, error) {
	g.mu.Lock()
	g.upsertCalls++
	g.upserted = append(g.upserted, document.Clone())
	hook := g.beforeReply
	if g.upsertErr != nil {
		err := g.upsertErr
		g.mu.Unlock()
		return Document{}, err
	}
	stored := document.Clone()
	if stored.ID == "" {
		g.nextID++
		stored.ID = fmt.Sprintf("doc-%d", g.nextID)
		stored.CreatedAt = stored.UpdatedAt
	}
	g.documents[stored.ID] = stored
	g.mu.Unlock()

	if hook != nil {
		hook(stored)
	}
	return stored.Clone(), nil
}

func (g *stubGateway) AppendVersionSnapshot(ctx context.Context, snapshot VersionSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshotErr != nil {
		return g.snapshotErr
	}
	g.snapshots = append(g.snapshots, snapshot)
	return nil
}

func (g *stubGateway) ListVersionSnapshots(_ context.Context, documentID string) ([]VersionSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var snapshots []VersionSnapshot
	for _, snapshot := range g.snapshots {
		if snapshot.DocumentID == documentID {
			snapshots = append(snapshots, snapshot)
		}
	}
	return snapshots, nil
}

func (g *stubGateway) upsertCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.upsertCalls
}

type sequentialIDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("%s-%d", p.prefix, p.next), nil
}

type repeatingIDs struct {
	value string
}

func (p repeatingIDs) NewID() (string, error) {
	return p.value, nil
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func newTestSession(t *testing.T, gateway Gateway) *Session {
	t.Helper()
	session, err := NewSession(SessionConfig{
		Gateway:    gateway,
		IDProvider: &sequentialIDs{prefix: "block"},
		Clock:      fixedClock,
	})
	if err != nil {
		t.Fatalf("unexpected session error: %v", err)
	}
	return session
}

func mustAddBlock(t *testing.T, session *Session, blockType BlockType) Block {
	t.Helper()
	block, err := session.AddBlock(blockType)
	if err != nil {
		t.Fatalf("unexpected add block error: %v", err)
	}
	return block
}

func mustDocument(t *testing.T, session *Session) Document {
	t.Helper()
	document, err := session.Document()
	if err != nil {
		t.Fatalf("unexpected document error: %v", err)
	}
	return document
}

func blockIDs(blocks []Block) []string {
	ids := make([]string, len(blocks))
	for index, block := range blocks {
		ids[index] = block.ID
	}
	return ids
}

func stringPointer(value string) *string {
	return &value
}
