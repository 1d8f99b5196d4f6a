package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/content"
)

func TestNewDocumentPublishedWireShape(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	event := NewDocumentPublished(content.Document{
		ID:     "doc-1",
		Kind:   "post",
		Slug:   "hello",
		Title:  "Hello",
		Status: content.StatusPublished,
	}, now)

	encoded, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"type":"document.published","timestamp":"2026-03-01T11:00:00Z","payload":{"document_id":"doc-1","kind":"post","slug":"hello","title":"Hello"}}`
	if string(encoded) != expected {
		t.Fatalf("unexpected encoding %s", encoded)
	}
}

func TestNoopPublisherAcceptsEverything(t *testing.T) {
	var publisher Publisher = NoopPublisher{}
	if err := publisher.PublishDocumentPublished(context.Background(), DocumentPublished{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

func TestNewRabbitMQPublisherRejectsInvalidURL(t *testing.T) {
	if _, err := NewRabbitMQPublisher("not a broker url"); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestClosedRabbitMQPublisherRefusesPublish(t *testing.T) {
	publisher := &RabbitMQPublisher{}
	if err := publisher.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	err := publisher.PublishDocumentPublished(context.Background(), DocumentPublished{Type: TypeDocumentPublished})
	if !errors.Is(err, errPublisherClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}
