package events

import (
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/content"
)

const TypeDocumentPublished = "document.published"

type DocumentPublishedPayload struct {
	DocumentID string `json:"document_id"`
	Kind       string `json:"kind"`
	Slug       string `json:"slug"`
	Title      string `json:"title"`
}

// DocumentPublished is emitted after a published document is saved.
type DocumentPublished struct {
	Type      string                   `json:"type"`
	Timestamp time.Time                `json:"timestamp"`
	Payload   DocumentPublishedPayload `json:"payload"`
}

func NewDocumentPublished(document content.Document, now time.Time) DocumentPublished {
	return DocumentPublished{
		Type:      TypeDocumentPublished,
		Timestamp: now.UTC(),
		Payload: DocumentPublishedPayload{
			DocumentID: document.ID,
			Kind:       document.Kind,
			Slug:       document.Slug,
			Title:      document.Title,
		},
	}
}
