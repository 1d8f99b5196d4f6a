package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/content"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/events"
)

type documentListPayload struct {
	Documents []content.Document `json:"documents"`
}

type versionListPayload struct {
	Versions []content.VersionSnapshot `json:"versions"`
}

func openSession(testContext *testing.T, harness *testServer, body any) sessionResponsePayload {
	testContext.Helper()
	response := harness.do(testContext, http.MethodPost, "/admin/sessions", body, true)
	return decodeResponse[sessionResponsePayload](testContext, response, http.StatusCreated)
}

func addBlock(testContext *testing.T, harness *testServer, sessionID string, blockType content.BlockType) content.Block {
	testContext.Helper()
	response := harness.do(testContext, http.MethodPost, "/admin/sessions/"+sessionID+"/blocks", map[string]string{"type": string(blockType)}, true)
	return decodeResponse[blockResponsePayload](testContext, response, http.StatusCreated).Block
}

func TestAdminRoutesRequireToken(testContext *testing.T) {
	harness := newTestServer(testContext, testServerOptions{})

	expectStatus(testContext, harness.do(testContext, http.MethodPost, "/admin/sessions", nil, false), http.StatusUnauthorized)
	expectStatus(testContext, harness.do(testContext, http.MethodGet, "/admin/documents", nil, false), http.StatusUnauthorized)
}

func TestEditorWorkflowSavesAndPublishes(testContext *testing.T) {
	harness := newTestServer(testContext, testServerOptions{})

	opened := openSession(testContext, harness, nil)
	if opened.State != content.StateEditing.String() || opened.Document.ID != "" {
		testContext.Fatalf("unexpected new session %+v", opened)
	}
	sessionPath := "/admin/sessions/" + opened.SessionID

	text := addBlock(testContext, harness, opened.SessionID, content.BlockTypeText)
	code := addBlock(testContext, harness, opened.SessionID, content.BlockTypeCode)
	if code.Data.(content.CodeData).Language != "plaintext" {
		testContext.Fatalf("unexpected code defaults %+v", code.Data)
	}

	patched := decodeResponse[blockResponsePayload](testContext,
		harness.do(testContext, http.MethodPatch, sessionPath+"/blocks/"+text.ID, map[string]any{"data": map[string]string{"text": "hello"}}, true),
		http.StatusOK)
	if patched.Block.Data.(content.TextData).Text != "hello" {
		testContext.Fatalf("unexpected patched block %+v", patched.Block)
	}

	reordered := decodeResponse[sessionResponsePayload](testContext,
		harness.do(testContext, http.MethodPost, sessionPath+"/reorder", map[string]int{"from": 1, "to": 0}, true),
		http.StatusOK)
	if got := reordered.Document.Blocks; len(got) != 2 || got[0].ID != code.ID || got[1].ID != text.ID {
		testContext.Fatalf("unexpected order after reorder %+v", got)
	}

	decodeResponse[sessionResponsePayload](testContext,
		harness.do(testContext, http.MethodPatch, sessionPath+"/metadata", map[string]string{
			"title":  "Hello",
			"slug":   "hello",
			"status": "published",
		}, true),
		http.StatusOK)

	saved := decodeResponse[sessionResponsePayload](testContext,
		harness.do(testContext, http.MethodPost, sessionPath+"/save", nil, true),
		http.StatusOK)
	if saved.Document.ID == "" || saved.State != content.StateSaved.String() {
		testContext.Fatalf("unexpected save result %+v", saved)
	}
	harness.sessions.WaitForSnapshots()

	published := harness.publisher.recorded()
	if len(published) != 1 || published[0].Type != events.TypeDocumentPublished || published[0].Payload.DocumentID != saved.Document.ID {
		testContext.Fatalf("unexpected published events %+v", published)
	}

	public := decodeResponse[documentListPayload](testContext,
		harness.do(testContext, http.MethodGet, "/documents?kind=post", nil, false),
		http.StatusOK)
	if len(public.Documents) != 1 || public.Documents[0].Slug != "hello" || len(public.Documents[0].Blocks) != 2 {
		testContext.Fatalf("unexpected public documents %+v", public.Documents)
	}

	single := decodeResponse[content.Document](testContext,
		harness.do(testContext, http.MethodGet, "/documents/"+saved.Document.ID, nil, false),
		http.StatusOK)
	if single.Title != "Hello" {
		testContext.Fatalf("unexpected document %+v", single)
	}

	versions := decodeResponse[versionListPayload](testContext,
		harness.do(testContext, http.MethodGet, "/admin/documents/"+saved.Document.ID+"/versions", nil, true),
		http.StatusOK)
	if len(versions.Versions) != 1 || len(versions.Versions[0].Blocks) != 2 {
		testContext.Fatalf("unexpected versions %+v", versions.Versions)
	}
}

func TestDraftDocumentsStayPrivate(testContext *testing.T) {
	harness := newTestServer(testContext, testServerOptions{})

	opened := openSession(testContext, harness, nil)
	sessionPath := "/admin/sessions/" + opened.SessionID
	expectStatus(testContext, harness.do(testContext, http.MethodPatch, sessionPath+"/metadata", map[string]string{"title": "Draft"}, true), http.StatusOK)
	saved := decodeResponse[sessionResponsePayload](testContext,
		harness.do(testContext, http.MethodPost, sessionPath+"/save", nil, true),
		http.StatusOK)

	expectStatus(testContext, harness.do(testContext, http.MethodGet, "/documents/"+saved.Document.ID, nil, false), http.StatusNotFound)
	public := decodeResponse[documentListPayload](testContext, harness.do(testContext, http.MethodGet, "/documents", nil, false), http.StatusOK)
	if len(public.Documents) != 0 {
		testContext.Fatalf("expected no public documents, got %+v", public.Documents)
	}
	admin := decodeResponse[documentListPayload](testContext, harness.do(testContext, http.MethodGet, "/admin/documents?status=draft", nil, true), http.StatusOK)
	if len(admin.Documents) != 1 {
		testContext.Fatalf("expected one draft, got %+v", admin.Documents)
	}
	if len(harness.publisher.recorded()) != 0 {
		testContext.Fatalf("drafts must not publish events")
	}
}

func TestOpenSessionLoadsExistingDocument(testContext *testing.T) {
	harness := newTestServer(testContext, testServerOptions{})

	document := content.NewDocument()
	document.Title = "Stored"
	document.Blocks = []content.Block{{ID: "block-1", Data: content.TextData{Text: "kept"}}}
	stored, err := harness.store.UpsertDocument(context.Background(), document)
	if err != nil {
		testContext.Fatalf("failed to seed document: %v", err)
	}

	opened := openSession(testContext, harness, map[string]string{"document_id": stored.ID})
	if opened.Document.ID != stored.ID || len(opened.Document.Blocks) != 1 {
		testContext.Fatalf("unexpected loaded session %+v", opened)
	}

	expectStatus(testContext, harness.do(testContext, http.MethodPost, "/admin/sessions", map[string]string{"document_id": "missing"}, true), http.StatusNotFound)
	if harness.sessions.Len() != 1 {
		testContext.Fatalf("failed load must not leave a session behind, have %d", harness.sessions.Len())
	}
}

func TestSessionErrorsMapToStatuses(testContext *testing.T) {
	harness := newTestServer(testContext, testServerOptions{})
	opened := openSession(testContext, harness, nil)
	sessionPath := "/admin/sessions/" + opened.SessionID
	block := addBlock(testContext, harness, opened.SessionID, content.BlockTypeCTA)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "unknown session", method: http.MethodGet, path: "/admin/sessions/missing", want: http.StatusNotFound},
		{name: "unknown block type", method: http.MethodPost, path: sessionPath + "/blocks", body: map[string]string{"type": "video"}, want: http.StatusBadRequest},
		{name: "unknown block", method: http.MethodDelete, path: sessionPath + "/blocks/missing", want: http.StatusNotFound},
		{name: "reorder out of range", method: http.MethodPost, path: sessionPath + "/reorder", body: map[string]int{"from": 0, "to": 3}, want: http.StatusBadRequest},
		{name: "reorder missing index", method: http.MethodPost, path: sessionPath + "/reorder", body: map[string]int{"from": 0}, want: http.StatusBadRequest},
		{name: "invalid variant", method: http.MethodPatch, path: sessionPath + "/blocks/" + block.ID, body: map[string]any{"data": map[string]string{"variant": "loud"}}, want: http.StatusBadRequest},
		{name: "foreign field", method: http.MethodPatch, path: sessionPath + "/blocks/" + block.ID, body: map[string]any{"data": map[string]string{"code": "x"}}, want: http.StatusBadRequest},
		{name: "unknown metadata", method: http.MethodPatch, path: sessionPath + "/metadata", body: map[string]string{"author": "me"}, want: http.StatusBadRequest},
		{name: "invalid status", method: http.MethodPatch, path: sessionPath + "/metadata", body: map[string]string{"title": "x", "status": "live"}, want: http.StatusBadRequest},
		{name: "blank title save", method: http.MethodPost, path: sessionPath + "/save", want: http.StatusBadRequest},
		{name: "invalid status filter", method: http.MethodGet, path: "/admin/documents?status=live", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		testContext.Run(tt.name, func(t *testing.T) {
			expectStatus(t, harness.do(t, tt.method, tt.path, tt.body, true), tt.want)
		})
	}

	current := decodeResponse[sessionResponsePayload](testContext, harness.do(testContext, http.MethodGet, sessionPath, nil, true), http.StatusOK)
	if current.Document.Title != "" {
		testContext.Fatalf("rejected metadata must not be applied, got title %q", current.Document.Title)
	}
}

func TestRemoveBlockAndCloseSession(testContext *testing.T) {
	harness := newTestServer(testContext, testServerOptions{})
	opened := openSession(testContext, harness, nil)
	sessionPath := "/admin/sessions/" + opened.SessionID
	block := addBlock(testContext, harness, opened.SessionID, content.BlockTypeImage)

	expectStatus(testContext, harness.do(testContext, http.MethodDelete, sessionPath+"/blocks/"+block.ID, nil, true), http.StatusNoContent)
	current := decodeResponse[sessionResponsePayload](testContext, harness.do(testContext, http.MethodGet, sessionPath, nil, true), http.StatusOK)
	if len(current.Document.Blocks) != 0 {
		testContext.Fatalf("expected block removed, got %+v", current.Document.Blocks)
	}

	expectStatus(testContext, harness.do(testContext, http.MethodDelete, sessionPath, nil, true), http.StatusNoContent)
	expectStatus(testContext, harness.do(testContext, http.MethodGet, sessionPath, nil, true), http.StatusNotFound)
}

func TestGalleryUploadAppendsSuccessfulFiles(testContext *testing.T) {
	harness := newTestServer(testContext, testServerOptions{})
	opened := openSession(testContext, harness, nil)
	gallery := addBlock(testContext, harness, opened.SessionID, content.BlockTypeGallery)

	response := harness.upload(testContext, "/admin/sessions/"+opened.SessionID+"/blocks/"+gallery.ID+"/gallery", galleryFormField, []multipartFile{
		{name: "one.png", contentType: "image/png", body: "first"},
		{name: "notes.txt", contentType: "text/plain", body: "not an image"},
		{name: "three.jpg", contentType: "image/jpeg", body: "third"},
	})
	result := decodeResponse[galleryUploadResponsePayload](testContext, response, http.StatusOK)

	if len(result.Uploaded) != 2 || len(result.Failed) != 1 || result.Failed[0].Index != 1 || result.Failed[0].Name != "notes.txt" {
		testContext.Fatalf("unexpected upload result %+v", result)
	}
	urls := result.Block.Data.(content.GalleryData).URLs
	if len(urls) != 2 || !strings.HasSuffix(urls[0], ".png") || !strings.HasSuffix(urls[1], ".jpg") {
		testContext.Fatalf("expected urls in selection order, got %v", urls)
	}

	key := strings.TrimPrefix(urls[0], testMediaBaseURL+"/")
	stored, err := os.ReadFile(filepath.Join(harness.mediaRoot, filepath.FromSlash(key)))
	if err != nil || string(stored) != "first" {
		testContext.Fatalf("expected stored upload, got %q (%v)", stored, err)
	}

	served := harness.do(testContext, http.MethodGet, "/media/"+key, nil, false)
	defer served.Body.Close()
	body, _ := io.ReadAll(served.Body)
	if served.StatusCode != http.StatusOK || string(body) != "first" || served.Header.Get("Content-Type") != "image/png" {
		testContext.Fatalf("unexpected served media: %d %q %q", served.StatusCode, body, served.Header.Get("Content-Type"))
	}
}

func TestGalleryUploadRejectsOtherBlocks(testContext *testing.T) {
	harness := newTestServer(testContext, testServerOptions{})
	opened := openSession(testContext, harness, nil)
	text := addBlock(testContext, harness, opened.SessionID, content.BlockTypeText)

	response := harness.upload(testContext, "/admin/sessions/"+opened.SessionID+"/blocks/"+text.ID+"/gallery", galleryFormField, []multipartFile{
		{name: "one.png", contentType: "image/png", body: "first"},
	})
	expectStatus(testContext, response, http.StatusBadRequest)
}

func TestUploadMediaReturnsURLOrBadGateway(testContext *testing.T) {
	harness := newTestServer(testContext, testServerOptions{})

	accepted := decodeResponse[map[string]string](testContext,
		harness.upload(testContext, "/admin/media", mediaFormField, []multipartFile{{name: "cover.webp", contentType: "image/webp", body: "cover"}}),
		http.StatusCreated)
	if !strings.HasPrefix(accepted["url"], testMediaBaseURL+"/media/") {
		testContext.Fatalf("unexpected url %q", accepted["url"])
	}

	rejected := decodeResponse[map[string]string](testContext,
		harness.upload(testContext, "/admin/media", mediaFormField, []multipartFile{{name: "cv.pdf", contentType: "application/pdf", body: "pdf"}}),
		http.StatusBadGateway)
	if _, ok := rejected["url"]; ok {
		testContext.Fatalf("failed upload must not return a url: %v", rejected)
	}

	expectStatus(testContext, harness.do(testContext, http.MethodGet, "/media/media/missing.png", nil, false), http.StatusNotFound)
}
