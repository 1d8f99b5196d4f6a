package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/content"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/media"
	"github.com/gin-gonic/gin"
)

const (
	opOpenSession    = "server.open_session"
	opSessionMutate  = "server.session_mutate"
	opSaveSession    = "server.save_session"
	opGalleryUpload  = "server.gallery_upload"
	opListDocuments  = "server.list_documents"
	opGetDocument    = "server.get_document"
	opListVersions   = "server.list_versions"
	galleryFormField = "files"
)

var metadataFields = []string{"title", "slug", "status", "kind"}

type sessionResponsePayload struct {
	SessionID string           `json:"session_id"`
	State     string           `json:"state"`
	Document  content.Document `json:"document"`
}

type blockResponsePayload struct {
	Block content.Block `json:"block"`
}

func (h *httpHandler) sessionPayload(entry *editorSession) (sessionResponsePayload, error) {
	document, err := entry.session.Document()
	if err != nil {
		return sessionResponsePayload{}, err
	}
	return sessionResponsePayload{
		SessionID: entry.id,
		State:     entry.session.State().String(),
		Document:  document,
	}, nil
}

func (h *httpHandler) lookupSession(c *gin.Context) (*editorSession, bool) {
	entry, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		h.respondError(c, opSessionMutate, err)
		return nil, false
	}
	return entry, true
}

type openSessionRequestPayload struct {
	DocumentID string `json:"document_id"`
}

func (h *httpHandler) handleOpenSession(c *gin.Context) {
	var request openSessionRequestPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}

	entry, err := h.sessions.Open(c.GetString(subjectContextKey))
	if err != nil {
		h.respondError(c, opOpenSession, err)
		return
	}
	documentID := strings.TrimSpace(request.DocumentID)
	if documentID == "" {
		entry.session.New()
	} else if _, err := entry.session.Load(c.Request.Context(), documentID); err != nil {
		_ = h.sessions.Close(entry.id)
		h.respondError(c, opOpenSession, err)
		return
	}

	payload, err := h.sessionPayload(entry)
	if err != nil {
		h.respondError(c, opOpenSession, err)
		return
	}
	c.JSON(http.StatusCreated, payload)
}

func (h *httpHandler) handleGetSession(c *gin.Context) {
	entry, ok := h.lookupSession(c)
	if !ok {
		return
	}
	payload, err := h.sessionPayload(entry)
	if err != nil {
		h.respondError(c, opSessionMutate, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleCloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("sid")); err != nil {
		h.respondError(c, opSessionMutate, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addBlockRequestPayload struct {
	Type string `json:"type"`
}

func (h *httpHandler) handleAddBlock(c *gin.Context) {
	entry, ok := h.lookupSession(c)
	if !ok {
		return
	}
	var request addBlockRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	blockType, err := content.ParseBlockType(request.Type)
	if err != nil {
		h.respondError(c, opSessionMutate, err)
		return
	}
	block, err := entry.session.AddBlock(blockType)
	if err != nil {
		h.respondError(c, opSessionMutate, err)
		return
	}
	c.JSON(http.StatusCreated, blockResponsePayload{Block: block})
}

type updateBlockRequestPayload struct {
	Data json.RawMessage `json:"data"`
}

func (h *httpHandler) handleUpdateBlock(c *gin.Context) {
	entry, ok := h.lookupSession(c)
	if !ok {
		return
	}
	var request updateBlockRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	blockID := c.Param("bid")
	current, err := entry.session.Block(blockID)
	if err != nil {
		h.respondError(c, opSessionMutate, err)
		return
	}
	patch, err := content.DecodePatch(current.Type(), request.Data)
	if err != nil {
		h.respondError(c, opSessionMutate, err)
		return
	}
	block, err := entry.session.UpdateBlockData(blockID, patch)
	if err != nil {
		h.respondError(c, opSessionMutate, err)
		return
	}
	c.JSON(http.StatusOK, blockResponsePayload{Block: block})
}

func (h *httpHandler) handleRemoveBlock(c *gin.Context) {
	entry, ok := h.lookupSession(c)
	if !ok {
		return
	}
	if err := entry.session.RemoveBlock(c.Param("bid")); err != nil {
		h.respondError(c, opSessionMutate, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reorderRequestPayload struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

func (h *httpHandler) handleReorder(c *gin.Context) {
	entry, ok := h.lookupSession(c)
	if !ok {
		return
	}
	var request reorderRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.From == nil || request.To == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := entry.session.ReorderBlock(*request.From, *request.To); err != nil {
		h.respondError(c, opSessionMutate, err)
		return
	}
	payload, err := h.sessionPayload(entry)
	if err != nil {
		h.respondError(c, opSessionMutate, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// handleUpdateMetadata applies every field of the body or none of them.
func (h *httpHandler) handleUpdateMetadata(c *gin.Context) {
	entry, ok := h.lookupSession(c)
	if !ok {
		return
	}
	var request map[string]string
	if err := c.ShouldBindJSON(&request); err != nil || len(request) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	for field, value := range request {
		if !slices.Contains(metadataFields, field) {
			h.respondError(c, opSessionMutate, &content.ValidationError{Field: "field", Reason: fmt.Sprintf("unknown metadata field %q", field)})
			return
		}
		if field == "status" {
			if _, err := content.ParseStatus(value); err != nil {
				h.respondError(c, opSessionMutate, err)
				return
			}
		}
	}
	for _, field := range metadataFields {
		value, present := request[field]
		if !present {
			continue
		}
		if err := entry.session.SetMetadata(field, value); err != nil {
			h.respondError(c, opSessionMutate, err)
			return
		}
	}
	payload, err := h.sessionPayload(entry)
	if err != nil {
		h.respondError(c, opSessionMutate, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleSave(c *gin.Context) {
	entry, ok := h.lookupSession(c)
	if !ok {
		return
	}
	document, err := entry.session.Save(c.Request.Context())
	if err != nil {
		h.notify(Notification{
			Subject:   entry.subject,
			EventType: NotificationSaveFailed,
			SessionID: entry.id,
			Message:   saveFailureMessage(err),
		})
		h.respondError(c, opSaveSession, err)
		return
	}
	h.notify(Notification{
		Subject:    entry.subject,
		EventType:  NotificationSaveSucceeded,
		SessionID:  entry.id,
		DocumentID: document.ID,
		Message:    "Saved.",
	})
	c.JSON(http.StatusOK, sessionResponsePayload{
		SessionID: entry.id,
		State:     entry.session.State().String(),
		Document:  document,
	})
}

func saveFailureMessage(err error) string {
	var validation *content.ValidationError
	if errors.As(err, &validation) {
		return fmt.Sprintf("Cannot save: %s %s.", validation.Field, validation.Reason)
	}
	return "Save failed. Your changes are still here; try again."
}

type failedUploadPayload struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

type galleryUploadResponsePayload struct {
	Block    content.Block         `json:"block"`
	Uploaded []string              `json:"uploaded"`
	Failed   []failedUploadPayload `json:"failed"`
}

func (h *httpHandler) handleGalleryUpload(c *gin.Context) {
	entry, ok := h.lookupSession(c)
	if !ok {
		return
	}
	blockID := c.Param("bid")
	block, err := entry.session.Block(blockID)
	if err != nil {
		h.respondError(c, opGalleryUpload, err)
		return
	}
	if block.Type() != content.BlockTypeGallery {
		h.respondError(c, opGalleryUpload, &content.ValidationError{Field: "block", Reason: "not a gallery block"})
		return
	}
	form, err := c.MultipartForm()
	if err != nil || len(form.File[galleryFormField]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	files := make([]media.File, 0, len(form.File[galleryFormField]))
	for _, header := range form.File[galleryFormField] {
		files = append(files, uploadFile(header))
	}
	result := h.uploader.UploadBatch(c.Request.Context(), files)

	failed := make([]failedUploadPayload, 0, result.FailedCount())
	for _, failure := range result.Failures {
		failed = append(failed, failedUploadPayload{Index: failure.Index, Name: failure.Name})
		h.notify(Notification{
			Subject:   entry.subject,
			EventType: NotificationUploadFailed,
			SessionID: entry.id,
			Message:   fmt.Sprintf("Upload failed: %s", failure.Name),
		})
	}

	if len(result.URLs) > 0 {
		block, err = entry.session.AppendGalleryURLs(blockID, result.URLs)
		if err != nil {
			h.respondError(c, opGalleryUpload, err)
			return
		}
	}
	uploaded := result.URLs
	if uploaded == nil {
		uploaded = []string{}
	}
	c.JSON(http.StatusOK, galleryUploadResponsePayload{Block: block, Uploaded: uploaded, Failed: failed})
}

func uploadFile(header *multipart.FileHeader) media.File {
	return media.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Open: func() (io.ReadCloser, error) {
			return header.Open()
		},
	}
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	filter := content.ListFilter{Kind: strings.TrimSpace(c.Query("kind"))}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := content.ParseStatus(raw)
		if err != nil {
			h.respondError(c, opListDocuments, err)
			return
		}
		filter.Status = status
	}
	h.listDocuments(c, filter)
}

func (h *httpHandler) handleListPublishedDocuments(c *gin.Context) {
	h.listDocuments(c, content.ListFilter{
		Kind:   strings.TrimSpace(c.Query("kind")),
		Status: content.StatusPublished,
	})
}

func (h *httpHandler) listDocuments(c *gin.Context, filter content.ListFilter) {
	documents, err := h.documents.ListDocuments(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, opListDocuments, err)
		return
	}
	if documents == nil {
		documents = []content.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": documents})
}

func (h *httpHandler) handleGetPublishedDocument(c *gin.Context) {
	document, err := h.documents.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, opGetDocument, err)
		return
	}
	if document.Status != content.StatusPublished {
		h.respondError(c, opGetDocument, content.ErrDocumentNotFound)
		return
	}
	c.JSON(http.StatusOK, document)
}

func (h *httpHandler) handleListVersions(c *gin.Context) {
	versions, err := h.documents.ListVersionSnapshots(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, opListVersions, err)
		return
	}
	if versions == nil {
		versions = []content.VersionSnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}
