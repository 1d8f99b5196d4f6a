package server

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/media"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const mediaFormField = "file"

func (h *httpHandler) handleUploadMedia(c *gin.Context) {
	header, err := c.FormFile(mediaFormField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	url, ok := h.uploader.UploadImage(c.Request.Context(), uploadFile(header))
	if !ok {
		h.notify(Notification{
			Subject:   c.GetString(subjectContextKey),
			EventType: NotificationUploadFailed,
			Message:   "Upload failed: " + header.Filename,
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload_failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

func (h *httpHandler) handleServeMedia(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	reader, err := h.mediaFiles.Open(c.Request.Context(), key)
	if err != nil {
		if !errors.Is(err, media.ErrNotFound) {
			h.logger.Warn("failed to open media object", zap.String("key", key), zap.Error(err))
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	defer reader.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, reader, map[string]string{
		"Cache-Control": "public, max-age=31536000, immutable",
	})
}
