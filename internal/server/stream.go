package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleNotificationStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.notifications.Subscribe(ctx, c.GetString(subjectContextKey))
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(notificationHeartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case notification, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(notification.EventType, notification)
			return true
		case <-heartbeat.C:
			c.SSEvent(notificationHeartbeat, gin.H{"timestamp": h.clock().UTC()})
			return true
		}
	})
}
