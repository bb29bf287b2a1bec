package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/realtime"
	"github.com/gin-gonic/gin"
)

const defaultNotificationLimit = 50

type notificationListPayload struct {
	Notifications []notifications.Notification `json:"notifications"`
	Unread        int64                        `json:"unread"`
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	userID := actorFrom(c).ID
	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondInvalidRequest(c)
			return
		}
		limit = parsed
	}
	entries, err := h.notifications.List(c.Request.Context(), userID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	unread, err := h.notifications.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notificationListPayload{Notifications: entries, Unread: unread})
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	err := h.notifications.MarkRead(c.Request.Context(), actorFrom(c).ID, c.Param("id"))
	h.writeNoContent(c, err)
}

func (h *httpHandler) handleMarkAllRead(c *gin.Context) {
	err := h.notifications.MarkAllRead(c.Request.Context(), actorFrom(c).ID)
	h.writeNoContent(c, err)
}

// handleEventStream pushes the caller's realtime messages as server-sent
// events until the client disconnects.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	userID := actorFrom(c).ID
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.SSEvent(realtime.EventHeartbeat, heartbeatPayload())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, message)
			return true
		case <-heartbeat.C:
			c.SSEvent(realtime.EventHeartbeat, heartbeatPayload())
			return true
		}
	})
}

func heartbeatPayload() gin.H {
	return gin.H{"timestamp": time.Now().UTC().Unix()}
}
