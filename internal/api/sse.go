package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/wayfare/internal/realtime"
)

const heartbeatInterval = 15 * time.Second

// deletedEvent tells the client to drop a message from its list.
type deletedEvent struct {
	ID uint `json:"id"`
}

// translate turns a change event into what viewer's client should apply.
// Hides become deletes for the hiding viewer and are suppressed for everyone
// else.
func translate(e realtime.Event, viewer string) (string, any, bool) {
	switch e.Type {
	case realtime.EventInsert:
		if e.New == nil || e.New.IsHiddenFor(viewer) {
			return "", nil, false
		}
		return "insert", e.New, true
	case realtime.EventDelete:
		if e.Old == nil {
			return "", nil, false
		}
		return "delete", deletedEvent{ID: e.Old.ID}, true
	case realtime.EventUpdate:
		if e.New == nil || !e.New.IsHiddenFor(viewer) {
			return "", nil, false
		}
		return "delete", deletedEvent{ID: e.New.ID}, true
	}
	return "", nil, false
}

// events streams a booking's message changes to the caller until the client
// goes away or the hub closes.
func (h *handlers) events(c *gin.Context) {
	if h.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime is disabled", "kind": "unavailable"})
		return
	}
	viewer := caller(c)
	b, err := h.partyBooking(c.Request.Context(), c.Param("id"), viewer)
	if err != nil {
		writeError(c, err)
		return
	}

	sub := h.Hub.Subscribe(b.ID)
	defer sub.Unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	writeSSE(c.Writer, "connected", map[string]string{"booking_id": b.ID})
	c.Writer.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": h.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			name, data, send := translate(e, viewer)
			if !send {
				continue
			}
			writeSSE(c.Writer, name, data)
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
}
