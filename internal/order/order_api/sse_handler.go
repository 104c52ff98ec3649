package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-delivery/internal/changefeed"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
)

const heartbeatInterval = 15 * time.Second

// SSEHandler streams order change events as Server-Sent Events.
type SSEHandler struct {
	Logger *logger.Logger
	Feed   changefeed.Subscriber
}

func NewSSEHandler(log *logger.Logger, feed changefeed.Subscriber) *SSEHandler {
	return &SSEHandler{Logger: log, Feed: feed}
}

// HandleOrderChanges streams every order change, or only one order's with
// ?order_id=. Customers must name an order.
func (h *SSEHandler) HandleOrderChanges(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	actor := actorOf(r)
	if orderID == "" && actor.Role == models.RoleCustomer {
		http.Error(w, "order_id is required", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	events, err := h.Feed.Subscribe(ctx, orderID)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Subscribe failed: %v", err))
		http.Error(w, "Change feed unavailable", http.StatusServiceUnavailable)
		return
	}

	h.setupSSEHeaders(w)
	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"order_id\":%q}\n\n", orderID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client %s (%s) subscribed to order changes %q", actor.ID, actor.Role, orderID))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Feed closed for %s", actor.ID))
				return
			}
			jsonData, err := json.Marshal(ev)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize change event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client %s disconnected", actor.ID))
			return
		}
	}
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
