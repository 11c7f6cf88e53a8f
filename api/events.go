package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// eventBuffer bounds how far a slow SSE consumer may fall behind before
// events are dropped for it.
const eventBuffer = 64

// StreamEvents serves the session lifecycle feed as server-sent events.
// The stream stays open until the client disconnects.
func (a *API) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, cancel := a.services.Events.Subscribe(eventBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			body, err := json.Marshal(ev)
			if err != nil {
				a.log.Error("encoding session event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, body)
			flusher.Flush()
		}
	}
}
