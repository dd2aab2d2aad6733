package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"time"
)

// handleSSETasks streams task snapshots via Server-Sent Events. An update
// event is sent whenever the snapshot changes; otherwise a heartbeat.
// GET /api/v1/sse/tasks
func (s *Server) handleSSETasks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	last := s.sched.Tasks()
	if err := sendSSEEvent(w, flusher, "init", last); err != nil {
		s.logger.Debug("sse client disconnected", "error", err)
		return
	}

	ticker := time.NewTicker(s.sseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			tasks := s.sched.Tasks()
			if !reflect.DeepEqual(tasks, last) {
				if err := sendSSEEvent(w, flusher, "update", tasks); err != nil {
					s.logger.Debug("sse client disconnected", "error", err)
					return
				}
				last = tasks
			} else {
				fmt.Fprintf(w, ": heartbeat\n\n")
				flusher.Flush()
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	if err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
