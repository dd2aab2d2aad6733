package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	GoVersion   string `json:"go_version"`
	Uptime      string `json:"uptime"`
	RunID       string `json:"run_id,omitempty"`
	LiveTasks   int    `json:"live_tasks"`
	QueuedTasks int    `json:"queued_tasks"`
	Journal     string `json:"journal"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	journal := "disabled"
	if s.store != nil {
		journal = "sqlite"
	}
	respondOK(w, reqID, healthResponse{
		Status:      "healthy",
		Version:     "0.1.0",
		GoVersion:   runtime.Version(),
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
		RunID:       s.runID,
		LiveTasks:   s.sched.Len(),
		QueuedTasks: s.sched.QueueLen(),
		Journal:     journal,
	})
}
