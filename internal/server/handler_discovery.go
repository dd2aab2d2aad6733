package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "taskhost API",
		Version:     "v1",
		Description: "Diagnostics for the cooperative task scheduler of a running script",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Host health, live and queued task counts"},
			{"/api/v1/tasks", []string{"GET"}, "Snapshot of all live tasks"},
			{"/api/v1/tasks/{id}", []string{"GET", "DELETE"}, "Single task snapshot; DELETE kills the task"},
			{"/api/v1/tasks/{id}/cancel", []string{"PUT"}, "Cancel a task's next scheduled resumption"},
			{"/api/v1/runs", []string{"GET"}, "Journaled script runs"},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run record"},
			{"/api/v1/runs/{id}/outcomes", []string{"GET"}, "Outcomes journaled for a run"},
			{"/api/v1/outcomes", []string{"GET"}, "Outcome journal; filters run_id and kind"},
			{"/api/v1/sse/tasks", []string{"GET"}, "Server-Sent Events stream of task snapshots"},
			{"/metrics", []string{"GET"}, "Prometheus metrics"},
		},
	})
}
