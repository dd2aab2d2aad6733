package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/pkg/model"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	tasks := s.sched.Tasks()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.Status) == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	respondList(w, reqID, tasks, &model.Pagination{
		Total:  len(tasks),
		Limit:  len(tasks),
		Offset: 0,
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	th, ok := s.taskThread(w, r)
	if !ok {
		return
	}
	info, found := s.sched.Lookup(th)
	if !found {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("task", chi.URLParam(r, "id")))
		return
	}
	respondOK(w, reqID, info)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	th, ok := s.taskThread(w, r)
	if !ok {
		return
	}
	if err := s.sched.Cancel(th); err != nil {
		apiErr := model.ToAPIError(err)
		respondError(w, reqID, statusFor(apiErr), apiErr)
		return
	}
	info, found := s.sched.Lookup(th)
	if !found {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("task", chi.URLParam(r, "id")))
		return
	}
	s.logger.Info("task canceled via api", "task", info.ID, "owner", info.Owner)
	respondOK(w, reqID, info)
}

func (s *Server) handleKillTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	th, ok := s.taskThread(w, r)
	if !ok {
		return
	}
	info, _ := s.sched.Lookup(th)
	s.sched.Kill(th)
	s.logger.Info("task killed via api", "task", info.ID, "owner", info.Owner)
	respondOK(w, reqID, map[string]any{
		"id":     info.ID,
		"status": model.TaskStatusKilled,
	})
}

// taskThread resolves the {id} URL parameter to a live thread, writing an
// error response when it cannot.
func (s *Server) taskThread(w http.ResponseWriter, r *http.Request) (host.Thread, bool) {
	reqID := RequestIDFromContext(r.Context())
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("task id must be a positive integer, got %q", raw))
		return nil, false
	}
	th, ok := s.sched.Thread(model.TaskID(id))
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("task", raw))
		return nil, false
	}
	return th, true
}
