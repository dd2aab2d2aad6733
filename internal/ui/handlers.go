// Package ui serves a read-only HTML view of a running scheduler and its
// outcome journal.
package ui

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/taskhost/internal/store"
	"github.com/me/taskhost/pkg/model"
)

// Source is the scheduler view the UI renders.
type Source interface {
	Tasks() []model.TaskInfo
	Len() int
	QueueLen() int
}

// UI handles the web user interface.
type UI struct {
	src       Source
	store     store.Store // optional
	runID     string
	base      string
	logger    *slog.Logger
	startTime time.Time
}

// Option configures a UI.
type Option func(*UI)

// WithStore enables the outcomes page.
func WithStore(st store.Store) Option {
	return func(ui *UI) { ui.store = st }
}

// WithRunID scopes the outcomes page to one run.
func WithRunID(id string) Option {
	return func(ui *UI) { ui.runID = id }
}

// WithBasePath sets the prefix the UI is mounted under, used for links.
func WithBasePath(p string) Option {
	return func(ui *UI) { ui.base = p }
}

// New creates a new UI handler.
func New(src Source, logger *slog.Logger, opts ...Option) *UI {
	ui := &UI{
		src:       src,
		logger:    logger.With("component", "ui"),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(ui)
	}
	return ui
}

// Handler returns a router serving all UI pages.
func (ui *UI) Handler() http.Handler {
	r := chi.NewRouter()
	ui.RegisterRoutes(r)
	return r
}

// HandleDashboard renders live task counts and the task table.
func (ui *UI) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	tasks := ui.src.Tasks()
	counts := make(map[model.TaskStatus]int)
	for _, t := range tasks {
		counts[t.Status]++
	}

	ui.render(w, "dashboard", map[string]any{
		"Title":  "Scheduler - taskhost",
		"RunID":  ui.runID,
		"Live":   ui.src.Len(),
		"Queued": ui.src.QueueLen(),
		"Counts": counts,
		"Tasks":  tasks,
		"Uptime": time.Since(ui.startTime).Round(time.Second).String(),
	})
}

// HandleTaskDetail renders one live task.
func (ui *UI) HandleTaskDetail(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		ui.renderStatus(w, http.StatusBadRequest, "Bad Request", "invalid task id "+strconv.Quote(raw))
		return
	}
	for _, t := range ui.src.Tasks() {
		if t.ID == model.TaskID(id) {
			ui.render(w, "task", map[string]any{
				"Title": "Task " + raw + " - taskhost",
				"Task":  t,
			})
			return
		}
	}
	ui.renderStatus(w, http.StatusNotFound, "Not Found", "task "+raw+" is not live")
}

// HandleOutcomes renders the most recent journal entries.
func (ui *UI) HandleOutcomes(w http.ResponseWriter, r *http.Request) {
	if ui.store == nil {
		ui.renderStatus(w, http.StatusNotFound, "Journal disabled", "start the run with --db to record outcomes")
		return
	}

	opts := model.DefaultListOptions()
	opts.RunID = ui.runID
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		opts.Limit = v
	}
	opts.Clamp()

	entries, total, err := ui.store.ListOutcomes(r.Context(), opts)
	if err != nil {
		ui.logger.Error("list outcomes failed", "error", err)
		ui.renderStatus(w, http.StatusInternalServerError, "Error", "could not read the outcome journal")
		return
	}
	ui.render(w, "outcomes", map[string]any{
		"Title":   "Outcomes - taskhost",
		"RunID":   ui.runID,
		"Entries": entries,
		"Total":   total,
	})
}

func (ui *UI) render(w http.ResponseWriter, name string, data map[string]any) {
	ui.renderCode(w, http.StatusOK, name, data)
}

func (ui *UI) renderStatus(w http.ResponseWriter, code int, title, message string) {
	ui.renderCode(w, code, "error", map[string]any{
		"Title":   title,
		"Message": message,
	})
}

func (ui *UI) renderCode(w http.ResponseWriter, code int, name string, data map[string]any) {
	data["Base"] = ui.base

	var buf bytes.Buffer
	if err := renderTemplate(&buf, name, data); err != nil {
		ui.logger.Error("template render failed", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	buf.WriteTo(w)
}
