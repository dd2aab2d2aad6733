package ui

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/me/taskhost/pkg/model"
)

// Template functions available in all templates.
var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"formatTimePtr": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"formatAge": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return time.Since(t).Round(time.Millisecond).String()
	},
	"statusColor": func(s model.TaskStatus) string {
		switch s {
		case model.TaskStatusRunning, model.TaskStatusYielding:
			return "blue"
		case model.TaskStatusWaiting, model.TaskStatusDelaying:
			return "yellow"
		case model.TaskStatusDeferring:
			return "indigo"
		case model.TaskStatusKilled:
			return "red"
		default:
			return "gray"
		}
	},
	"kindColor": func(k model.OutcomeKind) string {
		if k == model.OutcomeFailed {
			return "red"
		}
		return "green"
	},
}

func renderTemplate(w io.Writer, name string, data map[string]any) error {
	content, ok := templates[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}

	tmpl, err := template.New("layout").Funcs(templateFuncs).Parse(templates["layout"])
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}
	if _, err := tmpl.New("content").Parse(content); err != nil {
		return fmt.Errorf("parse content: %w", err)
	}
	return tmpl.Execute(w, data)
}

var templates = map[string]string{
	"layout": `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <script src="https://unpkg.com/htmx.org@1.9.10"></script>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-50 min-h-screen">
    <nav class="bg-white shadow-sm border-b">
        <div class="max-w-7xl mx-auto px-4 sm:px-6 lg:px-8">
            <div class="flex h-16">
                <a href="{{.Base}}/" class="flex items-center px-2 py-2 text-xl font-bold text-indigo-600">taskhost</a>
                <div class="hidden sm:ml-6 sm:flex sm:space-x-8">
                    <a href="{{.Base}}/" class="text-gray-500 hover:text-gray-700 inline-flex items-center px-1 pt-1 text-sm font-medium">Tasks</a>
                    <a href="{{.Base}}/outcomes" class="text-gray-500 hover:text-gray-700 inline-flex items-center px-1 pt-1 text-sm font-medium">Outcomes</a>
                </div>
            </div>
        </div>
    </nav>
    <main class="max-w-7xl mx-auto py-6 sm:px-6 lg:px-8">
        {{template "content" .}}
    </main>
</body>
</html>`,

	"dashboard": `{{define "content"}}
<div class="px-4 sm:px-0">
    <h1 class="text-2xl font-semibold text-gray-900">Scheduler</h1>
    <p class="mt-1 text-sm text-gray-500">Run {{if .RunID}}{{.RunID}}{{else}}-{{end}} &middot; up {{.Uptime}}</p>
</div>
<div class="mt-6 grid grid-cols-2 gap-5 sm:grid-cols-4" hx-get="{{.Base}}/" hx-trigger="every 2s" hx-select="main" hx-target="main">
    <div class="bg-white shadow rounded-lg p-5"><dt class="text-sm text-gray-500">Live tasks</dt><dd class="text-3xl font-semibold" id="live">{{.Live}}</dd></div>
    <div class="bg-white shadow rounded-lg p-5"><dt class="text-sm text-gray-500">Queued</dt><dd class="text-3xl font-semibold" id="queued">{{.Queued}}</dd></div>
    {{range $status, $n := .Counts}}
    <div class="bg-white shadow rounded-lg p-5"><dt class="text-sm text-gray-500">{{$status}}</dt><dd class="text-3xl font-semibold">{{$n}}</dd></div>
    {{end}}
</div>
<div class="mt-8 bg-white shadow overflow-hidden sm:rounded-md">
    <table class="min-w-full divide-y divide-gray-200">
        <thead class="bg-gray-50">
            <tr>
                <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">ID</th>
                <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Thread</th>
                <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Status</th>
                <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Timing</th>
                <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Owner</th>
                <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Age</th>
            </tr>
        </thead>
        <tbody class="bg-white divide-y divide-gray-200">
            {{range .Tasks}}
            <tr>
                <td class="px-6 py-4 text-sm"><a class="text-indigo-600" href="{{$.Base}}/tasks/{{.ID}}">{{.ID}}</a></td>
                <td class="px-6 py-4 text-sm font-mono text-gray-500">{{.Identity}}</td>
                <td class="px-6 py-4 text-sm"><span class="px-2 rounded-full bg-{{statusColor .Status}}-100 text-{{statusColor .Status}}-800">{{.Status}}</span>{{if .Canceled}} <span class="text-gray-400">(canceled)</span>{{end}}</td>
                <td class="px-6 py-4 text-sm text-gray-500">{{.Timing.Kind}}{{if .Timing.Duration}} {{.Timing.Duration}}{{end}}</td>
                <td class="px-6 py-4 text-sm text-gray-500">{{if .Owner}}{{.Owner}}{{else}}-{{end}}</td>
                <td class="px-6 py-4 text-sm text-gray-500">{{formatAge .CreatedAt}}</td>
            </tr>
            {{else}}
            <tr><td colspan="6" class="px-6 py-4 text-sm text-gray-500 text-center">No live tasks</td></tr>
            {{end}}
        </tbody>
    </table>
</div>
{{end}}`,

	"task": `{{define "content"}}
<div class="px-4 sm:px-0">
    <h1 class="text-2xl font-semibold text-gray-900">Task {{.Task.ID}}</h1>
    <p class="mt-1 text-sm font-mono text-gray-500">{{.Task.Identity}}</p>
</div>
<div class="mt-6 bg-white shadow sm:rounded-lg">
    <dl class="divide-y divide-gray-200">
        <div class="px-6 py-4 grid grid-cols-3"><dt class="text-sm text-gray-500">Status</dt><dd class="col-span-2 text-sm">{{.Task.Status}}{{if .Task.Canceled}} (canceled){{end}}</dd></div>
        <div class="px-6 py-4 grid grid-cols-3"><dt class="text-sm text-gray-500">Timing</dt><dd class="col-span-2 text-sm">{{.Task.Timing.Kind}}{{if .Task.Timing.Duration}} for {{.Task.Timing.Duration}}{{end}}</dd></div>
        <div class="px-6 py-4 grid grid-cols-3"><dt class="text-sm text-gray-500">Queued at</dt><dd class="col-span-2 text-sm">{{formatTime .Task.Timing.Start}}</dd></div>
        <div class="px-6 py-4 grid grid-cols-3"><dt class="text-sm text-gray-500">Capability</dt><dd class="col-span-2 text-sm">{{.Task.Capability}}</dd></div>
        <div class="px-6 py-4 grid grid-cols-3"><dt class="text-sm text-gray-500">Owner</dt><dd class="col-span-2 text-sm">{{if .Task.Owner}}{{.Task.Owner}}{{else}}-{{end}}</dd></div>
        <div class="px-6 py-4 grid grid-cols-3"><dt class="text-sm text-gray-500">Pending args</dt><dd class="col-span-2 text-sm">{{.Task.PendingArgs}}</dd></div>
        <div class="px-6 py-4 grid grid-cols-3"><dt class="text-sm text-gray-500">Created</dt><dd class="col-span-2 text-sm">{{formatTime .Task.CreatedAt}}</dd></div>
    </dl>
</div>
{{end}}`,

	"outcomes": `{{define "content"}}
<div class="px-4 sm:px-0">
    <h1 class="text-2xl font-semibold text-gray-900">Outcomes</h1>
    <p class="mt-1 text-sm text-gray-500">{{.Total}} recorded{{if .RunID}} for run {{.RunID}}{{end}}</p>
</div>
<div class="mt-6 bg-white shadow overflow-hidden sm:rounded-md">
    <table class="min-w-full divide-y divide-gray-200">
        <thead class="bg-gray-50">
            <tr>
                <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">#</th>
                <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Task</th>
                <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Kind</th>
                <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Detail</th>
                <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">At</th>
            </tr>
        </thead>
        <tbody class="bg-white divide-y divide-gray-200">
            {{range .Entries}}
            <tr>
                <td class="px-6 py-4 text-sm text-gray-500">{{.Seq}}</td>
                <td class="px-6 py-4 text-sm font-mono">{{.Outcome.Identity}}</td>
                <td class="px-6 py-4 text-sm"><span class="text-{{kindColor .Outcome.Kind}}-700">{{.Outcome.Kind}}</span></td>
                <td class="px-6 py-4 text-sm text-gray-700">{{if .Outcome.Message}}{{.Outcome.Message}}{{else}}{{.Outcome.Cause}}{{end}}</td>
                <td class="px-6 py-4 text-sm text-gray-500">{{formatTime .Outcome.At}}</td>
            </tr>
            {{else}}
            <tr><td colspan="5" class="px-6 py-4 text-sm text-gray-500 text-center">No outcomes recorded</td></tr>
            {{end}}
        </tbody>
    </table>
</div>
{{end}}`,

	"error": `{{define "content"}}
<div class="bg-white shadow sm:rounded-lg px-6 py-5">
    <h1 class="text-lg font-medium text-gray-900">{{.Title}}</h1>
    <p class="mt-2 text-sm text-gray-500">{{.Message}}</p>
</div>
{{end}}`,
}
