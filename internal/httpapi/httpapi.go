// Package httpapi is the read-only admin surface spec.md's ambient stack
// implies (§7's error taxonomy assumes an operator can look at what
// happened), grounded in the teacher's chi + go-chi/cors router. Unlike the
// teacher's internal/http, which accepted task-creation POSTs, every route
// here is GET-only: spec.md's D.4 non-goals explicitly rule out an
// operator configuration-editing UI.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/franksunye/FSOpsAssistant/internal/runtracker"
	"github.com/franksunye/FSOpsAssistant/internal/tasks"
)

// RunLister is the subset of *runtracker.Tracker the /runs routes need.
type RunLister interface {
	ListRuns(ctx context.Context) ([]runtracker.Run, error)
	GetRun(ctx context.Context, runID string) (runtracker.Run, bool, error)
	ListSteps(ctx context.Context, runID string) ([]runtracker.Step, error)
}

// TaskLister is the subset of *tasks.Store the /tasks route needs.
type TaskLister interface {
	FindAll(ctx context.Context) ([]tasks.Task, error)
}

// MetricsHandler is the subset of *metrics.Collector the /metrics route
// needs, narrowed to avoid an import cycle with internal/metrics' choice of
// prometheus registry type.
type MetricsHandler interface {
	Handler() http.Handler
}

// App holds whichever collaborators this process has: a metrics-only
// process (cmd/agent) supplies Metrics, a read-surface process (cmd/api)
// supplies Runs and Tasks. NewRouter mounts only the routes it can serve.
type App struct {
	Runs    RunLister
	Tasks   TaskLister
	Metrics MetricsHandler
}

// NewRouter builds the admin chi router for whichever of App's fields are
// set.
func NewRouter(app *App) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if app.Metrics != nil {
		r.Handle("/metrics", app.Metrics.Handler())
	}

	if app.Runs != nil {
		r.Get("/runs", app.listRuns)
		r.Get("/runs/{id}", app.getRun)
	}

	if app.Tasks != nil {
		r.Get("/tasks", app.listTasks)
	}

	return r
}

func (a *App) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.Runs.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *App) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok, err := a.Runs.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, nil)
		return
	}

	steps, err := a.Runs.ListSteps(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		runtracker.Run
		Steps []runtracker.Step `json:"steps"`
	}{Run: run, Steps: steps})
}

func (a *App) listTasks(w http.ResponseWriter, r *http.Request) {
	all, err := a.Tasks.FindAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
