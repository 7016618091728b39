package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksunye/FSOpsAssistant/internal/runtracker"
	"github.com/franksunye/FSOpsAssistant/internal/tasks"
)

type fakeRunLister struct {
	runs  []runtracker.Run
	steps []runtracker.Step
	err   error
}

func (f *fakeRunLister) ListRuns(ctx context.Context) ([]runtracker.Run, error) { return f.runs, f.err }
func (f *fakeRunLister) GetRun(ctx context.Context, runID string) (runtracker.Run, bool, error) {
	for _, r := range f.runs {
		if r.ID == runID {
			return r, true, nil
		}
	}
	return runtracker.Run{}, false, nil
}
func (f *fakeRunLister) ListSteps(ctx context.Context, runID string) ([]runtracker.Step, error) {
	return f.steps, nil
}

type fakeTaskLister struct {
	tasks []tasks.Task
}

func (f *fakeTaskLister) FindAll(ctx context.Context) ([]tasks.Task, error) { return f.tasks, nil }

func TestHealthzAlwaysMounted(t *testing.T) {
	r := NewRouter(&App{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsRouteOmittedWithoutCollaborator(t *testing.T) {
	r := NewRouter(&App{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsReturnsRuns(t *testing.T) {
	lister := &fakeRunLister{runs: []runtracker.Run{{ID: "run-1"}}}
	r := NewRouter(&App{Runs: lister})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-1")
}

func TestGetRunNotFoundReturns404(t *testing.T) {
	lister := &fakeRunLister{}
	r := NewRouter(&App{Runs: lister})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsPropagatesStoreError(t *testing.T) {
	lister := &fakeRunLister{err: errors.New("dynamo unavailable")}
	r := NewRouter(&App{Runs: lister})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListTasksReturnsTasks(t *testing.T) {
	lister := &fakeTaskLister{tasks: []tasks.Task{{ID: "t1"}}}
	r := NewRouter(&App{Tasks: lister})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "t1")
}
