// Package runtracker persists Run and RunStep audit records: one Run per
// tick, many RunSteps within it, per spec.md §4.8 and §6.3's agent_runs /
// agent_history tables.
package runtracker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a Run's lifecycle state.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// Run is one durable tick record.
type Run struct {
	ID                     string    `dynamodbav:"id" json:"id"`
	TriggerTime            time.Time `dynamodbav:"trigger_time" json:"trigger_time"`
	EndTime                *time.Time `dynamodbav:"end_time,omitempty" json:"end_time,omitempty"`
	Status                 Status    `dynamodbav:"status" json:"status"`
	OpportunitiesProcessed int       `dynamodbav:"opportunities_processed" json:"opportunities_processed"`
	NotificationsSent      int       `dynamodbav:"notifications_sent" json:"notifications_sent"`
	ContextJSON            string    `dynamodbav:"context" json:"context"`
	Errors                 []string  `dynamodbav:"errors" json:"errors"`
}

// Step is one durable RunStep record.
type Step struct {
	RunID           string    `dynamodbav:"run_id" json:"run_id"`
	StepName        string    `dynamodbav:"step_name" json:"step_name"`
	InputSummary    string    `dynamodbav:"input_summary" json:"input_summary"`
	OutputSummary   string    `dynamodbav:"output_summary" json:"output_summary"`
	Timestamp       time.Time `dynamodbav:"timestamp" json:"timestamp"`
	DurationSeconds float64   `dynamodbav:"duration_seconds" json:"duration_seconds"`
	ErrorMessage    string    `dynamodbav:"error_message,omitempty" json:"error_message,omitempty"`
}

// Store is the subset of *store.Client the tracker depends on, narrowed to
// an interface so ListRuns/GetRun/StartRun can be tested against a fake
// instead of a real DynamoDB table.
type Store interface {
	Put(ctx context.Context, table string, v any) error
	GetByKeyAttr(ctx context.Context, table, keyAttr, keyVal string, out any) (bool, error)
	ScanAll(ctx context.Context, table string, outSlice any) error
}

// Tracker persists Run and Step rows.
type Tracker struct {
	client    Store
	runTable  string
	stepTable string
}

func NewTracker(client Store, runTable, stepTable string) *Tracker {
	return &Tracker{client: client, runTable: runTable, stepTable: stepTable}
}

// StartRun opens a Run in the Running state and returns its id.
func (t *Tracker) StartRun(ctx context.Context, runCtx map[string]any) (string, error) {
	ctxJSON, err := json.Marshal(runCtx)
	if err != nil {
		return "", err
	}
	run := Run{
		ID:          uuid.NewString(),
		TriggerTime: time.Now(),
		Status:      StatusRunning,
		ContextJSON: string(ctxJSON),
	}
	if err := t.client.Put(ctx, t.runTable, run); err != nil {
		return "", err
	}
	return run.ID, nil
}

// FinishRun closes a Run with final counts and any accumulated errors. A run
// with a non-empty errors list is still recorded whatever status the caller
// passes — spec.md §7 leaves the Completed/Failed decision to the
// orchestrator, which knows whether a step outright aborted the tick.
func (t *Tracker) FinishRun(ctx context.Context, runID string, status Status, processed, sent int, errs []string) error {
	end := time.Now()
	// Put replaces the whole row, so start from the stored run to keep the
	// trigger time and context StartRun recorded.
	var run Run
	if _, err := t.client.GetByKeyAttr(ctx, t.runTable, "id", runID, &run); err != nil {
		run = Run{}
	}
	run.ID = runID
	run.EndTime = &end
	run.Status = status
	run.OpportunitiesProcessed = processed
	run.NotificationsSent = sent
	run.Errors = errs
	return t.client.Put(ctx, t.runTable, run)
}

// LogStep writes one RunStep row directly, without the scoped helper below.
func (t *Tracker) LogStep(ctx context.Context, runID, stepName, input, output string, duration time.Duration, stepErr error) error {
	step := Step{
		RunID:           runID,
		StepName:        stepName,
		InputSummary:    input,
		OutputSummary:   output,
		Timestamp:       time.Now(),
		DurationSeconds: duration.Seconds(),
	}
	if stepErr != nil {
		step.ErrorMessage = stepErr.Error()
	}
	return t.client.Put(ctx, t.stepTable, step)
}

// StepLogger is the subset of *Tracker a StepScope needs, narrowed to an
// interface so callers outside this package can build a StepScope backed by
// a fake for tests (see NewStepScope).
type StepLogger interface {
	LogStep(ctx context.Context, runID, stepName, input, output string, duration time.Duration, stepErr error) error
}

// StepScope is the scoped step logger spec.md §4.8/§9 describes as a
// "resource-scoped acquisition": BeginStep (or NewStepScope) opens it, and Finish (deferred by the
// caller) always writes the row, attaching whatever error is passed to it
// regardless of the exit path.
type StepScope struct {
	logger    StepLogger
	runID     string
	stepName  string
	input     string
	startedAt time.Time
	output    string
}

// NewStepScope builds a StepScope directly from any StepLogger, so a fake
// RunStore implementation elsewhere can produce one without going through a
// real Tracker.
func NewStepScope(logger StepLogger, runID, stepName, input string) *StepScope {
	return &StepScope{logger: logger, runID: runID, stepName: stepName, input: input, startedAt: time.Now()}
}

// BeginStep starts a scoped step. Callers set Output before calling Finish,
// and always call Finish (typically via defer) so the row is written on
// every exit path, error or not.
func (t *Tracker) BeginStep(runID, stepName, input string) *StepScope {
	return NewStepScope(t, runID, stepName, input)
}

// SetOutput records the step's output summary ahead of Finish.
func (s *StepScope) SetOutput(output string) {
	s.output = output
}

// Finish persists the step row with elapsed duration and the given error,
// which may be nil. It is safe to call from a defer with a named error
// return.
func (s *StepScope) Finish(ctx context.Context, stepErr error) error {
	return s.logger.LogStep(ctx, s.runID, s.stepName, s.input, s.output, time.Since(s.startedAt), stepErr)
}

// GetRun fetches a Run by id, for the admin surface.
func (t *Tracker) GetRun(ctx context.Context, runID string) (Run, bool, error) {
	var run Run
	ok, err := t.client.GetByKeyAttr(ctx, t.runTable, "id", runID, &run)
	return run, ok, err
}

// ListRuns returns every Run, most recent trigger first, for the admin surface.
func (t *Tracker) ListRuns(ctx context.Context) ([]Run, error) {
	var runs []Run
	if err := t.client.ScanAll(ctx, t.runTable, &runs); err != nil {
		return nil, err
	}
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0 && runs[j].TriggerTime.After(runs[j-1].TriggerTime); j-- {
			runs[j], runs[j-1] = runs[j-1], runs[j]
		}
	}
	return runs, nil
}

// ListSteps returns every Step for a Run, in recorded order.
func (t *Tracker) ListSteps(ctx context.Context, runID string) ([]Step, error) {
	var all []Step
	if err := t.client.ScanAll(ctx, t.stepTable, &all); err != nil {
		return nil, err
	}
	var out []Step
	for _, s := range all {
		if s.RunID == runID {
			out = append(out, s)
		}
	}
	return out, nil
}
