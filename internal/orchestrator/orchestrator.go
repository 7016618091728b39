// Package orchestrator wires the data-sync, classifier, notification
// manager and run tracker into the fixed six-step tick sequence spec.md
// §4.9 defines. It relies on its caller (the scheduler) to run at most one
// tick at a time.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/franksunye/FSOpsAssistant/internal/agenterr"
	"github.com/franksunye/FSOpsAssistant/internal/businesstime"
	"github.com/franksunye/FSOpsAssistant/internal/config"
	"github.com/franksunye/FSOpsAssistant/internal/notifymanager"
	"github.com/franksunye/FSOpsAssistant/internal/opportunity"
	"github.com/franksunye/FSOpsAssistant/internal/runtracker"
	"github.com/franksunye/FSOpsAssistant/internal/tasks"
)

// TickResult summarizes one tick for its caller (the scheduler's runner).
type TickResult struct {
	RunID                  string
	Status                 runtracker.Status
	OpportunitiesProcessed int
	NotificationsSent      int
	NotificationsFailed    int
	Errors                 []string
}

// FailedRunAlerter is notified, best-effort, when a tick ends Failed. It
// must never block or return an error to the orchestrator — the interface
// mirrors internal/alerting.SESAlerter's signature narrowly so orchestrator
// doesn't need to import AWS SDK types.
type FailedRunAlerter interface {
	AlertFailedRun(ctx context.Context, run runtracker.Run)
}

// MetricsRecorder receives one observation per completed tick. Narrowed to
// the single method orchestrator needs so it doesn't have to import
// internal/metrics or prometheus types.
type MetricsRecorder interface {
	ObserveTick(status string, durationSeconds float64, opportunitiesProcessed, sent, failed int)
}

// OpportunitySource is the subset of *datasync.Strategy the orchestrator
// needs, narrowed to an interface so RunTick can be tested against a fake
// fetch/cache-fallback implementation.
type OpportunitySource interface {
	GetOpportunities(ctx context.Context, forceRefresh bool) ([]opportunity.Opportunity, error)
}

// TaskPlanner is the subset of *notifymanager.Manager the orchestrator needs.
type TaskPlanner interface {
	CreateTasks(ctx context.Context, opps []opportunity.Opportunity, runID string) ([]tasks.Task, error)
	ExecutePending(
		ctx context.Context,
		runID string,
		fetchOpp func(orderNum string) (opportunity.Opportunity, bool),
		escalatingForOrg func(org string) []opportunity.Opportunity,
	) (notifymanager.ExecuteResult, error)
}

// RunStore is the subset of *runtracker.Tracker the orchestrator needs,
// narrowed to an interface so RunTick can be tested against a fake instead
// of a real DynamoDB-backed tracker.
type RunStore interface {
	StartRun(ctx context.Context, runCtx map[string]any) (string, error)
	BeginStep(runID, stepName, input string) *runtracker.StepScope
	LogStep(ctx context.Context, runID, stepName, input, output string, duration time.Duration, stepErr error) error
	FinishRun(ctx context.Context, runID string, status runtracker.Status, processed, sent int, errs []string) error
	GetRun(ctx context.Context, runID string) (runtracker.Run, bool, error)
}

// Orchestrator composes one tick: fetchData -> analyzeStatus ->
// decideToContinue -> planNotifications -> sendNotifications ->
// recordResults, per spec.md §4.9.
type Orchestrator struct {
	strategy OpportunitySource
	manager  TaskPlanner
	tracker  RunStore
	cfg      func() config.Tunables
	log      *zap.Logger
	alerter  FailedRunAlerter
	metrics  MetricsRecorder
}

func New(strategy OpportunitySource, manager TaskPlanner, tracker RunStore, cfg func() config.Tunables, log *zap.Logger) *Orchestrator {
	return &Orchestrator{strategy: strategy, manager: manager, tracker: tracker, cfg: cfg, log: log}
}

// WithAlerter attaches an ops-failure alerter. Optional: a nil alerter (the
// default) simply skips D.3 alerting.
func (o *Orchestrator) WithAlerter(a FailedRunAlerter) *Orchestrator {
	o.alerter = a
	return o
}

// WithMetrics attaches a metrics recorder. Optional: a nil recorder (the
// default) simply skips metrics observation.
func (o *Orchestrator) WithMetrics(m MetricsRecorder) *Orchestrator {
	o.metrics = m
	return o
}

// RunTick executes exactly one tick. The caller (the scheduler) is
// responsible for the "at most one tick at a time" guarantee; this method
// assumes it is never invoked concurrently with itself.
func (o *Orchestrator) RunTick(ctx context.Context) TickResult {
	tickStart := time.Now()
	tunables := o.cfg()
	ctx, cancel := context.WithTimeout(ctx, tunables.TickTimeout)
	defer cancel()

	runID, err := o.tracker.StartRun(ctx, map[string]any{"trigger": "scheduled"})
	if err != nil {
		o.log.Error("failed to start run", zap.Error(err))
		return TickResult{Status: runtracker.StatusFailed, Errors: []string{err.Error()}}
	}

	result := TickResult{RunID: runID}
	// runErrors are fatal: their presence flips the run's status to Failed.
	// warnings are recorded in the run's error list too, but per spec.md §7's
	// error taxonomy a FetchError is always swallowed at the fetchData step —
	// it never aborts the tick or the step itself, cache-fallback data or not.
	var runErrors []string
	var warnings []string

	classifier := opportunity.NewClassifier(businesstime.New(tunables.BusinessTime), tunables.SLA)

	// Step 1: fetchData
	var working []opportunity.Opportunity
	o.step(ctx, runID, "fetchData", func() (string, error) {
		fetched, ferr := o.strategy.GetOpportunities(ctx, false)
		working = fetched
		if ferr != nil {
			warnings = append(warnings, ferr.Error())
			return fmt.Sprintf("fetched %d opportunities (degraded: %v)", len(fetched), ferr), nil
		}
		return fmt.Sprintf("fetched %d opportunities", len(fetched)), nil
	})

	// Step 2: analyzeStatus
	now := time.Now()
	classified := make([]opportunity.Opportunity, len(working))
	for i, wo := range working {
		classified[i] = classifier.Classify(wo, now)
	}
	byOrderNum := map[string]opportunity.Opportunity{}
	reminderDue, escalationDue := 0, 0
	for _, c := range classified {
		byOrderNum[c.OrderNum] = c
		if c.ReminderDueHit {
			reminderDue++
		}
		if c.EscalationDueHit {
			escalationDue++
		}
	}
	o.recordStep(ctx, runID, "analyzeStatus",
		fmt.Sprintf("total=%d", len(classified)),
		fmt.Sprintf("reminderDue=%d escalationDue=%d", reminderDue, escalationDue), nil)

	result.OpportunitiesProcessed = len(classified)

	// Step 3: decideToContinue
	if len(classified) == 0 {
		o.recordStep(ctx, runID, "decideToContinue", "empty working set", "skip to recordResults", nil)
		return o.finish(ctx, runID, result, runErrors, warnings, tickStart)
	}
	o.recordStep(ctx, runID, "decideToContinue", fmt.Sprintf("total=%d", len(classified)), "continue", nil)

	// Step 4: planNotifications
	_, err = o.step(ctx, runID, "planNotifications", func() (string, error) {
		created, perr := o.manager.CreateTasks(ctx, classified, runID)
		if perr != nil {
			return "", perr
		}
		return fmt.Sprintf("created %d tasks", len(created)), nil
	})
	if err != nil {
		runErrors = append(runErrors, err.Error())
	}

	// Step 5: sendNotifications
	fetchOpp := func(orderNum string) (opportunity.Opportunity, bool) {
		if c, ok := byOrderNum[orderNum]; ok {
			return c, true
		}
		refreshed, rerr := o.strategy.GetOpportunities(ctx, true)
		if rerr != nil {
			return opportunity.Opportunity{}, false
		}
		for _, r := range refreshed {
			c := classifier.Classify(r, now)
			byOrderNum[c.OrderNum] = c
			if c.OrderNum == orderNum {
				return c, true
			}
		}
		return opportunity.Opportunity{}, false
	}
	escalatingForOrg := func(org string) []opportunity.Opportunity {
		var out []opportunity.Opportunity
		for _, c := range byOrderNum {
			if c.OrgName == org && c.EscalationLevel > 0 {
				out = append(out, c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].OrderNum < out[j].OrderNum })
		return out
	}

	_, err = o.step(ctx, runID, "sendNotifications", func() (string, error) {
		r, serr := o.manager.ExecutePending(ctx, runID, fetchOpp, escalatingForOrg)
		if serr != nil {
			return "", serr
		}
		result.NotificationsSent = r.Sent
		result.NotificationsFailed = r.Failed
		return fmt.Sprintf("sent=%d failed=%d skippedCooldown=%d", r.Sent, r.Failed, r.SkippedCooldown), nil
	})
	if err != nil {
		runErrors = append(runErrors, err.Error())
	}

	return o.finish(ctx, runID, result, runErrors, warnings, tickStart)
}

// step wraps a tick step with the scoped StepScope logger, translating a
// returned error, or a panic recovered as a StoreError, into a recorded
// RunStep without letting it escape the tick — spec.md §7's "no exception
// escapes a tick" principle.
func (o *Orchestrator) step(ctx context.Context, runID, name string, fn func() (string, error)) (string, error) {
	scope := o.tracker.BeginStep(runID, name, "")
	output, err := func() (output string, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = agenterr.Store(nil, "step %s panicked: %v", name, r)
			}
		}()
		return fn()
	}()
	scope.SetOutput(output)
	if ferr := scope.Finish(ctx, err); ferr != nil {
		o.log.Warn("failed to persist run step", zap.String("step", name), zap.Error(ferr))
	}
	if err != nil {
		o.log.Error("tick step failed", zap.String("step", name), zap.Error(err))
	}
	return output, err
}

func (o *Orchestrator) recordStep(ctx context.Context, runID, name, input, output string, stepErr error) {
	if err := o.tracker.LogStep(ctx, runID, name, input, output, 0, stepErr); err != nil {
		o.log.Warn("failed to persist run step", zap.String("step", name), zap.Error(err))
	}
}

func (o *Orchestrator) finish(ctx context.Context, runID string, result TickResult, runErrors, warnings []string, tickStart time.Time) TickResult {
	status := runtracker.StatusCompleted
	if len(runErrors) > 0 {
		status = runtracker.StatusFailed
	}
	// The run's recorded errors include swallowed warnings (e.g. a FetchError
	// served from cache) alongside anything fatal, even though only the
	// latter affects status — spec.md §7 requires FetchError to be "recorded
	// in run errors" regardless of whether it aborted the tick.
	allErrors := append(append([]string{}, runErrors...), warnings...)
	if err := o.tracker.FinishRun(ctx, runID, status, result.OpportunitiesProcessed, result.NotificationsSent, allErrors); err != nil {
		o.log.Error("failed to finish run", zap.Error(err))
	}
	result.Status = status
	result.Errors = allErrors
	o.recordStep(ctx, runID, "recordResults",
		fmt.Sprintf("processed=%d sent=%d", result.OpportunitiesProcessed, result.NotificationsSent),
		string(status), nil)

	if o.metrics != nil {
		o.metrics.ObserveTick(string(status), time.Since(tickStart).Seconds(),
			result.OpportunitiesProcessed, result.NotificationsSent, result.NotificationsFailed)
	}

	if status == runtracker.StatusFailed && o.alerter != nil {
		o.alertOnFailure(runID, result, runErrors)
	}

	return result
}

// alertOnFailure fires the ops alert off the tick's own goroutine so a slow
// or unreachable mail server can never delay finish() returning.
func (o *Orchestrator) alertOnFailure(runID string, result TickResult, runErrors []string) {
	go func() {
		alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		run, ok, err := o.tracker.GetRun(alertCtx, runID)
		if err != nil || !ok {
			run = runtracker.Run{
				ID:                     runID,
				TriggerTime:            time.Now(),
				Status:                 runtracker.StatusFailed,
				OpportunitiesProcessed: result.OpportunitiesProcessed,
				NotificationsSent:      result.NotificationsSent,
				Errors:                 runErrors,
			}
		}
		o.alerter.AlertFailedRun(alertCtx, run)
	}()
}
