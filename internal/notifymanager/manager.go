// Package notifymanager implements the core notification state machine,
// spec.md §4.7: plan creates tasks from classified opportunities, execute
// dispatches due tasks with cooldown/retry and per-organization escalation
// aggregation.
package notifymanager

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/franksunye/FSOpsAssistant/internal/agenterr"
	"github.com/franksunye/FSOpsAssistant/internal/notifyformat"
	"github.com/franksunye/FSOpsAssistant/internal/opportunity"
	"github.com/franksunye/FSOpsAssistant/internal/tasks"
	"github.com/franksunye/FSOpsAssistant/internal/webhook"
)

// TaskStore is the subset of *tasks.Store the manager depends on, narrowed
// to an interface so plan/execute logic can be tested against a fake.
type TaskStore interface {
	Save(ctx context.Context, t tasks.Task) (tasks.Task, error)
	UpdateStatus(ctx context.Context, id string, from, to tasks.Status, sentRunID string) error
	UpdateMessage(ctx context.Context, id, rendered string) error
	UpdateLastSent(ctx context.Context, id string, at time.Time) error
	FindPending(ctx context.Context) ([]tasks.Task, error)
	FindByLogicalIDAndType(ctx context.Context, logicalOrderID string, typ tasks.Type) ([]tasks.Task, error)
	FindOpenEscalationTasksForOrg(ctx context.Context, orgName string) ([]tasks.Task, error)
}

// WebhookResolver is the subset of *grouproute.Registry the manager needs.
type WebhookResolver interface {
	ReminderWebhook(ctx context.Context, orgName string) (string, error)
	EscalationWebhook() string
}

// Config holds the tunables spec.md §6.4 lists that this manager consumes
// directly (the rest belong to the classifier and business-time calculator).
type Config struct {
	MaxRetryCount      int
	CooldownHours      float64
	WebhookAPIInterval time.Duration
	ReminderEnabled    bool
	EscalationEnabled  bool
}

// DefaultConfig matches spec.md §6.4's defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetryCount:      5,
		CooldownHours:      2.0,
		WebhookAPIInterval: time.Second,
		ReminderEnabled:    true,
		EscalationEnabled:  true,
	}
}

// ExecuteResult is executePending's return shape from spec.md §4.7.4.
type ExecuteResult struct {
	TotalConsidered int
	Sent            int
	Failed          int
	SkippedCooldown int
	ByOrg           map[string]int
}

// dispatchErrorCounter is the one method Manager needs from a metrics
// counter — satisfied directly by prometheus.Counter, narrowed so tests can
// supply a fake instead of standing up a real Collector.
type dispatchErrorCounter interface {
	Inc()
}

// Manager wires the task store, group-routing registry, message formatter
// and webhook sender together into the two-phase plan/execute cycle.
type Manager struct {
	store          TaskStore
	registry       WebhookResolver
	format         *notifyformat.Formatter
	sender         webhook.Sender
	cfg            Config
	log            *zap.Logger
	now            func() time.Time
	dispatchErrors dispatchErrorCounter
}

func New(store TaskStore, registry WebhookResolver, format *notifyformat.Formatter, sender webhook.Sender, cfg Config, log *zap.Logger) *Manager {
	return &Manager{store: store, registry: registry, format: format, sender: sender, cfg: cfg, log: log, now: time.Now}
}

// WithDispatchErrorCounter attaches a counter incremented once per failed
// webhook resolution or send. Optional: a nil counter (the default) just
// skips the observation.
func (m *Manager) WithDispatchErrorCounter(c dispatchErrorCounter) *Manager {
	m.dispatchErrors = c
	return m
}

// CreateTasks is the plan phase, spec.md §4.7.1. createdKeys prevents
// duplicate creation within the same tick; the store's own pending-duplicate
// check in Save is the durable backstop across ticks.
func (m *Manager) CreateTasks(ctx context.Context, opps []opportunity.Opportunity, runID string) ([]tasks.Task, error) {
	now := m.now()
	createdKeys := map[string]bool{}
	var created []tasks.Task
	escalationOrgs := map[string]bool{}

	if m.cfg.ReminderEnabled {
		for _, o := range opps {
			if !o.ReminderDueHit {
				continue
			}
			key := o.OrderNum + "|" + string(tasks.TypeReminder)
			if createdKeys[key] {
				continue
			}

			ok, err := m.canCreate(ctx, o.OrderNum, tasks.TypeReminder, now)
			if err != nil {
				return created, agenterr.Plan(err, "check pending reminder for %s", o.OrderNum)
			}
			if !ok {
				continue
			}

			t := tasks.Task{
				LogicalOrderID: o.OrderNum,
				OrgName:        o.OrgName,
				Type:           tasks.TypeReminder,
				Status:         tasks.StatusPending,
				DueTime:        now,
				CreatedRunID:   runID,
				MaxRetryCount:  m.cfg.MaxRetryCount,
				CooldownHours:  m.cfg.CooldownHours,
			}
			saved, err := m.store.Save(ctx, t)
			if err != nil {
				if err == tasks.ErrDuplicatePending {
					continue
				}
				return created, agenterr.Plan(err, "save reminder task for %s", o.OrderNum)
			}
			created = append(created, saved)
			createdKeys[key] = true
		}
	}

	if m.cfg.EscalationEnabled {
		for _, o := range opps {
			if o.EscalationLevel > 0 {
				escalationOrgs[o.OrgName] = true
			}
		}

		for org := range escalationOrgs {
			logicalID := tasks.EscalationLogicalID(org)

			if err := m.retireStaleEscalations(ctx, org, now); err != nil {
				return created, agenterr.Plan(err, "retire stale escalations for %s", org)
			}

			key := logicalID + "|" + string(tasks.TypeEscalation)
			if createdKeys[key] {
				continue
			}
			ok, err := m.canCreate(ctx, logicalID, tasks.TypeEscalation, now)
			if err != nil {
				return created, agenterr.Plan(err, "check pending escalation for %s", org)
			}
			if !ok {
				continue
			}

			t := tasks.Task{
				LogicalOrderID: logicalID,
				OrgName:        org,
				Type:           tasks.TypeEscalation,
				Status:         tasks.StatusPending,
				DueTime:        now,
				CreatedRunID:   runID,
				MaxRetryCount:  m.cfg.MaxRetryCount,
				CooldownHours:  m.cfg.CooldownHours,
			}
			saved, err := m.store.Save(ctx, t)
			if err != nil {
				if err == tasks.ErrDuplicatePending {
					continue
				}
				return created, agenterr.Plan(err, "save escalation task for %s", org)
			}
			created = append(created, saved)
			createdKeys[key] = true
		}
	}

	return created, nil
}

// canCreate implements §4.7.3: the cooldown check uses the store's most
// recent row for the (logicalOrderId, type) pair, not just Pending rows, and
// creation is refused if a Pending row already exists or the latest row is
// still in cooldown.
//
// A latest row that is Failed is never left for CreateTasks to paper over
// with a brand-new, zero-RetryCount row: spec.md §3's `Failed → Pending`
// transition re-arms that same row once its cooldown has elapsed, which is
// what carries RetryCount forward across ticks, and a row that has already
// reached MaxRetryCount stays pinned in Failed permanently per §3's
// `retryCount ≤ maxRetryCount` invariant and testable property 6 ("once
// equal, no further sends are attempted").
func (m *Manager) canCreate(ctx context.Context, logicalID string, typ tasks.Type, now time.Time) (bool, error) {
	existing, err := m.store.FindByLogicalIDAndType(ctx, logicalID, typ)
	if err != nil {
		return false, err
	}
	if len(existing) == 0 {
		return true, nil
	}
	latest := existing[0] // FindByLogicalIDAndType returns most-recent-first.
	if latest.Status == tasks.StatusPending {
		return false, nil
	}
	if latest.InCooldown(now) {
		return false, nil
	}
	if latest.Status == tasks.StatusFailed {
		if latest.RetryCount >= latest.MaxRetryCount {
			return false, nil
		}
		if err := m.store.UpdateStatus(ctx, latest.ID, tasks.StatusFailed, tasks.StatusPending, ""); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// retireStaleEscalations implements §4.7.1 step 5: any open escalation task
// for org whose logicalOrderId isn't the canonical per-org id is marked Sent
// without dispatch, before the canonical row is (maybe) created.
func (m *Manager) retireStaleEscalations(ctx context.Context, org string, now time.Time) error {
	stale, err := m.store.FindOpenEscalationTasksForOrg(ctx, org)
	if err != nil {
		return err
	}
	for _, t := range stale {
		if err := m.store.UpdateStatus(ctx, t.ID, t.Status, tasks.StatusSent, ""); err != nil {
			m.log.Warn("failed to retire stale escalation task", zap.String("task_id", t.ID), zap.Error(err))
		}
	}
	return nil
}

// ExecutePending is the execute phase, spec.md §4.7.2. fetchOpp resolves a
// logicalOrderId to its current Opportunity snapshot (backed by a
// force-refreshed data-sync lookup at the orchestrator level); escalate
// resolves the full, sorted list of currently-escalating opportunities for
// an org.
func (m *Manager) ExecutePending(
	ctx context.Context,
	runID string,
	fetchOpp func(orderNum string) (opportunity.Opportunity, bool),
	escalatingForOrg func(org string) []opportunity.Opportunity,
) (ExecuteResult, error) {
	now := m.now()
	result := ExecuteResult{ByOrg: map[string]int{}}

	pending, err := m.store.FindPending(ctx)
	if err != nil {
		return result, agenterr.Store(err, "list pending tasks")
	}

	var due []tasks.Task
	for _, t := range pending {
		result.TotalConsidered++
		if !t.ShouldSendNow(now) {
			if t.InCooldown(now) {
				result.SkippedCooldown++
			}
			continue
		}
		due = append(due, t)
	}

	byOrg := map[string][]tasks.Task{}
	for _, t := range due {
		byOrg[t.OrgName] = append(byOrg[t.OrgName], t)
	}

	orgs := make([]string, 0, len(byOrg))
	for org := range byOrg {
		orgs = append(orgs, org)
	}
	sort.Strings(orgs)

	first := true
	for _, org := range orgs {
		orgTasks := byOrg[org]
		var reminderTasks, escalationTasks []tasks.Task
		for _, t := range orgTasks {
			if t.Type == tasks.TypeReminder {
				reminderTasks = append(reminderTasks, t)
			} else {
				escalationTasks = append(escalationTasks, t)
			}
		}

		if len(reminderTasks) > 0 {
			if !first {
				time.Sleep(m.cfg.WebhookAPIInterval)
			}
			first = false
			m.sendReminders(ctx, org, reminderTasks, fetchOpp, runID, now, &result)
		}

		if len(escalationTasks) > 0 {
			if !first {
				time.Sleep(m.cfg.WebhookAPIInterval)
			}
			first = false
			m.sendEscalations(ctx, org, escalationTasks, escalatingForOrg, runID, now, &result)
		}
	}

	return result, nil
}

func (m *Manager) sendReminders(
	ctx context.Context,
	org string,
	orgTasks []tasks.Task,
	fetchOpp func(orderNum string) (opportunity.Opportunity, bool),
	runID string,
	now time.Time,
	result *ExecuteResult,
) {
	var opps []opportunity.Opportunity
	for _, t := range orgTasks {
		if o, ok := fetchOpp(t.LogicalOrderID); ok {
			opps = append(opps, o)
		}
	}

	url, err := m.registry.ReminderWebhook(ctx, org)
	if err != nil {
		m.log.Error("resolve reminder webhook failed", zap.String("org", org), zap.Error(err))
		m.markFailed(ctx, orgTasks, result)
		return
	}

	body := m.format.Render(org, opps, notifyformat.KindReminder, len(opps))
	ok := m.sender.Send(ctx, url, body)
	m.applySendResult(ctx, orgTasks, body, ok, runID, now, result)
	result.ByOrg[org] += len(orgTasks)
}

func (m *Manager) sendEscalations(
	ctx context.Context,
	org string,
	orgTasks []tasks.Task,
	escalatingForOrg func(org string) []opportunity.Opportunity,
	runID string,
	now time.Time,
	result *ExecuteResult,
) {
	opps := escalatingForOrg(org)
	sort.Slice(opps, func(i, j int) bool { return opps[i].OrderNum < opps[j].OrderNum })

	url := m.registry.EscalationWebhook()
	body := m.format.Render(org, opps, notifyformat.KindEscalation, len(opps))
	ok := m.sender.Send(ctx, url, body)
	m.applySendResult(ctx, orgTasks, body, ok, runID, now, result)
	result.ByOrg[org] += len(orgTasks)
}

func (m *Manager) applySendResult(ctx context.Context, orgTasks []tasks.Task, body string, ok bool, runID string, now time.Time, result *ExecuteResult) {
	if ok {
		for _, t := range orgTasks {
			if t.RenderedMessage == "" {
				if err := m.store.UpdateMessage(ctx, t.ID, body); err != nil {
					m.log.Warn("update rendered message failed", zap.String("task_id", t.ID), zap.Error(err))
				}
			}
			if err := m.store.UpdateLastSent(ctx, t.ID, now); err != nil {
				m.log.Warn("update last sent failed", zap.String("task_id", t.ID), zap.Error(err))
			}
			if err := m.store.UpdateStatus(ctx, t.ID, tasks.StatusPending, tasks.StatusSent, runID); err != nil {
				m.log.Warn("update status to sent failed", zap.String("task_id", t.ID), zap.Error(err))
			}
			result.Sent++
		}
		return
	}
	m.markFailed(ctx, orgTasks, result)
}

func (m *Manager) markFailed(ctx context.Context, orgTasks []tasks.Task, result *ExecuteResult) {
	if m.dispatchErrors != nil {
		m.dispatchErrors.Inc()
	}
	for _, t := range orgTasks {
		if err := m.store.UpdateStatus(ctx, t.ID, tasks.StatusPending, tasks.StatusFailed, ""); err != nil {
			m.log.Warn("update status to failed failed", zap.String("task_id", t.ID), zap.Error(err))
		}
		result.Failed++
	}
}
