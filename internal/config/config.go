// Package config resolves the tunables spec.md §6.4 lists, layering
// environment variables (loaded via godotenv, same as every cmd/ entrypoint
// in the teacher) over coded defaults, with an optional system_config
// DynamoDB table read once at start-of-tick for operator-editable overrides.
package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/franksunye/FSOpsAssistant/internal/agenterr"
	"github.com/franksunye/FSOpsAssistant/internal/businesstime"
	"github.com/franksunye/FSOpsAssistant/internal/notifymanager"
	"github.com/franksunye/FSOpsAssistant/internal/opportunity"
	"github.com/franksunye/FSOpsAssistant/internal/store"
)

// Load reads a .env file if present, mirroring every cmd/*/main.go in the
// teacher. Missing files are not an error.
func Load() {
	_ = godotenv.Load()
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Tables holds the DynamoDB table names each store binds to. Kept separate
// from Tunables since table names are deployment-time, not tick-time,
// configuration.
type Tables struct {
	OpportunityCache string
	NotificationTask string
	Runs             string
	RunSteps         string
	GroupConfig      string
	SystemConfig     string
}

// TablesFromEnv resolves every table name, defaulting to spec.md §6.3's
// logical schema names.
func TablesFromEnv() Tables {
	return Tables{
		OpportunityCache: getenv("TABLE_OPPORTUNITY_CACHE", "opportunity_cache"),
		NotificationTask: getenv("TABLE_NOTIFICATION_TASKS", "notification_tasks"),
		Runs:             getenv("TABLE_AGENT_RUNS", "agent_runs"),
		RunSteps:         getenv("TABLE_AGENT_HISTORY", "agent_history"),
		GroupConfig:      getenv("TABLE_GROUP_CONFIGS", "group_configs"),
		SystemConfig:     getenv("TABLE_SYSTEM_CONFIG", "system_config"),
	}
}

// Tunables holds every runtime-tunable value spec.md §6.4 names, resolved
// once per tick so a mid-tick config edit is never observed by that tick
// (spec.md §5's config-snapshot ordering guarantee).
type Tunables struct {
	AgentExecutionInterval time.Duration
	AgentMaxRetries        int
	ReminderEnabled        bool
	EscalationEnabled      bool
	NotificationCooldown   time.Duration
	WebhookAPIInterval     time.Duration
	ReminderMaxDisplay     int
	EscalationMaxDisplay   int
	SLA                    opportunity.ThresholdTable
	BusinessTime           businesstime.Config
	TickTimeout            time.Duration
	EscalationWebhookURL   string
}

// FromEnv resolves every tunable from the environment, falling back to
// spec.md §6.4's coded defaults on any missing or invalid value —
// spec.md §7's ConfigError principle: never fail the tick over a bad
// config read. The fallback is silent: FromEnv logs nothing about a
// missing or invalid value.
func FromEnv() Tunables {
	workDays := parseWorkDays(getenv("WORK_DAYS", "1,2,3,4,5"))

	return Tunables{
		AgentExecutionInterval: time.Duration(getenvInt("AGENT_EXECUTION_INTERVAL", 60)) * time.Minute,
		AgentMaxRetries:        getenvInt("AGENT_MAX_RETRIES", 5),
		ReminderEnabled:        getenvBool("NOTIFICATION_REMINDER_ENABLED", true),
		EscalationEnabled:      getenvBool("NOTIFICATION_ESCALATION_ENABLED", true),
		NotificationCooldown:   time.Duration(getenvInt("NOTIFICATION_COOLDOWN", 120)) * time.Minute,
		WebhookAPIInterval:     time.Duration(getenvFloat("WEBHOOK_API_INTERVAL", 1) * float64(time.Second)),
		ReminderMaxDisplay:     getenvInt("REMINDER_MAX_DISPLAY_ORDERS", 5),
		EscalationMaxDisplay:   getenvInt("ESCALATION_MAX_DISPLAY_ORDERS", 5),
		SLA: opportunity.ThresholdTable{
			opportunity.StatusPendingAppointment: {
				ReminderHours:   getenvFloat("SLA_PENDING_REMINDER", 4),
				EscalationHours: getenvFloat("SLA_PENDING_ESCALATION", 8),
			},
			opportunity.StatusTemporarilyNotVisiting: {
				ReminderHours:   getenvFloat("SLA_NOT_VISITING_REMINDER", 8),
				EscalationHours: getenvFloat("SLA_NOT_VISITING_ESCALATION", 16),
			},
		},
		BusinessTime: businesstime.Config{
			WorkStartHour: getenvInt("WORK_START_HOUR", 9),
			WorkEndHour:   getenvInt("WORK_END_HOUR", 19),
			WorkDays:      workDays,
		},
		TickTimeout:          time.Duration(getenvInt("TICK_TIMEOUT_SECONDS", 300)) * time.Second,
		EscalationWebhookURL: getenv("ESCALATION_WEBHOOK_URL", ""),
	}
}

func parseWorkDays(csv string) map[int]bool {
	out := map[int]bool{}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 7 {
			continue
		}
		out[n] = true
	}
	if len(out) == 0 {
		return businesstime.DefaultConfig().WorkDays
	}
	return out
}

// ManagerConfig projects the Tunables fields notifymanager.Config needs.
func (t Tunables) ManagerConfig() notifymanager.Config {
	return notifymanager.Config{
		MaxRetryCount:      t.AgentMaxRetries,
		CooldownHours:      t.NotificationCooldown.Hours(),
		WebhookAPIInterval: t.WebhookAPIInterval,
		ReminderEnabled:    t.ReminderEnabled,
		EscalationEnabled:  t.EscalationEnabled,
	}
}

// systemConfigRow is one row of the operator-editable system_config table,
// spec.md §6.3.
type systemConfigRow struct {
	Key         string `dynamodbav:"key"`
	Value       string `dynamodbav:"value"`
	Description string `dynamodbav:"description"`
	UpdatedAt   time.Time `dynamodbav:"updated_at"`
}

// SystemConfigOverrides reads the system_config table and applies any
// present keys on top of base, returning the merged Tunables. A read
// failure returns base unchanged with a ConfigError, per spec.md §7 —
// callers log it and proceed with defaults/env values.
func SystemConfigOverrides(ctx context.Context, client *store.Client, table string, base Tunables) (Tunables, error) {
	var rows []systemConfigRow
	if err := client.ScanAll(ctx, table, &rows); err != nil {
		return base, agenterr.Config(err, "read system_config table %s", table)
	}

	values := map[string]string{}
	for _, r := range rows {
		values[r.Key] = r.Value
	}

	applyInt := func(key string, dst *int) {
		if v, ok := values[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	applyFloat := func(key string, dst *float64) {
		if v, ok := values[key]; ok {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = n
			}
		}
	}
	applyBool := func(key string, dst *bool) {
		if v, ok := values[key]; ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	interval := int(base.AgentExecutionInterval.Minutes())
	applyInt("agent_execution_interval", &interval)
	base.AgentExecutionInterval = time.Duration(interval) * time.Minute

	applyInt("agent_max_retries", &base.AgentMaxRetries)
	applyBool("notification_reminder_enabled", &base.ReminderEnabled)
	applyBool("notification_escalation_enabled", &base.EscalationEnabled)

	cooldown := int(base.NotificationCooldown.Minutes())
	applyInt("notification_cooldown", &cooldown)
	base.NotificationCooldown = time.Duration(cooldown) * time.Minute

	webhookInterval := base.WebhookAPIInterval.Seconds()
	applyFloat("webhook_api_interval", &webhookInterval)
	base.WebhookAPIInterval = time.Duration(webhookInterval * float64(time.Second))

	applyInt("reminder_max_display_orders", &base.ReminderMaxDisplay)
	applyInt("escalation_max_display_orders", &base.EscalationMaxDisplay)

	// Copy the SLA map so overrides never write into the caller's base.
	sla := make(opportunity.ThresholdTable, len(base.SLA))
	for k, v := range base.SLA {
		sla[k] = v
	}
	base.SLA = sla

	pendingReminderTh := base.SLA[opportunity.StatusPendingAppointment]
	applyFloat("sla_pending_reminder", &pendingReminderTh.ReminderHours)
	applyFloat("sla_pending_escalation", &pendingReminderTh.EscalationHours)
	base.SLA[opportunity.StatusPendingAppointment] = pendingReminderTh

	notVisitingTh := base.SLA[opportunity.StatusTemporarilyNotVisiting]
	applyFloat("sla_not_visiting_reminder", &notVisitingTh.ReminderHours)
	applyFloat("sla_not_visiting_escalation", &notVisitingTh.EscalationHours)
	base.SLA[opportunity.StatusTemporarilyNotVisiting] = notVisitingTh

	applyInt("work_start_hour", &base.BusinessTime.WorkStartHour)
	applyInt("work_end_hour", &base.BusinessTime.WorkEndHour)
	if v, ok := values["work_days"]; ok {
		base.BusinessTime.WorkDays = parseWorkDays(v)
	}

	tickTimeout := int(base.TickTimeout.Seconds())
	applyInt("tick_timeout_seconds", &tickTimeout)
	base.TickTimeout = time.Duration(tickTimeout) * time.Second

	return base, nil
}
