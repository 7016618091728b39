// Package grouproute implements the group-routing registry (spec.md §4.4):
// mapping an organization name to its reminder webhook, with the single
// escalation webhook as both the escalation destination and the fallback
// for organizations with no enabled reminder webhook.
package grouproute

import (
	"context"

	"github.com/franksunye/FSOpsAssistant/internal/store"
)

// Config is one organization's routing row, spec.md §3's GroupConfig entity.
type Config struct {
	OrgName         string `dynamodbav:"org_name" json:"org_name"`
	WebhookURL      string `dynamodbav:"webhook_url" json:"webhook_url"`
	Enabled         bool   `dynamodbav:"enabled" json:"enabled"`
	MaxPerHour      int    `dynamodbav:"max_per_hour" json:"max_per_hour"`
	CooldownMinutes int    `dynamodbav:"cooldown_minutes" json:"cooldown_minutes"`
}

// Registry reads GroupConfig rows (edited out-of-band; read-mostly per
// spec.md §3) and resolves org -> webhook, falling back to the escalation
// webhook when an org has no enabled config so reminders are never
// silently dropped.
type Registry struct {
	client            *store.Client
	table             string
	escalationWebhook string
}

func NewRegistry(client *store.Client, table, escalationWebhook string) *Registry {
	return &Registry{client: client, table: table, escalationWebhook: escalationWebhook}
}

// EscalationWebhook returns the single, org-independent escalation destination.
func (r *Registry) EscalationWebhook() string {
	return r.escalationWebhook
}

// ReminderWebhook resolves the webhook a reminder for orgName should use:
// the org's own enabled webhook, or the escalation webhook as fallback.
func (r *Registry) ReminderWebhook(ctx context.Context, orgName string) (string, error) {
	cfg, ok, err := r.lookup(ctx, orgName)
	if err != nil {
		return "", err
	}
	if !ok || !cfg.Enabled || cfg.WebhookURL == "" {
		return r.escalationWebhook, nil
	}
	return cfg.WebhookURL, nil
}

func (r *Registry) lookup(ctx context.Context, orgName string) (Config, bool, error) {
	var cfg Config
	ok, err := r.client.GetByKeyAttr(ctx, r.table, "org_name", orgName, &cfg)
	if err != nil {
		return Config{}, false, err
	}
	return cfg, ok, nil
}

// All returns every configured organization, for admin listing.
func (r *Registry) All(ctx context.Context) ([]Config, error) {
	var out []Config
	if err := r.client.ScanAll(ctx, r.table, &out); err != nil {
		return nil, err
	}
	return out, nil
}
