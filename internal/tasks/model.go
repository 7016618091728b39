// Package tasks implements the notification task lifecycle: the durable
// record type and the DynamoDB-backed store that enforces "at most one
// Pending task per (logicalOrderId, type)" per spec.md §3/§4.5.
package tasks

import "time"

// Type is the canonical notification tier. The original Python source went
// through a Violation/Standard -> Reminder/Escalation rename; this
// implementation keeps only the new names and migrates legacy strings at
// read time (see migrateLegacyTypes in store.go) rather than preserving the
// alias in code, per spec.md §9.
type Type string

const (
	TypeReminder   Type = "Reminder"
	TypeEscalation Type = "Escalation"
)

// Status is the task's lifecycle state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusSent      Status = "Sent"
	StatusFailed    Status = "Failed"
	StatusConfirmed Status = "Confirmed"
)

// EscalationLogicalID returns the synthetic logical-order-id escalation
// tasks are keyed by, per spec.md §3: "ESCALATION_" + orgName.
func EscalationLogicalID(orgName string) string {
	return "ESCALATION_" + orgName
}

// Task is one durable notification task row.
type Task struct {
	ID             string `dynamodbav:"id" json:"id"`
	LogicalOrderID string `dynamodbav:"logical_order_id" json:"logical_order_id"`
	OrgName        string `dynamodbav:"org_name" json:"org_name"`
	Type           Type   `dynamodbav:"type" json:"type"`
	Status         Status `dynamodbav:"status" json:"status"`

	DueTime time.Time `dynamodbav:"due_time" json:"due_time"`

	CreatedRunID string `dynamodbav:"created_run_id" json:"created_run_id"`
	SentRunID    string `dynamodbav:"sent_run_id,omitempty" json:"sent_run_id,omitempty"`

	RetryCount    int     `dynamodbav:"retry_count" json:"retry_count"`
	MaxRetryCount int     `dynamodbav:"max_retry_count" json:"max_retry_count"`
	CooldownHours float64 `dynamodbav:"cooldown_hours" json:"cooldown_hours"`

	LastSentAt *time.Time `dynamodbav:"last_sent_at,omitempty" json:"last_sent_at,omitempty"`

	RenderedMessage string `dynamodbav:"rendered_message,omitempty" json:"rendered_message,omitempty"`

	CreatedAt time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// InCooldown reports whether the task last sent within its cooldown window,
// relative to now.
func (t Task) InCooldown(now time.Time) bool {
	if t.LastSentAt == nil {
		return false
	}
	return now.Sub(*t.LastSentAt) < time.Duration(t.CooldownHours*float64(time.Hour))
}

// ShouldSendNow implements spec.md §4.7.2 step 2's eligibility check.
func (t Task) ShouldSendNow(now time.Time) bool {
	return t.Status == StatusPending && !t.InCooldown(now) && t.RetryCount < t.MaxRetryCount
}
