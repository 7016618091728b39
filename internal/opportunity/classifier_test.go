package opportunity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksunye/FSOpsAssistant/internal/businesstime"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", s)
	require.NoError(t, err)
	return ts
}

func newClassifier() Classifier {
	return NewClassifier(businesstime.New(businesstime.DefaultConfig()), DefaultThresholdTable())
}

func TestClassifyUnmonitoredStatus(t *testing.T) {
	c := newClassifier()
	o := Opportunity{
		OrderNum:    "O1",
		OrderStatus: "Completed",
		CreateTime:  mustParse(t, "2024-01-01 09:00"),
	}
	got := c.Classify(o, mustParse(t, "2024-01-05 09:00"))

	assert.False(t, got.Monitored)
	assert.False(t, got.ReminderDueHit)
	assert.False(t, got.EscalationDueHit)
	assert.Equal(t, 0.0, got.ProgressRatio)
	assert.Equal(t, 0, got.EscalationLevel)
}

func TestClassifyExactThresholdIsNotDue(t *testing.T) {
	c := newClassifier()
	// PendingAppointment reminder threshold is 4h; construct exactly 4h elapsed.
	create := mustParse(t, "2024-01-01 09:00")
	now := mustParse(t, "2024-01-01 13:00")
	o := Opportunity{OrderNum: "O1", OrderStatus: StatusPendingAppointment, CreateTime: create}

	got := c.Classify(o, now)
	require.InDelta(t, 4.0, got.ElapsedBusinessHours, 1e-9)
	assert.False(t, got.ReminderDueHit, "strict > required, elapsed == threshold must not trigger")
}

func TestClassifyReminderAndEscalation(t *testing.T) {
	c := newClassifier()
	create := mustParse(t, "2024-01-01 09:00")
	now := mustParse(t, "2024-01-01 18:00") // 9h elapsed, all within one business day
	o := Opportunity{OrderNum: "O1", OrderStatus: StatusPendingAppointment, CreateTime: create}

	got := c.Classify(o, now)
	assert.True(t, got.ReminderDueHit)
	assert.True(t, got.EscalationDueHit)
	assert.Equal(t, 1, got.EscalationLevel)
	assert.InDelta(t, 1.0, got.ProgressRatio, 1e-9)
	assert.InDelta(t, 1.0, got.OverdueHours, 1e-9)
	assert.False(t, got.ApproachingEscalation, "already past escalation, so not merely approaching")
}

func TestClassifyApproachingEscalation(t *testing.T) {
	c := newClassifier()
	create := mustParse(t, "2024-01-01 09:00")
	// 6.5h elapsed of an 8h escalation threshold = 0.8125 ratio, not yet escalated.
	now := mustParse(t, "2024-01-01 15:30")
	o := Opportunity{OrderNum: "O1", OrderStatus: StatusPendingAppointment, CreateTime: create}

	got := c.Classify(o, now)
	assert.False(t, got.EscalationDueHit)
	assert.True(t, got.ApproachingEscalation)
}

func TestClassifyIsPureFunction(t *testing.T) {
	c := newClassifier()
	create := mustParse(t, "2024-01-01 09:00")
	now := mustParse(t, "2024-01-02 09:00")
	o := Opportunity{OrderNum: "O1", OrderStatus: StatusTemporarilyNotVisiting, CreateTime: create}

	a := c.Classify(o, now)
	b := c.Classify(o, now)
	assert.Equal(t, a, b)
}
