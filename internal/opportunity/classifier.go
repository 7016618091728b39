package opportunity

import (
	"time"

	"github.com/franksunye/FSOpsAssistant/internal/businesstime"
)

// Thresholds holds the reminder/escalation business-hour thresholds for one
// status. spec.md §4.2's table, overridable via the four sla_* config keys.
type Thresholds struct {
	ReminderHours    float64
	EscalationHours  float64
}

// ThresholdTable maps each monitored status to its thresholds.
type ThresholdTable map[Status]Thresholds

// DefaultThresholdTable matches spec.md's default SLA table.
func DefaultThresholdTable() ThresholdTable {
	return ThresholdTable{
		StatusPendingAppointment:     {ReminderHours: 4, EscalationHours: 8},
		StatusTemporarilyNotVisiting: {ReminderHours: 8, EscalationHours: 16},
	}
}

// Classifier is a pure function of (createTime, orderStatus, now,
// threshold-config, business-time-config); it performs no I/O.
type Classifier struct {
	calc       businesstime.Calculator
	thresholds ThresholdTable
}

func NewClassifier(calc businesstime.Calculator, thresholds ThresholdTable) Classifier {
	return Classifier{calc: calc, thresholds: thresholds}
}

// Classify returns a copy of o with every derived field filled per spec.md
// §4.2 steps 1-8. now is passed explicitly (not time.Now()) so the
// derivation stays deterministic and testable.
func (c Classifier) Classify(o Opportunity, now time.Time) Opportunity {
	o.ElapsedBusinessHours = c.calc.BusinessHoursBetween(o.CreateTime, now)

	th, ok := c.thresholds[o.OrderStatus]
	if !o.OrderStatus.Monitored() || !ok {
		o.Monitored = false
		o.ReminderDueHit = false
		o.EscalationDueHit = false
		o.ApproachingEscalation = false
		o.OverdueHours = 0
		o.EscalationLevel = 0
		o.ProgressRatio = 0
		return o
	}

	o.Monitored = true
	elapsed := o.ElapsedBusinessHours

	o.ReminderDueHit = elapsed > th.ReminderHours
	o.EscalationDueHit = elapsed > th.EscalationHours

	ratio := elapsed / th.EscalationHours
	if ratio > 1.0 {
		ratio = 1.0
	}
	if ratio < 0 {
		ratio = 0
	}
	o.ProgressRatio = ratio

	o.ApproachingEscalation = !o.EscalationDueHit && ratio >= 0.8

	overdue := elapsed - th.EscalationHours
	if overdue < 0 {
		overdue = 0
	}
	o.OverdueHours = overdue

	if o.EscalationDueHit {
		o.EscalationLevel = 1
	} else {
		o.EscalationLevel = 0
	}

	return o
}
