// Package notifyformat renders the deterministic reminder and escalation
// messages spec.md §4.6 calls the message formatter: pure functions of
// (orgName, opportunities, type, display cap), no I/O.
package notifyformat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/franksunye/FSOpsAssistant/internal/opportunity"
)

// DefaultDisplayCap is the default reminder_max_display_orders /
// escalation_max_display_orders value from spec.md §6.4.
const DefaultDisplayCap = 5

// Advisor is the optional LLM-assisted rewriter spec.md §4.6 calls
// DecisionAdvisor: it may re-render the same inputs, but a failure always
// falls back to the deterministic path, and it never influences task state.
type Advisor interface {
	Render(orgName string, opps []opportunity.Opportunity, kind Kind, displayCap int) (string, error)
}

// Kind distinguishes the two message tiers this package renders.
type Kind string

const (
	KindReminder   Kind = "reminder"
	KindEscalation Kind = "escalation"
)

// Formatter renders reminder and escalation bodies. It is stateless; the
// zero value is usable for the deterministic path, and WithAdvisor attaches
// an optional rewriter.
type Formatter struct {
	displayCap int
	advisor    Advisor
	hoursPerDay int
}

// New builds a Formatter. hoursPerDay drives the "Xd Yh" elapsed rendering
// and should equal the business-time config's workEndHour - workStartHour.
func New(displayCap, hoursPerDay int) *Formatter {
	if displayCap <= 0 {
		displayCap = DefaultDisplayCap
	}
	if hoursPerDay <= 0 {
		hoursPerDay = 10
	}
	return &Formatter{displayCap: displayCap, hoursPerDay: hoursPerDay}
}

// WithAdvisor attaches an optional DecisionAdvisor and returns the same
// Formatter for chaining.
func (f *Formatter) WithAdvisor(a Advisor) *Formatter {
	f.advisor = a
	return f
}

// Render produces the message body for orgName's opportunities of the given
// kind. total is the full count of matching opportunities (opps may already
// be truncated to displayCap by the caller, or not — Render truncates
// itself and reports the remainder against total, never silently eliding
// entries without the truncation line spec.md §4.6 requires).
//
// If an Advisor is attached, its output is used when it succeeds; any error
// falls back to the deterministic rendering below.
func (f *Formatter) Render(orgName string, opps []opportunity.Opportunity, kind Kind, total int) string {
	if f.advisor != nil {
		if rendered, err := f.advisor.Render(orgName, opps, kind, f.displayCap); err == nil {
			return rendered
		}
	}
	return f.renderDeterministic(orgName, opps, kind, total)
}

func (f *Formatter) renderDeterministic(orgName string, opps []opportunity.Opportunity, kind Kind, total int) string {
	sorted := make([]opportunity.Opportunity, len(opps))
	copy(sorted, opps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OrderNum < sorted[j].OrderNum })

	displayCap := f.displayCap
	if displayCap <= 0 {
		displayCap = DefaultDisplayCap
	}

	shown := sorted
	if len(shown) > displayCap {
		shown = shown[:displayCap]
	}

	var b strings.Builder
	switch kind {
	case KindEscalation:
		fmt.Fprintf(&b, "[ESCALATION] %s has %d order(s) overdue\n", orgName, total)
	default:
		fmt.Fprintf(&b, "[REMINDER] %s has %d order(s) approaching SLA\n", orgName, total)
	}

	for _, group := range groupByStatus(shown) {
		fmt.Fprintf(&b, "-- %s --\n", group.status)
		for _, o := range group.opps {
			fmt.Fprintf(&b, "- %s | %s | customer=%s addr=%s supervisor=%s created=%s status=%s\n",
				o.OrderNum,
				formatElapsed(o.ElapsedBusinessHours, f.hoursPerDay),
				o.CustomerName, o.Address, o.SupervisorName,
				o.CreateTime.Format("2006-01-02 15:04"), o.OrderStatus)
		}
	}

	if total > displayCap {
		more := total - displayCap
		fmt.Fprintf(&b, "...and %d more\n", more)
	}

	return b.String()
}

// statusGroup is one orderStatus's opportunities, in the order they appeared
// in the caller's (already OrderNum-sorted) slice.
type statusGroup struct {
	status opportunity.Status
	opps   []opportunity.Opportunity
}

// groupByStatus partitions opps by OrderStatus, preserving OrderNum-ascending
// order within each group and ordering the groups themselves by each
// status's first appearance — the same grouping the original formatter's
// format_violation_notification and format_org_overdue_notification do with
// a status_groups dict before enumerating.
func groupByStatus(opps []opportunity.Opportunity) []statusGroup {
	var groups []statusGroup
	index := map[opportunity.Status]int{}
	for _, o := range opps {
		i, ok := index[o.OrderStatus]
		if !ok {
			i = len(groups)
			index[o.OrderStatus] = i
			groups = append(groups, statusGroup{status: o.OrderStatus})
		}
		groups[i].opps = append(groups[i].opps, o)
	}
	return groups
}

// formatElapsed converts business hours into a coarse "Xd Yh" string, per
// spec.md §4.6's numeric semantics.
func formatElapsed(hours float64, hoursPerDay int) string {
	if hoursPerDay <= 0 {
		hoursPerDay = 10
	}
	whole := int(hours)
	days := whole / hoursPerDay
	rem := whole % hoursPerDay
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, rem)
	}
	return fmt.Sprintf("%dh", rem)
}
