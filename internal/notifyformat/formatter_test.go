package notifyformat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksunye/FSOpsAssistant/internal/opportunity"
)

func opp(orderNum string, elapsed float64) opportunity.Opportunity {
	return opportunity.Opportunity{
		OrderNum:             orderNum,
		CustomerName:         "cust-" + orderNum,
		Address:              "addr",
		SupervisorName:       "sup",
		OrgName:              "org-a",
		CreateTime:           time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		OrderStatus:          opportunity.StatusPendingAppointment,
		ElapsedBusinessHours: elapsed,
	}
}

func TestRenderUnderCapNoTruncationLine(t *testing.T) {
	f := New(5, 10)
	opps := []opportunity.Opportunity{opp("O1", 5), opp("O2", 6)}
	out := f.Render("org-a", opps, KindReminder, len(opps))
	assert.Contains(t, out, "O1")
	assert.Contains(t, out, "O2")
	assert.NotContains(t, out, "more")
}

func TestRenderOverCapHasExactlyOneTruncationLine(t *testing.T) {
	f := New(5, 10)
	var opps []opportunity.Opportunity
	for i := 0; i < 6; i++ {
		opps = append(opps, opp(string(rune('A'+i)), 10))
	}
	out := f.Render("org-a", opps, KindEscalation, 6)
	assert.Contains(t, out, "...and 1 more")
	assert.Equal(t, 1, countOccurrences(out, "more"))
}

func oppWithStatus(orderNum string, status opportunity.Status) opportunity.Opportunity {
	o := opp(orderNum, 5)
	o.OrderStatus = status
	return o
}

func TestRenderGroupsByOrderStatusPreservingOrderNumWithinGroup(t *testing.T) {
	f := New(5, 10)
	opps := []opportunity.Opportunity{
		oppWithStatus("O2", opportunity.StatusPendingAppointment),
		oppWithStatus("O1", opportunity.StatusTemporarilyNotVisiting),
		oppWithStatus("O3", opportunity.StatusPendingAppointment),
	}
	out := f.Render("org-a", opps, KindEscalation, len(opps))

	// Groups appear in order of first appearance among the OrderNum-sorted
	// input (O1 TemporarilyNotVisiting first, then O2/O3 PendingAppointment).
	require.Less(t, indexOf(out, string(opportunity.StatusTemporarilyNotVisiting)), indexOf(out, string(opportunity.StatusPendingAppointment)))
	require.Less(t, indexOf(out, "O2"), indexOf(out, "O3"))
}

func TestGroupByStatusKeepsSingleGroupTogether(t *testing.T) {
	groups := groupByStatus([]opportunity.Opportunity{
		oppWithStatus("O1", opportunity.StatusPendingAppointment),
		oppWithStatus("O2", opportunity.StatusPendingAppointment),
	})
	require.Len(t, groups, 1)
	assert.Equal(t, opportunity.StatusPendingAppointment, groups[0].status)
	assert.Len(t, groups[0].opps, 2)
}

func TestRenderIsDeterministicAndSortedByOrderNum(t *testing.T) {
	f := New(5, 10)
	opps := []opportunity.Opportunity{opp("O2", 5), opp("O1", 5)}
	out1 := f.Render("org-a", opps, KindReminder, 2)
	out2 := f.Render("org-a", opps, KindReminder, 2)
	assert.Equal(t, out1, out2)
	assert.Less(t, indexOf(out1, "O1"), indexOf(out1, "O2"))
}

func TestFormatElapsedDaysAndHours(t *testing.T) {
	assert.Equal(t, "1d 2h", formatElapsed(12, 10))
	assert.Equal(t, "5h", formatElapsed(5, 10))
}

type fakeAdvisor struct {
	out string
	err error
}

func (f fakeAdvisor) Render(orgName string, opps []opportunity.Opportunity, kind Kind, cap int) (string, error) {
	return f.out, f.err
}

func TestAdvisorSuccessOverridesDeterministicPath(t *testing.T) {
	f := New(5, 10).WithAdvisor(fakeAdvisor{out: "advisor rendered"})
	out := f.Render("org-a", []opportunity.Opportunity{opp("O1", 5)}, KindReminder, 1)
	assert.Equal(t, "advisor rendered", out)
}

func TestAdvisorFailureFallsBackToDeterministicPath(t *testing.T) {
	f := New(5, 10).WithAdvisor(fakeAdvisor{err: errors.New("llm down")})
	out := f.Render("org-a", []opportunity.Opportunity{opp("O1", 5)}, KindReminder, 1)
	require.Contains(t, out, "O1")
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
		}
	}
	return count
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
