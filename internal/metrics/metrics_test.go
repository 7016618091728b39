package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObserveTickIncrementsCountersAndSetsGauge(t *testing.T) {
	c := NewCollector()

	c.ObserveTick("Completed", 1.5, 10, 3, 1)
	c.ObserveTick("Failed", 0.5, 4, 0, 0)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `sla_agent_ticks_total{status="Completed"} 1`)
	assert.Contains(t, body, `sla_agent_ticks_total{status="Failed"} 1`)
	assert.Contains(t, body, "sla_agent_opportunities_processed 4")
	assert.Contains(t, body, "sla_agent_notifications_sent_total 3")
	assert.Contains(t, body, "sla_agent_notifications_failed_total 1")
}
