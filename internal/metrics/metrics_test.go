package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Question("answered")
	m.TicketCreated("web")
	m.Transition("RESOLVED", 12)
	m.Sweep("ok", 0.1)
	m.Provisioned("bound")
	m.QueueDepth(3)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.Question("answered")
	m.Question("escalated")
	m.Question("escalated")
	m.Transition("UNRESOLVED", 301)

	if got := testutil.ToFloat64(m.Questions.WithLabelValues("escalated")); got != 2 {
		t.Errorf("escalated = %v", got)
	}
	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("UNRESOLVED")); got != 1 {
		t.Errorf("unresolved transitions = %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.TicketCreated("voice")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `frontdesk_tickets_created_total{channel="voice"} 1`) {
		t.Errorf("metrics output missing ticket counter:\n%s", body)
	}
}
