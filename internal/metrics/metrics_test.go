package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nidhogg/milgram/internal/message"
)

func TestMetricsCountsMessages(t *testing.T) {
	m := New("test")
	msg := message.New("alice", "bob", message.Text("hi"))

	m.OnMessage(msg, true)
	m.OnMessage(msg, true)
	m.OnMessage(msg, false)

	if got := testutil.ToFloat64(m.MessagesDelivered); got != 2 {
		t.Errorf("delivered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessagesDropped); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
}

func TestMetricsReasoningOutcomes(t *testing.T) {
	m := New("test")

	m.RecordReasoning("think", nil)
	m.RecordReasoning("think", nil)
	m.RecordReasoning("decide", fmt.Errorf("backend down"))

	if got := testutil.ToFloat64(m.ReasoningTotal.WithLabelValues("think", "ok")); got != 2 {
		t.Errorf("think ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ReasoningTotal.WithLabelValues("decide", "error")); got != 1 {
		t.Errorf("decide error = %v, want 1", got)
	}
}

func TestMetricsPruneIgnoresZero(t *testing.T) {
	m := New("test")

	m.RecordMemoriesPruned(0)
	m.RecordMemoriesPruned(7)

	if got := testutil.ToFloat64(m.MemoriesPruned); got != 7 {
		t.Errorf("pruned = %v, want 7", got)
	}
}

func TestMetricsHandlerServes(t *testing.T) {
	m := New("milgram")
	m.OnTick(time.Now())
	m.SetAgents(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "milgram_clock_ticks_total 1") {
		t.Errorf("expected tick counter in output:\n%s", body)
	}
	if !strings.Contains(string(body), "milgram_agents_registered 3") {
		t.Errorf("expected agent gauge in output:\n%s", body)
	}
}

func TestMetricsInstancesAreIndependent(t *testing.T) {
	a := New("test")
	b := New("test")

	a.RecordBroadcast()

	if got := testutil.ToFloat64(b.BroadcastsTotal); got != 0 {
		t.Errorf("second instance broadcasts = %v, want 0", got)
	}
}
