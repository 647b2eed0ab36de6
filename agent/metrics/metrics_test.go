package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

func TestRecorderObserve(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg)
	require.NoError(t, err)

	events := []contractx.Event{
		{Type: contractx.EventSupervisorRouted, Next: "Analyzer"},
		{Type: contractx.EventToolCalled, Worker: "Analyzer", Tool: "math_evaluate"},
		{Type: contractx.EventToolCalled, Worker: "Analyzer", Tool: "foo", Err: "tool not permitted"},
		{Type: contractx.EventWorkerMessage, Worker: "Analyzer"},
		{Type: contractx.EventSupervisorRouted, Next: "Writer"},
		{Type: contractx.EventWorkerFailed, Worker: "Writer", Message: &contractx.Message{Kind: contractx.KindFailure}},
		{Type: contractx.EventSupervisorRouted, Next: contractx.Finish},
		{Type: contractx.EventRunFinished, Turn: 2},
	}
	for _, ev := range events {
		rec.Observe(ev)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.routing.WithLabelValues("Analyzer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.routing.WithLabelValues(contractx.Finish)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.toolCalls.WithLabelValues("math_evaluate", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.toolCalls.WithLabelValues("foo", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.turns.WithLabelValues("Analyzer", "content")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.turns.WithLabelValues("Writer", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("finished")))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.runs.WithLabelValues("failed")))
}

func TestRecorderLabelsRunsByStatus(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg)
	require.NoError(t, err)

	rec.Observe(contractx.Event{Type: contractx.EventRunFailed, Turn: 1, Status: "cancelled", Err: "run cancelled"})
	rec.Observe(contractx.Event{Type: contractx.EventRunFailed, Turn: 3, Status: "failed", Err: "invalid routing decision"})
	rec.Observe(contractx.Event{Type: contractx.EventRunFailed, Turn: 0})

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("cancelled")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.runs.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.runs.WithLabelValues("finished")))
}

func TestRecorderDoubleRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)
	_, err = NewRecorder(reg)
	assert.Error(t, err)
}

func TestHandlerServesSeries(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg)
	require.NoError(t, err)
	rec.Observe(contractx.Event{Type: contractx.EventRunFailed, Turn: 1})

	srv := httptest.NewServer(Handler(reg))
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chative_supervisor_runs_total{status="failed"} 1`)
}
