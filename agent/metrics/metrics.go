package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

const namespace = "chative_supervisor"

// Recorder turns run events into Prometheus series.
type Recorder struct {
	routing   *prometheus.CounterVec
	turns     *prometheus.CounterVec
	toolCalls *prometheus.CounterVec
	runs      *prometheus.CounterVec
	runTurns  prometheus.Histogram
}

func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		routing: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_decisions_total",
				Help:      "Supervisor routing decisions by target.",
			},
			[]string{"next"},
		),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_turns_total",
				Help:      "Worker turns by outcome.",
			},
			[]string{"worker", "outcome"},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool call attempts by status, including denied calls.",
			},
			[]string{"tool", "status"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Completed runs by status.",
			},
			[]string{"status"},
		),
		runTurns: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_turns",
			Help:      "Worker turns per run.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
	}

	for _, c := range []prometheus.Collector{r.routing, r.turns, r.toolCalls, r.runs, r.runTurns} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe is a contract.EventSink.
func (r *Recorder) Observe(ev contractx.Event) {
	switch ev.Type {
	case contractx.EventSupervisorRouted:
		r.routing.WithLabelValues(ev.Next).Inc()
	case contractx.EventToolCalled:
		status := "ok"
		if ev.Err != "" {
			status = "error"
		}
		r.toolCalls.WithLabelValues(string(ev.Tool), status).Inc()
	case contractx.EventWorkerMessage:
		r.turns.WithLabelValues(string(ev.Worker), "content").Inc()
	case contractx.EventWorkerFailed:
		outcome := "failure"
		if ev.Message != nil {
			outcome = string(ev.Message.Kind)
		}
		r.turns.WithLabelValues(string(ev.Worker), outcome).Inc()
	case contractx.EventRunFinished:
		r.runs.WithLabelValues("finished").Inc()
		r.runTurns.Observe(float64(ev.Turn))
	case contractx.EventRunFailed:
		status := ev.Status
		if status == "" {
			status = "failed"
		}
		r.runs.WithLabelValues(status).Inc()
		r.runTurns.Observe(float64(ev.Turn))
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
