package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/chative-supervisor/agent/agents/worker"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
	nodex "github.com/tanpawarit/chative-supervisor/agent/nodes/orchestrator"
)

const (
	DefaultMaxTurns   = 25
	DefaultWriterRole = "Writer"
)

var (
	ErrInvalidTask = nodex.ErrInvalidTask
	ErrNoWorkers   = errors.New("at least one worker is required")
)

type Seed = nodex.Seed

type Config struct {
	MaxTurns     int    `envconfig:"MAX_TURNS" split_words:"true" default:"25"`
	TraceRouting bool   `envconfig:"TRACE_ROUTING" split_words:"true" default:"false"`
	WriterRole   string `envconfig:"WRITER_ROLE" split_words:"true" default:"Writer"`
}

type Status string

const (
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Result is returned for every run, including failed ones, so the partial
// history is never lost.
type Result struct {
	RunID   string              `json:"run_id"`
	Status  Status              `json:"status"`
	Turns   int                 `json:"turns"`
	History []contractx.Message `json:"history"`
	Output  string              `json:"output,omitempty"`
}

// Final returns the last content message authored by author.
func (r Result) Final(author string) (contractx.Message, bool) {
	for i := len(r.History) - 1; i >= 0; i-- {
		m := r.History[i]
		if m.Author == author && m.Kind == contractx.KindContent {
			return m, true
		}
	}
	return contractx.Message{}, false
}

type Option func(*Orchestrator)

// WithEventSink attaches a sink that observes every run, e.g. metrics.
func WithEventSink(sink contractx.EventSink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sinks = append(o.sinks, sink)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

type RunOption func(*runOptions)

type runOptions struct {
	runID   string
	handler contractx.EventSink
}

func WithRunID(id string) RunOption {
	return func(o *runOptions) {
		o.runID = strings.TrimSpace(id)
	}
}

func WithEventHandler(h contractx.EventSink) RunOption {
	return func(o *runOptions) {
		o.handler = h
	}
}

type Orchestrator struct {
	decider nodex.Decider
	runner  nodex.WorkerRunner
	workers []worker.Worker
	cfg     Config

	sinks []contractx.EventSink
	now   func() time.Time

	graphRunner compose.Runnable[*nodex.RunState, *nodex.RunState]
}

func New(
	decider nodex.Decider,
	runner nodex.WorkerRunner,
	workers []worker.Worker,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if decider == nil {
		return nil, errors.New("supervisor decider is required")
	}
	if runner == nil {
		return nil, errors.New("worker runner is required")
	}
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}
	if err := checkRoster(decider.Options(), workers); err != nil {
		return nil, err
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	cfg.WriterRole = strings.TrimSpace(cfg.WriterRole)
	if cfg.WriterRole == "" {
		cfg.WriterRole = DefaultWriterRole
	}

	o := &Orchestrator{
		decider: decider,
		runner:  runner,
		workers: append([]worker.Worker(nil), workers...),
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	graphRunner, err := o.compileRunGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner
	return o, nil
}

// checkRoster requires the supervisor's decision set to be exactly the
// worker ids plus FINISH.
func checkRoster(options []string, workers []worker.Worker) error {
	want := make(map[string]bool, len(options))
	for _, opt := range options {
		if opt != contractx.Finish {
			want[opt] = true
		}
	}
	for _, id := range workerIDs(workers) {
		if !want[id] {
			return fmt.Errorf("%w: worker=%s is not a supervisor option", contractx.ErrValidation, id)
		}
		delete(want, id)
	}
	for id := range want {
		return fmt.Errorf("%w: supervisor option=%s has no worker", contractx.ErrValidation, id)
	}
	return nil
}

func (o *Orchestrator) Workers() []contractx.WorkerID {
	out := make([]contractx.WorkerID, 0, len(o.workers))
	for _, w := range o.workers {
		out = append(out, w.Definition.ID)
	}
	return out
}

// Run drives the supervisor/worker cycle until FINISH or a fatal error.
// Failures come back as *contract.RunError alongside the partial Result.
func (o *Orchestrator) Run(ctx context.Context, seed Seed, opts ...RunOption) (Result, error) {
	ro := runOptions{}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.runID == "" {
		ro.runID = uuid.NewString()
	}

	em := o.newEmitter(ro.handler)
	st, err := nodex.NewRunState(ro.runID, seed, em.emit)
	if err != nil {
		res := Result{RunID: ro.runID, Status: StatusFailed}
		return res, &contractx.RunError{RunID: ro.runID, Err: err}
	}

	logger := log.With().Str("run_id", st.RunID).Logger()
	logger.Info().Int("workers", len(o.workers)).Int("max_turns", o.cfg.MaxTurns).Msg("run started")

	_, graphErr := o.graphRunner.Invoke(ctx, st)
	res := Result{
		RunID:   st.RunID,
		Turns:   st.Turns,
		History: st.Shared.Snapshot(),
	}

	if graphErr != nil {
		cause := st.Err
		switch {
		case cause != nil:
		case ctx.Err() != nil:
			cause = fmt.Errorf("%w: %v", contractx.ErrCancelled, ctx.Err())
		default:
			cause = graphErr
		}
		res.Status = StatusFailed
		if errors.Is(cause, contractx.ErrCancelled) {
			res.Status = StatusCancelled
		}
		runErr := &contractx.RunError{RunID: st.RunID, Turn: st.Turns, Err: cause}
		em.emit(contractx.Event{Type: contractx.EventRunFailed, RunID: st.RunID, Turn: st.Turns, Err: cause.Error(), Status: string(res.Status)})
		logger.Error().Err(cause).Int("turns", st.Turns).Str("status", string(res.Status)).Msg("run failed")
		return res, runErr
	}

	res.Status = StatusFinished
	if msg, ok := res.Final(o.cfg.WriterRole); ok {
		res.Output = msg.Content
	}
	em.emit(contractx.Event{Type: contractx.EventRunFinished, RunID: st.RunID, Turn: st.Turns, Status: string(res.Status)})
	logger.Info().Int("turns", st.Turns).Int("messages", len(res.History)).Msg("run finished")
	return res, nil
}

// RunStream delivers a run's events in order. Events is closed after the
// terminal event; callers must drain it.
type RunStream struct {
	events chan contractx.Event
	done   chan struct{}
	result Result
	err    error
}

func (s *RunStream) Events() <-chan contractx.Event {
	return s.events
}

// Wait blocks until the run ends.
func (s *RunStream) Wait() (Result, error) {
	<-s.done
	return s.result, s.err
}

func (o *Orchestrator) Stream(ctx context.Context, seed Seed, opts ...RunOption) *RunStream {
	s := &RunStream{
		events: make(chan contractx.Event, 64),
		done:   make(chan struct{}),
	}

	ro := runOptions{}
	for _, opt := range opts {
		opt(&ro)
	}
	user := ro.handler
	forward := func(ev contractx.Event) {
		if user != nil {
			user(ev)
		}
		s.events <- ev
	}

	go func() {
		defer close(s.done)
		defer close(s.events)
		runOpts := append(append(make([]RunOption, 0, len(opts)+1), opts...), WithEventHandler(forward))
		s.result, s.err = o.Run(ctx, seed, runOpts...)
	}()
	return s
}

type emitter struct {
	mu    sync.Mutex
	seq   int
	now   func() time.Time
	sinks []contractx.EventSink
}

func (o *Orchestrator) newEmitter(handler contractx.EventSink) *emitter {
	sinks := append([]contractx.EventSink(nil), o.sinks...)
	if handler != nil {
		sinks = append(sinks, handler)
	}
	return &emitter{now: o.now, sinks: sinks}
}

func (e *emitter) emit(ev contractx.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev.Seq = e.seq
	e.seq++
	if ev.At.IsZero() {
		ev.At = e.now().UTC()
	}
	for _, sink := range e.sinks {
		sink(ev)
	}
}
