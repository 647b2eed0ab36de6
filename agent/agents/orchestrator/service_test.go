package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tanpawarit/chative-supervisor/agent/agents/supervisor"
	"github.com/tanpawarit/chative-supervisor/agent/agents/worker"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
	toolx "github.com/tanpawarit/chative-supervisor/agent/tool"
)

// fakeRouter replays routing replies in order and records the history
// length seen at each supervisor step.
type fakeRouter struct {
	mu       sync.Mutex
	replies  []string
	calls    int
	seenLens []int
	onCall   func(call int)
}

func (f *fakeRouter) Route(ctx context.Context, req contractx.RoutingRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seenLens = append(f.seenLens, len(req.History))
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	idx := f.calls - 1
	if idx >= len(f.replies) {
		return "", fmt.Errorf("no routing reply left at call=%d", f.calls)
	}
	return f.replies[idx], nil
}

type stepFunc func(ctx context.Context, req contractx.WorkerRequest) (contractx.WorkerStep, error)

// fakeGenerator plays a scripted sequence of steps, one per generator call.
type fakeGenerator struct {
	steps []stepFunc
	calls int
	reqs  []contractx.WorkerRequest
}

func (f *fakeGenerator) Next(ctx context.Context, req contractx.WorkerRequest) (contractx.WorkerStep, error) {
	f.calls++
	f.reqs = append(f.reqs, req)
	idx := f.calls - 1
	if idx >= len(f.steps) {
		return contractx.WorkerStep{}, fmt.Errorf("no step left at call=%d", f.calls)
	}
	return f.steps[idx](ctx, req)
}

func final(text string) stepFunc {
	return func(context.Context, contractx.WorkerRequest) (contractx.WorkerStep, error) {
		return contractx.WorkerStep{FinalText: text}, nil
	}
}

func callTool(tool contractx.ToolID, input string) stepFunc {
	return func(context.Context, contractx.WorkerRequest) (contractx.WorkerStep, error) {
		return contractx.WorkerStep{ToolCall: &contractx.ToolCall{Tool: tool, Input: input}}, nil
	}
}

type countingTool struct {
	mu    sync.Mutex
	calls int
	fn    contractx.ToolFunc
}

func (c *countingTool) invoke(ctx context.Context, input string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.fn != nil {
		return c.fn(ctx, input)
	}
	return "observed:" + input, nil
}

func (c *countingTool) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	router  *fakeRouter
	gens    map[contractx.WorkerID]*fakeGenerator
	tools   map[contractx.ToolID]*countingTool
	workers []worker.Worker
	reg     *toolx.Registry
}

func newFixture(t *testing.T, routes []string) *fixture {
	t.Helper()

	f := &fixture{
		router: &fakeRouter{replies: routes},
		gens:   map[contractx.WorkerID]*fakeGenerator{},
		tools: map[contractx.ToolID]*countingTool{
			"T1": {},
			"T2": {},
		},
		reg: toolx.NewRegistry(),
	}
	for id, tool := range f.tools {
		if err := f.reg.Register(toolx.Definition{ID: id, Description: "test tool " + string(id), Invoke: tool.invoke}); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}

	defs := []contractx.WorkerDefinition{
		{ID: "Analyzer", Tools: []contractx.ToolID{"T1"}, Instructions: "analyze"},
		{ID: "Writer", Tools: []contractx.ToolID{"T2"}, Instructions: "write"},
	}
	for _, def := range defs {
		gen := &fakeGenerator{}
		f.gens[def.ID] = gen
		f.workers = append(f.workers, worker.Worker{Definition: def, Generator: gen})
	}
	return f
}

func (f *fixture) script(id contractx.WorkerID, steps ...stepFunc) {
	f.gens[id].steps = append(f.gens[id].steps, steps...)
}

func (f *fixture) orchestrator(t *testing.T, cfg Config, wcfg worker.Config, opts ...Option) *Orchestrator {
	t.Helper()

	ids := make([]contractx.WorkerID, 0, len(f.workers))
	for _, w := range f.workers {
		ids = append(ids, w.Definition.ID)
	}
	unit, err := supervisor.NewUnit(f.router, ids, "route")
	if err != nil {
		t.Fatalf("NewUnit() error = %v", err)
	}
	if wcfg.MaxToolCalls == 0 {
		wcfg.MaxToolCalls = 3
	}
	exec, err := worker.NewExecutor(f.reg, wcfg)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return fixed })}, opts...)
	o, err := New(unit, exec, f.workers, cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func authors(history []contractx.Message) []string {
	out := make([]string, 0, len(history))
	for _, m := range history {
		out = append(out, m.Author)
	}
	return out
}

func TestRunTwoWorkerHandoff(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"Analyzer", "Writer", "FINISH"})
	f.script("Analyzer", callTool("T1", "data"), final("analysis: data looks fine"))
	f.script("Writer", final("report based on analysis"))
	o := f.orchestrator(t, Config{}, worker.Config{})

	res, err := o.Run(context.Background(), Seed{Task: "summarize the data"}, WithRunID("run-a"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := authors(res.History); !reflect.DeepEqual(got, []string{"user", "Analyzer", "Writer"}) {
		t.Fatalf("unexpected authors: %v", got)
	}
	if res.Status != StatusFinished || res.Turns != 2 || res.RunID != "run-a" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.router.calls != 3 {
		t.Fatalf("expected supervisor invoked 3 times, got %d", f.router.calls)
	}
	if f.tools["T1"].count() != 1 || f.tools["T2"].count() != 0 {
		t.Fatalf("unexpected tool calls: T1=%d T2=%d", f.tools["T1"].count(), f.tools["T2"].count())
	}
	if res.Output != "report based on analysis" {
		t.Fatalf("unexpected output: %q", res.Output)
	}

	writerReq := f.gens["Writer"].reqs[0]
	if len(writerReq.History) != 2 || writerReq.History[1].Content != "analysis: data looks fine" {
		t.Fatalf("writer should see analyzer output, got %+v", writerReq.History)
	}
}

func TestRunOutputFollowsWriterRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		role string
		want string
	}{
		{name: "default role", role: "", want: "draft"},
		{name: "blank role", role: "  ", want: "draft"},
		{name: "custom role", role: "Analyzer", want: "notes"},
		{name: "role never spoke", role: "Editor", want: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, []string{"Analyzer", "Writer", "FINISH"})
			f.script("Analyzer", final("notes"))
			f.script("Writer", final("draft"))
			o := f.orchestrator(t, Config{WriterRole: tc.role}, worker.Config{})

			res, err := o.Run(context.Background(), Seed{Task: "write it up"})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Output != tc.want {
				t.Fatalf("Output = %q, want %q", res.Output, tc.want)
			}
		})
	}
}

func TestRunCapabilityViolationIsRecordedNotInvoked(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"Analyzer", "FINISH"})
	f.script("Analyzer", callTool("foo", "x"), final("done without foo"))
	o := f.orchestrator(t, Config{}, worker.Config{})

	res, err := o.Run(context.Background(), Seed{Task: "try foo"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if last, ok := res.Final("Analyzer"); !ok || last.Content != "done without foo" {
		t.Fatalf("expected analyzer final message, got %+v ok=%v", last, ok)
	}
	if f.tools["T1"].count() != 0 || f.tools["T2"].count() != 0 {
		t.Fatal("no registered tool should have been invoked")
	}

	second := f.gens["Analyzer"].reqs[1]
	if len(second.Scratch) != 1 {
		t.Fatalf("expected one scratch entry, got %d", len(second.Scratch))
	}
	if !strings.Contains(second.Scratch[0].Error, contractx.ErrToolNotPermitted.Error()) {
		t.Fatalf("scratch should record the denial, got %q", second.Scratch[0].Error)
	}
}

func TestRunInvalidRoutingLeavesHistoryUnchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"Reviewer"})
	o := f.orchestrator(t, Config{}, worker.Config{})

	res, err := o.Run(context.Background(), Seed{Task: "review this"}, WithRunID("run-c"))
	if !errors.Is(err, contractx.ErrInvalidRoutingDecision) {
		t.Fatalf("expected ErrInvalidRoutingDecision, got %v", err)
	}
	var runErr *contractx.RunError
	if !errors.As(err, &runErr) || runErr.RunID != "run-c" || runErr.Turn != 0 {
		t.Fatalf("expected RunError for run-c turn 0, got %#v", err)
	}
	var invalid *contractx.InvalidRoutingDecisionError
	if !errors.As(err, &invalid) || invalid.Raw != "Reviewer" {
		t.Fatalf("expected raw output preserved, got %#v", invalid)
	}
	if len(res.History) != 1 || res.Status != StatusFailed {
		t.Fatalf("history must be unchanged, got %+v", res)
	}
	for id, gen := range f.gens {
		if gen.calls != 0 {
			t.Fatalf("worker %s should not have run", id)
		}
	}
}

func TestRunAlwaysReturnsToSupervisor(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"Writer", "Analyzer", "Writer", "FINISH"})
	f.script("Analyzer", final("a1"))
	f.script("Writer", final("w1"), final("w2"))
	o := f.orchestrator(t, Config{}, worker.Config{})

	res, err := o.Run(context.Background(), Seed{Task: "loop"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.router.calls != res.Turns+1 {
		t.Fatalf("expected %d supervisor steps, got %d", res.Turns+1, f.router.calls)
	}
	// the supervisor sees every worker contribution before the next decision
	if !reflect.DeepEqual(f.router.seenLens, []int{1, 2, 3, 4}) {
		t.Fatalf("unexpected history lengths at supervisor: %v", f.router.seenLens)
	}
}

func TestRunHistoryIsAppendOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"Analyzer", "Writer", "FINISH"})
	f.script("Analyzer", final("a1"))
	f.script("Writer", final("w1"))
	o := f.orchestrator(t, Config{TraceRouting: true}, worker.Config{})

	var snapshots [][]contractx.Message
	res, err := o.Run(context.Background(), Seed{Task: "monotonic"}, WithEventHandler(func(ev contractx.Event) {
		if ev.Message != nil {
			snapshots = append(snapshots, []contractx.Message{*ev.Message})
		}
	}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, m := range res.History {
		if m.Seq != i {
			t.Fatalf("message %d has seq %d", i, m.Seq)
		}
	}
	for _, snap := range snapshots {
		m := snap[0]
		if !reflect.DeepEqual(res.History[m.Seq], m) {
			t.Fatalf("message %d changed after emission: %+v vs %+v", m.Seq, res.History[m.Seq], m)
		}
	}

	kinds := make([]contractx.MessageKind, 0, len(res.History))
	for _, m := range res.History {
		kinds = append(kinds, m.Kind)
	}
	want := []contractx.MessageKind{
		contractx.KindContent, contractx.KindRouting, contractx.KindContent,
		contractx.KindRouting, contractx.KindContent, contractx.KindRouting,
	}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("unexpected kinds: %v", kinds)
	}
}

func TestRunIsDeterministicForSameScripts(t *testing.T) {
	t.Parallel()

	run := func() Result {
		f := newFixture(t, []string{"Analyzer", "Writer", "FINISH"})
		f.script("Analyzer", callTool("T1", "x"), final("a"))
		f.script("Writer", final("w"))
		o := f.orchestrator(t, Config{}, worker.Config{})
		res, err := o.Run(context.Background(), Seed{Task: "same"}, WithRunID("fixed"))
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return res
	}

	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("replay diverged:\n%+v\n%+v", first, second)
	}
}

func TestRunRecoverableFailureBecomesFailureMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"Analyzer", "FINISH"})
	f.script("Analyzer", callTool("T1", "1"), callTool("T1", "2"), callTool("T1", "3"))
	o := f.orchestrator(t, Config{}, worker.Config{MaxToolCalls: 2})

	res, err := o.Run(context.Background(), Seed{Task: "too many tools"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	last := res.History[len(res.History)-1]
	if last.Author != "Analyzer" || last.Kind != contractx.KindFailure {
		t.Fatalf("expected analyzer failure message, got %+v", last)
	}
	if !strings.Contains(last.Content, contractx.ErrWorkerLoopExhausted.Error()) {
		t.Fatalf("failure should name loop exhaustion, got %q", last.Content)
	}
	if f.tools["T1"].count() != 2 {
		t.Fatalf("expected exactly 2 tool calls, got %d", f.tools["T1"].count())
	}
	if _, ok := res.Final("Analyzer"); ok {
		t.Fatal("failure message must not count as a contribution")
	}
}

func TestRunCancelledBetweenTurns(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, []string{"Analyzer", "Writer"})
	f.script("Analyzer", func(context.Context, contractx.WorkerRequest) (contractx.WorkerStep, error) {
		cancel()
		return contractx.WorkerStep{FinalText: "partial analysis"}, nil
	})
	o := f.orchestrator(t, Config{}, worker.Config{})

	var (
		mu   sync.Mutex
		last contractx.Event
	)
	res, err := o.Run(ctx, Seed{Task: "cancel me"}, WithEventHandler(func(ev contractx.Event) {
		mu.Lock()
		defer mu.Unlock()
		last = ev
	}))
	if !errors.Is(err, contractx.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if res.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", res.Status)
	}
	mu.Lock()
	if last.Type != contractx.EventRunFailed || last.Status != string(StatusCancelled) {
		t.Fatalf("terminal event should carry cancelled status, got %+v", last)
	}
	mu.Unlock()
	if got := authors(res.History); !reflect.DeepEqual(got, []string{"user", "Analyzer"}) {
		t.Fatalf("partial history should be kept, got %v", got)
	}
	if f.router.calls != 1 {
		t.Fatalf("supervisor should not decide after cancellation, got %d calls", f.router.calls)
	}
}

func TestRunCancelledMidTurn(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, []string{"Analyzer"})
	f.tools["T1"].fn = func(ctx context.Context, input string) (string, error) {
		cancel()
		return "", ctx.Err()
	}
	f.script("Analyzer", callTool("T1", "x"), final("never"))
	o := f.orchestrator(t, Config{}, worker.Config{})

	res, err := o.Run(ctx, Seed{Task: "cancel mid turn"})
	if !errors.Is(err, contractx.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	last := res.History[len(res.History)-1]
	if last.Author != "Analyzer" || last.Kind != contractx.KindCancelled {
		t.Fatalf("expected analyzer cancelled message, got %+v", last)
	}
	if f.gens["Analyzer"].calls != 1 {
		t.Fatalf("generator should stop after cancellation, got %d calls", f.gens["Analyzer"].calls)
	}
}

func TestRunTurnLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"Analyzer", "Analyzer", "Analyzer"})
	f.script("Analyzer", final("1"), final("2"))
	o := f.orchestrator(t, Config{MaxTurns: 2}, worker.Config{})

	res, err := o.Run(context.Background(), Seed{Task: "forever"})
	if !errors.Is(err, contractx.ErrTurnLimitExceeded) {
		t.Fatalf("expected ErrTurnLimitExceeded, got %v", err)
	}
	if res.Turns != 2 || len(res.History) != 3 {
		t.Fatalf("unexpected partial result: %+v", res)
	}
}

func TestRunFatalWorkerErrorFailsRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"Writer"})
	f.script("Writer", func(context.Context, contractx.WorkerRequest) (contractx.WorkerStep, error) {
		return contractx.WorkerStep{}, fmt.Errorf("%w: upstream 500", contractx.ErrModelInvoke)
	})
	o := f.orchestrator(t, Config{}, worker.Config{})

	res, err := o.Run(context.Background(), Seed{Task: "fail"})
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
	if res.Status != StatusFailed || len(res.History) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunRejectsEmptyTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	o := f.orchestrator(t, Config{}, worker.Config{})

	_, err := o.Run(context.Background(), Seed{Task: "   "})
	if !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
	if f.router.calls != 0 {
		t.Fatal("supervisor should not run for an empty task")
	}
}

func TestStreamDeliversOrderedEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"Analyzer", "Writer", "FINISH"})
	f.script("Analyzer", callTool("T1", "x"), final("a"))
	f.script("Writer", final("w"))
	o := f.orchestrator(t, Config{}, worker.Config{})

	stream := o.Stream(context.Background(), Seed{Task: "stream"}, WithRunID("run-s"))
	var types []contractx.EventType
	for ev := range stream.Events() {
		if ev.Seq != len(types) {
			t.Fatalf("event seq %d out of order at %d", ev.Seq, len(types))
		}
		if ev.RunID != "run-s" {
			t.Fatalf("unexpected run id %q", ev.RunID)
		}
		types = append(types, ev.Type)
	}
	res, err := stream.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	want := []contractx.EventType{
		contractx.EventSupervisorRouted,
		contractx.EventToolCalled,
		contractx.EventWorkerMessage,
		contractx.EventSupervisorRouted,
		contractx.EventWorkerMessage,
		contractx.EventSupervisorRouted,
		contractx.EventRunFinished,
	}
	if !reflect.DeepEqual(types, want) {
		t.Fatalf("unexpected events: %v", types)
	}
	if res.Turns != 2 {
		t.Fatalf("unexpected turns: %d", res.Turns)
	}
}

func TestStreamLeavesCallerOptionsUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"Writer", "FINISH"})
	f.script("Writer", final("w"))
	o := f.orchestrator(t, Config{}, worker.Config{})

	opts := make([]RunOption, 1, 4)
	opts[0] = WithRunID("run-o")
	stream := o.Stream(context.Background(), Seed{Task: "stream"}, opts...)
	for range stream.Events() {
	}
	if _, err := stream.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if spare := opts[:cap(opts)]; spare[1] != nil {
		t.Fatal("Stream wrote into the caller's option slice")
	}
}

func TestNewRejectsMismatchedRoster(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	unit, err := supervisor.NewUnit(f.router, []contractx.WorkerID{"Analyzer"}, "")
	if err != nil {
		t.Fatalf("NewUnit() error = %v", err)
	}
	exec, err := worker.NewExecutor(f.reg, worker.Config{})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	if _, err := New(unit, exec, f.workers, Config{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := New(unit, exec, nil, Config{}); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("expected ErrNoWorkers, got %v", err)
	}
}
