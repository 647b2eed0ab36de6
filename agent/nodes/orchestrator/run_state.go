package orchestratornode

import (
	"errors"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
	statex "github.com/tanpawarit/chative-supervisor/agent/state"
)

var (
	ErrInvalidTask  = errors.New("task is empty")
	ErrInvalidRunID = errors.New("run id is empty")
	ErrNilRunState  = errors.New("run state is nil")
)

// Seed is the initial request that opens a run.
type Seed struct {
	Task   string
	Author string
}

// RunState flows through every node of the orchestration graph. The graph
// passes the same pointer from node to node, so the caller keeps a handle on
// the partial history when a node fails.
type RunState struct {
	RunID  string
	Shared *statex.SharedState
	Turns  int

	// Err is the first node failure, recorded before the graph unwinds.
	Err error

	emit contractx.EventSink
}

func NewRunState(runID string, seed Seed, emit contractx.EventSink) (*RunState, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, ErrInvalidRunID
	}
	task := strings.TrimSpace(seed.Task)
	if task == "" {
		return nil, ErrInvalidTask
	}
	author := strings.TrimSpace(seed.Author)
	if author == "" {
		author = contractx.AuthorUser
	}

	shared := statex.NewSharedState()
	if _, err := shared.Append(author, contractx.KindContent, task); err != nil {
		return nil, fmt.Errorf("%w: seed: %v", contractx.ErrValidation, err)
	}
	return &RunState{RunID: runID, Shared: shared, emit: emit}, nil
}

func (s *RunState) fail(err error) error {
	if s != nil && s.Err == nil {
		s.Err = err
	}
	return err
}

func (s *RunState) publish(ev contractx.Event) {
	if s == nil || s.emit == nil {
		return
	}
	ev.RunID = s.RunID
	s.emit(ev)
}

// Emitter exposes the run's event sink to the worker loop.
func (s *RunState) Emitter() contractx.EventSink {
	if s == nil {
		return nil
	}
	return s.publish
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %v", contractx.ErrCancelled, cause)
}
