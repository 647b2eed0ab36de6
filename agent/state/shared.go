package state

import (
	"errors"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

var (
	ErrNilSharedState = errors.New("shared state is nil")
	ErrEmptyAuthor    = errors.New("message author is empty")
	ErrNextHopUnset   = errors.New("next hop is unset")
)

// SharedState is the run-scoped conversation the orchestrator owns.
// - History is append-only; Seq equals the insertion index.
// - Next is written by the supervisor step and consumed by the transition.
type SharedState struct {
	history []contractx.Message
	next    *contractx.RoutingDecision
}

func NewSharedState() *SharedState {
	return &SharedState{history: make([]contractx.Message, 0, 16)}
}

// Append stores a new message and returns it with its sequence index assigned.
func (s *SharedState) Append(author string, kind contractx.MessageKind, content string) (contractx.Message, error) {
	if s == nil {
		return contractx.Message{}, ErrNilSharedState
	}
	author = strings.TrimSpace(author)
	if author == "" {
		return contractx.Message{}, ErrEmptyAuthor
	}
	if kind == "" {
		kind = contractx.KindContent
	}

	msg := contractx.Message{
		Seq:     len(s.history),
		Author:  author,
		Kind:    kind,
		Content: content,
	}
	s.history = append(s.history, msg)
	return msg, nil
}

// Snapshot returns a copy of the history; callers cannot mutate stored entries.
func (s *SharedState) Snapshot() []contractx.Message {
	if s == nil {
		return nil
	}
	out := make([]contractx.Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *SharedState) Len() int {
	if s == nil {
		return 0
	}
	return len(s.history)
}

// Last returns the newest message written by author, skipping non-content kinds.
func (s *SharedState) Last(author string) (contractx.Message, bool) {
	if s == nil {
		return contractx.Message{}, false
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		m := s.history[i]
		if m.Author == author && m.Kind == contractx.KindContent {
			return m, true
		}
	}
	return contractx.Message{}, false
}

func (s *SharedState) SetNext(d contractx.RoutingDecision) {
	s.next = &d
}

// TakeNext consumes the pending routing decision.
func (s *SharedState) TakeNext() (contractx.RoutingDecision, error) {
	if s == nil {
		return contractx.RoutingDecision{}, ErrNilSharedState
	}
	if s.next == nil {
		return contractx.RoutingDecision{}, ErrNextHopUnset
	}
	d := *s.next
	s.next = nil
	return d, nil
}

// PeekNext returns the pending decision without consuming it.
func (s *SharedState) PeekNext() (contractx.RoutingDecision, bool) {
	if s == nil || s.next == nil {
		return contractx.RoutingDecision{}, false
	}
	return *s.next, true
}

// Validate checks the history invariants.
func (s *SharedState) Validate() error {
	if s == nil {
		return ErrNilSharedState
	}
	for i, m := range s.history {
		if m.Seq != i {
			return fmt.Errorf("%w: message at index=%d has seq=%d", contractx.ErrValidation, i, m.Seq)
		}
		if strings.TrimSpace(m.Author) == "" {
			return fmt.Errorf("%w: message at index=%d has empty author", contractx.ErrValidation, i)
		}
	}
	return nil
}
