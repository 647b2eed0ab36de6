package contract

import (
	"context"
	"strings"
	"time"
)

type (
	WorkerID string
	ToolID   string
)

const (
	// Finish is the routing target that ends the run.
	Finish = "FINISH"

	AuthorSupervisor = "supervisor"
	AuthorUser       = "user"
)

type MessageKind string

const (
	KindContent   MessageKind = "content"
	KindFailure   MessageKind = "failure"
	KindCancelled MessageKind = "cancelled"
	KindRouting   MessageKind = "routing"
)

type Message struct {
	Seq     int         `json:"seq"`
	Author  string      `json:"author"`
	Kind    MessageKind `json:"kind"`
	Content string      `json:"content"`
}

// IsContribution reports whether m is worker output rather than a trace or failure record.
func (m Message) IsContribution() bool {
	return m.Kind == KindContent && m.Author != AuthorSupervisor && m.Author != AuthorUser
}

type WorkerDefinition struct {
	ID           WorkerID `json:"id" mapstructure:"id"`
	Tools        []ToolID `json:"tools,omitempty" mapstructure:"tools"`
	Instructions string   `json:"instructions" mapstructure:"instructions"`
}

// Permits reports whether tool is in the worker's capability set.
func (w WorkerDefinition) Permits(tool ToolID) bool {
	for _, t := range w.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

// IsReservedName reports whether name collides with a non-worker author or routing target.
func IsReservedName(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case strings.ToLower(Finish), AuthorSupervisor, AuthorUser:
		return true
	}
	return false
}

type RoutingDecision struct {
	Next string `json:"next"`
}

func (d RoutingDecision) IsFinish() bool {
	return d.Next == Finish
}

type ToolCall struct {
	ID    string `json:"id,omitempty"`
	Tool  ToolID `json:"tool"`
	Input string `json:"input"`
}

// ScratchEntry is one (call, result) pair recorded during a worker turn.
type ScratchEntry struct {
	Call   ToolCall `json:"call"`
	Result string   `json:"result,omitempty"`
	Error  string   `json:"error,omitempty"`
}

type WorkerRequest struct {
	Worker  WorkerDefinition `json:"worker"`
	History []Message        `json:"history"`
	Scratch []ScratchEntry   `json:"scratch,omitempty"`
}

// WorkerStep is either a tool call or a final answer.
type WorkerStep struct {
	ToolCall  *ToolCall `json:"tool_call,omitempty"`
	FinalText string    `json:"final_text,omitempty"`
}

type RoutingRequest struct {
	Instructions string    `json:"instructions"`
	History      []Message `json:"history"`
	Options      []string  `json:"options"`
}

// RunInfo identifies the run and turn a tool is invoked from.
type RunInfo struct {
	RunID  string
	Worker WorkerID
	Turn   int
}

type runInfoKey struct{}

func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}

type EventType string

const (
	EventSupervisorRouted EventType = "supervisor_routed"
	EventToolCalled       EventType = "tool_called"
	EventWorkerMessage    EventType = "worker_message"
	EventWorkerFailed     EventType = "worker_failed"
	EventRunFinished      EventType = "run_finished"
	EventRunFailed        EventType = "run_failed"
)

// Event is one entry of the per-run progress stream. Status is set on the
// terminal run event only.
type Event struct {
	Seq     int       `json:"seq"`
	Type    EventType `json:"type"`
	RunID   string    `json:"run_id"`
	Turn    int       `json:"turn"`
	Worker  WorkerID  `json:"worker,omitempty"`
	Next    string    `json:"next,omitempty"`
	Tool    ToolID    `json:"tool,omitempty"`
	Message *Message  `json:"message,omitempty"`
	Err     string    `json:"error,omitempty"`
	Status  string    `json:"status,omitempty"`
	At      time.Time `json:"at"`
}
