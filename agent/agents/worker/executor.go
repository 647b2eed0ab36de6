package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

const DefaultMaxToolCalls = 8

type Config struct {
	// MaxToolCalls bounds tool-call steps per turn, permitted or not.
	MaxToolCalls     int           `envconfig:"MAX_TOOL_CALLS" split_words:"true" default:"8"`
	GenerateTimeout  time.Duration `envconfig:"GENERATE_TIMEOUT" split_words:"true" default:"60s"`
	ToolTimeout      time.Duration `envconfig:"TOOL_TIMEOUT" split_words:"true" default:"30s"`
	AbortOnToolError bool          `envconfig:"ABORT_ON_TOOL_ERROR" split_words:"true" default:"false"`
}

// Worker pairs a fixed definition with the generator bound to its tools.
type Worker struct {
	Definition contractx.WorkerDefinition
	Generator  contractx.WorkerGenerator
}

// Turn is the read-only input to one worker activation.
type Turn struct {
	RunID   string
	Index   int
	History []contractx.Message
	Emit    contractx.EventSink
}

// Outcome is what a turn produced. On error it still holds the scratch so far.
type Outcome struct {
	Text      string
	ToolCalls int
	Scratch   []contractx.ScratchEntry
}

type Executor struct {
	tools contractx.ToolInvoker
	cfg   Config
}

func NewExecutor(tools contractx.ToolInvoker, cfg Config) (*Executor, error) {
	if tools == nil {
		return nil, errors.New("tool invoker is required")
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = DefaultMaxToolCalls
	}
	return &Executor{tools: tools, cfg: cfg}, nil
}

func (e *Executor) MaxToolCalls() int {
	return e.cfg.MaxToolCalls
}

// Run drives one bounded generate -> act -> observe loop.
func (e *Executor) Run(ctx context.Context, w Worker, turn Turn) (Outcome, error) {
	if w.Generator == nil {
		return Outcome{}, fmt.Errorf("%w: worker=%s has no generator", contractx.ErrValidation, w.Definition.ID)
	}

	var (
		out         Outcome
		lastToolErr error
	)
	logger := log.With().
		Str("run_id", turn.RunID).
		Int("turn", turn.Index).
		Str("worker", string(w.Definition.ID)).
		Logger()
	toolCtx := contractx.WithRunInfo(ctx, contractx.RunInfo{
		RunID:  turn.RunID,
		Worker: w.Definition.ID,
		Turn:   turn.Index,
	})

	for {
		if err := ctx.Err(); err != nil {
			return out, cancelled(err)
		}

		step, err := e.generate(ctx, w, contractx.WorkerRequest{
			Worker:  w.Definition,
			History: turn.History,
			Scratch: append([]contractx.ScratchEntry(nil), out.Scratch...),
		})
		if err != nil {
			if ctx.Err() != nil {
				return out, cancelled(ctx.Err())
			}
			return out, err
		}

		if step.ToolCall == nil {
			text := strings.TrimSpace(step.FinalText)
			if text == "" {
				return out, fmt.Errorf("%w: worker=%s returned empty final text", contractx.ErrSchemaViolation, w.Definition.ID)
			}
			out.Text = text
			return out, nil
		}

		if out.ToolCalls >= e.cfg.MaxToolCalls {
			err := fmt.Errorf("%w: worker=%s limit=%d", contractx.ErrWorkerLoopExhausted, w.Definition.ID, e.cfg.MaxToolCalls)
			if lastToolErr != nil {
				err = errors.Join(err, lastToolErr)
			}
			return out, err
		}
		out.ToolCalls++

		call := *step.ToolCall
		call.Tool = contractx.ToolID(strings.TrimSpace(string(call.Tool)))
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", out.ToolCalls)
		}

		if !w.Definition.Permits(call.Tool) {
			denied := fmt.Errorf("%w: tool=%s worker=%s", contractx.ErrToolNotPermitted, call.Tool, w.Definition.ID)
			logger.Warn().Str("tool", string(call.Tool)).Msg("tool not permitted")
			out.Scratch = append(out.Scratch, contractx.ScratchEntry{Call: call, Error: denied.Error()})
			emitTool(turn, w.Definition.ID, call.Tool, denied)
			continue
		}

		if err := ctx.Err(); err != nil {
			return out, cancelled(err)
		}
		result, err := e.invoke(toolCtx, call)
		emitTool(turn, w.Definition.ID, call.Tool, err)
		if err != nil {
			if ctx.Err() != nil {
				return out, cancelled(ctx.Err())
			}
			logger.Warn().Err(err).Str("tool", string(call.Tool)).Msg("tool call failed")
			out.Scratch = append(out.Scratch, contractx.ScratchEntry{Call: call, Error: err.Error()})

			var toolErr *contractx.ToolInvocationError
			if errors.As(err, &toolErr) {
				lastToolErr = err
				if e.cfg.AbortOnToolError {
					return out, err
				}
			}
			continue
		}

		logger.Debug().Str("tool", string(call.Tool)).Int("step", out.ToolCalls).Msg("tool call succeeded")
		out.Scratch = append(out.Scratch, contractx.ScratchEntry{Call: call, Result: result})
	}
}

func (e *Executor) generate(ctx context.Context, w Worker, req contractx.WorkerRequest) (contractx.WorkerStep, error) {
	if e.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.GenerateTimeout)
		defer cancel()
	}
	return w.Generator.Next(ctx, req)
}

func (e *Executor) invoke(ctx context.Context, call contractx.ToolCall) (string, error) {
	if e.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ToolTimeout)
		defer cancel()
	}
	return e.tools.Invoke(ctx, call.Tool, call.Input)
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %v", contractx.ErrCancelled, cause)
}

func emitTool(turn Turn, worker contractx.WorkerID, tool contractx.ToolID, err error) {
	if turn.Emit == nil {
		return
	}
	ev := contractx.Event{
		Type:   contractx.EventToolCalled,
		RunID:  turn.RunID,
		Turn:   turn.Index,
		Worker: worker,
		Tool:   tool,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	turn.Emit(ev)
}
