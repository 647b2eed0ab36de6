package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/chative-supervisor/agent/agents/worker"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

const (
	SupervisorNode = "supervisor"
	FinishNode     = "finish"
)

func WorkerNode(id contractx.WorkerID) string {
	return "worker:" + string(id)
}

type WorkerRunner interface {
	Run(ctx context.Context, w worker.Worker, turn worker.Turn) (worker.Outcome, error)
}

// DispatchWorker runs one worker turn and folds its outcome into history.
// Recoverable failures become failure messages and control returns to the
// supervisor; cancellation and everything else end the run.
func DispatchWorker(ctx context.Context, in *RunState, runner WorkerRunner, w worker.Worker) (*RunState, error) {
	if in == nil || in.Shared == nil {
		return nil, ErrNilRunState
	}
	decision, err := in.Shared.TakeNext()
	if err != nil {
		return nil, in.fail(fmt.Errorf("%w: %v", contractx.ErrValidation, err))
	}
	if contractx.WorkerID(decision.Next) != w.Definition.ID {
		return nil, in.fail(fmt.Errorf("%w: routed to %s but dispatched %s", contractx.ErrValidation, decision.Next, w.Definition.ID))
	}
	if err := ctx.Err(); err != nil {
		return nil, in.fail(cancelled(err))
	}

	in.Turns++
	author := string(w.Definition.ID)
	logger := log.With().Str("run_id", in.RunID).Int("turn", in.Turns).Str("worker", author).Logger()

	out, err := runner.Run(ctx, w, worker.Turn{
		RunID:   in.RunID,
		Index:   in.Turns,
		History: in.Shared.Snapshot(),
		Emit:    in.Emitter(),
	})
	if err == nil {
		msg, appendErr := in.Shared.Append(author, contractx.KindContent, out.Text)
		if appendErr != nil {
			return nil, in.fail(appendErr)
		}
		logger.Info().Int("tool_calls", out.ToolCalls).Msg("worker contributed")
		in.publish(contractx.Event{
			Type:    contractx.EventWorkerMessage,
			Turn:    in.Turns,
			Worker:  w.Definition.ID,
			Message: &msg,
		})
		return in, nil
	}

	switch {
	case errors.Is(err, contractx.ErrCancelled):
		msg, appendErr := in.Shared.Append(author, contractx.KindCancelled, err.Error())
		if appendErr == nil {
			in.publishFailure(w.Definition.ID, &msg, err)
		}
		logger.Warn().Err(err).Msg("worker turn cancelled")
		return nil, in.fail(err)
	case contractx.IsRecoverableTurnError(err):
		msg, appendErr := in.Shared.Append(author, contractx.KindFailure, err.Error())
		if appendErr != nil {
			return nil, in.fail(appendErr)
		}
		in.publishFailure(w.Definition.ID, &msg, err)
		logger.Warn().Err(err).Int("tool_calls", out.ToolCalls).Msg("worker turn failed, returning to supervisor")
		return in, nil
	default:
		logger.Error().Err(err).Msg("worker turn failed")
		return nil, in.fail(err)
	}
}

func (s *RunState) publishFailure(id contractx.WorkerID, msg *contractx.Message, err error) {
	s.publish(contractx.Event{
		Type:    contractx.EventWorkerFailed,
		Turn:    s.Turns,
		Worker:  id,
		Message: msg,
		Err:     err.Error(),
	})
}
