package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

// Decider is the supervisor step: history in, one closed-set decision out.
type Decider interface {
	Decide(ctx context.Context, history []contractx.Message) (contractx.RoutingDecision, error)
	Options() []string
}

type SuperviseConfig struct {
	MaxTurns     int
	TraceRouting bool
}

// Supervise records the next hop. An invalid decision fails the run and leaves
// the history untouched.
func Supervise(ctx context.Context, in *RunState, decider Decider, cfg SuperviseConfig) (*RunState, error) {
	if in == nil || in.Shared == nil {
		return nil, ErrNilRunState
	}
	if err := ctx.Err(); err != nil {
		return nil, in.fail(cancelled(err))
	}

	decision, err := decider.Decide(ctx, in.Shared.Snapshot())
	if err != nil {
		if ctx.Err() != nil {
			return nil, in.fail(cancelled(ctx.Err()))
		}
		log.Warn().Err(err).Str("run_id", in.RunID).Int("turn", in.Turns).Msg("supervisor decision rejected")
		return nil, in.fail(err)
	}

	if !decision.IsFinish() && cfg.MaxTurns > 0 && in.Turns >= cfg.MaxTurns {
		return nil, in.fail(fmt.Errorf("%w: limit=%d next=%s", contractx.ErrTurnLimitExceeded, cfg.MaxTurns, decision.Next))
	}

	if cfg.TraceRouting {
		if _, err := in.Shared.Append(contractx.AuthorSupervisor, contractx.KindRouting, decision.Next); err != nil {
			return nil, in.fail(err)
		}
	}
	in.Shared.SetNext(decision)

	log.Debug().Str("run_id", in.RunID).Int("turn", in.Turns).Str("next", decision.Next).Msg("supervisor routed")
	in.publish(contractx.Event{
		Type: contractx.EventSupervisorRouted,
		Turn: in.Turns,
		Next: decision.Next,
	})
	return in, nil
}

// Route reads the pending decision and names the graph node to run next.
func Route(in *RunState) (string, error) {
	if in == nil || in.Shared == nil {
		return "", ErrNilRunState
	}
	decision, ok := in.Shared.PeekNext()
	if !ok {
		return "", in.fail(fmt.Errorf("%w: supervisor left no next hop", contractx.ErrValidation))
	}
	if decision.IsFinish() {
		return FinishNode, nil
	}
	return WorkerNode(contractx.WorkerID(decision.Next)), nil
}
