package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

// Finish is the terminal node. It consumes the FINISH hop and checks the
// history before the run returns.
func Finish(in *RunState) (*RunState, error) {
	if in == nil || in.Shared == nil {
		return nil, ErrNilRunState
	}
	decision, err := in.Shared.TakeNext()
	if err != nil || !decision.IsFinish() {
		return nil, in.fail(fmt.Errorf("%w: terminal reached without FINISH", contractx.ErrValidation))
	}
	if err := in.Shared.Validate(); err != nil {
		return nil, in.fail(err)
	}
	return in, nil
}
