package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

// Unit maps the shared history to one routing decision drawn from a closed set.
type Unit struct {
	gen          contractx.RoutingGenerator
	instructions string
	options      []string
	canonical    map[string]string
}

func NewUnit(gen contractx.RoutingGenerator, workers []contractx.WorkerID, instructions string) (*Unit, error) {
	if gen == nil {
		return nil, errors.New("routing generator is required")
	}
	if len(workers) == 0 {
		return nil, fmt.Errorf("%w: at least one worker is required", contractx.ErrValidation)
	}

	u := &Unit{
		gen:          gen,
		instructions: instructions,
		options:      make([]string, 0, len(workers)+1),
		canonical:    make(map[string]string, len(workers)+1),
	}
	for _, w := range workers {
		id := strings.TrimSpace(string(w))
		if id == "" || contractx.IsReservedName(id) {
			return nil, fmt.Errorf("%w: invalid worker id=%q", contractx.ErrValidation, w)
		}
		key := strings.ToLower(id)
		if _, dup := u.canonical[key]; dup {
			return nil, fmt.Errorf("%w: duplicate worker id=%q", contractx.ErrValidation, w)
		}
		u.canonical[key] = id
		u.options = append(u.options, id)
	}
	u.canonical[strings.ToLower(contractx.Finish)] = contractx.Finish
	u.options = append(u.options, contractx.Finish)
	return u, nil
}

// Options returns the closed decision set: worker ids followed by FINISH.
func (u *Unit) Options() []string {
	return append([]string(nil), u.options...)
}

func (u *Unit) Decide(ctx context.Context, history []contractx.Message) (contractx.RoutingDecision, error) {
	raw, err := u.gen.Route(ctx, contractx.RoutingRequest{
		Instructions: u.instructions,
		History:      history,
		Options:      u.Options(),
	})
	if err != nil {
		if errors.Is(err, contractx.ErrModelInvoke) || errors.Is(err, contractx.ErrInvalidRoutingDecision) {
			return contractx.RoutingDecision{}, err
		}
		return contractx.RoutingDecision{}, fmt.Errorf("%w: supervisor route: %v", contractx.ErrModelInvoke, err)
	}
	return u.Parse(raw)
}

// Parse validates raw generator output. Accepted shapes are a bare option
// name or a JSON object {"next": "<option>"}; matching ignores case.
func (u *Unit) Parse(raw string) (contractx.RoutingDecision, error) {
	candidate := strings.TrimSpace(raw)
	if strings.HasPrefix(candidate, "{") {
		var decoded contractx.RoutingDecision
		if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
			return contractx.RoutingDecision{}, u.invalid(raw)
		}
		candidate = decoded.Next
	}
	candidate = strings.Trim(strings.TrimSpace(candidate), "\"'`")

	next, ok := u.canonical[strings.ToLower(candidate)]
	if !ok {
		return contractx.RoutingDecision{}, u.invalid(raw)
	}
	return contractx.RoutingDecision{Next: next}, nil
}

func (u *Unit) invalid(raw string) error {
	return &contractx.InvalidRoutingDecisionError{Raw: raw, Allowed: u.Options()}
}

func renderHistory(history []contractx.Message) string {
	var b strings.Builder
	for _, m := range history {
		if m.Kind == contractx.KindContent {
			fmt.Fprintf(&b, "#%d [%s]: %s\n", m.Seq, m.Author, m.Content)
			continue
		}
		fmt.Fprintf(&b, "#%d [%s:%s]: %s\n", m.Seq, m.Author, m.Kind, m.Content)
	}
	return b.String()
}
