package specialist

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
	promptx "github.com/tanpawarit/chative-supervisor/agent/prompt"
	toolx "github.com/tanpawarit/chative-supervisor/agent/tool"
	configx "github.com/tanpawarit/chative-supervisor/pkg/config"
)

const (
	Analyzer contractx.WorkerID = "Analyzer"
	Writer   contractx.WorkerID = "Writer"
)

// Roster is the fixed worker set of a deployment.
type Roster struct {
	Workers []contractx.WorkerDefinition `mapstructure:"workers"`
}

// DefaultRoster returns the Analyzer/Writer pair, keeping only the tools that
// available reports as registered.
func DefaultRoster(prompts promptx.PromptSet, available func(contractx.ToolID) bool) Roster {
	pick := func(ids ...contractx.ToolID) []contractx.ToolID {
		out := make([]contractx.ToolID, 0, len(ids))
		for _, id := range ids {
			if available == nil || available(id) {
				out = append(out, id)
			}
		}
		return out
	}

	return Roster{Workers: []contractx.WorkerDefinition{
		{
			ID:           Analyzer,
			Tools:        pick(toolx.ToolMathEvaluate, toolx.ToolTextClassify),
			Instructions: prompts.Analyzer,
		},
		{
			ID:           Writer,
			Tools:        pick(toolx.ToolDocumentWrite),
			Instructions: prompts.Writer,
		},
	}}
}

// LoadRoster reads a roster file. Workers named like a built-in role and
// left without instructions get the built-in prompt.
func LoadRoster(path string, prompts promptx.PromptSet) (Roster, error) {
	r, err := configx.LoadFile[Roster](path)
	if err != nil {
		return Roster{}, err
	}
	for i := range r.Workers {
		w := &r.Workers[i]
		if strings.TrimSpace(w.Instructions) != "" {
			continue
		}
		switch {
		case strings.EqualFold(string(w.ID), string(Analyzer)):
			w.Instructions = prompts.Analyzer
		case strings.EqualFold(string(w.ID), string(Writer)):
			w.Instructions = prompts.Writer
		}
	}
	return *r, nil
}

// Validate checks ids and instructions and, when has is set, that every
// capability names a registered tool.
func (r Roster) Validate(has func(contractx.ToolID) bool) error {
	if len(r.Workers) == 0 {
		return fmt.Errorf("%w: roster has no workers", contractx.ErrValidation)
	}
	seen := make(map[string]struct{}, len(r.Workers))
	for _, w := range r.Workers {
		id := strings.TrimSpace(string(w.ID))
		if id == "" || id != string(w.ID) {
			return fmt.Errorf("%w: invalid worker id=%q", contractx.ErrValidation, w.ID)
		}
		if contractx.IsReservedName(id) {
			return fmt.Errorf("%w: worker id=%q is reserved", contractx.ErrValidation, id)
		}
		key := strings.ToLower(id)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate worker id=%q", contractx.ErrValidation, id)
		}
		seen[key] = struct{}{}

		if strings.TrimSpace(w.Instructions) == "" {
			return fmt.Errorf("%w: worker=%s has no instructions", contractx.ErrValidation, id)
		}
		if has == nil {
			continue
		}
		for _, tool := range w.Tools {
			if !has(tool) {
				return fmt.Errorf("%w: worker=%s tool=%s", contractx.ErrUnknownTool, id, tool)
			}
		}
	}
	return nil
}

func (r Roster) IDs() []contractx.WorkerID {
	out := make([]contractx.WorkerID, 0, len(r.Workers))
	for _, w := range r.Workers {
		out = append(out, w.ID)
	}
	return out
}
