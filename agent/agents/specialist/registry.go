package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tanpawarit/chative-supervisor/agent/agents/worker"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

// ToolCatalog is the part of the tool registry the roster needs.
type ToolCatalog interface {
	Has(id contractx.ToolID) bool
	ToolsFor(ids []contractx.ToolID) ([]*schema.ToolInfo, error)
}

// ModelFactory returns a fresh chat model for one worker.
type ModelFactory func(ctx context.Context) (einomodel.ToolCallingChatModel, error)

// Build binds every roster entry to a chat model restricted to its tools.
func Build(ctx context.Context, r Roster, tools ToolCatalog, newModel ModelFactory) ([]worker.Worker, error) {
	if tools == nil {
		return nil, fmt.Errorf("%w: tool catalog is required", contractx.ErrValidation)
	}
	if newModel == nil {
		return nil, fmt.Errorf("%w: model factory is required", contractx.ErrValidation)
	}
	if err := r.Validate(tools.Has); err != nil {
		return nil, err
	}

	out := make([]worker.Worker, 0, len(r.Workers))
	for _, def := range r.Workers {
		infos, err := tools.ToolsFor(def.Tools)
		if err != nil {
			return nil, err
		}
		chatModel, err := newModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create model for worker=%s: %v", contractx.ErrModelInvoke, def.ID, err)
		}
		gen, err := worker.NewChatModelGenerator(ctx, chatModel, infos)
		if err != nil {
			return nil, fmt.Errorf("build worker=%s: %w", def.ID, err)
		}
		out = append(out, worker.Worker{Definition: def, Generator: gen})
	}
	return out, nil
}
