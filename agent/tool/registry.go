package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

type SideEffect string

const (
	SideEffectNone    SideEffect = ""
	SideEffectPersist SideEffect = "persist"
)

// Definition declares one callable capability.
type Definition struct {
	ID          contractx.ToolID
	Description string
	Params      *schema.ParamsOneOf
	Invoke      contractx.ToolFunc
	SideEffects SideEffect
}

// Registry holds tools registered once at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[contractx.ToolID]Definition
	order []contractx.ToolID
}

var _ contractx.ToolInvoker = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[contractx.ToolID]Definition),
	}
}

func (r *Registry) Register(def Definition) error {
	id := contractx.ToolID(strings.TrimSpace(string(def.ID)))
	if id == "" {
		return fmt.Errorf("%w: tool id is empty", contractx.ErrValidation)
	}
	if def.Invoke == nil {
		return fmt.Errorf("%w: tool=%s has no invoke func", contractx.ErrValidation, id)
	}
	def.ID = id

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[id]; exists {
		return fmt.Errorf("%w: %s", contractx.ErrDuplicateTool, id)
	}
	r.tools[id] = def
	r.order = append(r.order, id)
	return nil
}

func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Invoke runs the tool once. Failures are wrapped in *ToolInvocationError; there is no retry here.
func (r *Registry) Invoke(ctx context.Context, id contractx.ToolID, input string) (out string, err error) {
	r.mu.RLock()
	def, ok := r.tools[id]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", contractx.ErrUnknownTool, id)
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = ""
			err = &contractx.ToolInvocationError{ToolID: id, Cause: fmt.Errorf("panic: %v", rec)}
		}
	}()

	out, err = def.Invoke(ctx, input)
	if err != nil {
		return "", &contractx.ToolInvocationError{ToolID: id, Cause: err}
	}
	return out, nil
}

func (r *Registry) Has(id contractx.ToolID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[id]
	return ok
}

func (r *Registry) Get(id contractx.ToolID) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[id]
	return def, ok
}

// IDs returns tool ids in registration order.
func (r *Registry) IDs() []contractx.ToolID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]contractx.ToolID(nil), r.order...)
}

// ToolsFor describes the given tools for binding to a chat model.
func (r *Registry) ToolsFor(ids []contractx.ToolID) ([]*schema.ToolInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*schema.ToolInfo, 0, len(ids))
	for _, id := range ids {
		def, ok := r.tools[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownTool, id)
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        string(def.ID),
			Desc:        def.Description,
			ParamsOneOf: def.Params,
		})
	}
	return infos, nil
}
