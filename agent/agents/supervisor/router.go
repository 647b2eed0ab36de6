package supervisor

import (
	"context"
	"encoding/json"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
	llmx "github.com/tanpawarit/chative-supervisor/agent/llm"
)

// ChatModelRouter asks a chat model for the next hop and hands back its raw
// reply; the Unit decides whether the reply is a member of the closed set.
type ChatModelRouter struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

var _ contractx.RoutingGenerator = (*ChatModelRouter)(nil)

func NewChatModelRouter(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*ChatModelRouter, error) {
	runner, err := llmx.CompileChatGraph(ctx, chatModel, systemPrompt, "supervisor.route_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile supervisor graph: %v", contractx.ErrModelInvoke, err)
	}
	return &ChatModelRouter{runner: runner}, nil
}

func (r *ChatModelRouter) Route(ctx context.Context, req contractx.RoutingRequest) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"options": req.Options,
		"history": renderHistory(req.History),
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal supervisor payload: %v", contractx.ErrValidation, err)
	}

	msg, err := r.runner.Invoke(ctx, map[string]any{"input": string(payload)})
	if err != nil {
		return "", fmt.Errorf("%w: supervisor invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return "", nil
	}
	return msg.Content, nil
}
