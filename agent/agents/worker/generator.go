package worker

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

// ChatModelGenerator asks a tool-calling chat model for the next worker step.
type ChatModelGenerator struct {
	runner compose.Runnable[contractx.WorkerRequest, *schema.Message]
}

var _ contractx.WorkerGenerator = (*ChatModelGenerator)(nil)

func NewChatModelGenerator(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	tools []*schema.ToolInfo,
) (*ChatModelGenerator, error) {
	model := chatModel
	if len(tools) > 0 {
		bound, err := chatModel.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("%w: bind worker tools: %v", contractx.ErrModelInvoke, err)
		}
		model = bound
	}

	graph := compose.NewGraph[contractx.WorkerRequest, *schema.Message]()
	if err := graph.AddLambdaNode("compose_messages",
		compose.InvokableLambda(func(ctx context.Context, req contractx.WorkerRequest) ([]*schema.Message, error) {
			return composeMessages(req), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add worker compose node: %w", err)
	}
	if err := graph.AddChatModelNode("model", model); err != nil {
		return nil, fmt.Errorf("add worker model node: %w", err)
	}

	edges := [][2]string{
		{compose.START, "compose_messages"},
		{"compose_messages", "model"},
		{"model", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add worker edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("worker.generate"))
	if err != nil {
		return nil, fmt.Errorf("compile worker generate graph: %w", err)
	}
	return &ChatModelGenerator{runner: runner}, nil
}

// Next returns the first tool call of the reply, or its text as the final answer.
func (g *ChatModelGenerator) Next(ctx context.Context, req contractx.WorkerRequest) (contractx.WorkerStep, error) {
	msg, err := g.runner.Invoke(ctx, req)
	if err != nil {
		return contractx.WorkerStep{}, fmt.Errorf("%w: worker=%s generate: %v", contractx.ErrModelInvoke, req.Worker.ID, err)
	}
	if msg == nil {
		return contractx.WorkerStep{}, fmt.Errorf("%w: empty worker response", contractx.ErrSchemaViolation)
	}

	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return contractx.WorkerStep{}, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}
		return contractx.WorkerStep{
			ToolCall: &contractx.ToolCall{
				ID:    call.ID,
				Tool:  contractx.ToolID(name),
				Input: strings.TrimSpace(call.Function.Arguments),
			},
		}, nil
	}

	return contractx.WorkerStep{FinalText: msg.Content}, nil
}

func composeMessages(req contractx.WorkerRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.History)+2*len(req.Scratch)+1)
	msgs = append(msgs, schema.SystemMessage(req.Worker.Instructions))

	self := string(req.Worker.ID)
	for _, m := range req.History {
		switch {
		case m.Author == self && m.Kind == contractx.KindContent:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		case m.Kind == contractx.KindContent:
			msgs = append(msgs, schema.UserMessage(fmt.Sprintf("[%s] %s", m.Author, m.Content)))
		default:
			msgs = append(msgs, schema.UserMessage(fmt.Sprintf("[%s:%s] %s", m.Author, m.Kind, m.Content)))
		}
	}

	for _, entry := range req.Scratch {
		msgs = append(msgs, schema.AssistantMessage("", []schema.ToolCall{
			{
				ID:   entry.Call.ID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      string(entry.Call.Tool),
					Arguments: entry.Call.Input,
				},
			},
		}))
		content := entry.Result
		if entry.Error != "" {
			content = "error: " + entry.Error
		}
		msgs = append(msgs, schema.ToolMessage(content, entry.Call.ID))
	}
	return msgs
}
