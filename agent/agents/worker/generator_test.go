package worker

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

type fakeToolCallingModel struct {
	responses []*schema.Message
	err       error
	idx       int
	inputs    [][]*schema.Message
	tools     []*schema.ToolInfo
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	f.tools = tools
	return f, nil
}

func TestChatModelGeneratorToolCallMapping(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{
				{
					ID:   "call_1",
					Type: "function",
					Function: schema.FunctionCall{
						Name:      "text_classify",
						Arguments: `{"text":"crashes on start"}`,
					},
				},
			},
		},
	}}

	gen, err := NewChatModelGenerator(context.Background(), fake, []*schema.ToolInfo{{Name: "text_classify"}})
	if err != nil {
		t.Fatalf("NewChatModelGenerator() error = %v", err)
	}
	if len(fake.tools) != 1 {
		t.Fatalf("tools not bound: %#v", fake.tools)
	}

	step, err := gen.Next(context.Background(), contractx.WorkerRequest{
		Worker:  analyzer,
		History: []contractx.Message{{Seq: 0, Author: "user", Kind: contractx.KindContent, Content: "classify this"}},
	})
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if step.ToolCall == nil {
		t.Fatal("expected tool call")
	}
	if step.ToolCall.ID != "call_1" || step.ToolCall.Tool != "text_classify" || step.ToolCall.Input != `{"text":"crashes on start"}` {
		t.Fatalf("unexpected tool call: %#v", step.ToolCall)
	}
}

func TestChatModelGeneratorFinalText(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		{Role: schema.Assistant, Content: "summary ready"},
	}}
	gen, err := NewChatModelGenerator(context.Background(), fake, nil)
	if err != nil {
		t.Fatalf("NewChatModelGenerator() error = %v", err)
	}

	step, err := gen.Next(context.Background(), contractx.WorkerRequest{Worker: analyzer})
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if step.ToolCall != nil || step.FinalText != "summary ready" {
		t.Fatalf("unexpected step: %#v", step)
	}
}

func TestChatModelGeneratorModelFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{err: errors.New("503")}
	gen, err := NewChatModelGenerator(context.Background(), fake, nil)
	if err != nil {
		t.Fatalf("NewChatModelGenerator() error = %v", err)
	}
	if _, err := gen.Next(context.Background(), contractx.WorkerRequest{Worker: analyzer}); !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("Next() error = %v, want ErrModelInvoke", err)
	}
}

func TestComposeMessagesReplaysScratch(t *testing.T) {
	t.Parallel()

	msgs := composeMessages(contractx.WorkerRequest{
		Worker: analyzer,
		History: []contractx.Message{
			{Seq: 0, Author: "user", Kind: contractx.KindContent, Content: "task"},
			{Seq: 1, Author: "Analyzer", Kind: contractx.KindContent, Content: "earlier"},
			{Seq: 2, Author: "Writer", Kind: contractx.KindFailure, Content: "tool failed"},
		},
		Scratch: []contractx.ScratchEntry{
			{Call: contractx.ToolCall{ID: "c1", Tool: "classify", Input: "{}"}, Result: "ok"},
			{Call: contractx.ToolCall{ID: "c2", Tool: "foo", Input: "{}"}, Error: "not permitted"},
		},
	})

	if len(msgs) != 8 {
		t.Fatalf("composeMessages() len = %d, want 8", len(msgs))
	}
	if msgs[0].Role != schema.System || msgs[0].Content != "analyze" {
		t.Fatalf("unexpected system message: %#v", msgs[0])
	}
	if msgs[1].Role != schema.User || msgs[2].Role != schema.Assistant || msgs[3].Role != schema.User {
		t.Fatalf("unexpected history roles: %s %s %s", msgs[1].Role, msgs[2].Role, msgs[3].Role)
	}
	if msgs[4].Role != schema.Assistant || len(msgs[4].ToolCalls) != 1 || msgs[4].ToolCalls[0].ID != "c1" {
		t.Fatalf("unexpected tool call message: %#v", msgs[4])
	}
	if msgs[5].Role != schema.Tool || msgs[5].ToolCallID != "c1" || msgs[5].Content != "ok" {
		t.Fatalf("unexpected tool result message: %#v", msgs[5])
	}
	if msgs[7].Content != "error: not permitted" {
		t.Fatalf("unexpected tool error message: %#v", msgs[7])
	}
}
