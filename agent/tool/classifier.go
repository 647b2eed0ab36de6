package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
	llmx "github.com/tanpawarit/chative-supervisor/agent/llm"
)

const ToolTextClassify contractx.ToolID = "text_classify"

type classifyInput struct {
	Text   string   `json:"text"`
	Labels []string `json:"labels,omitempty"`
}

type classifyLLMOutput struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

type classifier struct {
	runner        compose.Runnable[map[string]any, classifyLLMOutput]
	defaultLabels []string
}

// TextClassifier builds a classifier tool backed by chatModel. Labels given
// in the call input override defaultLabels.
func TextClassifier(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	defaultLabels []string,
) (Definition, error) {
	runner, err := llmx.CompileStructuredGraph[classifyLLMOutput](ctx, chatModel, systemPrompt, "tool.text_classify")
	if err != nil {
		return Definition{}, fmt.Errorf("%w: compile classifier graph: %v", contractx.ErrModelInvoke, err)
	}
	c := &classifier{runner: runner, defaultLabels: defaultLabels}

	return Definition{
		ID:          ToolTextClassify,
		Description: "Classify a text into exactly one of the given labels.",
		Params: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"text": {Type: schema.String, Desc: "Text to classify", Required: true},
			"labels": {
				Type:     schema.Array,
				Desc:     "Candidate labels",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
		}),
		Invoke: c.classify,
	}, nil
}

func (c *classifier) classify(ctx context.Context, input string) (string, error) {
	var in classifyInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return "", fmt.Errorf("invalid classifier input: %w", err)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return "", fmt.Errorf("text is required")
	}
	labels := in.Labels
	if len(labels) == 0 {
		labels = c.defaultLabels
	}
	if len(labels) == 0 {
		return "", fmt.Errorf("labels are required")
	}

	payload, err := json.Marshal(map[string]any{
		"text":   text,
		"labels": labels,
	})
	if err != nil {
		return "", fmt.Errorf("marshal classifier payload: %w", err)
	}

	out, err := c.runner.Invoke(ctx, map[string]any{"input": string(payload)})
	if err != nil {
		return "", fmt.Errorf("%w: classifier invoke: %v", contractx.ErrModelInvoke, err)
	}

	label, ok := matchLabel(out.Label, labels)
	if !ok {
		return "", fmt.Errorf("%w: label=%q not in %v", contractx.ErrSchemaViolation, out.Label, labels)
	}
	out.Label = label

	result, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal classifier result: %w", err)
	}
	return string(result), nil
}

func matchLabel(raw string, labels []string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, l := range labels {
		if strings.EqualFold(raw, strings.TrimSpace(l)) {
			return l, true
		}
	}
	return "", false
}
