package supervisor

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

// OpenAIRouter constrains the decision with a strict JSON schema whose
// "next" property is an enum of the allowed options.
type OpenAIRouter struct {
	client *openaisdk.Client
	model  string
}

var _ contractx.RoutingGenerator = (*OpenAIRouter)(nil)

func NewOpenAIRouter(client *openaisdk.Client, model string) (*OpenAIRouter, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: openai client is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: router model is required", contractx.ErrValidation)
	}
	return &OpenAIRouter{client: client, model: strings.TrimSpace(model)}, nil
}

func (r *OpenAIRouter) Route(ctx context.Context, req contractx.RoutingRequest) (string, error) {
	schemaParam := openaisdk.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "routing_decision",
		Description: openaisdk.String("The next worker to act, or FINISH when the task is complete."),
		Schema:      decisionSchema(req.Options),
		Strict:      openaisdk.Bool(true),
	}

	system := strings.TrimSpace(req.Instructions)
	system += "\n\nAnswer with one of: " + strings.Join(req.Options, ", ") + "."

	completion, err := r.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(r.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(renderHistory(req.History)),
		},
		ResponseFormat: openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openaisdk.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: openai route: %v", contractx.ErrModelInvoke, err)
	}
	if len(completion.Choices) == 0 {
		return "", &contractx.InvalidRoutingDecisionError{Raw: "", Allowed: req.Options}
	}
	return completion.Choices[0].Message.Content, nil
}

func decisionSchema(options []string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"next": map[string]any{
				"type": "string",
				"enum": options,
			},
		},
		"required":             []string{"next"},
		"additionalProperties": false,
	}
}
