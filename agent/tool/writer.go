package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/tanpawarit/chative-supervisor/agent/artifact"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

const ToolDocumentWrite contractx.ToolID = "document_write"

type writeInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type writeOutput struct {
	Key   string `json:"key"`
	Bytes int    `json:"bytes"`
}

// DocumentWriter persists documents to store. The key is derived from the
// run and title, so writing the same title twice in a run overwrites.
func DocumentWriter(store artifact.Store, now func() time.Time) Definition {
	if now == nil {
		now = time.Now
	}
	return Definition{
		ID:          ToolDocumentWrite,
		Description: "Save a titled document to durable storage and return its key.",
		Params: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"title":   {Type: schema.String, Desc: "Document title", Required: true},
			"content": {Type: schema.String, Desc: "Full document body", Required: true},
		}),
		SideEffects: SideEffectPersist,
		Invoke: func(ctx context.Context, input string) (string, error) {
			var in writeInput
			if err := json.Unmarshal([]byte(input), &in); err != nil {
				return "", fmt.Errorf("invalid document input: %w", err)
			}
			if strings.TrimSpace(in.Title) == "" {
				return "", fmt.Errorf("title is required")
			}
			if strings.TrimSpace(in.Content) == "" {
				return "", fmt.Errorf("content is required")
			}

			info, _ := contractx.RunInfoFrom(ctx)
			a := &artifact.Artifact{
				Key:       artifact.Key(info.RunID, in.Title),
				RunID:     info.RunID,
				Author:    string(info.Worker),
				Title:     strings.TrimSpace(in.Title),
				Content:   in.Content,
				UpdatedAt: now(),
			}
			if err := store.Put(ctx, a); err != nil {
				return "", err
			}

			out, err := json.Marshal(writeOutput{Key: a.Key, Bytes: len(a.Content)})
			if err != nil {
				return "", fmt.Errorf("marshal document result: %w", err)
			}
			return string(out), nil
		},
	}
}
