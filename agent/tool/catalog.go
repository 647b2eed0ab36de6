package tool

import (
	"context"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/tanpawarit/chative-supervisor/agent/artifact"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

// BuiltinToolIDs lists every tool BuildCatalog can register, in registration order.
func BuiltinToolIDs() []contractx.ToolID {
	return []contractx.ToolID{ToolMathEvaluate, ToolTextClassify, ToolDocumentWrite}
}

// CatalogConfig selects which built-in tools are registered.
type CatalogConfig struct {
	ClassifierModel  einomodel.BaseChatModel
	ClassifierPrompt string
	ClassifierLabels []string
	Store            artifact.Store
	Now              func() time.Time
}

// BuildCatalog registers the built-in tools. The classifier is skipped when no
// model is configured and the writer when no store is configured.
func BuildCatalog(ctx context.Context, cfg CatalogConfig) (*Registry, error) {
	reg := NewRegistry()
	if err := reg.Register(MathEvaluate()); err != nil {
		return nil, err
	}

	if cfg.ClassifierModel != nil {
		def, err := TextClassifier(ctx, cfg.ClassifierModel, cfg.ClassifierPrompt, cfg.ClassifierLabels)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}

	if cfg.Store != nil {
		if err := reg.Register(DocumentWriter(cfg.Store, cfg.Now)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
