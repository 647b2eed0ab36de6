package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanpawarit/chative-supervisor/agent/agents/orchestrator"
	"github.com/tanpawarit/chative-supervisor/agent/agents/specialist"
	"github.com/tanpawarit/chative-supervisor/agent/agents/supervisor"
	"github.com/tanpawarit/chative-supervisor/agent/agents/worker"
	"github.com/tanpawarit/chative-supervisor/agent/artifact"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
	llmx "github.com/tanpawarit/chative-supervisor/agent/llm"
	"github.com/tanpawarit/chative-supervisor/agent/metrics"
	promptx "github.com/tanpawarit/chative-supervisor/agent/prompt"
	toolx "github.com/tanpawarit/chative-supervisor/agent/tool"
	configx "github.com/tanpawarit/chative-supervisor/pkg/config"
	openrouterx "github.com/tanpawarit/chative-supervisor/pkg/openrouter"
	qstashx "github.com/tanpawarit/chative-supervisor/pkg/qstash"
)

type AppConfig struct {
	WebhookURL       string   `envconfig:"WEBHOOK_URL"`
	ClassifierLabels []string `envconfig:"CLASSIFIER_LABELS" default:"bug,feature,question,other"`
}

// app holds everything a run needs, wired from env and flags.
type app struct {
	orch     *orchestrator.Orchestrator
	roster   specialist.Roster
	gatherer prometheus.Gatherer
	qstash   *qstashx.Client
	webhook  string
	closers  []io.Closer
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close resource")
		}
	}
}

func loadApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env")
	rosterFile, _ := cmd.Flags().GetString("workers")
	configx.SetEnvFile(envFile)

	appCfg, err := configx.New[AppConfig]("")
	if err != nil {
		return nil, fmt.Errorf("load app config: %w", err)
	}
	llmCfg, err := configx.New[llmx.Config]("OPENROUTER")
	if err != nil {
		return nil, fmt.Errorf("load llm config: %w", err)
	}
	if err := llmCfg.Validate(); err != nil {
		return nil, err
	}
	orchCfg, err := configx.New[orchestrator.Config]("ORCHESTRATOR")
	if err != nil {
		return nil, fmt.Errorf("load orchestrator config: %w", err)
	}
	workerCfg, err := configx.New[worker.Config]("WORKER")
	if err != nil {
		return nil, fmt.Errorf("load worker config: %w", err)
	}
	artifactCfg, err := configx.New[artifact.Config]("ARTIFACT")
	if err != nil {
		return nil, fmt.Errorf("load artifact config: %w", err)
	}
	qstashCfg, err := configx.New[qstashx.Config]("QSTASH")
	if err != nil {
		return nil, fmt.Errorf("load qstash config: %w", err)
	}

	a := &app{webhook: strings.TrimSpace(appCfg.WebhookURL)}
	prompts := promptx.LoadPromptSet()

	store, err := artifact.Open(ctx, *artifactCfg)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	classifierCfg := llmCfg.OpenRouterFor(llmx.RoleClassifier)
	classifierModel, err := classifierCfg.New(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%w: create classifier model: %v", contractx.ErrModelInvoke, err)
	}
	tools, err := toolx.BuildCatalog(ctx, toolx.CatalogConfig{
		ClassifierModel:  classifierModel,
		ClassifierPrompt: prompts.Classifier,
		ClassifierLabels: appCfg.ClassifierLabels,
		Store:            store,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.roster = specialist.DefaultRoster(prompts, tools.Has)
	if strings.TrimSpace(rosterFile) != "" {
		if a.roster, err = specialist.LoadRoster(rosterFile, prompts); err != nil {
			a.Close()
			return nil, err
		}
	}
	workers, err := specialist.Build(ctx, a.roster, tools, func(ctx context.Context) (einomodel.ToolCallingChatModel, error) {
		cfg := llmCfg.OpenRouterFor(llmx.RoleWorker)
		return cfg.New(ctx)
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	router, err := newRouter(ctx, *llmCfg, prompts.Supervisor)
	if err != nil {
		a.Close()
		return nil, err
	}
	unit, err := supervisor.NewUnit(router, a.roster.IDs(), prompts.Supervisor)
	if err != nil {
		a.Close()
		return nil, err
	}
	exec, err := worker.NewExecutor(tools, *workerCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.gatherer = registry

	a.orch, err = orchestrator.New(unit, exec, workers, *orchCfg, orchestrator.WithEventSink(recorder.Observe))
	if err != nil {
		a.Close()
		return nil, err
	}

	if qstashCfg.Enabled() && a.webhook != "" {
		if a.qstash, err = qstashx.NewClient(*qstashCfg); err != nil {
			a.Close()
			return nil, fmt.Errorf("create qstash client: %w", err)
		}
	}
	return a, nil
}

func newRouter(ctx context.Context, cfg llmx.Config, systemPrompt string) (contractx.RoutingGenerator, error) {
	supCfg := cfg.OpenRouterFor(llmx.RoleSupervisor)
	if cfg.StructuredRouting {
		client := openrouterx.NewClient(supCfg)
		if client == nil {
			return nil, fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
		}
		return supervisor.NewOpenAIRouter(client, supCfg.Model)
	}

	chatModel, err := supCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create supervisor model: %v", contractx.ErrModelInvoke, err)
	}
	return supervisor.NewChatModelRouter(ctx, chatModel, systemPrompt)
}
