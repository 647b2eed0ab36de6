package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/tanpawarit/chative-supervisor/agent/agents/worker"
	nodex "github.com/tanpawarit/chative-supervisor/agent/nodes/orchestrator"
)

// compileRunGraph builds START -> supervisor -(branch)-> worker_i | finish,
// with every worker edge leading back to the supervisor.
func (o *Orchestrator) compileRunGraph(ctx context.Context) (compose.Runnable[*nodex.RunState, *nodex.RunState], error) {
	graph := compose.NewGraph[*nodex.RunState, *nodex.RunState]()

	superviseCfg := nodex.SuperviseConfig{
		MaxTurns:     o.cfg.MaxTurns,
		TraceRouting: o.cfg.TraceRouting,
	}
	if err := graph.AddLambdaNode(nodex.SupervisorNode,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.RunState) (*nodex.RunState, error) {
			return nodex.Supervise(ctx, in, o.decider, superviseCfg)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.SupervisorNode, err)
	}

	ends := map[string]bool{nodex.FinishNode: true}
	for _, w := range o.workers {
		w := w
		key := nodex.WorkerNode(w.Definition.ID)
		if err := graph.AddLambdaNode(key,
			compose.InvokableLambda(func(ctx context.Context, in *nodex.RunState) (*nodex.RunState, error) {
				return nodex.DispatchWorker(ctx, in, o.runner, w)
			}),
		); err != nil {
			return nil, fmt.Errorf("add node %s: %w", key, err)
		}
		ends[key] = true
	}

	if err := graph.AddLambdaNode(nodex.FinishNode,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.RunState) (*nodex.RunState, error) {
			return nodex.Finish(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.FinishNode, err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.RunState) (string, error) {
			return nodex.Route(in)
		},
		ends,
	)
	if err := graph.AddBranch(nodex.SupervisorNode, branch); err != nil {
		return nil, fmt.Errorf("add supervisor branch: %w", err)
	}

	edges := [][2]string{
		{compose.START, nodex.SupervisorNode},
		{nodex.FinishNode, compose.END},
	}
	for _, w := range o.workers {
		edges = append(edges, [2]string{nodex.WorkerNode(w.Definition.ID), nodex.SupervisorNode})
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx,
		compose.WithGraphName("orchestrator.run"),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(maxRunSteps(o.cfg.MaxTurns)),
	)
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}

// maxRunSteps leaves room for one supervisor and one worker step per turn,
// the closing supervisor step and the terminal node.
func maxRunSteps(maxTurns int) int {
	return 2*(maxTurns+1) + 4
}

func workerIDs(workers []worker.Worker) []string {
	out := make([]string, 0, len(workers))
	for _, w := range workers {
		out = append(out, string(w.Definition.ID))
	}
	return out
}
