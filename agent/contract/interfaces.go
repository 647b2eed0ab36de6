package contract

import "context"

// WorkerGenerator produces the next step of a worker turn.
type WorkerGenerator interface {
	Next(ctx context.Context, req WorkerRequest) (WorkerStep, error)
}

// RoutingGenerator produces the raw routing choice for the supervisor.
type RoutingGenerator interface {
	Route(ctx context.Context, req RoutingRequest) (string, error)
}

type ToolFunc func(ctx context.Context, input string) (string, error)

type ToolInvoker interface {
	Invoke(ctx context.Context, id ToolID, input string) (string, error)
}

type EventSink func(Event)
