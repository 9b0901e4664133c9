package proxy

import (
	"context"
	"log/slog"

	"braces.dev/errtrace"
)

// Action tells the chain what to do after a processor returned.
type Action int

const (
	// ActionContinue runs the next processor of the chain.
	ActionContinue Action = iota
	// ActionSkipThisChain stops the current chain.
	ActionSkipThisChain
	// ActionSkipAllChains stops the current chain and skips target processing
	// of the request. A processor that answered the request returns it.
	ActionSkipAllChains
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionSkipThisChain:
		return "skip_this_chain"
	case ActionSkipAllChains:
		return "skip_all_chains"
	default:
		return "unknown"
	}
}

// Processor is a step of a processor chain.
//
// Processors run on the [RequestContext] goroutine, they must not block for long
// and must not keep references to the context after return.
// A returned error is turned into a final response by [ResponseForError].
type Processor interface {
	Name() string
	Process(ctx context.Context, rc *RequestContext) (Action, error)
}

// ProcessorFunc adapts a function to the [Processor] interface.
type ProcessorFunc struct {
	Label string
	Fn    func(ctx context.Context, rc *RequestContext) (Action, error)
}

func (p ProcessorFunc) Name() string { return p.Label }

func (p ProcessorFunc) Process(ctx context.Context, rc *RequestContext) (Action, error) {
	act, err := p.Fn(ctx, rc)
	return act, errtrace.Wrap(err)
}

// Chain is an ordered list of processors.
type Chain []Processor

type chainKind string

const (
	chainRequest  chainKind = "request"
	chainTarget   chainKind = "target"
	chainResponse chainKind = "response"
)

// run executes processors in order.
// The request chain also stops as soon as targets exist unless stopOnTargets is false.
func (c Chain) run(ctx context.Context, kind chainKind, rc *RequestContext, stopOnTargets bool) (Action, error) {
	for _, p := range c {
		act, err := p.Process(ctx, rc)
		if err != nil {
			rc.log.LogAttrs(ctx, slog.LevelDebug, "processor failed",
				slog.String("chain", string(kind)),
				slog.String("processor", p.Name()),
				slog.Any("error", err),
			)
			return ActionSkipAllChains, errtrace.Wrap(err)
		}
		if act != ActionContinue {
			rc.log.LogAttrs(ctx, slog.LevelDebug, "processor stopped chain",
				slog.String("chain", string(kind)),
				slog.String("processor", p.Name()),
				slog.Any("action", act),
			)
			return act, nil
		}
		if rc.local != nil {
			return ActionSkipAllChains, nil
		}
		if stopOnTargets && rc.rsp.HasTargets() {
			return ActionSkipThisChain, nil
		}
	}
	return ActionContinue, nil
}
