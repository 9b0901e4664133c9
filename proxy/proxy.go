package proxy

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipproxy/internal/syncutil"
	"github.com/ghettovoice/sipproxy/internal/types"
)

// Proxy is a stateful forking SIP proxy core.
type Proxy struct {
	stack Stack
	opts  *Options

	reqChain, tgtChain, resChain Chain
	routes                       *StaticRoute
	filters                      *RequestFilter

	byKey    *syncutil.ShardMap[TransactionKey, *RequestContext]
	byBranch *syncutil.ShardMap[BranchID, *RequestContext]
	byMerge  *syncutil.ShardMap[mergeKey, *RequestContext]

	onDone types.CallbackManager[func(rc *RequestContext)]
	stats  stats

	ctx    context.Context
	abort  context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed atomic.Bool
}

// New creates a new proxy on top of the stack.
// Options may be nil.
func New(stack Stack, opts *Options) (*Proxy, error) {
	if stack == nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError("nil stack"))
	}
	if opts == nil {
		opts = &Options{}
	}

	p := &Proxy{
		stack:    stack,
		opts:     opts,
		byKey:    syncutil.NewShardMap[TransactionKey, *RequestContext](opts.shards()),
		byBranch: syncutil.NewShardMap[BranchID, *RequestContext](opts.shards()),
		byMerge:  syncutil.NewShardMap[mergeKey, *RequestContext](opts.shards()),
	}
	p.ctx, p.abort = context.WithCancel(context.Background())

	var err error
	if opts.RequestChain != nil {
		p.reqChain = opts.RequestChain
	} else if p.reqChain, p.routes, p.filters, err = defaultRequestChain(opts); err != nil {
		return nil, errtrace.Wrap(err)
	}
	p.tgtChain = opts.TargetChain
	if p.tgtChain == nil {
		p.tgtChain = DefaultTargetChain(opts)
	}
	p.resChain = opts.ResponseChain
	if p.resChain == nil {
		p.resChain = DefaultResponseChain(opts)
	}

	opts.log().LogAttrs(context.Background(), slog.LevelDebug, "proxy created",
		slog.Any("domains", opts.domains().Names()),
		slog.Any("timings", opts.timings()),
		slog.Bool("parallel_forking", opts.parallel()),
	)
	return p, nil
}

// HandleRequest accepts a request received on a new server transaction.
// CANCEL and ACK requests are passed to [Proxy.HandleCancel] and [Proxy.HandleAck].
//
// Requests rejected before forking (malformed, loop, merged, too many hops)
// are answered through [Stack.Respond] and nil is returned.
// Retransmissions of requests in progress are ignored.
func (p *Proxy) HandleRequest(ctx context.Context, req *Request) error {
	if req == nil {
		return errtrace.Wrap(NewInvalidArgumentError("nil request"))
	}
	switch req.Method.ToUpper() {
	case RequestMethodCancel:
		return errtrace.Wrap(p.HandleCancel(ctx, req))
	case RequestMethodAck:
		return errtrace.Wrap(p.HandleAck(ctx, req))
	}

	if p.closed.Load() {
		p.reject(ctx, req, ErrProxyClosed)
		return errtrace.Wrap(ErrProxyClosed)
	}
	if err := req.Validate(); err != nil {
		p.reject(ctx, req, err)
		return nil
	}

	key := req.TransactionKey()
	if _, ok := p.byKey.Get(key); ok {
		p.opts.log().LogAttrs(ctx, slog.LevelDebug, "request retransmission ignored",
			slog.Any("request", req),
			slog.Any("key", key),
		)
		return nil
	}
	if req.MaxForwards == 0 {
		p.reject(ctx, req, ErrTooManyHops)
		return nil
	}
	if p.isLooped(req) {
		p.reject(ctx, req, ErrLoopDetected)
		return nil
	}

	rc := newRequestContext(p, req)
	if prev, ok := p.byMerge.SetIfAbsent(rc.mkey, rc); !ok && prev.orig.URI.Equal(req.URI) {
		p.opts.log().LogAttrs(ctx, slog.LevelDebug, "merged request rejected",
			slog.Any("request", req),
			slog.Any("request_context", prev),
		)
		rc.cancel()
		p.reject(ctx, req, NewRequestError(ResponseStatusLoopDetected, "Merged Request", ErrLoopDetected))
		return nil
	}
	if _, ok := p.byKey.SetIfAbsent(key, rc); !ok {
		p.byMerge.DelIf(rc.mkey, func(v *RequestContext) bool { return v == rc })
		rc.cancel()
		return nil
	}

	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		p.byKey.DelIf(key, func(v *RequestContext) bool { return v == rc })
		p.byMerge.DelIf(rc.mkey, func(v *RequestContext) bool { return v == rc })
		rc.cancel()
		p.reject(ctx, req, ErrProxyClosed)
		return errtrace.Wrap(ErrProxyClosed)
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.stats.contexts.Add(1)
	p.opts.metrics().requestAccepted(req.Method)
	go func() {
		defer p.wg.Done()
		rc.run()
	}()
	return nil
}

// isLooped reports whether the request already passed the proxy unchanged.
func (p *Proxy) isLooped(req *Request) bool {
	host := p.opts.via("").Host
	var sig string
	for _, v := range req.Via {
		if v.Host != host {
			continue
		}
		s, ok := v.Branch.LoopSignature()
		if !ok {
			continue
		}
		if sig == "" {
			sig = LoopSignature(req)
		}
		if s == sig {
			return true
		}
	}
	return false
}

// HandleCancel handles a CANCEL request. The CANCEL is answered with 200
// when it matches a request in progress and with 481 otherwise.
func (p *Proxy) HandleCancel(ctx context.Context, req *Request) error {
	if req == nil {
		return errtrace.Wrap(NewInvalidArgumentError("nil request"))
	}
	rc, ok := p.byKey.Get(req.TransactionKey())
	if !ok || !rc.post(cancelEvt{}) {
		return errtrace.Wrap(p.stack.Respond(ctx, req, NewResponse(ResponseStatusCallTransactionDoesNotExist, "")))
	}
	return errtrace.Wrap(p.stack.Respond(ctx, req, NewResponse(ResponseStatusOK, "")))
}

// HandleAck handles an ACK request.
// ACK for a non-2xx final response is absorbed, others are ignored since
// they travel end-to-end.
func (p *Proxy) HandleAck(ctx context.Context, req *Request) error {
	if req == nil {
		return errtrace.Wrap(NewInvalidArgumentError("nil request"))
	}
	if rc, ok := p.byKey.Get(req.TransactionKey()); ok {
		rc.post(ackEvt{})
		return nil
	}
	p.opts.log().LogAttrs(ctx, slog.LevelDebug, "ACK without request context ignored", slog.Any("request", req))
	return nil
}

// OnBranchResponse delivers a response received on a branch.
// It returns [ErrBranchNotFound] when the branch is unknown or already released.
func (p *Proxy) OnBranchResponse(_ context.Context, branch BranchID, res *Response) error {
	if res == nil || !res.Status.IsValid() {
		return errtrace.Wrap(NewInvalidArgumentError("invalid response"))
	}
	rc, ok := p.byBranch.Get(branch)
	if !ok || !rc.post(&branchResEvt{branch: branch, res: res.Clone()}) {
		return errtrace.Wrap(ErrBranchNotFound)
	}
	return nil
}

// OnBranchError delivers a transport failure of a branch.
// Timeout errors turn into 408, other errors into 503.
func (p *Proxy) OnBranchError(_ context.Context, branch BranchID, err error) error {
	rc, ok := p.byBranch.Get(branch)
	if !ok || !rc.post(&branchErrEvt{branch: branch, err: err}) {
		return errtrace.Wrap(ErrBranchNotFound)
	}
	return nil
}

// Lookup returns the request context of a server transaction in progress.
func (p *Proxy) Lookup(key TransactionKey) (*RequestContext, bool) {
	return p.byKey.Get(key)
}

// OnContextDone registers a callback called when a request context is released.
// Callbacks are called on the context goroutine.
func (p *Proxy) OnContextDone(fn func(rc *RequestContext)) (remove func()) {
	return p.onDone.Add(fn)
}

// UpdateRoutes replaces static routes and request filters of the default request chain.
// It returns an error when the proxy was created with a custom request chain.
func (p *Proxy) UpdateRoutes(routes []Route, filters []FilterRule) error {
	if p.routes == nil || p.filters == nil {
		return errtrace.Wrap(NewInvalidArgumentError("proxy uses a custom request chain"))
	}
	if err := p.routes.SetRoutes(routes); err != nil {
		return errtrace.Wrap(err)
	}
	return errtrace.Wrap(p.filters.SetRules(filters))
}

// Stats returns a snapshot of proxy counters.
func (p *Proxy) Stats() StatsReport {
	r := p.stats.report()
	r.ActiveContexts = p.byKey.Size()
	r.ActiveBranches = p.byBranch.Size()
	return r
}

// Shutdown stops accepting requests, answers requests in progress with 503
// and waits for their contexts to be released.
// When ctx is done first, remaining contexts are aborted and ctx error is returned.
func (p *Proxy) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	first := p.closed.CompareAndSwap(false, true)
	p.mu.Unlock()
	if first {
		for _, rc := range p.byKey.Items() {
			rc.post(shutdownEvt{})
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.abort()
		return nil
	case <-ctx.Done():
		p.abort()
		<-done
		return errtrace.Wrap(ctx.Err())
	}
}

func (p *Proxy) reject(ctx context.Context, req *Request, err error) {
	p.stats.rejected.Add(1)
	res := ResponseForError(err)
	p.opts.log().LogAttrs(ctx, slog.LevelDebug, "request rejected",
		slog.Any("request", req),
		slog.Any("response", res),
		slog.Any("error", err),
	)
	if req == nil || len(req.Via) == 0 {
		return
	}
	if err := p.stack.Respond(ctx, req, res); err != nil {
		p.opts.log().LogAttrs(ctx, slog.LevelWarn, "failed to send response upstream",
			slog.Any("request", req),
			slog.Any("error", err),
		)
	}
}

func (p *Proxy) bindBranch(branch BranchID, rc *RequestContext) {
	p.byBranch.Set(branch, rc)
	p.stats.branches.Add(1)
}

func (p *Proxy) finalSent(rc *RequestContext, sts ResponseStatus) {
	p.stats.finalSent(sts)
	p.opts.metrics().finalSent(sts, time.Since(rc.start))
}

// release unregisters a context, it is called on the context goroutine.
func (p *Proxy) release(rc *RequestContext) {
	isRC := func(v *RequestContext) bool { return v == rc }
	p.byKey.DelIf(rc.key, isRC)
	p.byMerge.DelIf(rc.mkey, isRC)
	for _, t := range rc.rsp.order {
		if t.branch != "" {
			p.byBranch.DelIf(t.branch, isRC)
		}
	}
	p.opts.metrics().contextDone()
	for fn := range p.onDone.All() {
		fn(rc)
	}
}
