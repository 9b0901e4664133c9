package proxy

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ghettovoice/sipproxy/internal/timeutil"
	"github.com/ghettovoice/sipproxy/internal/types"
)

// RequestContext owns the processing of one original server transaction.
//
// Every event of the transaction is handled on the context goroutine.
// Processors receive the context while running on that goroutine, other
// goroutines may only use [RequestContext.ID], [RequestContext.Key],
// [RequestContext.Original] and [RequestContext.Done], and after Done
// is closed [RequestContext.FinalResponse].
type RequestContext struct {
	id     string
	proxy  *Proxy
	key    TransactionKey
	mkey   mergeKey
	orig   *Request
	req    *Request
	sig    string
	invite bool
	rsp    *ResponseContext
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	start  time.Time

	trusted   bool
	identity  string
	certIDs   []string
	skipTgts  bool
	local     *Response
	batch     []*Target
	curTarget *Target
	curRes    *Response
	consumed  bool

	mbox    types.Deque[event]
	timeout *timeutil.Timer
	done    chan struct{}
	final   *Response
}

func newRequestContext(p *Proxy, req *Request) *RequestContext {
	ctx, cancel := context.WithCancel(p.ctx)
	rc := &RequestContext{
		id:     uuid.NewString(),
		proxy:  p,
		key:    req.TransactionKey(),
		mkey:   req.mergeKey(),
		orig:   req.Clone(),
		req:    req.Clone(),
		sig:    LoopSignature(req),
		invite: req.IsInvite(),
		log:    p.opts.log(),
		ctx:    ctx,
		cancel: cancel,
		start:  time.Now(),
		done:   make(chan struct{}),
	}
	rc.rsp = newResponseContext(rc)
	return rc
}

// ID returns the unique context id.
func (rc *RequestContext) ID() string { return rc.id }

// Key returns the server transaction key of the original request.
func (rc *RequestContext) Key() TransactionKey { return rc.key }

// Original returns the request as received. It must not be modified.
func (rc *RequestContext) Original() *Request { return rc.orig }

// Request returns the working copy of the request. Processors may modify it,
// branch requests are built from it.
func (rc *RequestContext) Request() *Request { return rc.req }

// ResponseContext returns the forking state.
func (rc *RequestContext) ResponseContext() *ResponseContext { return rc.rsp }

// Logger returns the context logger.
func (rc *RequestContext) Logger() *slog.Logger { return rc.log }

// Options returns the proxy options.
func (rc *RequestContext) Options() *Options { return rc.proxy.opts }

// Trusted reports whether the request came from a trusted peer.
func (rc *RequestContext) Trusted() bool { return rc.trusted }

// SetTrusted marks the request source as trusted.
func (rc *RequestContext) SetTrusted(v bool) { rc.trusted = v }

// Authenticated reports whether the request credentials were validated.
func (rc *RequestContext) Authenticated() bool { return rc.identity != "" }

// AuthIdentity returns the identity authenticated by credentials.
func (rc *RequestContext) AuthIdentity() string { return rc.identity }

// SetAuthIdentity records the identity authenticated by credentials.
func (rc *RequestContext) SetAuthIdentity(id string) { rc.identity = id }

// CertIdentities returns identities accepted from the peer certificate.
func (rc *RequestContext) CertIdentities() []string { return slices.Clone(rc.certIDs) }

// AddCertIdentity records an identity accepted from the peer certificate.
func (rc *RequestContext) AddCertIdentity(id string) {
	if !slices.Contains(rc.certIDs, id) {
		rc.certIDs = append(rc.certIDs, id)
	}
}

// AddTarget adds a target URI with the highest q-value.
func (rc *RequestContext) AddTarget(uri URI) bool { return rc.rsp.AddTarget(NewTarget(uri)) }

// AddTargets adds contacts as targets and returns the number of accepted ones.
func (rc *RequestContext) AddTargets(contacts ...Contact) int {
	var n int
	for _, c := range contacts {
		if rc.rsp.AddTarget(NewTargetFromContact(c)) {
			n++
		}
	}
	return n
}

// AddTargetBatch adds targets as one batch, see [ResponseContext.AddTargetBatch].
func (rc *RequestContext) AddTargetBatch(ts []*Target, highPriority bool) int {
	return rc.rsp.AddTargetBatch(ts, highPriority)
}

// Respond sets the final response of the request.
// The response is sent once the running chain returns.
func (rc *RequestContext) Respond(res *Response) {
	if res == nil || !res.Status.IsFinal() || rc.local != nil {
		return
	}
	rc.local = res.Clone()
}

// Reject is a shortcut for [RequestContext.Respond] with a status and reason.
func (rc *RequestContext) Reject(sts ResponseStatus, reason string) {
	rc.Respond(NewResponse(sts, reason))
}

// PendingTargets returns the batch being scheduled by the target chain.
func (rc *RequestContext) PendingTargets() []*Target { return slices.Clone(rc.batch) }

// SetPendingTargets replaces the batch being scheduled by the target chain.
// Targets left out stay queued.
func (rc *RequestContext) SetPendingTargets(ts []*Target) { rc.batch = slices.Clone(ts) }

// CurrentTarget returns the target whose response runs through the response chain.
func (rc *RequestContext) CurrentTarget() *Target { return rc.curTarget }

// CurrentResponse returns the response running through the response chain.
func (rc *RequestContext) CurrentResponse() *Response { return rc.curRes }

// SetCurrentResponse replaces the response running through the response chain.
func (rc *RequestContext) SetCurrentResponse(res *Response) {
	if res != nil {
		rc.curRes = res
	}
}

// ConsumeResponse tells the response chain that the current final response
// was handled by the processor. The branch terminates without a result.
func (rc *RequestContext) ConsumeResponse() { rc.consumed = true }

// Done returns a channel closed when the context is released.
func (rc *RequestContext) Done() <-chan struct{} { return rc.done }

// FinalResponse returns the final response sent upstream.
// It is safe to call from any goroutine after [RequestContext.Done] is closed.
func (rc *RequestContext) FinalResponse() *Response {
	select {
	case <-rc.done:
		return rc.final
	default:
		return nil
	}
}

func (rc *RequestContext) LogValue() slog.Value {
	if rc == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("id", rc.id),
		slog.Any("key", rc.key),
		slog.String("method", string(rc.orig.Method)),
	)
}

func (rc *RequestContext) post(evt event) bool {
	return rc.mbox.Append(evt)
}

// run is the context goroutine.
func (rc *RequestContext) run() {
	defer rc.release()

	rc.begin(rc.ctx)
	for !rc.rsp.done() {
		select {
		case <-rc.mbox.Ready():
		case <-rc.ctx.Done():
			rc.abort(context.WithoutCancel(rc.ctx))
			return
		}
		for _, evt := range rc.mbox.Drain() {
			evt.handle(rc.ctx, rc)
			if rc.rsp.done() {
				break
			}
		}
	}
}

func (rc *RequestContext) begin(ctx context.Context) {
	rc.log.LogAttrs(ctx, slog.LevelDebug, "request context started",
		slog.Any("request_context", rc),
		slog.Any("request", rc.orig),
	)

	if d := rc.proxy.opts.timings().RequestTimeout(); rc.invite && d > 0 {
		rc.timeout = timeutil.AfterFunc(d, func() { rc.post(timeoutEvt{}) })
	}

	act, err := rc.proxy.reqChain.run(ctx, chainRequest, rc, !rc.proxy.opts.continueAfterRoutes())
	switch {
	case err != nil:
		rc.local = ResponseForError(err)
		rc.rsp.commitLocal(ctx)
		return
	case rc.local != nil:
		rc.rsp.commitLocal(ctx)
		return
	case act == ActionSkipAllChains:
		rc.skipTgts = true
	}
	rc.advance(ctx)
}

// advance dispatches what may start and decides when nothing is left.
func (rc *RequestContext) advance(ctx context.Context) {
	rc.rsp.schedule(ctx)
	rc.rsp.decide(ctx)
}

func (rc *RequestContext) runTargetChain(ctx context.Context, batch []*Target) []*Target {
	if rc.skipTgts || len(rc.proxy.tgtChain) == 0 {
		return batch
	}
	rc.batch = slices.Clone(batch)
	defer func() { rc.batch = nil }()
	if _, err := rc.proxy.tgtChain.run(ctx, chainTarget, rc, false); err != nil {
		rc.log.LogAttrs(ctx, slog.LevelWarn, "target processing failed, dispatch batch as is",
			slog.Any("request_context", rc),
			slog.Any("error", err),
		)
		return batch
	}
	return rc.batch
}

// runResponseChain passes a branch response through the response chain.
// It returns the resulting response and false when the response was consumed.
func (rc *RequestContext) runResponseChain(ctx context.Context, t *Target, res *Response) (*Response, bool) {
	if len(rc.proxy.resChain) == 0 {
		return res, true
	}
	rc.curTarget, rc.curRes, rc.consumed = t, res, false
	defer func() { rc.curTarget, rc.curRes, rc.consumed = nil, nil, false }()
	if _, err := rc.proxy.resChain.run(ctx, chainResponse, rc, false); err != nil {
		rc.log.LogAttrs(ctx, slog.LevelWarn, "response processing failed",
			slog.Any("request_context", rc),
			slog.Any("target", t),
			slog.Any("error", err),
		)
		return res, true
	}
	return rc.curRes, !rc.consumed || rc.curRes.Status.IsProvisional()
}

func (rc *RequestContext) onBranchResponse(ctx context.Context, branch BranchID, res *Response, synthetic bool) {
	t, ok := rc.rsp.Target(branch)
	if !ok {
		return
	}
	if t.IsLive() && rc.rsp.final == nil {
		var pass bool
		res, pass = rc.runResponseChain(ctx, t, res)
		if !pass {
			rc.rsp.finishBranch(ctx, t, tgtEvtTerminate)
			t.status = res.Status
			if !synthetic && rc.invite {
				rc.ackBranch(ctx, t, res.Status.IsSuccessful())
			}
			rc.commitLocal(ctx)
			rc.advance(ctx)
			return
		}
	}
	rc.rsp.onResponse(ctx, t, res, synthetic)
	// a response processor may answer the request once the branch settled
	rc.commitLocal(ctx)
	rc.advance(ctx)
}

func (rc *RequestContext) commitLocal(ctx context.Context) {
	if rc.local != nil {
		rc.rsp.commitLocal(ctx)
	}
}

func (rc *RequestContext) onBranchError(ctx context.Context, branch BranchID, err error) {
	t, ok := rc.rsp.Target(branch)
	if !ok {
		return
	}
	rc.log.LogAttrs(ctx, slog.LevelDebug, "branch transport failure",
		slog.Any("request_context", rc),
		slog.Any("target", t),
		slog.Any("error", err),
	)
	sts := ResponseStatusServiceUnavailable
	if isTimeoutErr(err) {
		sts = ResponseStatusRequestTimeout
	}
	rc.onBranchResponse(ctx, branch, NewResponse(sts, ""), true)
}

// branchRequest builds the request sent to the target.
func (rc *RequestContext) branchRequest(t *Target) *Request {
	req := rc.req.Clone()
	req.URI = t.uri.Clone()
	req.MaxForwards = max(req.MaxForwards-1, 0)
	req.Via = append([]Via{rc.proxy.opts.via(t.branch)}, req.Via...)
	req.Credentials = nil
	return req
}

func (rc *RequestContext) respond(ctx context.Context, res *Response) {
	if err := rc.proxy.stack.Respond(ctx, rc.orig, res); err != nil {
		rc.log.LogAttrs(ctx, slog.LevelWarn, "failed to send response upstream",
			slog.Any("request_context", rc),
			slog.Any("response", res),
			slog.Any("error", err),
		)
	}
}

func (rc *RequestContext) ackBranch(ctx context.Context, t *Target, success bool) {
	if err := rc.proxy.stack.AckBranch(ctx, t.branch, success); err != nil {
		rc.log.LogAttrs(ctx, slog.LevelWarn, "failed to acknowledge branch",
			slog.Any("request_context", rc),
			slog.Any("target", t),
			slog.Any("error", err),
		)
	}
}

// abort force-terminates the context, it is used when the proxy stops
// waiting for branches.
func (rc *RequestContext) abort(ctx context.Context) {
	rc.rsp.giveUp(ctx, NewResponse(ResponseStatusServiceUnavailable, ""), ResponseStatusServiceUnavailable)
	rc.rsp.decide(ctx)
	for b, t := range rc.rsp.pending {
		t.stopTimer()
		delete(rc.rsp.pending, b)
	}
}

func (rc *RequestContext) release() {
	if rc.timeout != nil {
		rc.timeout.Stop()
	}
	for _, t := range rc.rsp.order {
		t.stopTimer()
	}
	if n := len(rc.mbox.Close()); n > 0 {
		rc.log.LogAttrs(rc.ctx, slog.LevelDebug, "request context dropped pending events",
			slog.Any("request_context", rc),
			slog.Int("events", n),
		)
	}
	rc.final = rc.rsp.final
	rc.proxy.release(rc)
	rc.cancel()
	close(rc.done)
	rc.log.LogAttrs(rc.ctx, slog.LevelDebug, "request context released",
		slog.Any("request_context", rc),
		slog.Any("response", rc.final),
		slog.Duration("elapsed", time.Since(rc.start)),
	)
}
