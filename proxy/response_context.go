package proxy

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// ResponseContext holds the forking state of one request:
// its targets, branch responses and the final response decision.
//
// It is confined to the [RequestContext] goroutine and is not safe for
// use from other goroutines.
type ResponseContext struct {
	rc *RequestContext

	targets map[BranchID]*Target
	order   []*Target
	live    map[BranchID]*Target
	// pending are branches given up by the proxy that still wait
	// for the stack final response or the cancel grace period.
	pending map[BranchID]*Target

	results []branchResult
	seen1xx map[provKey]struct{}

	forced    *Response
	final     *Response
	canceling bool
	timedOut  bool
	boost     uint32
	seq       int
	redirects int
}

type provKey struct {
	branch BranchID
	status ResponseStatus
}

func newResponseContext(rc *RequestContext) *ResponseContext {
	return &ResponseContext{
		rc:      rc,
		targets: make(map[BranchID]*Target),
		live:    make(map[BranchID]*Target),
		pending: make(map[BranchID]*Target),
		seen1xx: make(map[provKey]struct{}),
	}
}

// AddTarget adds a target to the current tier of boost.
// It returns false when the target is refused: the final response was sent,
// the branches are being canceled, the target already belongs to a context
// or its URI duplicates an existing target.
func (rsp *ResponseContext) AddTarget(t *Target) bool {
	if t == nil || rsp.closed() || t.branch != "" || !t.IsQueued() {
		return false
	}
	if slices.ContainsFunc(rsp.order, func(e *Target) bool { return e.uri.Equal(t.uri) }) {
		rsp.rc.log.LogAttrs(rsp.rc.ctx, slog.LevelDebug, "duplicate target dropped",
			slog.Any("request_context", rsp.rc),
			slog.Any("uri", t.uri),
		)
		return false
	}
	t.tier.Boost = rsp.boost
	t.seq = rsp.seq
	t.branch = NewBranchID(rsp.rc.sig)
	rsp.seq++
	rsp.targets[t.branch] = t
	rsp.order = append(rsp.order, t)
	return true
}

// AddTargetBatch adds targets and returns the number of accepted ones.
// A high priority batch is dispatched before every target queued earlier.
func (rsp *ResponseContext) AddTargetBatch(ts []*Target, highPriority bool) int {
	if rsp.closed() {
		return 0
	}
	if highPriority {
		rsp.boost++
	}
	var n int
	for _, t := range ts {
		if rsp.AddTarget(t) {
			n++
		}
	}
	return n
}

// HasTargets reports whether any target was added.
func (rsp *ResponseContext) HasTargets() bool { return len(rsp.order) > 0 }

// Targets returns all targets in insertion order.
func (rsp *ResponseContext) Targets() []*Target { return slices.Clone(rsp.order) }

// Target returns the target of the branch.
func (rsp *ResponseContext) Target(branch BranchID) (*Target, bool) {
	t, ok := rsp.targets[branch]
	return t, ok
}

// QueuedTargets returns targets waiting for dispatch in dispatch order.
func (rsp *ResponseContext) QueuedTargets() []*Target {
	var queued []*Target
	for _, t := range rsp.order {
		if t.IsQueued() {
			queued = append(queued, t)
		}
	}
	slices.SortStableFunc(queued, func(a, b *Target) int { return a.tier.Compare(b.tier) })
	return queued
}

// LiveCount returns the number of dispatched branches waiting for a final response.
func (rsp *ResponseContext) LiveCount() int { return len(rsp.live) }

// FinalResponse returns the final response sent upstream or nil.
func (rsp *ResponseContext) FinalResponse() *Response { return rsp.final }

// FinalSent reports whether the final response was sent upstream.
func (rsp *ResponseContext) FinalSent() bool { return rsp.final != nil }

// BestResponse returns the response that would be sent upstream
// if every branch ended now, nil when there are no failures yet.
func (rsp *ResponseContext) BestResponse() *Response {
	if len(rsp.results) == 0 {
		return nil
	}
	return aggregate(rsp.results, nil, rsp.timedOut)
}

// Redirects returns the number of redirect recursion rounds done.
func (rsp *ResponseContext) Redirects() int { return rsp.redirects }

// AddRedirectTargets adds redirect contacts as a high priority batch
// and counts the recursion round when any target was accepted.
func (rsp *ResponseContext) AddRedirectTargets(contacts []Contact) int {
	ts := make([]*Target, 0, len(contacts))
	for _, c := range contacts {
		ts = append(ts, NewTargetFromContact(c))
	}
	n := rsp.AddTargetBatch(ts, true)
	if n > 0 {
		rsp.redirects++
	}
	return n
}

func (rsp *ResponseContext) closed() bool { return rsp.final != nil || rsp.canceling }

// done reports whether the request context can be released.
func (rsp *ResponseContext) done() bool {
	return rsp.final != nil && len(rsp.live) == 0 && len(rsp.pending) == 0
}

// nextBatch returns queued targets of the best queued tier if that tier may start now.
// In serial mode a tier may start while no live branch belongs to a later tier.
func (rsp *ResponseContext) nextBatch() []*Target {
	queued := rsp.QueuedTargets()
	if len(queued) == 0 || rsp.rc.proxy.opts.parallel() {
		return queued
	}
	first := queued[0].tier
	for _, t := range rsp.live {
		if first.Compare(t.tier) > 0 {
			return nil
		}
	}
	end := slices.IndexFunc(queued, func(t *Target) bool { return t.tier != first })
	if end < 0 {
		return queued
	}
	return queued[:end]
}

// schedule dispatches every batch that may start now.
func (rsp *ResponseContext) schedule(ctx context.Context) {
	for !rsp.closed() {
		batch := rsp.nextBatch()
		if len(batch) == 0 {
			return
		}
		sel := rsp.rc.runTargetChain(ctx, batch)
		if rsp.rc.local != nil {
			rsp.commitLocal(ctx)
			return
		}
		var n int
		for _, t := range sel {
			if rsp.targets[t.branch] == t && t.IsQueued() {
				rsp.dispatch(ctx, t)
				n++
			}
		}
		if n == 0 {
			if len(rsp.live) > 0 {
				return
			}
			// nothing in flight would wake the scheduler later
			rsp.dispatch(ctx, batch[0])
		}
	}
}

func (rsp *ResponseContext) dispatch(ctx context.Context, t *Target) {
	rc := rsp.rc
	if err := t.fire(ctx, tgtEvtDispatch); err != nil {
		rc.log.LogAttrs(ctx, slog.LevelWarn, "failed to dispatch target",
			slog.Any("request_context", rc),
			slog.Any("target", t),
			slog.Any("error", err),
		)
		return
	}
	rsp.live[t.branch] = t
	rc.proxy.bindBranch(t.branch, rc)

	timeout := rc.proxy.opts.timings().TimeF()
	if rc.invite {
		timeout = rc.proxy.opts.timings().TimeC()
	}
	rsp.armTimer(t, timeout)

	req := rc.branchRequest(t)
	rc.log.LogAttrs(ctx, slog.LevelDebug, "dispatch branch",
		slog.Any("request_context", rc),
		slog.Any("target", t),
	)
	if err := rc.proxy.stack.SubmitRequest(ctx, t.branch, req); err != nil {
		rc.post(&branchErrEvt{branch: t.branch, err: err})
	}
}

func (rsp *ResponseContext) armTimer(t *Target, d time.Duration) {
	rc := rsp.rc
	t.tmrGen++
	gen := t.tmrGen
	t.startTimer(d, func() { rc.post(&timerEvt{branch: t.branch, gen: gen}) })
}

// onResponse applies a branch response that passed the response chain.
func (rsp *ResponseContext) onResponse(ctx context.Context, t *Target, res *Response, synthetic bool) {
	rc := rsp.rc
	sts := res.Status
	if sts.IsProvisional() {
		if !t.IsLive() {
			return
		}
		if err := t.fire(ctx, tgtEvtProvisional); err != nil {
			rc.log.LogAttrs(ctx, slog.LevelWarn, "unexpected provisional response",
				slog.Any("request_context", rc),
				slog.Any("target", t),
				slog.Any("error", err),
			)
			return
		}
		t.status = sts
		if sts == ResponseStatusTrying || rsp.final != nil {
			return
		}
		if rc.invite {
			t.resetTimer()
		}
		// no provisional responses once the request is being canceled
		if rsp.canceling {
			return
		}
		key := provKey{t.branch, sts}
		if _, ok := rsp.seen1xx[key]; ok {
			return
		}
		rsp.seen1xx[key] = struct{}{}
		rc.respond(ctx, res)
		return
	}

	if !t.IsLive() {
		rsp.onLateFinal(ctx, t, res, synthetic)
		return
	}

	evt := tgtEvtFinal
	// 487 after our own CANCEL terminates the branch without a result
	if sts == ResponseStatusRequestTerminated && t.cancel {
		evt = tgtEvtTerminate
	}
	rsp.finishBranch(ctx, t, evt)
	t.status = sts
	if !synthetic && rc.invite {
		rc.ackBranch(ctx, t, sts.IsSuccessful())
	}

	switch {
	case rsp.final != nil:
		if sts.IsSuccessful() {
			rc.proxy.stats.late.Add(1)
			rc.log.LogAttrs(ctx, slog.LevelWarn, "success response after final response dropped",
				slog.Any("request_context", rc),
				slog.Any("target", t),
			)
		}
	case sts.IsSuccessful(), sts.IsGlobalFailure():
		rsp.commit(ctx, res)
		rsp.cancelAll(ctx)
	case evt == tgtEvtTerminate:
	default:
		rsp.results = append(rsp.results, branchResult{branch: t.branch, res: res.Clone()})
	}
}

// onLateFinal handles the final response of a branch the proxy already gave up.
func (rsp *ResponseContext) onLateFinal(ctx context.Context, t *Target, res *Response, synthetic bool) {
	rc := rsp.rc
	if _, ok := rsp.pending[t.branch]; !ok {
		return
	}
	delete(rsp.pending, t.branch)
	t.stopTimer()
	t.status = res.Status
	if !synthetic && rc.invite {
		rc.ackBranch(ctx, t, res.Status.IsSuccessful())
	}
	if res.Status.IsSuccessful() {
		rc.proxy.stats.late.Add(1)
		rc.log.LogAttrs(ctx, slog.LevelWarn, "success response on abandoned branch dropped",
			slog.Any("request_context", rc),
			slog.Any("target", t),
		)
	}
}

// finishBranch moves a live branch to a terminal state.
func (rsp *ResponseContext) finishBranch(ctx context.Context, t *Target, evt string) {
	if err := t.fire(ctx, evt); err != nil {
		rsp.rc.log.LogAttrs(ctx, slog.LevelWarn, "failed to finish branch",
			slog.Any("request_context", rsp.rc),
			slog.Any("target", t),
			slog.Any("error", err),
		)
	}
	delete(rsp.live, t.branch)
	rsp.rc.proxy.opts.metrics().branchDone(t.State())
}

// abandon terminates a live branch that is still expected to answer,
// records the synthetic failure and waits for the late final response.
func (rsp *ResponseContext) abandon(ctx context.Context, t *Target, sts ResponseStatus) {
	rc := rsp.rc
	if rc.invite && !t.cancel && t.State() == TargetStateProceeding {
		rsp.cancelBranch(ctx, t)
	}
	rsp.finishBranch(ctx, t, tgtEvtTerminate)
	t.status = sts
	rsp.pending[t.branch] = t
	rsp.armTimer(t, rc.proxy.opts.timings().CancelGrace())
	if rsp.final == nil {
		rsp.results = append(rsp.results, branchResult{branch: t.branch, res: NewResponse(sts, "")})
	}
}

func (rsp *ResponseContext) cancelBranch(ctx context.Context, t *Target) {
	rc := rsp.rc
	t.cancel = true
	rc.proxy.stats.cancels.Add(1)
	rc.proxy.opts.metrics().branchCanceled()
	if err := rc.proxy.stack.CancelBranch(ctx, t.branch); err != nil {
		rc.log.LogAttrs(ctx, slog.LevelWarn, "failed to cancel branch",
			slog.Any("request_context", rc),
			slog.Any("target", t),
			slog.Any("error", err),
		)
	}
}

// cancelAll drops queued targets and cancels every live INVITE branch once.
func (rsp *ResponseContext) cancelAll(ctx context.Context) {
	if rsp.canceling {
		return
	}
	rsp.canceling = true
	for _, t := range rsp.order {
		if t.IsQueued() {
			if err := t.fire(ctx, tgtEvtTerminate); err == nil {
				rsp.rc.proxy.opts.metrics().branchDone(TargetStateTerminated)
			}
		}
	}
	if !rsp.rc.invite {
		return
	}
	for _, b := range slices.Sorted(maps.Keys(rsp.live)) {
		if t := rsp.live[b]; !t.cancel {
			rsp.cancelBranch(ctx, t)
		}
	}
}

// onTimer handles Timer C, Timer F and cancel grace expiry of a branch.
func (rsp *ResponseContext) onTimer(ctx context.Context, t *Target, gen uint64) {
	if gen != t.tmrGen {
		return
	}
	rc := rsp.rc
	if _, ok := rsp.pending[t.branch]; ok {
		rc.log.LogAttrs(ctx, slog.LevelDebug, "abandoned branch released without final response",
			slog.Any("request_context", rc),
			slog.Any("target", t),
		)
		delete(rsp.pending, t.branch)
		return
	}
	if !t.IsLive() {
		return
	}
	rc.log.LogAttrs(ctx, slog.LevelDebug, "branch timed out",
		slog.Any("request_context", rc),
		slog.Any("target", t),
	)
	rsp.abandon(ctx, t, ResponseStatusRequestTimeout)
}

// giveUp abandons every live branch, drops queued targets and forces
// the given response when it is not nil.
func (rsp *ResponseContext) giveUp(ctx context.Context, forced *Response, sts ResponseStatus) {
	if rsp.forced == nil {
		rsp.forced = forced
	}
	for _, t := range rsp.order {
		if t.IsQueued() {
			if err := t.fire(ctx, tgtEvtTerminate); err == nil {
				rsp.rc.proxy.opts.metrics().branchDone(TargetStateTerminated)
			}
		}
	}
	rsp.canceling = true
	for _, b := range slices.Sorted(maps.Keys(rsp.live)) {
		t := rsp.live[b]
		if rsp.rc.invite && !t.cancel {
			rsp.cancelBranch(ctx, t)
		}
		rsp.abandon(ctx, t, sts)
	}
}

// decide sends the aggregated final response once nothing can change it.
func (rsp *ResponseContext) decide(ctx context.Context) {
	if rsp.final != nil || len(rsp.live) > 0 || len(rsp.QueuedTargets()) > 0 {
		return
	}
	rsp.commit(ctx, aggregate(rsp.results, rsp.forced, rsp.timedOut))
}

func (rsp *ResponseContext) commitLocal(ctx context.Context) {
	res := rsp.rc.local
	rsp.rc.local = nil
	if rsp.final != nil {
		return
	}
	rsp.commit(ctx, res)
	rsp.cancelAll(ctx)
}

// commit sends the final response upstream, it happens once per context.
func (rsp *ResponseContext) commit(ctx context.Context, res *Response) {
	if rsp.final != nil {
		return
	}
	rsp.final = res.Clone()
	rsp.rc.log.LogAttrs(ctx, slog.LevelDebug, "final response",
		slog.Any("request_context", rsp.rc),
		slog.Any("response", rsp.final),
	)
	rsp.rc.respond(ctx, rsp.final)
	rsp.rc.proxy.finalSent(rsp.rc, rsp.final.Status)
}

func (rsp *ResponseContext) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("targets", len(rsp.order)),
		slog.Int("live", len(rsp.live)),
		slog.Int("pending", len(rsp.pending)),
		slog.Int("results", len(rsp.results)),
	}
	if rsp.final != nil {
		attrs = append(attrs, slog.Uint64("final", uint64(rsp.final.Status)))
	}
	return slog.GroupValue(attrs...)
}
