package proxy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ghettovoice/sipproxy/internal/errorutil"
)

// event is a unit of work delivered to the request context mailbox.
type event interface {
	handle(ctx context.Context, rc *RequestContext)
}

type branchResEvt struct {
	branch BranchID
	res    *Response
}

func (e *branchResEvt) handle(ctx context.Context, rc *RequestContext) {
	rc.onBranchResponse(ctx, e.branch, e.res, false)
}

type branchErrEvt struct {
	branch BranchID
	err    error
}

func (e *branchErrEvt) handle(ctx context.Context, rc *RequestContext) {
	rc.onBranchError(ctx, e.branch, e.err)
}

type timerEvt struct {
	branch BranchID
	gen    uint64
}

func (e *timerEvt) handle(ctx context.Context, rc *RequestContext) {
	t, ok := rc.rsp.Target(e.branch)
	if !ok {
		return
	}
	rc.rsp.onTimer(ctx, t, e.gen)
	rc.advance(ctx)
}

type cancelEvt struct{}

func (cancelEvt) handle(ctx context.Context, rc *RequestContext) {
	if rc.rsp.final != nil {
		return
	}
	rc.log.LogAttrs(ctx, slog.LevelDebug, "request canceled by client", slog.Any("request_context", rc))
	if rc.rsp.forced == nil {
		rc.rsp.forced = NewResponse(ResponseStatusRequestTerminated, "")
	}
	rc.rsp.cancelAll(ctx)
	rc.advance(ctx)
}

type ackEvt struct{}

func (ackEvt) handle(ctx context.Context, rc *RequestContext) {
	rc.log.LogAttrs(ctx, slog.LevelDebug, "ACK absorbed", slog.Any("request_context", rc))
}

type timeoutEvt struct{}

func (timeoutEvt) handle(ctx context.Context, rc *RequestContext) {
	if rc.rsp.final != nil {
		return
	}
	rc.log.LogAttrs(ctx, slog.LevelDebug, "request timed out", slog.Any("request_context", rc))
	rc.rsp.timedOut = true
	rc.rsp.giveUp(ctx, nil, ResponseStatusRequestTimeout)
	rc.advance(ctx)
}

type shutdownEvt struct{}

func (shutdownEvt) handle(ctx context.Context, rc *RequestContext) {
	if rc.rsp.final != nil {
		return
	}
	rc.rsp.giveUp(ctx, NewResponse(ResponseStatusServiceUnavailable, ""), ResponseStatusServiceUnavailable)
	rc.advance(ctx)
}

func isTimeoutErr(err error) bool {
	return errors.Is(err, ErrTimeout) || errorutil.IsTimeoutErr(err)
}
