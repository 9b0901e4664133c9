package proxy

import (
	"context"
	"log/slog"
)

// DefaultResponseChain builds the response chain configured by options:
// recursive redirect when enabled and 503 mapping.
func DefaultResponseChain(opts *Options) Chain {
	var c Chain
	if opts != nil && opts.RecurseOnRedirect {
		c = append(c, RecursiveRedirect{MaxRedirects: opts.maxRedirects()})
	}
	return append(c, ServiceUnavailableMapper{})
}

// RecursiveRedirect turns contacts of a redirect response into
// a high priority batch of targets and consumes the response.
// Redirects beyond the limit are aggregated as usual.
type RecursiveRedirect struct {
	MaxRedirects int
}

func (RecursiveRedirect) Name() string { return "recursive_redirect" }

func (r RecursiveRedirect) Process(ctx context.Context, rc *RequestContext) (Action, error) {
	res := rc.CurrentResponse()
	if res == nil || !res.Status.IsRedirection() || len(res.Contacts) == 0 {
		return ActionContinue, nil
	}
	rsp := rc.ResponseContext()
	if max(r.MaxRedirects, 1) <= rsp.Redirects() {
		rc.log.LogAttrs(ctx, slog.LevelDebug, "redirect limit reached",
			slog.Any("request_context", rc),
			slog.Int("redirects", rsp.Redirects()),
		)
		return ActionContinue, nil
	}
	if n := rsp.AddRedirectTargets(res.Contacts); n > 0 {
		rc.log.LogAttrs(ctx, slog.LevelDebug, "redirect recursed",
			slog.Any("request_context", rc),
			slog.Any("target", rc.CurrentTarget()),
			slog.Int("targets", n),
		)
		rc.ConsumeResponse()
		return ActionSkipThisChain, nil
	}
	return ActionContinue, nil
}

// ServiceUnavailableMapper replaces downstream 503 with 500.
type ServiceUnavailableMapper struct{}

func (ServiceUnavailableMapper) Name() string { return "service_unavailable_mapper" }

func (ServiceUnavailableMapper) Process(_ context.Context, rc *RequestContext) (Action, error) {
	if res := rc.CurrentResponse(); res != nil && res.Status == ResponseStatusServiceUnavailable {
		mapped := res.Clone()
		mapped.Status = ResponseStatusServerInternalError
		mapped.Reason = string(ResponseStatusServerInternalError.Reason())
		rc.SetCurrentResponse(mapped)
	}
	return ActionContinue, nil
}
