package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipproxy/internal/errorutil"
)

// DefaultRequestChain builds the request chain configured by options:
// strict route fix-up, trusted peers, certificate and digest authentication,
// request filters, static routes, foreign domain forwarding and location lookup.
func DefaultRequestChain(opts *Options) (Chain, error) {
	c, _, _, err := defaultRequestChain(opts)
	return c, errtrace.Wrap(err)
}

func defaultRequestChain(opts *Options) (Chain, *StaticRoute, *RequestFilter, error) {
	var (
		routes  []Route
		filters []FilterRule
		peers   []netip.Prefix
		auth    Authenticator
		loc     Location
		local   LocalHandler
	)
	if opts != nil {
		routes, filters, peers = opts.Routes, opts.Filters, opts.TrustedPeers
		auth, loc, local = opts.Authenticator, opts.Location, opts.LocalHandler
	}

	sr, err := NewStaticRoute(routes)
	if err != nil {
		return nil, nil, nil, errtrace.Wrap(err)
	}
	rf, err := NewRequestFilter(filters)
	if err != nil {
		return nil, nil, nil, errtrace.Wrap(err)
	}

	c := Chain{
		StrictRouteFixup{},
		TrustedPeers{Prefixes: peers},
		CertificateAuthenticator{},
	}
	if auth != nil && (opts == nil || !opts.DisableAuth) {
		c = append(c, DigestAuthenticator{Authenticator: auth})
	}
	c = append(c, AmIResponsible{}, rf, sr, LocationServer{Location: loc, LocalHandler: local})
	return c, sr, rf, nil
}

// ownsHost reports whether the host is one of the proxy domains or the proxy Via host.
func ownsHost(opts *Options, host string) bool {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return false
	}
	return opts.domains().Owns(host) || strings.EqualFold(host, opts.via("").Host)
}

// requireAuth reports whether the request must be authenticated before
// it is forwarded. Certificate identities are accepted only for local targets.
func requireAuth(rc *RequestContext, external bool) bool {
	if rc.Trusted() || rc.Authenticated() || (rc.proxy.opts != nil && rc.proxy.opts.DisableAuth) {
		return false
	}
	if len(rc.certIDs) > 0 && !external {
		return false
	}
	return true
}

// challenge answers the request with 407 or with 403 when no authenticator is configured.
func challenge(ctx context.Context, rc *RequestContext, auth Authenticator, stale bool) error {
	if auth == nil {
		return errtrace.Wrap(NewRequestError(ResponseStatusForbidden, "", ErrUnauthenticated))
	}
	ch, err := auth.Challenge(ctx, rc.Request())
	if err != nil {
		return errtrace.Wrap(err)
	}
	ch.Proxy = true
	ch.Stale = ch.Stale || stale
	res := NewResponse(ResponseStatusProxyAuthenticationRequired, "")
	res.Challenges = []Challenge{ch}
	rc.Respond(res)
	return nil
}

// StrictRouteFixup restores the Request-URI of requests sent by strict routers
// and removes the proxy own entry from the top of the Route set.
type StrictRouteFixup struct{}

func (StrictRouteFixup) Name() string { return "strict_route_fixup" }

func (StrictRouteFixup) Process(ctx context.Context, rc *RequestContext) (Action, error) {
	req := rc.Request()
	opts := rc.proxy.opts
	if n := len(req.Route); n > 0 && ownsHost(opts, req.URI.Host) && req.URI.IsLooseRouter() {
		rc.log.LogAttrs(ctx, slog.LevelDebug, "Request-URI restored from strict router",
			slog.Any("request_context", rc),
			slog.Any("uri", req.URI),
			slog.Any("restored", req.Route[n-1]),
		)
		req.URI = req.Route[n-1]
		req.Route = req.Route[:n-1]
	}
	for len(req.Route) > 0 && ownsHost(opts, req.Route[0].Host) {
		req.Route = req.Route[1:]
	}
	return ActionContinue, nil
}

// TrustedPeers marks requests received from trusted networks.
type TrustedPeers struct {
	Prefixes []netip.Prefix
}

func (TrustedPeers) Name() string { return "trusted_peers" }

func (p TrustedPeers) Process(_ context.Context, rc *RequestContext) (Action, error) {
	src := rc.Original().Source
	if !src.IsValid() {
		return ActionContinue, nil
	}
	addr := src.Addr().Unmap()
	rc.SetTrusted(slices.ContainsFunc(p.Prefixes, func(pfx netip.Prefix) bool { return pfx.Contains(addr) }))
	return ActionContinue, nil
}

// CertificateAuthenticator accepts TLS peer identities that cover the From domain.
// When Strict is set a request with peer identities none of which covers
// the From domain is rejected with 403.
type CertificateAuthenticator struct {
	Strict bool
}

func (CertificateAuthenticator) Name() string { return "certificate_authenticator" }

func (a CertificateAuthenticator) Process(_ context.Context, rc *RequestContext) (Action, error) {
	req := rc.Original()
	if len(req.PeerIdentities) == 0 {
		return ActionContinue, nil
	}
	from := req.From.Domain()
	for _, id := range req.PeerIdentities {
		if identityCovers(id, from) {
			rc.AddCertIdentity(id)
		}
	}
	if a.Strict && len(rc.certIDs) == 0 {
		return ActionSkipAllChains, errtrace.Wrap(NewRequestError(ResponseStatusForbidden, "Certificate Mismatch", ErrUnauthenticated))
	}
	return ActionContinue, nil
}

// identityCovers matches a certificate identity, possibly a wildcard, against a domain.
func identityCovers(id, domain string) bool {
	id, domain = strings.ToLower(strings.TrimSuffix(id, ".")), strings.ToLower(strings.TrimSuffix(domain, "."))
	if id == "" || domain == "" {
		return false
	}
	if suffix, ok := strings.CutPrefix(id, "*."); ok {
		head, rest, found := strings.Cut(domain, ".")
		return found && head != "" && rest == suffix
	}
	return id == domain
}

// DigestAuthenticator validates request credentials through the authenticator
// and challenges users of the proxy domains who sent none.
type DigestAuthenticator struct {
	Authenticator Authenticator
}

func (DigestAuthenticator) Name() string { return "digest_authenticator" }

func (a DigestAuthenticator) Process(ctx context.Context, rc *RequestContext) (Action, error) {
	if a.Authenticator == nil || rc.Trusted() {
		return ActionContinue, nil
	}
	req := rc.Request()
	if req.Credentials == nil {
		if rc.proxy.opts.domains().Owns(req.From.Domain()) && requireAuth(rc, false) {
			return ActionSkipAllChains, errtrace.Wrap(challenge(ctx, rc, a.Authenticator, false))
		}
		return ActionContinue, nil
	}

	id, err := a.Authenticator.Validate(ctx, req, req.Credentials)
	switch {
	case err == nil:
		rc.SetAuthIdentity(id)
		rc.log.LogAttrs(ctx, slog.LevelDebug, "request authenticated",
			slog.Any("request_context", rc),
			slog.String("identity", id),
		)
		return ActionContinue, nil
	case errors.Is(err, ErrStaleNonce):
		return ActionSkipAllChains, errtrace.Wrap(challenge(ctx, rc, a.Authenticator, true))
	case errors.Is(err, ErrAuthRejected):
		return ActionSkipAllChains, errtrace.Wrap(NewRequestError(ResponseStatusForbidden, "", err))
	default:
		return ActionSkipAllChains, errtrace.Wrap(err)
	}
}

// AmIResponsible forwards requests the proxy is not responsible for:
// requests with a remaining Route set and requests for foreign domains.
// Out-of-dialog requests pass the authentication gate first.
type AmIResponsible struct{}

func (AmIResponsible) Name() string { return "am_i_responsible" }

func (AmIResponsible) Process(ctx context.Context, rc *RequestContext) (Action, error) {
	req := rc.Request()
	opts := rc.proxy.opts
	routed := len(req.Route) > 0
	if !routed && (req.URI.Scheme == "tel" || ownsHost(opts, req.URI.Host)) {
		return ActionContinue, nil
	}
	external := !routed || !ownsHost(opts, req.Route[0].Host)
	if req.ToTag == "" && requireAuth(rc, external) {
		return ActionSkipAllChains, errtrace.Wrap(challenge(ctx, rc, rc.proxy.opts.Authenticator, false))
	}
	rc.AddTarget(req.URI)
	return ActionContinue, nil
}

// FilterRule rejects matching requests with the given status.
type FilterRule struct {
	// Methods limits the rule to methods, empty means any.
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	// Match is a regular expression matched against the Request-URI.
	Match  string         `json:"match" yaml:"match"`
	Status ResponseStatus `json:"status" yaml:"status"`
	Reason string         `json:"reason,omitempty" yaml:"reason,omitempty"`
}

type filterRule struct {
	FilterRule
	re *regexp.Regexp
}

// RequestFilter rejects requests by ordered filter rules.
// Rules can be replaced while the proxy is running.
type RequestFilter struct {
	rules *atomic.Pointer[[]filterRule]
}

// NewRequestFilter creates a request filter.
func NewRequestFilter(rules []FilterRule) (*RequestFilter, error) {
	f := &RequestFilter{rules: new(atomic.Pointer[[]filterRule])}
	if err := f.SetRules(rules); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return f, nil
}

// SetRules replaces the filter rules.
func (f *RequestFilter) SetRules(rules []FilterRule) error {
	compiled := make([]filterRule, 0, len(rules))
	var errs []error
	for i, r := range rules {
		re, err := regexp.Compile(r.Match)
		if err != nil {
			errs = append(errs, errorutil.Errorf("rule %d: %v", i, err))
			continue
		}
		if !r.Status.IsFinal() {
			errs = append(errs, errorutil.Errorf("rule %d: invalid status %d", i, r.Status))
			continue
		}
		compiled = append(compiled, filterRule{FilterRule: r, re: re})
	}
	if err := errorutil.JoinPrefix("invalid filter rules:", errs...); err != nil {
		return errtrace.Wrap(NewInvalidArgumentError(err))
	}
	f.rules.Store(&compiled)
	return nil
}

func (*RequestFilter) Name() string { return "request_filter" }

func (f *RequestFilter) Process(ctx context.Context, rc *RequestContext) (Action, error) {
	req := rc.Request()
	uri := req.URI.String()
	for _, r := range *f.rules.Load() {
		if !methodMatches(r.Methods, req.Method) || !r.re.MatchString(uri) {
			continue
		}
		rc.log.LogAttrs(ctx, slog.LevelDebug, "request filtered",
			slog.Any("request_context", rc),
			slog.String("match", r.Match),
		)
		rc.Reject(r.Status, r.Reason)
		return ActionSkipAllChains, nil
	}
	return ActionContinue, nil
}

func methodMatches(methods []string, mtd RequestMethod) bool {
	return len(methods) == 0 || slices.ContainsFunc(methods, func(m string) bool {
		return mtd.Equal(RequestMethod(m))
	})
}

// Route sends requests with a matching Request-URI to fixed targets.
type Route struct {
	// Methods limits the route to methods, empty means any.
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	// Match is a regular expression matched against the Request-URI.
	Match string `json:"match" yaml:"match"`
	// Targets are target URI templates, $1 style references expand to Match groups.
	Targets []RouteTarget `json:"targets" yaml:"targets"`
}

// RouteTarget is a target URI template with its q-value.
type RouteTarget struct {
	URI string  `json:"uri" yaml:"uri"`
	Q   float64 `json:"q,omitempty" yaml:"q,omitempty"`
}

type route struct {
	Route
	re *regexp.Regexp
}

// StaticRoute adds targets of the first matching route, guarded by the
// authentication gate. Routes can be replaced while the proxy is running.
type StaticRoute struct {
	routes *atomic.Pointer[[]route]
}

// NewStaticRoute creates a static route processor.
func NewStaticRoute(routes []Route) (*StaticRoute, error) {
	sr := &StaticRoute{routes: new(atomic.Pointer[[]route])}
	if err := sr.SetRoutes(routes); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return sr, nil
}

// SetRoutes replaces the routes.
func (sr *StaticRoute) SetRoutes(routes []Route) error {
	compiled := make([]route, 0, len(routes))
	var errs []error
	for i, r := range routes {
		re, err := regexp.Compile(r.Match)
		if err != nil {
			errs = append(errs, errorutil.Errorf("route %d: %v", i, err))
			continue
		}
		if len(r.Targets) == 0 {
			errs = append(errs, errorutil.Errorf("route %d: no targets", i))
			continue
		}
		compiled = append(compiled, route{Route: r, re: re})
	}
	if err := errorutil.JoinPrefix("invalid routes:", errs...); err != nil {
		return errtrace.Wrap(NewInvalidArgumentError(err))
	}
	sr.routes.Store(&compiled)
	return nil
}

func (*StaticRoute) Name() string { return "static_route" }

func (sr *StaticRoute) Process(ctx context.Context, rc *RequestContext) (Action, error) {
	req := rc.Request()
	uri := req.URI.String()
	for _, r := range *sr.routes.Load() {
		if !methodMatches(r.Methods, req.Method) {
			continue
		}
		m := r.re.FindStringSubmatchIndex(uri)
		if m == nil {
			continue
		}

		contacts := make([]Contact, 0, len(r.Targets))
		external := false
		for _, tgt := range r.Targets {
			u, err := ParseURI(string(r.re.ExpandString(nil, tgt.URI, uri, m)))
			if err != nil {
				rc.log.LogAttrs(ctx, slog.LevelWarn, "invalid static route target",
					slog.Any("request_context", rc),
					slog.String("target", tgt.URI),
					slog.Any("error", err),
				)
				continue
			}
			q := tgt.Q
			if q == 0 {
				q = -1
			}
			contacts = append(contacts, Contact{URI: u, Q: q})
			external = external || !ownsHost(rc.proxy.opts, u.Host)
		}
		if len(contacts) == 0 {
			return ActionSkipAllChains, errtrace.Wrap(NewRequestError(ResponseStatusServerInternalError, "Invalid Route", ErrNoRoute))
		}
		if requireAuth(rc, external) {
			return ActionSkipAllChains, errtrace.Wrap(challenge(ctx, rc, rc.proxy.opts.Authenticator, false))
		}
		rc.AddTargets(contacts...)
		return ActionContinue, nil
	}
	return ActionContinue, nil
}

// LocationServer resolves requests for the proxy domains to registered contacts.
// Requests addressed to the proxy itself, REGISTER and requests without user part,
// are handed to the local handler.
type LocationServer struct {
	Location     Location
	LocalHandler LocalHandler
}

func (LocationServer) Name() string { return "location_server" }

func (s LocationServer) Process(ctx context.Context, rc *RequestContext) (Action, error) {
	req := rc.Request()
	if req.URI.Scheme == "tel" || !ownsHost(rc.proxy.opts, req.URI.Host) {
		return ActionContinue, nil
	}

	if req.Method.Equal(RequestMethodRegister) || req.URI.User == "" {
		if s.LocalHandler == nil {
			if req.Method.Equal(RequestMethodRegister) {
				rc.Reject(ResponseStatusMethodNotAllowed, "")
				return ActionSkipAllChains, nil
			}
			return ActionContinue, nil
		}
		res, err := s.LocalHandler.HandleLocal(ctx, req)
		if err != nil {
			return ActionSkipAllChains, errtrace.Wrap(err)
		}
		rc.Respond(res)
		return ActionSkipAllChains, nil
	}

	if s.Location == nil {
		return ActionContinue, nil
	}
	contacts, err := s.Location.Lookup(ctx, req.URI.AOR())
	if err != nil {
		return ActionSkipAllChains, errtrace.Wrap(err)
	}
	if len(contacts) == 0 {
		rc.Reject(ResponseStatusTemporarilyUnavailable, "")
		return ActionSkipAllChains, nil
	}
	rc.log.LogAttrs(ctx, slog.LevelDebug, "address of record resolved",
		slog.Any("request_context", rc),
		slog.Any("aor", req.URI.AOR()),
		slog.Int("contacts", len(contacts)),
	)
	rc.AddTargets(contacts...)
	return ActionContinue, nil
}
