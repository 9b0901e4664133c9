package proxy

import (
	"log/slog"
	"net/netip"

	"github.com/ghettovoice/sipproxy/dns"
	"github.com/ghettovoice/sipproxy/log"
)

// DefaultViaHost is the Via sent-by host used when [Options.ViaHost] is empty.
const DefaultViaHost = "proxy.invalid"

// Options are the proxy options.
// Nil options are valid and yield a proxy that owns no domains and forks
// sequentially with the default chains.
type Options struct {
	// Domains are the domains the proxy is responsible for.
	Domains *dns.DomainSet
	// ViaHost, ViaPort and ViaTransport form the Via entry the proxy inserts.
	// ViaHost also identifies the proxy own Via entries during loop detection.
	ViaHost      string
	ViaPort      uint16
	ViaTransport string
	// TrustedPeers are networks whose requests bypass authentication.
	TrustedPeers []netip.Prefix
	// DisableAuth turns authentication off for all requests.
	DisableAuth bool
	// ParallelForking dispatches all targets at once regardless of their q-values.
	ParallelForking bool
	// ContinueProcessingAfterRoutesFound keeps running the request chain
	// after a processor has added targets.
	ContinueProcessingAfterRoutesFound bool
	// ForkingMode is the target scheduling policy of the default target chain.
	ForkingMode ForkingMode
	// RecurseOnRedirect turns 3xx contacts into new targets.
	RecurseOnRedirect bool
	// MaxRedirects limits the number of recursion rounds, zero means [DefaultMaxRedirects].
	MaxRedirects int
	// Routes are static routes of the default request chain.
	Routes []Route
	// Filters are request filters of the default request chain.
	Filters []FilterRule

	// RequestChain, TargetChain and ResponseChain replace the default chains when non-nil.
	RequestChain  Chain
	TargetChain   Chain
	ResponseChain Chain

	Timings Timings

	Location      Location
	Authenticator Authenticator
	LocalHandler  LocalHandler
	Geolocator    Geolocator

	// Shards is the number of shards of the transaction and branch tables.
	Shards uint
	// Metrics collects Prometheus metrics, nil disables them.
	Metrics *Metrics
	Logger  *slog.Logger
}

// DefaultMaxRedirects is the default limit of recursive redirect rounds.
const DefaultMaxRedirects = 5

func (o *Options) log() *slog.Logger {
	if o == nil || o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

func (o *Options) timings() Timings {
	if o == nil {
		return Timings{}
	}
	return o.Timings
}

func (o *Options) domains() *dns.DomainSet {
	if o == nil {
		return nil
	}
	return o.Domains
}

func (o *Options) via(branch BranchID) Via {
	v := Via{Transport: "UDP", Host: DefaultViaHost, Branch: branch}
	if o == nil {
		return v
	}
	if o.ViaHost != "" {
		v.Host = o.ViaHost
	}
	if o.ViaTransport != "" {
		v.Transport = o.ViaTransport
	}
	v.Port = o.ViaPort
	return v
}

func (o *Options) parallel() bool { return o != nil && o.ParallelForking }

func (o *Options) continueAfterRoutes() bool {
	return o != nil && o.ContinueProcessingAfterRoutesFound
}

func (o *Options) maxRedirects() int {
	if o == nil || o.MaxRedirects <= 0 {
		return DefaultMaxRedirects
	}
	return o.MaxRedirects
}

func (o *Options) shards() uint {
	if o == nil {
		return 0
	}
	return o.Shards
}

func (o *Options) metrics() *Metrics {
	if o == nil {
		return nil
	}
	return o.Metrics
}
