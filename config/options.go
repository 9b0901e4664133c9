package config

import (
	"io"
	"log/slog"
	"os"

	"braces.dev/errtrace"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghettovoice/sipproxy/dns"
	"github.com/ghettovoice/sipproxy/log"
	"github.com/ghettovoice/sipproxy/proxy"
)

// Logger builds the logger described by the log section, writing to w.
// Nil w means stderr.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if w == nil {
		w = os.Stderr
	}
	return log.New(w, c.Log.Format, lvl), nil
}

// ProxyOptions converts the configuration to proxy options.
// Metrics are registered with reg when enabled, nil reg uses the default registerer.
// Collaborators (location service, authenticator, local handler, geolocator)
// are left for the caller to set.
func (c *Config) ProxyOptions(logger *slog.Logger, reg prometheus.Registerer) (*proxy.Options, error) {
	if err := c.Validate(); err != nil {
		return nil, errtrace.Wrap(err)
	}
	domains, err := dns.NewDomainSet(c.Domains...)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	peers, err := c.trustedPeers()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	opts := &proxy.Options{
		Domains:                            domains,
		ViaHost:                            c.Via.Host,
		ViaPort:                            c.Via.Port,
		ViaTransport:                       c.Via.Transport,
		TrustedPeers:                       peers,
		DisableAuth:                        c.Auth.Disabled,
		ParallelForking:                    c.Forking.Parallel,
		ContinueProcessingAfterRoutesFound: c.Forking.ContinueAfterRoutes,
		ForkingMode:                        c.Forking.Mode,
		RecurseOnRedirect:                  c.Forking.RecurseOnRedirect,
		MaxRedirects:                       c.Forking.MaxRedirects,
		Routes:                             c.Routes,
		Filters:                            c.Filters,
		Timings: proxy.NewTimings(c.Timings.T1, c.Timings.TimerC, c.Timings.RequestTimeout).
			WithCancelGrace(c.Timings.CancelGrace),
		Shards: c.Shards,
		Logger: logger,
	}
	if c.Metrics.Enabled {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		opts.Metrics = proxy.NewMetrics(reg)
	}
	return opts, nil
}
