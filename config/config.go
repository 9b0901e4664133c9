// Package config loads the proxy configuration from YAML files
// and environment variables.
package config

//go:generate errtrace -w .

import (
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipproxy/dns"
	"github.com/ghettovoice/sipproxy/internal/errorutil"
	"github.com/ghettovoice/sipproxy/log"
	"github.com/ghettovoice/sipproxy/proxy"
)

// Config is the proxy configuration.
type Config struct {
	// Domains are the domains the proxy is responsible for.
	// Wildcards ("*.example.com") and IP literals are accepted.
	Domains []string `yaml:"domains"`
	Via     Via      `yaml:"via"`
	// TrustedPeers are CIDR prefixes or addresses whose requests skip authentication.
	TrustedPeers []string           `yaml:"trusted_peers"`
	Auth         Auth               `yaml:"auth"`
	Forking      Forking            `yaml:"forking"`
	Timings      Timings            `yaml:"timings"`
	Routes       []proxy.Route      `yaml:"routes"`
	Filters      []proxy.FilterRule `yaml:"filters"`
	// Shards is the number of request context table shards, zero picks a default.
	Shards  uint    `yaml:"shards"`
	Log     Log     `yaml:"log"`
	Metrics Metrics `yaml:"metrics"`
}

type Via struct {
	Host      string `yaml:"host"`
	Port      uint16 `yaml:"port"`
	Transport string `yaml:"transport"`
}

type Auth struct {
	Disabled bool `yaml:"disabled"`
}

type Forking struct {
	Parallel            bool              `yaml:"parallel"`
	Mode                proxy.ForkingMode `yaml:"mode"`
	ContinueAfterRoutes bool              `yaml:"continue_after_routes"`
	RecurseOnRedirect   bool              `yaml:"recurse_on_redirect"`
	MaxRedirects        int               `yaml:"max_redirects"`
}

type Timings struct {
	T1             time.Duration `yaml:"t1"`
	TimerC         time.Duration `yaml:"timer_c"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CancelGrace    time.Duration `yaml:"cancel_grace"`
}

type Log struct {
	Level  string     `yaml:"level"`
	Format log.Format `yaml:"format"`
}

type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used for fields missing in the file.
func Default() *Config {
	return &Config{
		Via: Via{
			Host:      proxy.DefaultViaHost,
			Port:      5060,
			Transport: "UDP",
		},
		Forking: Forking{
			Mode:         proxy.ForkingModeEqualQParallel,
			MaxRedirects: proxy.DefaultMaxRedirects,
		},
		Timings: Timings{
			T1:     proxy.T1,
			TimerC: proxy.TimeC,
		},
		Log: Log{
			Level:  "info",
			Format: log.FormatConsole,
		},
	}
}

// Validate reports every invalid field of the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("nil config"))
	}

	var errs []error
	if len(c.Domains) == 0 {
		errs = append(errs, errorutil.Errorf("domains: at least one domain is required"))
	}
	if _, err := dns.NewDomainSet(c.Domains...); err != nil {
		errs = append(errs, errorutil.Errorf("domains: %v", err))
	}
	if _, err := netip.ParseAddr(c.Via.Host); err != nil && !dns.IsDomainName(c.Via.Host) {
		errs = append(errs, errorutil.Errorf("via.host: invalid host %q", c.Via.Host))
	}
	switch strings.ToUpper(c.Via.Transport) {
	case "UDP", "TCP", "TLS", "SCTP", "WS", "WSS":
	default:
		errs = append(errs, errorutil.Errorf("via.transport: unsupported transport %q", c.Via.Transport))
	}
	if _, err := c.trustedPeers(); err != nil {
		errs = append(errs, errorutil.Errorf("trusted_peers: %v", err))
	}
	if !c.Forking.Mode.IsValid() {
		errs = append(errs, errorutil.Errorf("forking.mode: unknown mode %q", c.Forking.Mode))
	}
	if c.Forking.MaxRedirects < 0 {
		errs = append(errs, errorutil.Errorf("forking.max_redirects: must not be negative"))
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"timings.t1", c.Timings.T1},
		{"timings.timer_c", c.Timings.TimerC},
		{"timings.request_timeout", c.Timings.RequestTimeout},
		{"timings.cancel_grace", c.Timings.CancelGrace},
	} {
		if d.val < 0 {
			errs = append(errs, errorutil.Errorf("%s: must not be negative", d.name))
		}
	}
	if _, err := proxy.NewStaticRoute(c.Routes); err != nil {
		errs = append(errs, errorutil.Errorf("routes: %v", err))
	}
	if _, err := proxy.NewRequestFilter(c.Filters); err != nil {
		errs = append(errs, errorutil.Errorf("filters: %v", err))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, errorutil.Errorf("log.level: %v", err))
	}
	switch c.Log.Format {
	case log.FormatConsole, log.FormatDev, log.FormatJSON:
	default:
		errs = append(errs, errorutil.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if err := errorutil.JoinPrefix("invalid config:", errs...); err != nil {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
	}
	return nil
}

func (c *Config) trustedPeers() ([]netip.Prefix, error) {
	pfxs := make([]netip.Prefix, 0, len(c.TrustedPeers))
	for _, s := range c.TrustedPeers {
		s = strings.TrimSpace(s)
		if pfx, err := netip.ParsePrefix(s); err == nil {
			pfxs = append(pfxs, pfx.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, errtrace.Wrap(errorutil.Errorf("invalid peer %q", s))
		}
		addr = addr.Unmap()
		pfxs = append(pfxs, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return pfxs, nil
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("domains", c.Domains),
		slog.String("via_host", c.Via.Host),
		slog.Bool("parallel_forking", c.Forking.Parallel),
		slog.String("forking_mode", string(c.Forking.Mode)),
		slog.Int("routes", len(c.Routes)),
		slog.Int("filters", len(c.Filters)),
	)
}
