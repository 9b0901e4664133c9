package config_test

import (
	"bytes"
	"errors"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"github.com/ghettovoice/sipproxy/config"
	"github.com/ghettovoice/sipproxy/internal/errorutil"
	"github.com/ghettovoice/sipproxy/log"
	"github.com/ghettovoice/sipproxy/proxy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const fullConfig = `
domains: [example.com, "*.corp.example.com"]
via:
  host: proxy.example.com
  port: 5080
  transport: TCP
trusted_peers: [10.0.0.0/8, 192.0.2.1]
auth:
  disabled: true
forking:
  parallel: true
  mode: full_parallel
  recurse_on_redirect: true
  max_redirects: 3
timings:
  t1: 250ms
  timer_c: 4m
  request_timeout: 30s
routes:
  - match: '^sip:(\d+)@example\.com$'
    methods: [INVITE]
    targets:
      - uri: 'sip:$1@gw.example.net'
        q: 0.5
filters:
  - match: '^sip:spam@'
    status: 403
    reason: Spam
log:
  level: debug
  format: json
metrics:
  enabled: true
`

func mapEnv(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	got, err := config.Parse([]byte("domains: [example.com]\n"), nil)
	if err != nil {
		t.Fatalf("config.Parse() error = %v, want nil", err)
	}
	want := config.Default()
	want.Domains = []string{"example.com"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Fatalf("config.Parse() mismatch\ndiff (-got +want):\n%v", diff)
	}
}

func TestParse_Full(t *testing.T) {
	t.Parallel()

	got, err := config.Parse([]byte(fullConfig), nil)
	if err != nil {
		t.Fatalf("config.Parse() error = %v, want nil", err)
	}
	want := &config.Config{
		Domains:      []string{"example.com", "*.corp.example.com"},
		Via:          config.Via{Host: "proxy.example.com", Port: 5080, Transport: "TCP"},
		TrustedPeers: []string{"10.0.0.0/8", "192.0.2.1"},
		Auth:         config.Auth{Disabled: true},
		Forking: config.Forking{
			Parallel:          true,
			Mode:              proxy.ForkingModeFullParallel,
			RecurseOnRedirect: true,
			MaxRedirects:      3,
		},
		Timings: config.Timings{
			T1:             250 * time.Millisecond,
			TimerC:         4 * time.Minute,
			RequestTimeout: 30 * time.Second,
		},
		Routes: []proxy.Route{{
			Methods: []string{"INVITE"},
			Match:   `^sip:(\d+)@example\.com$`,
			Targets: []proxy.RouteTarget{{URI: "sip:$1@gw.example.net", Q: 0.5}},
		}},
		Filters: []proxy.FilterRule{{Match: "^sip:spam@", Status: proxy.ResponseStatusForbidden, Reason: "Spam"}},
		Log:     config.Log{Level: "debug", Format: log.FormatJSON},
		Metrics: config.Metrics{Enabled: true},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Fatalf("config.Parse() mismatch\ndiff (-got +want):\n%v", diff)
	}
}

func TestParse_Env(t *testing.T) {
	t.Parallel()

	got, err := config.Parse([]byte(fullConfig), mapEnv(map[string]string{
		"SIPPROXY_DOMAINS":                 " a.example.com, b.example.com ,",
		"SIPPROXY_VIA_PORT":                "5090",
		"SIPPROXY_VIA_TRANSPORT":           "tls",
		"SIPPROXY_AUTH_DISABLED":           "false",
		"SIPPROXY_FORKING_MODE":            "FULL_SEQUENTIAL",
		"SIPPROXY_TIMINGS_REQUEST_TIMEOUT": "1m",
		"SIPPROXY_LOG_FORMAT":              "Dev",
		"SIPPROXY_METRICS_ENABLED":         "0",
		"OTHER_VAR":                        "ignored",
	}))
	if err != nil {
		t.Fatalf("config.Parse() error = %v, want nil", err)
	}

	if diff := cmp.Diff(got.Domains, []string{"a.example.com", "b.example.com"}); diff != "" {
		t.Fatalf("cfg.Domains mismatch\ndiff (-got +want):\n%v", diff)
	}
	if diff := cmp.Diff(got.Via, config.Via{Host: "proxy.example.com", Port: 5090, Transport: "TLS"}); diff != "" {
		t.Fatalf("cfg.Via mismatch\ndiff (-got +want):\n%v", diff)
	}
	if got.Auth.Disabled {
		t.Fatalf("cfg.Auth.Disabled = true, want false")
	}
	if got.Forking.Mode != proxy.ForkingModeFullSequential {
		t.Fatalf("cfg.Forking.Mode = %q, want %q", got.Forking.Mode, proxy.ForkingModeFullSequential)
	}
	if got.Timings.RequestTimeout != time.Minute {
		t.Fatalf("cfg.Timings.RequestTimeout = %v, want %v", got.Timings.RequestTimeout, time.Minute)
	}
	if got.Log.Format != log.FormatDev {
		t.Fatalf("cfg.Log.Format = %q, want %q", got.Log.Format, log.FormatDev)
	}
	if got.Metrics.Enabled {
		t.Fatalf("cfg.Metrics.Enabled = true, want false")
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantMsg string
	}{
		{"malformed yaml", "domains: [example.com", nil, ""},
		{"unknown field", "domains: [example.com]\nlisten: 0.0.0.0\n", nil, "listen"},
		{"no domains", "via: {host: proxy.example.com}\n", nil, "domains"},
		{"bad domain", "domains: ['bad..name']\n", nil, "domains"},
		{"bad transport", "domains: [example.com]\nvia: {transport: QUIC}\n", nil, "via.transport"},
		{"bad peer", "domains: [example.com]\ntrusted_peers: [10.0.0.0/33]\n", nil, "trusted_peers"},
		{"bad forking mode", "domains: [example.com]\nforking: {mode: random}\n", nil, "forking.mode"},
		{"negative timing", "domains: [example.com]\ntimings: {t1: -1s}\n", nil, "timings.t1"},
		{"bad route", "domains: [example.com]\nroutes: [{match: '(', targets: [{uri: 'sip:a@b'}]}]\n", nil, "routes"},
		{"route without targets", "domains: [example.com]\nroutes: [{match: '.*'}]\n", nil, "routes"},
		{"bad filter status", "domains: [example.com]\nfilters: [{match: '.*', status: 180}]\n", nil, "filters"},
		{"bad log level", "domains: [example.com]\nlog: {level: loud}\n", nil, "log.level"},
		{"bad log format", "domains: [example.com]\nlog: {format: xml}\n", nil, "log.format"},
		{"bad env bool", "domains: [example.com]\n", map[string]string{"SIPPROXY_AUTH_DISABLED": "maybe"}, "SIPPROXY_AUTH_DISABLED"},
		{"bad env port", "domains: [example.com]\n", map[string]string{"SIPPROXY_VIA_PORT": "70000"}, "SIPPROXY_VIA_PORT"},
		{"bad env duration", "domains: [example.com]\n", map[string]string{"SIPPROXY_TIMINGS_T1": "soon"}, "SIPPROXY_TIMINGS_T1"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Parse([]byte(c.yaml), mapEnv(c.env))
			if !errors.Is(err, errorutil.ErrInvalidArgument) {
				t.Fatalf("config.Parse() error = %v, want %v", err, errorutil.ErrInvalidArgument)
			}
			if c.wantMsg != "" && !strings.Contains(err.Error(), c.wantMsg) {
				t.Fatalf("config.Parse() error = %q, want it to mention %q", err, c.wantMsg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sipproxy.yaml")
	if err := os.WriteFile(path, []byte(fullConfig), 0o600); err != nil {
		t.Fatalf("os.WriteFile() error = %v, want nil", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load() error = %v, want nil", err)
	}
	if cfg.Via.Host != "proxy.example.com" {
		t.Fatalf("cfg.Via.Host = %q, want %q", cfg.Via.Host, "proxy.example.com")
	}

	if _, err := config.Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("config.Load(missing) error = %v, want %v", err, fs.ErrNotExist)
	}
}

func TestConfig_ProxyOptions(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte(fullConfig), nil)
	if err != nil {
		t.Fatalf("config.Parse() error = %v, want nil", err)
	}
	opts, err := cfg.ProxyOptions(log.Noop, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("cfg.ProxyOptions() error = %v, want nil", err)
	}

	for host, want := range map[string]bool{
		"example.com":          true,
		"pbx.corp.example.com": true,
		"example.net":          false,
	} {
		if got := opts.Domains.Owns(host); got != want {
			t.Errorf("opts.Domains.Owns(%q) = %v, want %v", host, got, want)
		}
	}
	wantPeers := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("192.0.2.1/32")}
	if diff := cmp.Diff(opts.TrustedPeers, wantPeers, cmp.Comparer(func(a, b netip.Prefix) bool { return a == b })); diff != "" {
		t.Errorf("opts.TrustedPeers mismatch\ndiff (-got +want):\n%v", diff)
	}
	if got := opts.Timings.T1(); got != 250*time.Millisecond {
		t.Errorf("opts.Timings.T1() = %v, want %v", got, 250*time.Millisecond)
	}
	if got := opts.Timings.TimeC(); got != 4*time.Minute {
		t.Errorf("opts.Timings.TimeC() = %v, want %v", got, 4*time.Minute)
	}
	if got := opts.Timings.RequestTimeout(); got != 30*time.Second {
		t.Errorf("opts.Timings.RequestTimeout() = %v, want %v", got, 30*time.Second)
	}
	if !opts.ParallelForking || opts.ForkingMode != proxy.ForkingModeFullParallel || !opts.DisableAuth {
		t.Errorf("opts forking = %v/%q auth disabled %v, want true/%q/true",
			opts.ParallelForking, opts.ForkingMode, opts.DisableAuth, proxy.ForkingModeFullParallel)
	}
	if opts.Metrics == nil {
		t.Errorf("opts.Metrics = nil, want metrics")
	}
	if opts.ViaHost != "proxy.example.com" || opts.ViaPort != 5080 || opts.ViaTransport != "TCP" {
		t.Errorf("opts Via = %s:%d/%s, want proxy.example.com:5080/TCP", opts.ViaHost, opts.ViaPort, opts.ViaTransport)
	}

	// the options are usable as is
	p, err := proxy.New(nopStack{}, opts)
	if err != nil {
		t.Fatalf("proxy.New() error = %v, want nil", err)
	}
	if err := p.Shutdown(t.Context()); err != nil {
		t.Fatalf("p.Shutdown() error = %v, want nil", err)
	}
}

func TestConfig_Logger(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte(fullConfig), nil)
	if err != nil {
		t.Fatalf("config.Parse() error = %v, want nil", err)
	}
	var buf bytes.Buffer
	logger, err := cfg.Logger(&buf)
	if err != nil {
		t.Fatalf("cfg.Logger() error = %v, want nil", err)
	}
	logger.Debug("hello", "answer", 42)
	if got := buf.String(); !strings.Contains(got, `"msg":"hello"`) || !strings.Contains(got, `"answer":42`) {
		t.Fatalf("log output = %q, want JSON record with msg and answer", got)
	}
}
