package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"braces.dev/errtrace"
	"gopkg.in/yaml.v3"

	"github.com/ghettovoice/sipproxy/internal/errorutil"
	"github.com/ghettovoice/sipproxy/log"
	"github.com/ghettovoice/sipproxy/proxy"
)

// EnvPrefix is the prefix of environment variables overriding file values.
const EnvPrefix = "SIPPROXY_"

// Load reads the YAML file at path, applies environment overrides and validates the result.
// Fields missing in the file keep values of [Default].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	cfg, err := Parse(data, os.LookupEnv)
	if err != nil {
		return nil, errtrace.Wrap(errorutil.Errorf("config %q: %v", path, err))
	}
	return cfg, nil
}

// Parse decodes YAML data on top of [Default], applies overrides found by lookupEnv
// and validates the result. lookupEnv may be nil.
// Unknown fields are rejected.
func Parse(data []byte, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
	}
	if lookupEnv != nil {
		if err := applyEnv(cfg, lookupEnv); err != nil {
			return nil, errtrace.Wrap(err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return cfg, nil
}

type envVar struct {
	name string
	set  func(cfg *Config, val string) error
}

var envVars = []envVar{
	{"DOMAINS", func(cfg *Config, val string) error {
		cfg.Domains = splitList(val)
		return nil
	}},
	{"VIA_HOST", func(cfg *Config, val string) error {
		cfg.Via.Host = val
		return nil
	}},
	{"VIA_PORT", func(cfg *Config, val string) error {
		port, err := strconv.ParseUint(val, 10, 16)
		cfg.Via.Port = uint16(port)
		return errtrace.Wrap(err)
	}},
	{"VIA_TRANSPORT", func(cfg *Config, val string) error {
		cfg.Via.Transport = strings.ToUpper(val)
		return nil
	}},
	{"TRUSTED_PEERS", func(cfg *Config, val string) error {
		cfg.TrustedPeers = splitList(val)
		return nil
	}},
	{"AUTH_DISABLED", func(cfg *Config, val string) (err error) {
		cfg.Auth.Disabled, err = strconv.ParseBool(val)
		return errtrace.Wrap(err)
	}},
	{"FORKING_PARALLEL", func(cfg *Config, val string) (err error) {
		cfg.Forking.Parallel, err = strconv.ParseBool(val)
		return errtrace.Wrap(err)
	}},
	{"FORKING_MODE", func(cfg *Config, val string) error {
		cfg.Forking.Mode = proxy.ForkingMode(strings.ToLower(val))
		return nil
	}},
	{"FORKING_RECURSE_ON_REDIRECT", func(cfg *Config, val string) (err error) {
		cfg.Forking.RecurseOnRedirect, err = strconv.ParseBool(val)
		return errtrace.Wrap(err)
	}},
	{"TIMINGS_T1", func(cfg *Config, val string) (err error) {
		cfg.Timings.T1, err = time.ParseDuration(val)
		return errtrace.Wrap(err)
	}},
	{"TIMINGS_TIMER_C", func(cfg *Config, val string) (err error) {
		cfg.Timings.TimerC, err = time.ParseDuration(val)
		return errtrace.Wrap(err)
	}},
	{"TIMINGS_REQUEST_TIMEOUT", func(cfg *Config, val string) (err error) {
		cfg.Timings.RequestTimeout, err = time.ParseDuration(val)
		return errtrace.Wrap(err)
	}},
	{"LOG_LEVEL", func(cfg *Config, val string) error {
		cfg.Log.Level = val
		return nil
	}},
	{"LOG_FORMAT", func(cfg *Config, val string) error {
		cfg.Log.Format = log.Format(strings.ToLower(val))
		return nil
	}},
	{"METRICS_ENABLED", func(cfg *Config, val string) (err error) {
		cfg.Metrics.Enabled, err = strconv.ParseBool(val)
		return errtrace.Wrap(err)
	}},
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	var errs []error
	for _, v := range envVars {
		val, ok := lookupEnv(EnvPrefix + v.name)
		if !ok {
			continue
		}
		if err := v.set(cfg, strings.TrimSpace(val)); err != nil {
			errs = append(errs, errorutil.Errorf("%s%s: %v", EnvPrefix, v.name, err))
		}
	}
	if err := errorutil.JoinPrefix("invalid environment:", errs...); err != nil {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
