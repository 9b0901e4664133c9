package proxy

import (
	"log/slog"
	"maps"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"braces.dev/errtrace"
)

// URI is a SIP, SIPS or TEL URI reduced to the parts the proxy routes on.
// Header components are not kept.
type URI struct {
	Scheme string
	User   string
	Host   string
	Port   uint16
	Params map[string]string
}

// ParseURI parses a URI in the form scheme:[user@]host[:port][;params][?headers].
// Surrounding angle brackets are accepted.
func ParseURI(s string) (URI, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "<"), ">")

	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || scheme == "" {
		return URI{}, errtrace.Wrap(NewInvalidArgumentError("missing URI scheme in %q", s))
	}
	u := URI{Scheme: strings.ToLower(scheme)}
	switch u.Scheme {
	case "sip", "sips", "tel":
	default:
		return URI{}, errtrace.Wrap(NewInvalidArgumentError("unsupported URI scheme %q", scheme))
	}

	rest, _, _ = strings.Cut(rest, "?")
	rest, params, _ := strings.Cut(rest, ";")
	if u.Scheme == "tel" {
		if rest == "" {
			return URI{}, errtrace.Wrap(NewInvalidArgumentError("empty telephone number in %q", s))
		}
		u.User = rest
	} else {
		if i := strings.LastIndexByte(rest, '@'); i >= 0 {
			u.User, rest = rest[:i], rest[i+1:]
		}
		host, port, err := splitHostPort(rest)
		if err != nil {
			return URI{}, errtrace.Wrap(NewInvalidArgumentError("invalid host in %q: %v", s, err))
		}
		u.Host, u.Port = host, port
	}

	if params != "" {
		u.Params = make(map[string]string)
		for p := range strings.SplitSeq(params, ";") {
			if p == "" {
				continue
			}
			k, v, _ := strings.Cut(p, "=")
			u.Params[strings.ToLower(k)] = v
		}
	}
	return u, nil
}

// MustParseURI is like [ParseURI] but panics on error.
func MustParseURI(s string) URI {
	u, err := ParseURI(s)
	if err != nil {
		panic(err)
	}
	return u
}

func splitHostPort(s string) (string, uint16, error) {
	var host, port string
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "", 0, errtrace.Wrap(NewInvalidArgumentError("unclosed IPv6 reference"))
		}
		host = s[:end+1]
		if _, err := netip.ParseAddr(host[1:end]); err != nil {
			return "", 0, errtrace.Wrap(err)
		}
		if tail := s[end+1:]; tail != "" {
			if tail[0] != ':' {
				return "", 0, errtrace.Wrap(NewInvalidArgumentError("unexpected %q after IPv6 reference", tail))
			}
			port = tail[1:]
		}
	} else {
		host, port, _ = strings.Cut(s, ":")
	}
	if host == "" {
		return "", 0, errtrace.Wrap(NewInvalidArgumentError("empty host"))
	}
	if port == "" {
		return strings.ToLower(host), 0, nil
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", 0, errtrace.Wrap(err)
	}
	return strings.ToLower(host), uint16(p), nil
}

// IsZero reports whether the URI is empty.
func (u URI) IsZero() bool { return u.Scheme == "" }

// Domain returns the host part without IPv6 brackets.
func (u URI) Domain() string {
	return strings.TrimSuffix(strings.TrimPrefix(u.Host, "["), "]")
}

// Param returns a URI parameter value and whether the parameter is present.
func (u URI) Param(name string) (string, bool) {
	v, ok := u.Params[strings.ToLower(name)]
	return v, ok
}

// IsLooseRouter reports whether the URI carries the lr parameter.
func (u URI) IsLooseRouter() bool {
	_, ok := u.Param("lr")
	return ok
}

// AOR returns the address-of-record form of the URI: scheme, user and host.
func (u URI) AOR() URI {
	aor := URI{Scheme: u.Scheme, User: u.User, Host: u.Host}
	if aor.Scheme == "sips" {
		aor.Scheme = "sip"
	}
	return aor
}

// Equal reports whether both URIs address the same resource.
// Host and scheme are compared case-insensitively, parameters by value.
func (u URI) Equal(other URI) bool {
	return u.String() == other.String()
}

// Clone returns a deep copy of the URI.
func (u URI) Clone() URI {
	u.Params = maps.Clone(u.Params)
	return u
}

func (u URI) String() string {
	if u.IsZero() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(u.Scheme)
	sb.WriteByte(':')
	if u.User != "" {
		sb.WriteString(u.User)
		if u.Scheme != "tel" {
			sb.WriteByte('@')
		}
	}
	sb.WriteString(u.Host)
	if u.Port > 0 {
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(u.Port), 10))
	}
	for _, k := range slices.Sorted(maps.Keys(u.Params)) {
		sb.WriteByte(';')
		sb.WriteString(k)
		if v := u.Params[k]; v != "" {
			sb.WriteByte('=')
			sb.WriteString(v)
		}
	}
	return sb.String()
}

func (u URI) LogValue() slog.Value { return slog.StringValue(u.String()) }
