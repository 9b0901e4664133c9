// Package dns decides which domains a proxy instance is responsible for.
package dns

//go:generate errtrace -w .

import (
	"net/netip"
	"slices"
	"strings"

	"braces.dev/errtrace"
	"github.com/miekg/dns"

	"github.com/ghettovoice/sipproxy/internal/errorutil"
)

// DomainSet is an immutable set of locally owned domains.
// Entries are exact names ("example.com"), wildcards covering every
// subdomain ("*.example.com") or IP literals.
// It is safe for concurrent use.
type DomainSet struct {
	exact     map[string]struct{}
	wildcards []string
	addrs     map[netip.Addr]struct{}
}

// NewDomainSet validates and canonicalizes the given names.
func NewDomainSet(names ...string) (*DomainSet, error) {
	ds := &DomainSet{
		exact: make(map[string]struct{}, len(names)),
		addrs: make(map[netip.Addr]struct{}),
	}
	for _, name := range names {
		if err := ds.add(name); err != nil {
			return nil, errtrace.Wrap(err)
		}
	}
	return ds, nil
}

// MustDomainSet is like [NewDomainSet] but panics on error.
func MustDomainSet(names ...string) *DomainSet {
	ds, err := NewDomainSet(names...)
	if err != nil {
		panic(err)
	}
	return ds
}

func (ds *DomainSet) add(name string) error {
	name = strings.TrimSpace(name)
	if addr, err := netip.ParseAddr(strings.Trim(name, "[]")); err == nil {
		ds.addrs[addr.Unmap()] = struct{}{}
		return nil
	}

	if rest, ok := strings.CutPrefix(name, "*."); ok {
		if _, ok := dns.IsDomainName(rest); !ok || rest == "" {
			return errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid wildcard domain %q", name))
		}
		ds.wildcards = append(ds.wildcards, dns.CanonicalName(rest))
		return nil
	}

	if _, ok := dns.IsDomainName(name); !ok || name == "" {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid domain %q", name))
	}
	ds.exact[dns.CanonicalName(name)] = struct{}{}
	return nil
}

// Owns reports whether the host (domain name or IP literal) is owned locally.
func (ds *DomainSet) Owns(host string) bool {
	if ds == nil || host == "" {
		return false
	}

	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		_, ok := ds.addrs[addr.Unmap()]
		return ok
	}

	if _, ok := dns.IsDomainName(host); !ok {
		return false
	}
	name := dns.CanonicalName(host)
	if _, ok := ds.exact[name]; ok {
		return true
	}
	for _, parent := range ds.wildcards {
		if name != parent && dns.IsSubDomain(parent, name) {
			return true
		}
	}
	return false
}

// Len returns the number of entries in the set.
func (ds *DomainSet) Len() int {
	if ds == nil {
		return 0
	}
	return len(ds.exact) + len(ds.wildcards) + len(ds.addrs)
}

// Names returns the entries in presentation form, sorted.
func (ds *DomainSet) Names() []string {
	if ds == nil {
		return nil
	}

	names := make([]string, 0, ds.Len())
	for name := range ds.exact {
		names = append(names, strings.TrimSuffix(name, "."))
	}
	for _, name := range ds.wildcards {
		names = append(names, "*."+strings.TrimSuffix(name, "."))
	}
	for addr := range ds.addrs {
		names = append(names, addr.String())
	}
	slices.Sort(names)
	return names
}

// IsDomainName reports whether s is a syntactically valid domain name.
func IsDomainName(s string) bool {
	_, ok := dns.IsDomainName(s)
	return ok && s != ""
}
