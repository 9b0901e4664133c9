package dns_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ghettovoice/sipproxy/dns"
	"github.com/ghettovoice/sipproxy/internal/errorutil"
)

func TestDomainSet_Owns(t *testing.T) {
	t.Parallel()

	ds := dns.MustDomainSet("example.com", "*.corp.example.org", "10.0.0.1", "[2001:db8::1]")

	cases := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"EXAMPLE.com.", true},
		{"sub.example.com", false},
		{"corp.example.org", false},
		{"pbx.corp.example.org", true},
		{"a.b.corp.example.org", true},
		{"10.0.0.1", true},
		{"10.0.0.2", false},
		{"2001:db8::1", true},
		{"[2001:db8::1]", true},
		{"example.net", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ds.Owns(c.host); got != c.want {
			t.Errorf("ds.Owns(%q) = %v, want %v", c.host, got, c.want)
		}
	}
}

func TestDomainSet_Names(t *testing.T) {
	t.Parallel()

	ds := dns.MustDomainSet("B.example.com", "a.example.com", "*.example.net", "192.0.2.1")
	want := []string{"*.example.net", "192.0.2.1", "a.example.com", "b.example.com"}
	if diff := cmp.Diff(ds.Names(), want); diff != "" {
		t.Fatalf("ds.Names() mismatch\ndiff (-got +want):\n%v", diff)
	}
	if got := ds.Len(); got != 4 {
		t.Fatalf("ds.Len() = %d, want 4", got)
	}
}

func TestNewDomainSet_Invalid(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "*.", "bad..name"} {
		_, err := dns.NewDomainSet(name)
		if diff := cmp.Diff(err, errorutil.ErrInvalidArgument, cmpopts.EquateErrors()); diff != "" {
			t.Errorf("dns.NewDomainSet(%q) error = %v, want %v", name, err, errorutil.ErrInvalidArgument)
		}
	}
}

func TestDomainSet_Nil(t *testing.T) {
	t.Parallel()

	var ds *dns.DomainSet
	if ds.Owns("example.com") {
		t.Error("nil.Owns() = true, want false")
	}
	if ds.Len() != 0 || ds.Names() != nil {
		t.Error("nil set is not empty")
	}
}
