package proxy

import (
	"strings"
	"testing"
)

func TestNewBranchID(t *testing.T) {
	t.Parallel()

	b1, b2 := NewBranchID("sig"), NewBranchID("sig")
	if b1 == b2 {
		t.Fatalf("NewBranchID() returned %q twice", b1)
	}
	if !b1.IsRFC3261() {
		t.Errorf("NewBranchID().IsRFC3261() = false, want true")
	}
	sig, ok := b1.LoopSignature()
	if !ok || sig != "sig" {
		t.Errorf("LoopSignature() = (%q, %v), want (%q, true)", sig, ok, "sig")
	}
	if _, ok := BranchID(MagicCookie + ".foreign").LoopSignature(); ok {
		t.Errorf("foreign branch LoopSignature() ok = true, want false")
	}
}

func TestLoopSignature(t *testing.T) {
	t.Parallel()

	req := &Request{
		Method:  RequestMethodInvite,
		URI:     MustParseURI("sip:bob@example.com"),
		FromTag: "a1",
		CallID:  "call-1",
		CSeq:    1,
	}
	sig := LoopSignature(req)
	if sig == "" || strings.Contains(sig, ".") {
		t.Fatalf("LoopSignature() = %q, want non-empty without dots", sig)
	}

	same := req.Clone()
	same.Via = []Via{{Host: "10.0.0.1", Branch: "z9hG4bK1"}}
	if got := LoopSignature(same); got != sig {
		t.Errorf("LoopSignature(same request via another hop) = %q, want %q", got, sig)
	}

	spiral := req.Clone()
	spiral.URI = MustParseURI("sip:bob@10.0.0.10")
	if got := LoopSignature(spiral); got == sig {
		t.Errorf("LoopSignature(retargeted request) = %q, want a different signature", got)
	}
}
