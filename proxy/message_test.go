package proxy

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func validRequest() *Request {
	return &Request{
		Method:      RequestMethodInvite,
		URI:         MustParseURI("sip:bob@example.com"),
		From:        MustParseURI("sip:alice@example.com"),
		FromTag:     "a1",
		CallID:      "call-1",
		CSeq:        1,
		Via:         []Via{{Transport: "UDP", Host: "10.0.0.1", Port: 5060, Branch: MagicCookie + "1"}},
		MaxForwards: 70,
	}
}

func TestRequest_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		modify func(r *Request)
		reason string
	}{
		{"valid", func(*Request) {}, ""},
		{"bad method", func(r *Request) { r.Method = "IN VITE" }, "Invalid Method"},
		{"no uri", func(r *Request) { r.URI = URI{} }, "Missing Request-URI"},
		{"no call-id", func(r *Request) { r.CallID = "" }, "Missing Call-ID"},
		{"no cseq", func(r *Request) { r.CSeq = 0 }, "Missing CSeq"},
		{"no via", func(r *Request) { r.Via = nil }, "Missing Via Branch"},
		{"negative max-forwards", func(r *Request) { r.MaxForwards = -1 }, "Invalid Max-Forwards"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			r := validRequest()
			c.modify(r)
			err := r.Validate()
			if c.reason == "" {
				if err != nil {
					t.Fatalf("r.Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrMalformedRequest) {
				t.Fatalf("r.Validate() error = %v, want %v", err, ErrMalformedRequest)
			}
			if got := ResponseForError(err); got.Status != ResponseStatusBadRequest || got.Reason != c.reason {
				t.Errorf("ResponseForError(err) = %v %q, want 400 %q", got.Status, got.Reason, c.reason)
			}
		})
	}
}

func TestRequest_TransactionKey(t *testing.T) {
	t.Parallel()

	inv := validRequest()
	cancel := inv.Clone()
	cancel.Method = RequestMethodCancel
	ack := inv.Clone()
	ack.Method = "ack"

	want := TransactionKey{Branch: MagicCookie + "1", SentBy: "10.0.0.1:5060", Method: RequestMethodInvite}
	for _, r := range []*Request{inv, cancel, ack} {
		if diff := cmp.Diff(r.TransactionKey(), want); diff != "" {
			t.Errorf("%s TransactionKey() mismatch\ndiff (-got +want):\n%v", r.Method, diff)
		}
	}

	msg := inv.Clone()
	msg.Method = RequestMethodMessage
	if msg.TransactionKey() == want {
		t.Errorf("MESSAGE TransactionKey() = INVITE key, want distinct key")
	}
}

func TestRequest_Clone(t *testing.T) {
	t.Parallel()

	r := validRequest()
	r.Route = []URI{MustParseURI("sip:p1.example.com;lr")}
	r.Credentials = &Credentials{Scheme: "Digest", Username: "alice", Params: map[string]string{"qop": "auth"}}

	r.Source = netip.MustParseAddrPort("10.0.0.1:5060")
	c := r.Clone()
	if diff := cmp.Diff(c, r, cmpopts.EquateComparable(netip.AddrPort{})); diff != "" {
		t.Fatalf("r.Clone() mismatch\ndiff (-got +want):\n%v", diff)
	}
	c.Via[0].Host = "10.0.0.2"
	c.Route[0].Params["lr"] = "x"
	c.Credentials.Params["qop"] = "auth-int"
	if r.Via[0].Host != "10.0.0.1" || r.Route[0].Params["lr"] != "" || r.Credentials.Params["qop"] != "auth" {
		t.Errorf("modifying the clone changed the original request")
	}
}

func TestResponseForError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want ResponseStatus
	}{
		{ErrUnauthenticated, ResponseStatusProxyAuthenticationRequired},
		{ErrAuthRejected, ResponseStatusForbidden},
		{ErrAORNotFound, ResponseStatusNotFound},
		{ErrNoRoute, ResponseStatusNotFound},
		{ErrLoopDetected, ResponseStatusLoopDetected},
		{ErrTooManyHops, ResponseStatusTooManyHops},
		{ErrTimeout, ResponseStatusRequestTimeout},
		{ErrTransportFailure, ResponseStatusServiceUnavailable},
		{NewInvalidArgumentError("bad"), ResponseStatusBadRequest},
		{NewRequestError(ResponseStatusDecline, "", nil), ResponseStatusDecline},
		{errors.New("boom"), ResponseStatusServerInternalError},
	}
	for _, c := range cases {
		if got := ResponseForError(c.err); got.Status != c.want {
			t.Errorf("ResponseForError(%v) = %v, want %v", c.err, got.Status, c.want)
		}
	}
}
