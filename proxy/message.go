package proxy

import (
	"log/slog"
	"maps"
	"net/netip"
	"slices"
	"strconv"

	"braces.dev/errtrace"
)

// MagicCookie is the prefix of RFC 3261 compliant Via branch parameters.
const MagicCookie = "z9hG4bK"

// Via is a Via header entry.
type Via struct {
	Transport string
	Host      string
	Port      uint16
	Branch    BranchID
}

// SentBy returns the sent-by part of the Via.
func (v Via) SentBy() string {
	if v.Port == 0 {
		return v.Host
	}
	return v.Host + ":" + strconv.FormatUint(uint64(v.Port), 10)
}

func (v Via) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("sent_by", v.SentBy()),
		slog.String("branch", string(v.Branch)),
	)
}

// Credentials are the Proxy-Authorization credentials of a request.
type Credentials struct {
	Scheme   string
	Username string
	Realm    string
	Nonce    string
	URI      string
	Response string
	Params   map[string]string
}

// Clone returns a deep copy of the credentials.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}
	c2 := *c
	c2.Params = maps.Clone(c.Params)
	return &c2
}

// Challenge is a WWW-Authenticate or Proxy-Authenticate challenge.
type Challenge struct {
	// Proxy reports whether it is a Proxy-Authenticate challenge.
	Proxy     bool
	Scheme    string
	Realm     string
	Nonce     string
	Opaque    string
	Algorithm string
	Stale     bool
}

// Contact is a registered or redirect contact with its preference.
type Contact struct {
	URI URI
	// Q is the q-value in range [0, 1]. Negative value means the q-value is absent.
	Q float64
}

// Priority returns the q-value scaled to thousandths, absent q-value ranks as 1.
func (c Contact) Priority() uint16 {
	switch {
	case c.Q < 0 || c.Q > 1:
		return 1000
	default:
		return uint16(c.Q*1000 + 0.5)
	}
}

// Request is the routing relevant part of a SIP request.
type Request struct {
	Method      RequestMethod
	URI         URI
	From        URI
	FromTag     string
	To          URI
	ToTag       string
	CallID      string
	CSeq        uint32
	Via         []Via
	Route       []URI
	MaxForwards int
	Credentials *Credentials
	// PeerIdentities are identities of the validated TLS peer certificate.
	PeerIdentities []string
	// Source is the address the request was received from.
	Source netip.AddrPort
}

// DefaultMaxForwards is the Max-Forwards value assumed when the header is absent.
const DefaultMaxForwards = 70

// Validate checks that the request carries everything the proxy relies on.
func (r *Request) Validate() error {
	switch {
	case r == nil:
		return errtrace.Wrap(NewInvalidArgumentError("nil request"))
	case !r.Method.IsValid():
		return errtrace.Wrap(NewRequestError(ResponseStatusBadRequest, "Invalid Method", ErrMalformedRequest))
	case r.URI.IsZero():
		return errtrace.Wrap(NewRequestError(ResponseStatusBadRequest, "Missing Request-URI", ErrMalformedRequest))
	case r.CallID == "":
		return errtrace.Wrap(NewRequestError(ResponseStatusBadRequest, "Missing Call-ID", ErrMalformedRequest))
	case r.CSeq == 0:
		return errtrace.Wrap(NewRequestError(ResponseStatusBadRequest, "Missing CSeq", ErrMalformedRequest))
	case len(r.Via) == 0 || r.Via[0].Branch == "":
		return errtrace.Wrap(NewRequestError(ResponseStatusBadRequest, "Missing Via Branch", ErrMalformedRequest))
	case r.MaxForwards < 0:
		return errtrace.Wrap(NewRequestError(ResponseStatusBadRequest, "Invalid Max-Forwards", ErrMalformedRequest))
	}
	return nil
}

// TopVia returns the topmost Via entry.
func (r *Request) TopVia() (Via, bool) {
	if len(r.Via) == 0 {
		return Via{}, false
	}
	return r.Via[0], true
}

// TransactionKey returns the key of the server transaction the request belongs to.
// CANCEL and ACK requests map onto the INVITE transaction they refer to.
func (r *Request) TransactionKey() TransactionKey {
	via, _ := r.TopVia()
	mtd := r.Method.ToUpper()
	if mtd == RequestMethodCancel || mtd == RequestMethodAck {
		mtd = RequestMethodInvite
	}
	return TransactionKey{Branch: via.Branch, SentBy: via.SentBy(), Method: mtd}
}

func (r *Request) mergeKey() mergeKey {
	return mergeKey{callID: r.CallID, fromTag: r.FromTag, cseq: r.CSeq, method: r.Method.ToUpper()}
}

// IsInvite reports whether it is an INVITE request.
func (r *Request) IsInvite() bool { return r.Method.Equal(RequestMethodInvite) }

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	r2 := *r
	r2.URI = r.URI.Clone()
	r2.Via = slices.Clone(r.Via)
	r2.Route = slices.Clone(r.Route)
	for i := range r2.Route {
		r2.Route[i] = r2.Route[i].Clone()
	}
	r2.Credentials = r.Credentials.Clone()
	r2.PeerIdentities = slices.Clone(r.PeerIdentities)
	return &r2
}

func (r *Request) LogValue() slog.Value {
	if r == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("method", string(r.Method)),
		slog.Any("uri", r.URI),
		slog.String("call_id", r.CallID),
		slog.Uint64("cseq", uint64(r.CSeq)),
	)
}

// Response is the routing relevant part of a SIP response.
type Response struct {
	Status     ResponseStatus
	Reason     string
	ToTag      string
	Contacts   []Contact
	Challenges []Challenge
}

// NewResponse creates a response with the given status.
// Empty reason is replaced with the default reason phrase.
func NewResponse(sts ResponseStatus, reason string) *Response {
	if reason == "" {
		reason = string(sts.Reason())
	}
	return &Response{Status: sts, Reason: reason}
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	r2 := *r
	r2.Contacts = slices.Clone(r.Contacts)
	for i := range r2.Contacts {
		r2.Contacts[i].URI = r2.Contacts[i].URI.Clone()
	}
	r2.Challenges = slices.Clone(r.Challenges)
	return &r2
}

func (r *Response) LogValue() slog.Value {
	if r == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.Uint64("status", uint64(r.Status)),
		slog.String("reason", r.Reason),
	)
}

// TransactionKey identifies a server transaction.
type TransactionKey struct {
	Branch BranchID
	SentBy string
	Method RequestMethod
}

func (k TransactionKey) String() string {
	return string(k.Branch) + "|" + k.SentBy + "|" + string(k.Method)
}

func (k TransactionKey) LogValue() slog.Value { return slog.StringValue(k.String()) }

// mergeKey detects merged requests that arrived over different paths.
type mergeKey struct {
	callID  string
	fromTag string
	cseq    uint32
	method  RequestMethod
}
