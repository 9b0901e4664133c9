package proxy

import "context"

// Stack is the SIP transaction layer the proxy sits on.
//
// The stack owns server and client transactions, retransmissions and transports.
// It feeds the proxy through [Proxy.HandleRequest], [Proxy.HandleCancel], [Proxy.HandleAck],
// [Proxy.OnBranchResponse] and [Proxy.OnBranchError].
type Stack interface {
	// SubmitRequest sends the request to a downstream target on a new client transaction
	// identified by the branch. The request already carries the proxy Via entry.
	SubmitRequest(ctx context.Context, branch BranchID, req *Request) error
	// CancelBranch sends CANCEL for a pending INVITE branch.
	CancelBranch(ctx context.Context, branch BranchID) error
	// AckBranch tells the stack that the proxy accepted the final response of the branch.
	// For non-2xx responses of INVITE branches the stack generates hop-by-hop ACK.
	//
	// A 2xx received after the final response was sent upstream is also reported
	// with success set, but it is never forwarded, so no upstream ACK or BYE follows.
	// The stack must ACK it and then end that dialog with BYE itself.
	AckBranch(ctx context.Context, branch BranchID, success bool) error
	// Respond sends a response upstream on the server transaction of the request.
	Respond(ctx context.Context, req *Request, res *Response) error
}

// Location resolves addresses-of-record to registered contacts.
type Location interface {
	// Lookup returns contacts bound to the address-of-record.
	// It returns [ErrAORNotFound] when the address is unknown.
	Lookup(ctx context.Context, aor URI) ([]Contact, error)
}

// Authenticator challenges and validates request credentials.
type Authenticator interface {
	// Challenge builds a challenge for a request without acceptable credentials.
	Challenge(ctx context.Context, req *Request) (Challenge, error)
	// Validate checks credentials and returns the authenticated identity.
	// It returns [ErrAuthRejected] when credentials are invalid,
	// wrap it with stale challenge information to request a new challenge.
	Validate(ctx context.Context, req *Request, cred *Credentials) (string, error)
}

// LocalHandler answers requests addressed to the proxy itself, for example REGISTER.
type LocalHandler interface {
	HandleLocal(ctx context.Context, req *Request) (*Response, error)
}

// Coordinates is a geographic position in decimal degrees.
type Coordinates struct {
	Lat, Lon float64
}

// Geolocator resolves hosts to geographic positions.
type Geolocator interface {
	Locate(ctx context.Context, host string) (Coordinates, bool)
}
