// Package proxy implements the forking core of a stateful SIP proxy.
//
// A [Proxy] receives requests from an external SIP stack, runs them through
// the request processor chain, forks them to zero or more downstream targets
// and returns exactly one final response upstream for every server transaction.
//
// Every original transaction is owned by a [RequestContext]. All events of a
// transaction (branch responses, CANCEL, timers) are delivered to the context's
// mailbox and processed one at a time by its own goroutine, so the
// [ResponseContext] forking state never needs locking. The outcome of competing
// branch responses therefore depends only on the order in which events arrive.
//
// Three processor chains shape the behaviour:
//   - the request chain (trust, authentication, routing, location lookup) fills the target set;
//   - the target chain orders and schedules each batch of targets right before dispatch;
//   - the response chain inspects every branch response before aggregation.
//
// The wire format, transports, retransmissions, DNS resolution, contact storage
// and credential checks are provided by the collaborators [Stack], [Location]
// and [Authenticator].
package proxy

//go:generate errtrace -w .
//go:generate mockgen -destination ../internal/testutil/proxymock/mocks.go -package proxymock . Stack,Location,Authenticator,LocalHandler,Geolocator
