package proxy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func results(stss ...ResponseStatus) []branchResult {
	rs := make([]branchResult, 0, len(stss))
	for i, sts := range stss {
		rs = append(rs, branchResult{branch: BranchID(rune('a' + i)), res: NewResponse(sts, "")})
	}
	return rs
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		results  []branchResult
		forced   *Response
		timedOut bool
		want     ResponseStatus
	}{
		{"no results", nil, nil, false, ResponseStatusTemporarilyUnavailable},
		{"no results after timeout", nil, nil, true, ResponseStatusRequestTimeout},
		{"forced wins", results(ResponseStatusDecline), NewResponse(ResponseStatusRequestTerminated, ""), false, ResponseStatusRequestTerminated},
		{"single failure", results(ResponseStatusBusyHere), nil, false, ResponseStatusBusyHere},
		{"single 503", results(ResponseStatusServiceUnavailable), nil, false, ResponseStatusServiceUnavailable},
		{"lowest 6xx", results(ResponseStatusNotFound, ResponseStatusDoesNotExistAnywhere, ResponseStatusBusyEverywhere), nil, false, ResponseStatusBusyEverywhere},
		{"all busy", results(ResponseStatusBusyHere, ResponseStatusBusyHere), nil, false, ResponseStatusTemporarilyUnavailable},
		{"different 4xx", results(ResponseStatusForbidden, ResponseStatusNotFound, ResponseStatusTemporarilyUnavailable), nil, false, ResponseStatusTemporarilyUnavailable},
		{"same 4xx", results(ResponseStatusNotFound, ResponseStatusNotFound), nil, false, ResponseStatusNotFound},
		{"4xx beats 5xx", results(ResponseStatusServerInternalError, ResponseStatusNotFound), nil, false, ResponseStatusNotFound},
		{"3xx beats 4xx", results(ResponseStatusNotFound, ResponseStatusMovedTemporarily), nil, false, ResponseStatusMovedTemporarily},
		{"auth beats 3xx", results(ResponseStatusMovedTemporarily, ResponseStatusUnauthorized), nil, false, ResponseStatusUnauthorized},
		{"407 preferred", results(ResponseStatusUnauthorized, ResponseStatusProxyAuthenticationRequired), nil, false, ResponseStatusProxyAuthenticationRequired},
		{"487 ranks last", results(ResponseStatusRequestTerminated, ResponseStatusServerInternalError), nil, false, ResponseStatusServerInternalError},
		{"same 5xx", results(ResponseStatusServerInternalError, ResponseStatusServerInternalError), nil, false, ResponseStatusServerInternalError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			if got := aggregate(c.results, c.forced, c.timedOut); got.Status != c.want {
				t.Errorf("aggregate() = %v, want %v", got.Status, c.want)
			}
		})
	}
}

func TestAggregate_MergeChallenges(t *testing.T) {
	t.Parallel()

	r1 := NewResponse(ResponseStatusUnauthorized, "")
	r1.Challenges = []Challenge{{Scheme: "Digest", Realm: "a.example.com", Nonce: "1"}}
	r2 := NewResponse(ResponseStatusProxyAuthenticationRequired, "")
	r2.Challenges = []Challenge{{Proxy: true, Scheme: "Digest", Realm: "b.example.com", Nonce: "2"}}
	r3 := NewResponse(ResponseStatusNotFound, "")

	got := aggregate([]branchResult{{"a", r1}, {"b", r2}, {"c", r3}}, nil, false)
	want := &Response{
		Status: ResponseStatusProxyAuthenticationRequired,
		Reason: r2.Reason,
		Challenges: []Challenge{
			{Scheme: "Digest", Realm: "a.example.com", Nonce: "1"},
			{Proxy: true, Scheme: "Digest", Realm: "b.example.com", Nonce: "2"},
		},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("aggregate() = %+v, want %+v\ndiff (-got +want):\n%v", got, want, diff)
	}
}

func TestAggregate_MergeContacts(t *testing.T) {
	t.Parallel()

	c1 := Contact{URI: MustParseURI("sip:bob@10.0.0.1"), Q: 1}
	c2 := Contact{URI: MustParseURI("sip:bob@10.0.0.2"), Q: 0.5}
	r1 := NewResponse(ResponseStatusMovedTemporarily, "")
	r1.Contacts = []Contact{c1}
	r2 := NewResponse(ResponseStatusMultipleChoices, "")
	r2.Contacts = []Contact{c1, c2}

	got := aggregate([]branchResult{{"a", r1}, {"b", r2}}, nil, false)
	if got.Status != ResponseStatusMovedTemporarily {
		t.Errorf("aggregate().Status = %v, want %v", got.Status, ResponseStatusMovedTemporarily)
	}
	if diff := cmp.Diff(got.Contacts, []Contact{c1, c2}); diff != "" {
		t.Errorf("aggregate().Contacts = %+v, want %+v\ndiff (-got +want):\n%v", got.Contacts, []Contact{c1, c2}, diff)
	}
	if len(r1.Contacts) != 1 {
		t.Errorf("aggregate() modified branch response contacts")
	}
}
