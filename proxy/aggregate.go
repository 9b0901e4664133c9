package proxy

import "slices"

// branchResult is a failure final response recorded for aggregation.
type branchResult struct {
	branch BranchID
	res    *Response
}

// classRank orders failure responses by preference when choosing the best one.
// Lower rank wins.
func classRank(sts ResponseStatus) int {
	switch {
	case sts.IsAuthChallenge():
		return 0
	case sts.IsRedirection():
		return 1
	case sts == ResponseStatusRequestTerminated:
		return 5
	case sts.IsRequestFailure():
		return 2
	case sts.IsServerFailure():
		return 3
	default:
		return 4
	}
}

// aggregate picks the final response sent upstream when no branch succeeded.
//
// Rules applied in order:
//   - forced response (client CANCEL, shutdown) wins;
//   - no results yields 408 after a timeout and 480 otherwise;
//   - a single result is returned as is;
//   - the lowest 6xx wins;
//   - only busy responses from several branches collapse into 480;
//   - otherwise the best class wins: 401/407, 3xx, 4xx, 5xx.
//
// Within the winning class challenges of all auth responses are merged,
// contacts of all redirects are merged and differing 4xx or 5xx codes collapse into 480.
func aggregate(results []branchResult, forced *Response, timedOut bool) *Response {
	if forced != nil {
		return forced.Clone()
	}
	switch len(results) {
	case 0:
		if timedOut {
			return NewResponse(ResponseStatusRequestTimeout, "")
		}
		return NewResponse(ResponseStatusTemporarilyUnavailable, "")
	case 1:
		return results[0].res.Clone()
	}

	var global *Response
	allBusy := true
	for _, r := range results {
		if r.res.Status.IsGlobalFailure() && (global == nil || r.res.Status < global.Status) {
			global = r.res
		}
		allBusy = allBusy && r.res.Status.IsBusy()
	}
	if global != nil {
		return global.Clone()
	}
	if allBusy {
		return NewResponse(ResponseStatusTemporarilyUnavailable, "")
	}

	best := slices.MinFunc(results, func(a, b branchResult) int {
		return classRank(a.res.Status) - classRank(b.res.Status)
	})
	rank := classRank(best.res.Status)
	group := slices.DeleteFunc(slices.Clone(results), func(r branchResult) bool {
		return classRank(r.res.Status) != rank
	})

	switch rank {
	case 0:
		return mergeChallenges(group)
	case 1:
		return mergeContacts(group)
	}
	for _, r := range group[1:] {
		if r.res.Status != group[0].res.Status {
			return NewResponse(ResponseStatusTemporarilyUnavailable, "")
		}
	}
	return group[0].res.Clone()
}

// mergeChallenges returns the first 407 or the first 401 when there is no 407,
// carrying challenges of every auth response.
func mergeChallenges(group []branchResult) *Response {
	base := group[0].res
	for _, r := range group {
		if r.res.Status == ResponseStatusProxyAuthenticationRequired {
			base = r.res
			break
		}
	}
	res := base.Clone()
	res.Challenges = nil
	for _, r := range group {
		for _, c := range r.res.Challenges {
			if !slices.Contains(res.Challenges, c) {
				res.Challenges = append(res.Challenges, c)
			}
		}
	}
	return res
}

// mergeContacts returns the first redirect carrying contacts of every redirect.
func mergeContacts(group []branchResult) *Response {
	res := group[0].res.Clone()
	res.Contacts = nil
	for _, r := range group {
		for _, c := range r.res.Contacts {
			if !slices.ContainsFunc(res.Contacts, func(e Contact) bool { return e.URI.Equal(c.URI) }) {
				res.Contacts = append(res.Contacts, c)
			}
		}
	}
	return res
}
