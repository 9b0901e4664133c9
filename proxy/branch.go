package proxy

import (
	"encoding/hex"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// BranchID is a Via branch parameter. The proxy uses branch ids of dispatched
// targets as branch handles.
type BranchID string

// branchMarker separates the loop signature in branch ids generated by the proxy.
const branchMarker = ".sp."

// IsRFC3261 reports whether the branch starts with the magic cookie.
func (b BranchID) IsRFC3261() bool { return strings.HasPrefix(string(b), MagicCookie) }

// LoopSignature extracts the loop detection signature from a branch
// generated by [NewBranchID].
func (b BranchID) LoopSignature() (string, bool) {
	rest, ok := strings.CutPrefix(string(b), MagicCookie+branchMarker)
	if !ok {
		return "", false
	}
	sig, _, ok := strings.Cut(rest, ".")
	return sig, ok && sig != ""
}

// NewBranchID generates a unique branch id that embeds the loop signature.
func NewBranchID(sig string) BranchID {
	id := uuid.New()
	return BranchID(MagicCookie + branchMarker + sig + "." + hex.EncodeToString(id[:8]))
}

// LoopSignature computes the loop detection signature of a request as received
// by the proxy. Requests that spiral back with a changed Request-URI produce
// another signature.
func LoopSignature(req *Request) string {
	h := fnv.New64a()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(req.URI.String())
	write(req.FromTag)
	write(req.ToTag)
	write(req.CallID)
	write(strconv.FormatUint(uint64(req.CSeq), 10))
	write(string(req.Method.ToUpper()))
	for _, r := range req.Route {
		write(r.String())
	}
	return strconv.FormatUint(h.Sum64(), 36)
}
