package proxy

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"github.com/ghettovoice/sipproxy/internal/timeutil"
)

// TargetState is the state of a target in the forking lifecycle.
type TargetState string

const (
	// TargetStateQueued is the state of a target waiting for dispatch.
	TargetStateQueued TargetState = "queued"
	// TargetStateTrying is the state of a dispatched target without responses.
	TargetStateTrying TargetState = "trying"
	// TargetStateProceeding is the state of a target that received a provisional response.
	TargetStateProceeding TargetState = "proceeding"
	// TargetStateCompleted is the state of a target that received a final response.
	TargetStateCompleted TargetState = "completed"
	// TargetStateTerminated is the state of a target dropped, canceled or timed out
	// without a final response taken into account.
	TargetStateTerminated TargetState = "terminated"
)

const (
	tgtEvtDispatch    = "dispatch"
	tgtEvtProvisional = "provisional"
	tgtEvtFinal       = "final"
	tgtEvtTerminate   = "terminate"
)

// Tier is the scheduling precedence of a target.
// Targets of a higher boost go first, within the same boost targets of a higher q-value go first.
type Tier struct {
	Boost uint32
	Q     uint16
}

// Compare returns a negative number when t is dispatched before o,
// a positive number when t is dispatched after o and zero for the same tier.
func (t Tier) Compare(o Tier) int {
	if c := cmp.Compare(o.Boost, t.Boost); c != 0 {
		return c
	}
	return cmp.Compare(o.Q, t.Q)
}

func (t Tier) LogValue() slog.Value {
	return slog.GroupValue(slog.Uint64("boost", uint64(t.Boost)), slog.Uint64("q", uint64(t.Q)))
}

// Target is a candidate destination of the request.
// It becomes a branch when dispatched.
//
// Target is owned by the [RequestContext] goroutine once added.
type Target struct {
	uri     URI
	q       uint16
	tier    Tier
	branch  BranchID
	seq     int
	fsm     *stateless.StateMachine
	status  ResponseStatus
	cancel  bool
	sentAt  time.Time
	tmr     *timeutil.Timer
	tmrGen  uint64
	timeout time.Duration
}

// NewTarget creates a queued target with the highest q-value.
func NewTarget(uri URI) *Target {
	return newTarget(uri, 1000)
}

// NewTargetFromContact creates a queued target from a contact keeping its q-value.
func NewTargetFromContact(c Contact) *Target {
	return newTarget(c.URI, c.Priority())
}

func newTarget(uri URI, q uint16) *Target {
	t := &Target{uri: uri, q: q, tier: Tier{Q: q}}
	t.initFSM()
	return t
}

func (t *Target) initFSM() {
	t.fsm = stateless.NewStateMachine(TargetStateQueued)

	t.fsm.Configure(TargetStateQueued).
		Permit(tgtEvtDispatch, TargetStateTrying).
		Permit(tgtEvtTerminate, TargetStateTerminated)

	t.fsm.Configure(TargetStateTrying).
		OnEntry(t.actTrying).
		Permit(tgtEvtProvisional, TargetStateProceeding).
		Permit(tgtEvtFinal, TargetStateCompleted).
		Permit(tgtEvtTerminate, TargetStateTerminated)

	t.fsm.Configure(TargetStateProceeding).
		Ignore(tgtEvtProvisional).
		Permit(tgtEvtFinal, TargetStateCompleted).
		Permit(tgtEvtTerminate, TargetStateTerminated)

	t.fsm.Configure(TargetStateCompleted).
		OnEntry(t.actDone)

	t.fsm.Configure(TargetStateTerminated).
		OnEntry(t.actDone)
}

func (t *Target) actTrying(context.Context, ...any) error {
	t.sentAt = time.Now()
	return nil
}

func (t *Target) actDone(context.Context, ...any) error {
	t.stopTimer()
	return nil
}

func (t *Target) fire(ctx context.Context, evt string) error {
	if err := t.fsm.FireCtx(ctx, evt); err != nil {
		return errtrace.Wrap(fmt.Errorf("fire %q in state %q: %w", evt, t.State(), err))
	}
	return nil
}

func (t *Target) startTimer(d time.Duration, f func()) {
	t.stopTimer()
	t.timeout = d
	t.tmr = timeutil.AfterFunc(d, f)
}

func (t *Target) resetTimer() {
	if t.tmr != nil && t.tmr.State() == timeutil.TimerStateRunning {
		t.tmr.Reset(t.timeout)
	}
}

func (t *Target) stopTimer() {
	if t.tmr != nil {
		t.tmr.Stop()
	}
}

// URI returns the target URI.
func (t *Target) URI() URI { return t.uri }

// Q returns the target q-value in thousandths.
func (t *Target) Q() uint16 { return t.q }

// Tier returns the scheduling tier.
func (t *Target) Tier() Tier { return t.tier }

// Branch returns the branch id assigned when the target joined a response context.
func (t *Target) Branch() BranchID { return t.branch }

// State returns the current target state.
func (t *Target) State() TargetState { return t.fsm.MustState().(TargetState) }

// Status returns the last response status received on the branch.
func (t *Target) Status() ResponseStatus { return t.status }

// Canceled reports whether the proxy sent CANCEL for the branch.
func (t *Target) Canceled() bool { return t.cancel }

// IsQueued reports whether the target waits for dispatch.
func (t *Target) IsQueued() bool { return t.State() == TargetStateQueued }

// IsLive reports whether the branch is dispatched and waits for a final response.
func (t *Target) IsLive() bool {
	s := t.State()
	return s == TargetStateTrying || s == TargetStateProceeding
}

// IsDone reports whether the target reached a terminal state.
func (t *Target) IsDone() bool {
	s := t.State()
	return s == TargetStateCompleted || s == TargetStateTerminated
}

func (t *Target) LogValue() slog.Value {
	if t == nil {
		return slog.Value{}
	}
	attrs := []slog.Attr{
		slog.Any("uri", t.uri),
		slog.String("branch", string(t.branch)),
		slog.Any("state", t.State()),
		slog.Any("tier", t.tier),
	}
	if t.status > 0 {
		attrs = append(attrs, slog.Uint64("status", uint64(t.status)))
	}
	return slog.GroupValue(attrs...)
}
