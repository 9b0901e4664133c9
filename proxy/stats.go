package proxy

import (
	"log/slog"
	"sync/atomic"
)

// StatsReport is a snapshot of proxy counters.
type StatsReport struct {
	ActiveContexts  int               `json:"active_contexts"`
	ActiveBranches  int               `json:"active_branches"`
	ContextsTotal   uint64            `json:"contexts_total"`
	BranchesTotal   uint64            `json:"branches_total"`
	CancelsTotal    uint64            `json:"cancels_total"`
	RejectedTotal   uint64            `json:"rejected_total"`
	FinalsByClass   map[string]uint64 `json:"finals_by_class"`
	LateFinalsTotal uint64            `json:"late_finals_total"`
}

func (s StatsReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("active_contexts", s.ActiveContexts),
		slog.Int("active_branches", s.ActiveBranches),
		slog.Uint64("contexts_total", s.ContextsTotal),
		slog.Uint64("branches_total", s.BranchesTotal),
		slog.Uint64("cancels_total", s.CancelsTotal),
	)
}

type stats struct {
	contexts, branches, cancels, rejected, late atomic.Uint64
	finals                                      [7]atomic.Uint64
}

func (s *stats) finalSent(sts ResponseStatus) {
	if c := sts.Class(); c > 0 && c < uint(len(s.finals)) {
		s.finals[c].Add(1)
	}
}

func (s *stats) report() StatsReport {
	r := StatsReport{
		ContextsTotal:   s.contexts.Load(),
		BranchesTotal:   s.branches.Load(),
		CancelsTotal:    s.cancels.Load(),
		RejectedTotal:   s.rejected.Load(),
		LateFinalsTotal: s.late.Load(),
		FinalsByClass:   make(map[string]uint64),
	}
	for c := 2; c < len(s.finals); c++ {
		if n := s.finals[c].Load(); n > 0 {
			r.FinalsByClass[string(rune('0'+c))+"xx"] = n
		}
	}
	return r
}
