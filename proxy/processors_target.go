package proxy

import (
	"context"
	"log/slog"
	"math"
	"slices"
)

// ForkingMode is a target scheduling policy.
type ForkingMode string

const (
	// ForkingModeEqualQParallel dispatches targets of the same q-value in parallel
	// and tiers of lower q-values in sequence.
	ForkingModeEqualQParallel ForkingMode = "equal_q_parallel"
	// ForkingModeFullSequential dispatches one target at a time.
	ForkingModeFullSequential ForkingMode = "full_sequential"
	// ForkingModeFullParallel dispatches every queued target at once.
	ForkingModeFullParallel ForkingMode = "full_parallel"
)

// IsValid reports whether the mode is known. Empty mode is valid and means
// [ForkingModeEqualQParallel].
func (m ForkingMode) IsValid() bool {
	switch m {
	case "", ForkingModeEqualQParallel, ForkingModeFullSequential, ForkingModeFullParallel:
		return true
	default:
		return false
	}
}

// DefaultTargetChain builds the target chain configured by options:
// geo proximity ordering when a geolocator is set and q-value scheduling.
func DefaultTargetChain(opts *Options) Chain {
	var c Chain
	if opts != nil && opts.Geolocator != nil {
		c = append(c, GeoProximity{Geolocator: opts.Geolocator})
	}
	var mode ForkingMode
	if opts != nil {
		mode = opts.ForkingMode
	}
	return append(c, QValueScheduler{Mode: mode})
}

// QValueScheduler selects targets of the pending batch according to the forking mode.
type QValueScheduler struct {
	Mode ForkingMode
}

func (QValueScheduler) Name() string { return "q_value_scheduler" }

func (s QValueScheduler) Process(_ context.Context, rc *RequestContext) (Action, error) {
	switch s.Mode {
	case ForkingModeFullSequential:
		pending := rc.PendingTargets()
		if rc.ResponseContext().LiveCount() > 0 || len(pending) == 0 {
			rc.SetPendingTargets(nil)
		} else {
			rc.SetPendingTargets(pending[:1])
		}
	case ForkingModeFullParallel:
		rc.SetPendingTargets(rc.ResponseContext().QueuedTargets())
	}
	return ActionContinue, nil
}

// GeoProximity orders the pending batch by distance between the request source
// and the target hosts. Targets of unknown location keep their order after located ones.
type GeoProximity struct {
	Geolocator Geolocator
}

func (GeoProximity) Name() string { return "geo_proximity" }

func (g GeoProximity) Process(ctx context.Context, rc *RequestContext) (Action, error) {
	src := rc.Original().Source
	if g.Geolocator == nil || !src.IsValid() {
		return ActionContinue, nil
	}
	origin, ok := g.Geolocator.Locate(ctx, src.Addr().Unmap().String())
	if !ok {
		return ActionContinue, nil
	}

	pending := rc.PendingTargets()
	dist := make(map[*Target]float64, len(pending))
	for _, t := range pending {
		if pos, ok := g.Geolocator.Locate(ctx, t.URI().Domain()); ok {
			dist[t] = Distance(origin, pos)
		} else {
			dist[t] = math.Inf(1)
		}
	}
	slices.SortStableFunc(pending, func(a, b *Target) int {
		switch da, db := dist[a], dist[b]; {
		case da < db:
			return -1
		case da > db:
			return 1
		default:
			return 0
		}
	})
	rc.log.LogAttrs(ctx, slog.LevelDebug, "targets ordered by proximity",
		slog.Any("request_context", rc),
		slog.Any("origin", origin),
	)
	rc.SetPendingTargets(pending)
	return ActionContinue, nil
}

const earthRadiusKm = 6371.0

// Distance returns the great-circle distance in kilometers.
func Distance(a, b Coordinates) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(b.Lat - a.Lat)
	dLon := rad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
