// Package solver assigns hub-and-spoke delivery/pickup missions to a
// heterogeneous fleet, minimizing travel-plus-delivery cost under
// per-vehicle capacity limits. Construction builds an initial feasible
// assignment and a local-search engine refines it under a pluggable
// acceptance policy.
package solver

import (
	"context"

	"hubfleet/internal/geo"
)

// Validate fails fast on malformed input before any matrix or search
// work starts. The returned error names the offending node or vehicle.
func Validate(p *Problem) error {
	if !geo.ValidatePoint(geo.Point{Lat: p.Hub.Lat, Lon: p.Hub.Lon}) {
		return &InvalidNodeError{ID: p.Hub.ID, Lat: p.Hub.Lat, Lon: p.Hub.Lon}
	}
	for _, n := range p.Stops {
		if !geo.ValidatePoint(geo.Point{Lat: n.Lat, Lon: n.Lon}) {
			return &InvalidNodeError{ID: n.ID, Lat: n.Lat, Lon: n.Lon}
		}
	}
	for _, v := range p.Vehicles {
		if v.Capacity <= 0 {
			return &InvalidVehicleError{ID: v.ID, Reason: "capacity must be positive"}
		}
		if v.Rate < 0 {
			return &InvalidVehicleError{ID: v.ID, Reason: "rate must not be negative"}
		}
		if v.FixedStopCost < 0 {
			return &InvalidVehicleError{ID: v.ID, Reason: "fixedStopCost must not be negative"}
		}
	}
	return nil
}

// Solve runs one full pass: validate, build the distance matrix,
// construct, improve, evaluate. The caller always gets either a
// well-formed result (possibly partial) or a single validation error.
func Solve(ctx context.Context, p *Problem, cfg Config) (*Result, error) {
	return solve(ctx, p, cfg, nil)
}

func solve(ctx context.Context, p *Problem, cfg Config, onProgress func(ProgressEvent)) (*Result, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	pts := make([]geo.Point, p.nodeCount())
	pts[0] = geo.Point{Lat: p.Hub.Lat, Lon: p.Hub.Lon}
	for i, n := range p.Stops {
		pts[i+1] = geo.Point{Lat: n.Lat, Lon: n.Lon}
	}
	matrix, err := geo.BuildMatrix(ctx, pts, cfg.Unit, cfg.MatrixWorkers)
	if err != nil {
		return nil, err
	}

	cost := CostModel{Matrix: matrix}
	cons := NewConstraintModel(p)
	engine := NewEngine(p, cost, cons, cfg)
	engine.OnProgress = onProgress

	engine.state = StateConstructing
	initial := Construct(p, cost, cons, cfg.Strategy)
	if onProgress != nil {
		onProgress(ProgressEvent{Phase: StateConstructing, BestCost: initial.Cost, Unassigned: len(initial.Unassigned)})
	}

	best, metrics := engine.Improve(ctx, initial)
	if onProgress != nil {
		onProgress(ProgressEvent{Phase: StateTerminated, Iteration: metrics.Iterations, BestCost: best.Cost, Unassigned: len(best.Unassigned)})
	}

	eval := Evaluator{Cost: cost, Constraints: cons}
	res := &Result{Solution: best, Summary: eval.Evaluate(p, best), Metrics: metrics}
	return res, nil
}
