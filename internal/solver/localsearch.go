package solver

import (
	"context"
	"math/rand"
	"time"
)

// Engine runs single-threaded local search over one mutable solution.
// Moves are applied atomically: a candidate is fully built and checked
// before the working solution is touched.
type Engine struct {
	p          *Problem
	cost       CostModel
	cons       ConstraintModel
	eval       Evaluator
	cfg        Config
	rng        *rand.Rand
	state      State
	OnProgress func(ProgressEvent)
}

// NewEngine wires an improvement engine for one solve.
func NewEngine(p *Problem, cost CostModel, cons ConstraintModel, cfg Config) *Engine {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		p:     p,
		cost:  cost,
		cons:  cons,
		eval:  Evaluator{Cost: cost, Constraints: cons},
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		state: StateInit,
	}
}

// State reports the engine lifecycle phase.
func (e *Engine) State() State { return e.state }

const (
	defaultTimeLimit  = 30 * time.Second
	defaultNoImprove  = 2000
	glsPenalizeEvery  = 200
	moveAttemptsPerIt = 30
)

// Improve refines sol until the time budget, the iteration budget, or the
// no-improvement streak triggers, whichever comes first, and returns the
// best solution observed together with run metrics. The unassigned set is
// fixed during improvement; moves only reorder assigned stops.
func (e *Engine) Improve(ctx context.Context, sol Solution) (Solution, Metrics) {
	e.state = StateImproving
	defer func() { e.state = StateTerminated }()

	m := Metrics{InitialCost: sol.Cost, BestCost: sol.Cost}
	start := time.Now()
	defer func() { m.Elapsed = time.Since(start) }()

	if e.cfg.Metaheuristic == MetaNone {
		m.StopReason = "metaheuristic_none"
		return sol, m
	}

	var policy acceptPolicy
	var gls *glsPenalties
	switch e.cfg.Metaheuristic {
	case MetaSimulatedAnnealing:
		policy = newAnnealing(e.cfg)
	case MetaGuidedLocalSearch:
		policy = greedyDescent{}
		gls = newGLSPenalties(e.glsLambda(sol))
	default:
		policy = greedyDescent{}
	}

	limit := e.cfg.TimeLimit
	if limit <= 0 {
		limit = defaultTimeLimit
	}
	deadline := start.Add(limit)
	noImproveLimit := e.cfg.NoImprove
	if noImproveLimit <= 0 {
		noImproveLimit = defaultNoImprove
	}

	cur := sol.Clone()
	best := sol.Clone()
	streak := 0

	for {
		// Budgets are checked at the top of every iteration so no move
		// is ever left half applied.
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			m.StopReason = "time_limit"
			break
		}
		if e.cfg.MaxIterations > 0 && m.Iterations >= e.cfg.MaxIterations {
			m.StopReason = "iteration_limit"
			break
		}
		if streak >= noImproveLimit {
			m.StopReason = "no_improvement"
			break
		}
		m.Iterations++

		mv := e.randomMove(cur)
		if mv == nil {
			streak++
			policy.Step()
			continue
		}
		delta := mv.delta
		if gls != nil {
			delta = gls.augment(delta, mv.before(cur), mv.after())
		}
		if policy.Accept(delta, e.rng) {
			mv.apply(&cur)
			cur.Cost += mv.delta
			if cur.Cost < best.Cost-deltaEps {
				best = cur.Clone()
				m.Improvements++
				m.BestCost = best.Cost
				streak = 0
				if e.OnProgress != nil {
					e.OnProgress(ProgressEvent{
						Phase:      StateImproving,
						Iteration:  m.Iterations,
						BestCost:   best.Cost,
						Unassigned: len(best.Unassigned),
					})
				}
			} else {
				if mv.delta > deltaEps {
					m.AcceptedWorse++
				}
				streak++
			}
		} else {
			streak++
		}
		if gls != nil && streak > 0 && streak%glsPenalizeEvery == 0 {
			gls.Penalize(e.p, e.cost, cur)
		}
		policy.Step()
	}
	return best, m
}

// glsLambda derives the penalty weight from the initial solution scale
// unless configured explicitly.
func (e *Engine) glsLambda(sol Solution) float64 {
	if e.cfg.PenaltyLambda > 0 {
		return e.cfg.PenaltyLambda
	}
	arcs := 0
	for _, r := range sol.Routes {
		if len(r.Stops) > 0 {
			arcs += len(r.Stops) + 1
		}
	}
	if arcs == 0 || sol.Cost <= 0 {
		return 1
	}
	return 0.2 * sol.Cost / float64(arcs)
}

// move is a fully materialized candidate: new stop slices for the
// affected routes plus the exact cost delta over those routes.
type move struct {
	a, b  int // affected route indices; b == a for intra-route moves
	newA  []int
	newB  []int
	delta float64
}

func (mv *move) before(s Solution) [][]int {
	if mv.a == mv.b {
		return [][]int{s.Routes[mv.a].Stops}
	}
	return [][]int{s.Routes[mv.a].Stops, s.Routes[mv.b].Stops}
}

func (mv *move) after() [][]int {
	if mv.a == mv.b {
		return [][]int{mv.newA}
	}
	return [][]int{mv.newA, mv.newB}
}

func (mv *move) apply(s *Solution) {
	s.Routes[mv.a].Stops = mv.newA
	if mv.b != mv.a {
		s.Routes[mv.b].Stops = mv.newB
	}
}

// randomMove draws candidate relocate/swap/2-opt moves until one is
// structurally valid and feasible on the affected routes, or gives up
// for this iteration.
func (e *Engine) randomMove(s Solution) *move {
	for attempt := 0; attempt < moveAttemptsPerIt; attempt++ {
		var mv *move
		switch e.rng.Intn(3) {
		case 0:
			mv = e.relocateMove(s)
		case 1:
			mv = e.swapMove(s)
		default:
			mv = e.twoOptMove(s)
		}
		if mv != nil {
			return mv
		}
	}
	return nil
}

// nonEmptyRoute picks a random route with at least min stops.
func (e *Engine) nonEmptyRoute(s Solution, min int) int {
	cand := make([]int, 0, len(s.Routes))
	for vi := range s.Routes {
		if len(s.Routes[vi].Stops) >= min {
			cand = append(cand, vi)
		}
	}
	if len(cand) == 0 {
		return -1
	}
	return cand[e.rng.Intn(len(cand))]
}

func (e *Engine) routeDelta(vi int, oldStops, newStops []int) float64 {
	v := e.p.Vehicles[vi]
	return e.cost.RouteCost(newStops, v) - e.cost.RouteCost(oldStops, v)
}

// relocateMove moves one stop to another position in the same or a
// different route.
func (e *Engine) relocateMove(s Solution) *move {
	a := e.nonEmptyRoute(s, 1)
	if a < 0 {
		return nil
	}
	src := s.Routes[a].Stops
	i := e.rng.Intn(len(src))
	node := src[i]
	b := e.rng.Intn(len(s.Routes))

	if a == b {
		if len(src) == 1 {
			return nil
		}
		without := make([]int, 0, len(src)-1)
		without = append(without, src[:i]...)
		without = append(without, src[i+1:]...)
		j := e.rng.Intn(len(without) + 1)
		newA := make([]int, 0, len(src))
		newA = append(newA, without[:j]...)
		newA = append(newA, node)
		newA = append(newA, without[j:]...)
		if !e.cons.Feasible(newA, e.p.Vehicles[a]) {
			return nil
		}
		mv := &move{a: a, b: a, newA: newA}
		mv.delta = e.routeDelta(a, src, newA)
		return mv
	}

	dst := s.Routes[b].Stops
	j := e.rng.Intn(len(dst) + 1)
	newA := make([]int, 0, len(src)-1)
	newA = append(newA, src[:i]...)
	newA = append(newA, src[i+1:]...)
	newB := make([]int, 0, len(dst)+1)
	newB = append(newB, dst[:j]...)
	newB = append(newB, node)
	newB = append(newB, dst[j:]...)
	if !e.cons.Feasible(newA, e.p.Vehicles[a]) || !e.cons.Feasible(newB, e.p.Vehicles[b]) {
		return nil
	}
	mv := &move{a: a, b: b, newA: newA, newB: newB}
	mv.delta = e.routeDelta(a, src, newA) + e.routeDelta(b, dst, newB)
	return mv
}

// swapMove exchanges two stops between positions, possibly across routes.
func (e *Engine) swapMove(s Solution) *move {
	a := e.nonEmptyRoute(s, 1)
	b := e.nonEmptyRoute(s, 1)
	if a < 0 || b < 0 {
		return nil
	}
	sa, sb := s.Routes[a].Stops, s.Routes[b].Stops
	i := e.rng.Intn(len(sa))
	j := e.rng.Intn(len(sb))
	if a == b {
		if i == j {
			return nil
		}
		newA := append([]int(nil), sa...)
		newA[i], newA[j] = newA[j], newA[i]
		if !e.cons.Feasible(newA, e.p.Vehicles[a]) {
			return nil
		}
		mv := &move{a: a, b: a, newA: newA}
		mv.delta = e.routeDelta(a, sa, newA)
		return mv
	}
	newA := append([]int(nil), sa...)
	newB := append([]int(nil), sb...)
	newA[i], newB[j] = newB[j], newA[i]
	if !e.cons.Feasible(newA, e.p.Vehicles[a]) || !e.cons.Feasible(newB, e.p.Vehicles[b]) {
		return nil
	}
	mv := &move{a: a, b: b, newA: newA, newB: newB}
	mv.delta = e.routeDelta(a, sa, newA) + e.routeDelta(b, sb, newB)
	return mv
}

// twoOptMove reverses a segment within one route.
func (e *Engine) twoOptMove(s Solution) *move {
	a := e.nonEmptyRoute(s, 2)
	if a < 0 {
		return nil
	}
	stops := s.Routes[a].Stops
	i := e.rng.Intn(len(stops) - 1)
	k := i + 1 + e.rng.Intn(len(stops)-i-1)
	newA := append([]int(nil), stops...)
	for x, y := i, k; x < y; x, y = x+1, y-1 {
		newA[x], newA[y] = newA[y], newA[x]
	}
	if !e.cons.Feasible(newA, e.p.Vehicles[a]) {
		return nil
	}
	mv := &move{a: a, b: a, newA: newA}
	mv.delta = e.routeDelta(a, stops, newA)
	return mv
}
