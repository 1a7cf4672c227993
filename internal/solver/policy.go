package solver

import (
	"math"
	"math/rand"
)

// acceptPolicy decides whether a candidate move's (possibly augmented)
// cost delta is taken. Policies are stateful but never touch the
// solution; the engine owns all mutation.
type acceptPolicy interface {
	Accept(delta float64, rng *rand.Rand) bool
	Step()
}

// greedyDescent accepts strict improvements only.
type greedyDescent struct{}

func (greedyDescent) Accept(delta float64, _ *rand.Rand) bool { return delta < -deltaEps }
func (greedyDescent) Step()                                   {}

// annealing accepts worsening moves with probability exp(-delta/T) and
// cools geometrically each iteration.
type annealing struct {
	temp    float64
	cooling float64
}

func newAnnealing(cfg Config) *annealing {
	a := &annealing{temp: 1.0, cooling: 0.995}
	if cfg.InitialTemp > 0 {
		a.temp = cfg.InitialTemp
	}
	if cfg.Cooling > 0 && cfg.Cooling < 1 {
		a.cooling = cfg.Cooling
	}
	return a
}

func (a *annealing) Accept(delta float64, rng *rand.Rand) bool {
	if delta < -deltaEps {
		return true
	}
	return rng.Float64() < math.Exp(-delta/(a.temp+1e-9))
}

func (a *annealing) Step() { a.temp *= a.cooling }

// edge is an undirected arc between merged node indices (hub included).
type edge [2]int

func mkEdge(a, b int) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a, b}
}

// glsPenalties tracks per-edge penalty counts for guided local search.
// The engine augments move deltas with lambda-weighted penalty changes
// and calls Penalize at each local optimum, bumping the edges with the
// highest utility cost/(1+penalty).
type glsPenalties struct {
	lambda float64
	pen    map[edge]int
}

func newGLSPenalties(lambda float64) *glsPenalties {
	return &glsPenalties{lambda: lambda, pen: map[edge]int{}}
}

// routePenalty sums penalties over the closed tour of stops.
func (g *glsPenalties) routePenalty(stops []int) float64 {
	if len(stops) == 0 {
		return 0
	}
	total := float64(g.pen[mkEdge(0, stops[0])])
	for i := 0; i+1 < len(stops); i++ {
		total += float64(g.pen[mkEdge(stops[i], stops[i+1])])
	}
	total += float64(g.pen[mkEdge(stops[len(stops)-1], 0)])
	return total
}

// augment converts a raw cost delta into the guided delta for a move
// that rewrites the given routes.
func (g *glsPenalties) augment(raw float64, before, after [][]int) float64 {
	d := 0.0
	for _, stops := range after {
		d += g.routePenalty(stops)
	}
	for _, stops := range before {
		d -= g.routePenalty(stops)
	}
	return raw + g.lambda*d
}

// Penalize increments the penalty of the maximum-utility edges present
// in the solution, steering the search away from them.
func (g *glsPenalties) Penalize(p *Problem, cost CostModel, s Solution) {
	bestUtil := 0.0
	var bestEdges []edge
	visit := func(a, b int, rate float64) {
		e := mkEdge(a, b)
		util := cost.Matrix[e[0]][e[1]] * rate / float64(1+g.pen[e])
		if util > bestUtil+deltaEps {
			bestUtil = util
			bestEdges = bestEdges[:0]
			bestEdges = append(bestEdges, e)
		} else if util > bestUtil-deltaEps {
			bestEdges = append(bestEdges, e)
		}
	}
	for _, r := range s.Routes {
		if len(r.Stops) == 0 {
			continue
		}
		rate := p.Vehicles[r.Vehicle].Rate
		visit(0, r.Stops[0], rate)
		for i := 0; i+1 < len(r.Stops); i++ {
			visit(r.Stops[i], r.Stops[i+1], rate)
		}
		visit(r.Stops[len(r.Stops)-1], 0, rate)
	}
	for _, e := range bestEdges {
		g.pen[e]++
	}
}
