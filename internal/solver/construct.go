package solver

import (
	"math"
	"sort"
)

// deltaEps guards strict-improvement comparisons so tie-breaks stay
// deterministic across runs.
const deltaEps = 1e-9

// Construct builds the initial solution for a problem. Nodes that cannot
// be feasibly inserted into any vehicle stay unassigned and the solution
// is flagged partial; construction itself never fails.
func Construct(p *Problem, cost CostModel, cons ConstraintModel, strategy Strategy) Solution {
	c := constructor{p: p, cost: cost, cons: cons}
	c.routes = make([]Route, len(p.Vehicles))
	for vi := range c.routes {
		c.routes[vi] = Route{Vehicle: vi, Stops: []int{}}
	}
	// Candidate order is ascending node ID so equal-cost choices always
	// resolve to the lowest identifier.
	c.pending = make([]int, len(p.Stops))
	for i := range p.Stops {
		c.pending[i] = i + 1
	}
	sort.Slice(c.pending, func(a, b int) bool {
		return p.node(c.pending[a]).ID < p.node(c.pending[b]).ID
	})

	switch strategy {
	case StrategyPathCheapestArc:
		c.pathCheapestArc()
	case StrategyMostConstrainedArc:
		c.mostConstrainedArc()
	default: // parallel-cheapest-insertion, automatic
		c.parallelCheapestInsertion()
	}

	sol := Solution{Routes: c.routes, Unassigned: c.pending, Status: StatusSuccess}
	if len(sol.Unassigned) > 0 {
		sol.Status = StatusPartial
	}
	for vi := range sol.Routes {
		sol.Cost += cost.RouteCost(sol.Routes[vi].Stops, p.Vehicles[vi])
	}
	return sol
}

type constructor struct {
	p       *Problem
	cost    CostModel
	cons    ConstraintModel
	routes  []Route
	pending []int // unassigned node indices, ascending by node ID
}

func (c *constructor) take(pi int) int {
	node := c.pending[pi]
	c.pending = append(c.pending[:pi], c.pending[pi+1:]...)
	return node
}

func (c *constructor) insert(vi, pos, node int) {
	stops := c.routes[vi].Stops
	stops = append(stops, 0)
	copy(stops[pos+1:], stops[pos:])
	stops[pos] = node
	c.routes[vi].Stops = stops
}

// parallelCheapestInsertion grows all routes at once: each round inserts
// the globally cheapest feasible (node, vehicle, position) triple.
func (c *constructor) parallelCheapestInsertion() {
	for len(c.pending) > 0 {
		bestPi, bestVi, bestPos := -1, -1, -1
		bestDelta := math.MaxFloat64
		for pi, node := range c.pending {
			for vi := range c.routes {
				v := c.p.Vehicles[vi]
				stops := c.routes[vi].Stops
				for pos := 0; pos <= len(stops); pos++ {
					if !c.cons.FeasibleInsert(stops, pos, node, v) {
						continue
					}
					d := c.cost.InsertionDelta(stops, pos, node, v)
					if d < bestDelta-deltaEps {
						bestDelta = d
						bestPi, bestVi, bestPos = pi, vi, pos
					}
				}
			}
		}
		if bestPi < 0 {
			return
		}
		c.insert(bestVi, bestPos, c.take(bestPi))
	}
}

// pathCheapestArc extends route tails only: each round appends the node
// with the cheapest feasible arc from any route's current end.
func (c *constructor) pathCheapestArc() {
	for len(c.pending) > 0 {
		bestPi, bestVi := -1, -1
		bestDelta := math.MaxFloat64
		for pi, node := range c.pending {
			for vi := range c.routes {
				v := c.p.Vehicles[vi]
				stops := c.routes[vi].Stops
				if !c.cons.FeasibleInsert(stops, len(stops), node, v) {
					continue
				}
				d := c.cost.InsertionDelta(stops, len(stops), node, v)
				if d < bestDelta-deltaEps {
					bestDelta = d
					bestPi, bestVi = pi, vi
				}
			}
		}
		if bestPi < 0 {
			return
		}
		vi := bestVi
		c.insert(vi, len(c.routes[vi].Stops), c.take(bestPi))
	}
}

// mostConstrainedArc serves scarce nodes first: each round picks the node
// with the fewest feasible insertion slots and gives it its cheapest one.
func (c *constructor) mostConstrainedArc() {
	for len(c.pending) > 0 {
		bestPi := -1
		bestSlots := math.MaxInt
		bestVi, bestPos := -1, -1
		for pi, node := range c.pending {
			slots := 0
			nodeVi, nodePos := -1, -1
			nodeDelta := math.MaxFloat64
			for vi := range c.routes {
				v := c.p.Vehicles[vi]
				stops := c.routes[vi].Stops
				for pos := 0; pos <= len(stops); pos++ {
					if !c.cons.FeasibleInsert(stops, pos, node, v) {
						continue
					}
					slots++
					if d := c.cost.InsertionDelta(stops, pos, node, v); d < nodeDelta-deltaEps {
						nodeDelta = d
						nodeVi, nodePos = vi, pos
					}
				}
			}
			if slots == 0 {
				continue
			}
			if slots < bestSlots {
				bestSlots = slots
				bestPi, bestVi, bestPos = pi, nodeVi, nodePos
			}
		}
		if bestPi < 0 {
			return
		}
		c.insert(bestVi, bestPos, c.take(bestPi))
	}
}
