package solver

import "hubfleet/internal/geo"

// CostModel prices a route for a vehicle: distance of the closed
// hub->...->hub tour times the vehicle's rate, plus a fixed cost per
// stop. It is a pure function of (route, vehicle, matrix) so construction
// and improvement always agree on the objective.
type CostModel struct {
	Matrix geo.Matrix
}

// RouteCost returns the full cost of visiting stops in order.
func (c CostModel) RouteCost(stops []int, v Vehicle) float64 {
	if len(stops) == 0 {
		return 0
	}
	dist := c.Matrix[0][stops[0]]
	for i := 0; i+1 < len(stops); i++ {
		dist += c.Matrix[stops[i]][stops[i+1]]
	}
	dist += c.Matrix[stops[len(stops)-1]][0]
	return dist*v.Rate + float64(len(stops))*v.FixedStopCost
}

// InsertionDelta returns the marginal cost of inserting node at position
// pos (0..len(stops)) without rebuilding the route.
func (c CostModel) InsertionDelta(stops []int, pos, node int, v Vehicle) float64 {
	prev, next := 0, 0
	if pos > 0 {
		prev = stops[pos-1]
	}
	if pos < len(stops) {
		next = stops[pos]
	}
	added := c.Matrix[prev][node] + c.Matrix[node][next]
	removed := c.Matrix[prev][next]
	return (added-removed)*v.Rate + v.FixedStopCost
}
