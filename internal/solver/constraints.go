package solver

// ConstraintModel checks vehicle capacity along a route. The vehicle
// leaves the hub with a running load of 0; each visit adds the node's
// signed demand and the load must stay within [0, capacity] after every
// visit. This is the net-capacity-delta reading of mixed hub-origin and
// hub-return missions: a return (negative demand) needs enough load
// already built up by earlier positive demands on the same route.
type ConstraintModel struct {
	demands []float64 // by merged node index; demands[0] == 0
}

// NewConstraintModel builds the model for a problem.
func NewConstraintModel(p *Problem) ConstraintModel {
	d := make([]float64, p.nodeCount())
	for i := 1; i < p.nodeCount(); i++ {
		d[i] = p.demand(i)
	}
	return ConstraintModel{demands: d}
}

// Feasible walks the route in order and reports whether the running load
// stays within bounds. Infeasibility is a result, not an error.
func (m ConstraintModel) Feasible(stops []int, v Vehicle) bool {
	load := 0.0
	for _, s := range stops {
		load += m.demands[s]
		if load > v.Capacity+loadEps || load < -loadEps {
			return false
		}
	}
	return true
}

// RemainingCapacity returns the headroom after the visit at position at
// (-1 means at the hub before any stop).
func (m ConstraintModel) RemainingCapacity(stops []int, v Vehicle, at int) float64 {
	load := 0.0
	for i := 0; i <= at && i < len(stops); i++ {
		load += m.demands[stops[i]]
	}
	return v.Capacity - load
}

// FeasibleInsert reports whether inserting node at position pos keeps the
// route feasible. Loads before pos are unchanged, so only the shifted
// suffix is re-walked; callers must pass a route that is feasible today.
func (m ConstraintModel) FeasibleInsert(stops []int, pos, node int, v Vehicle) bool {
	load := 0.0
	for i := 0; i < pos; i++ {
		load += m.demands[stops[i]]
	}
	load += m.demands[node]
	if load > v.Capacity+loadEps || load < -loadEps {
		return false
	}
	for i := pos; i < len(stops); i++ {
		load += m.demands[stops[i]]
		if load > v.Capacity+loadEps || load < -loadEps {
			return false
		}
	}
	return true
}

// loadEps absorbs float drift in running-load comparisons.
const loadEps = 1e-9
