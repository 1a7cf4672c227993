package solver

// Summary is the read-only view of a solution used for reporting and for
// metaheuristic best-so-far comparisons.
type Summary struct {
	TotalCost float64
	PerRoute  []float64
	Feasible  bool
}

// Evaluator computes costs and feasibility without mutating the solution.
type Evaluator struct {
	Cost        CostModel
	Constraints ConstraintModel
}

// Evaluate prices every route and checks full feasibility: all routes
// must pass the constraint model and no stop may be unassigned.
func (e Evaluator) Evaluate(p *Problem, s Solution) Summary {
	out := Summary{PerRoute: make([]float64, len(s.Routes)), Feasible: len(s.Unassigned) == 0}
	for i, r := range s.Routes {
		v := p.Vehicles[r.Vehicle]
		out.PerRoute[i] = e.Cost.RouteCost(r.Stops, v)
		out.TotalCost += out.PerRoute[i]
		if !e.Constraints.Feasible(r.Stops, v) {
			out.Feasible = false
		}
	}
	return out
}
