package solver

import (
	"fmt"
	"time"

	"hubfleet/internal/geo"
)

// Node is a mission location. Demand is signed: positive for hub-origin
// loads (capacity consumed from the visit onward), negative for
// location-to-hub returns (capacity released from the visit onward).
// The hub itself has demand 0.
type Node struct {
	ID     string
	Lat    float64
	Lon    float64
	Demand float64
}

// Vehicle describes one fleet member. Capacity bounds the running load on
// a route; Rate is the cost per distance unit; FixedStopCost is charged
// once per visited stop.
type Vehicle struct {
	ID            string
	Capacity      float64
	Rate          float64
	FixedStopCost float64
}

// Problem is the read-only input to a solve. Hub and Stops are merged
// into one index space internally: index 0 is the hub and index i+1 is
// Stops[i].
type Problem struct {
	Hub      Node
	Stops    []Node
	Vehicles []Vehicle
}

// nodeCount is the size of the merged index space (hub + stops).
func (p *Problem) nodeCount() int { return len(p.Stops) + 1 }

// node returns the node at merged index idx.
func (p *Problem) node(idx int) Node {
	if idx == 0 {
		return p.Hub
	}
	return p.Stops[idx-1]
}

// demand returns the signed demand at merged index idx.
func (p *Problem) demand(idx int) float64 {
	if idx == 0 {
		return 0
	}
	return p.Stops[idx-1].Demand
}

// Route is an ordered visit sequence for one vehicle. Stops holds merged
// node indices (never the hub); every route implicitly starts and ends at
// the hub.
type Route struct {
	Vehicle int
	Stops   []int
}

// clone returns a deep copy of the route.
func (r Route) clone() Route {
	return Route{Vehicle: r.Vehicle, Stops: append([]int(nil), r.Stops...)}
}

// Status classifies a finished solve.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial_infeasible"
)

// Solution assigns stops to vehicle routes. Routes is parallel to
// Problem.Vehicles; empty routes are kept here and trimmed only at the
// reporting boundary. Every stop index appears in exactly one route or in
// Unassigned.
type Solution struct {
	Routes     []Route
	Unassigned []int
	Cost       float64
	Status     Status
}

// Clone returns a deep copy, used to retain best-so-far states while the
// working solution keeps mutating.
func (s Solution) Clone() Solution {
	out := Solution{
		Routes:     make([]Route, len(s.Routes)),
		Unassigned: append([]int(nil), s.Unassigned...),
		Cost:       s.Cost,
		Status:     s.Status,
	}
	for i := range s.Routes {
		out.Routes[i] = s.Routes[i].clone()
	}
	return out
}

// State tracks the engine lifecycle. There is no transition out of
// StateTerminated.
type State string

const (
	StateInit         State = "init"
	StateConstructing State = "constructing"
	StateImproving    State = "improving"
	StateTerminated   State = "terminated"
)

// Strategy selects the constructive heuristic.
type Strategy string

const (
	StrategyParallelCheapestInsertion Strategy = "parallel-cheapest-insertion"
	StrategyPathCheapestArc           Strategy = "path-cheapest-arc"
	StrategyMostConstrainedArc        Strategy = "most-constrained-arc"
	StrategyAutomatic                 Strategy = "automatic"
)

// Metaheuristic selects the local-search acceptance policy.
type Metaheuristic string

const (
	MetaNone               Metaheuristic = "none"
	MetaGreedyDescent      Metaheuristic = "greedy-descent"
	MetaGuidedLocalSearch  Metaheuristic = "guided-local-search"
	MetaSimulatedAnnealing Metaheuristic = "simulated-annealing"
)

// Config carries all solver knobs. Zero values select the defaults noted
// per field.
type Config struct {
	Strategy      Strategy      // default parallel-cheapest-insertion
	Metaheuristic Metaheuristic // default greedy-descent
	TimeLimit     time.Duration // default 30s
	MaxIterations int           // 0 = unbounded
	NoImprove     int           // stop after this many non-improving iterations; 0 = default 2000
	Seed          int64         // 0 = time-based
	InitialTemp   float64       // SA starting temperature; 0 = 1.0
	Cooling       float64       // SA geometric factor in (0,1); 0 = 0.995
	PenaltyLambda float64       // GLS penalty weight; 0 = derived from matrix scale
	Unit          geo.Unit      // km or mi
	MatrixWorkers int           // 0 = GOMAXPROCS
	Starts        int           // multi-start runs; <=1 = single run
}

// Metrics summarizes one engine run, mirroring what the reporting layer
// persists per plan.
type Metrics struct {
	Iterations    int           `json:"iterations"`
	Improvements  int           `json:"improvements"`
	AcceptedWorse int           `json:"acceptedWorse"`
	InitialCost   float64       `json:"initialCost"`
	BestCost      float64       `json:"bestCost"`
	Elapsed       time.Duration `json:"elapsed"`
	StopReason    string        `json:"stopReason"`
}

// ProgressEvent is emitted on construction and on every new best-cost
// solution during improvement.
type ProgressEvent struct {
	Phase      State
	Iteration  int
	BestCost   float64
	Unassigned int
}

// Result is the final output of Solve.
type Result struct {
	Solution Solution
	Summary  Summary
	Metrics  Metrics
}

// InvalidVehicleError reports a vehicle that fails validation before any
// solving starts.
type InvalidVehicleError struct {
	ID     string
	Reason string
}

func (e *InvalidVehicleError) Error() string {
	return fmt.Sprintf("invalid vehicle %q: %s", e.ID, e.Reason)
}

// InvalidNodeError reports a node with an out-of-range coordinate,
// identifying the offending node by ID.
type InvalidNodeError struct {
	ID  string
	Lat float64
	Lon float64
}

func (e *InvalidNodeError) Error() string {
	return fmt.Sprintf("invalid node %q: lat=%v lon=%v", e.ID, e.Lat, e.Lon)
}
