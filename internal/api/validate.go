package api

import (
	"fmt"
	"math"

	"hubfleet/internal/model"
	"hubfleet/internal/solver"
)

func validCoords(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func validStrategy(s string) bool {
	switch solver.Strategy(s) {
	case solver.StrategyParallelCheapestInsertion, solver.StrategyPathCheapestArc,
		solver.StrategyMostConstrainedArc, solver.StrategyAutomatic:
		return true
	}
	return false
}

func validMetaheuristic(m string) bool {
	switch solver.Metaheuristic(m) {
	case solver.MetaNone, solver.MetaGreedyDescent,
		solver.MetaGuidedLocalSearch, solver.MetaSimulatedAnnealing:
		return true
	}
	return false
}

func validateSolveRequest(req *model.SolveRequest) error {
	if !validCoords(req.Hub.Lat, req.Hub.Lon) {
		return fmt.Errorf("hub has invalid coordinates (%v, %v)", req.Hub.Lat, req.Hub.Lon)
	}
	if len(req.Nodes) == 0 {
		return fmt.Errorf("nodes must not be empty")
	}
	if len(req.Vehicles) == 0 {
		return fmt.Errorf("vehicles must not be empty")
	}
	seen := map[string]struct{}{}
	for i, n := range req.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node %d missing id", i)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate node id: %s", n.ID)
		}
		seen[n.ID] = struct{}{}
		if !validCoords(n.Lat, n.Lon) {
			return fmt.Errorf("node %s has invalid coordinates (%v, %v)", n.ID, n.Lat, n.Lon)
		}
		if math.IsNaN(n.Demand) || math.IsInf(n.Demand, 0) {
			return fmt.Errorf("node %s has non-finite demand", n.ID)
		}
	}
	vseen := map[string]struct{}{}
	for i, v := range req.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("vehicle %d missing id", i)
		}
		if _, dup := vseen[v.ID]; dup {
			return fmt.Errorf("duplicate vehicle id: %s", v.ID)
		}
		vseen[v.ID] = struct{}{}
		if !(v.Capacity > 0) {
			return fmt.Errorf("vehicle %s capacity must be > 0", v.ID)
		}
		if v.Rate < 0 {
			return fmt.Errorf("vehicle %s rate must be >= 0", v.ID)
		}
		if v.FixedStopCost < 0 {
			return fmt.Errorf("vehicle %s fixedStopCost must be >= 0", v.ID)
		}
	}
	if c := req.Config; c != nil {
		if c.ConstructionStrategy != "" && !validStrategy(c.ConstructionStrategy) {
			return fmt.Errorf("invalid constructionStrategy: %s", c.ConstructionStrategy)
		}
		if c.Metaheuristic != "" && !validMetaheuristic(c.Metaheuristic) {
			return fmt.Errorf("invalid metaheuristic: %s", c.Metaheuristic)
		}
		if c.TimeLimitSeconds < 0 {
			return fmt.Errorf("timeLimitSeconds must be >= 0")
		}
		if c.MaxIterations < 0 {
			return fmt.Errorf("maxIterations must be >= 0")
		}
		if c.NoImproveLimit < 0 {
			return fmt.Errorf("noImproveLimit must be >= 0")
		}
		if c.Cooling != 0 && (c.Cooling <= 0 || c.Cooling >= 1) {
			return fmt.Errorf("cooling must be in (0,1)")
		}
		if c.InitialTemp < 0 {
			return fmt.Errorf("initTemp must be >= 0")
		}
		if c.DistanceUnit != "" && c.DistanceUnit != "km" && c.DistanceUnit != "mi" {
			return fmt.Errorf("invalid distanceUnit: %s (allowed: km, mi)", c.DistanceUnit)
		}
		if c.Starts < 0 {
			return fmt.Errorf("starts must be >= 0")
		}
	}
	return nil
}
