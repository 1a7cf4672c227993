package api

import (
	"testing"

	"hubfleet/internal/model"
)

func configRequest(cfg model.SolverConfigIn) model.SolveRequest {
	return model.SolveRequest{
		Hub:      model.HubIn{ID: "hub", Lat: 40, Lon: -75},
		Nodes:    []model.NodeIn{{ID: "n1", Lat: 40.1, Lon: -75.1, Demand: 1}},
		Vehicles: []model.VehicleIn{{ID: "v1", Capacity: 5, Rate: 1}},
		Config:   &cfg,
	}
}

func TestValidateConfigEnumSpellings(t *testing.T) {
	for _, m := range []string{"none", "greedy-descent", "guided-local-search", "simulated-annealing"} {
		req := configRequest(model.SolverConfigIn{Metaheuristic: m})
		if err := validateSolveRequest(&req); err != nil {
			t.Fatalf("metaheuristic %q rejected: %v", m, err)
		}
	}
	for _, m := range []string{"simulated_annealing", "greedy_descent", "guided_local_search", "annealing"} {
		req := configRequest(model.SolverConfigIn{Metaheuristic: m})
		if err := validateSolveRequest(&req); err == nil {
			t.Fatalf("metaheuristic %q accepted", m)
		}
	}
	for _, s := range []string{"parallel-cheapest-insertion", "path-cheapest-arc", "most-constrained-arc", "automatic"} {
		req := configRequest(model.SolverConfigIn{ConstructionStrategy: s})
		if err := validateSolveRequest(&req); err != nil {
			t.Fatalf("strategy %q rejected: %v", s, err)
		}
	}
	if req := configRequest(model.SolverConfigIn{ConstructionStrategy: "parallel_cheapest_insertion"}); validateSolveRequest(&req) == nil {
		t.Fatal("underscored strategy accepted")
	}
}
