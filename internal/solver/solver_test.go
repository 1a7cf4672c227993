package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hubfleet/internal/geo"
)

func mixedMissionProblem(capacity float64) *Problem {
	return &Problem{
		Hub: Node{ID: "hub", Lat: 0, Lon: 0},
		Stops: []Node{
			{ID: "L1", Lat: 0, Lon: 1, Demand: 4},
			{ID: "L2", Lat: 1, Lon: 0, Demand: -3},
		},
		Vehicles: []Vehicle{{ID: "v1", Capacity: capacity, Rate: 1, FixedStopCost: 0}},
	}
}

func TestSolveSingleVehicleRoundTrip(t *testing.T) {
	p := mixedMissionProblem(10)
	res, err := Solve(context.Background(), p, Config{Metaheuristic: MetaNone, Seed: 1})
	require.NoError(t, err)

	require.Empty(t, res.Solution.Unassigned)
	assert.Equal(t, StatusSuccess, res.Solution.Status)
	assert.True(t, res.Summary.Feasible)

	require.Len(t, res.Solution.Routes, 1)
	// The hub-return mission needs load on board, so the delivery leads.
	require.Equal(t, []int{1, 2}, res.Solution.Routes[0].Stops)

	r := geo.EarthRadiusKm
	want := geo.Haversine(0, 0, 0, 1, r) + geo.Haversine(0, 1, 1, 0, r) + geo.Haversine(1, 0, 0, 0, r)
	assert.InDelta(t, want, res.Summary.TotalCost, 1e-9)
}

func TestSolveUndersizedFleetIsPartial(t *testing.T) {
	p := mixedMissionProblem(3)
	res, err := Solve(context.Background(), p, Config{Metaheuristic: MetaNone, Seed: 1})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, res.Solution.Status)
	assert.False(t, res.Summary.Feasible)
	ids := make([]string, 0, len(res.Solution.Unassigned))
	for _, idx := range res.Solution.Unassigned {
		ids = append(ids, p.node(idx).ID)
	}
	assert.Contains(t, ids, "L1")
}

func TestSolveSplitsLoadAcrossFleet(t *testing.T) {
	p := &Problem{
		Hub: Node{ID: "hub", Lat: 0, Lon: 0},
		Stops: []Node{
			{ID: "d1", Lat: 0, Lon: 1, Demand: 3},
			{ID: "d2", Lat: 0, Lon: 2, Demand: 4},
			{ID: "p1", Lat: 1, Lon: 1, Demand: -2},
		},
		Vehicles: []Vehicle{
			{ID: "v1", Capacity: 5, Rate: 1},
			{ID: "v2", Capacity: 5, Rate: 1},
		},
	}
	res, err := Solve(context.Background(), p, Config{Metaheuristic: MetaGreedyDescent, Seed: 9, MaxIterations: 500})
	require.NoError(t, err)
	require.Empty(t, res.Solution.Unassigned)
	assert.True(t, res.Summary.Feasible)
	cons := NewConstraintModel(p)
	for _, r := range res.Solution.Routes {
		assert.True(t, cons.Feasible(r.Stops, p.Vehicles[r.Vehicle]))
	}
}

func TestValidateRejectsBadCoordinates(t *testing.T) {
	p := mixedMissionProblem(10)
	p.Stops[1].Lat = 123

	_, err := Solve(context.Background(), p, Config{})
	var nodeErr *InvalidNodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "L2", nodeErr.ID)
}

func TestValidateRejectsBadVehicles(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Vehicle)
	}{
		{"zero capacity", func(v *Vehicle) { v.Capacity = 0 }},
		{"negative capacity", func(v *Vehicle) { v.Capacity = -1 }},
		{"negative rate", func(v *Vehicle) { v.Rate = -0.5 }},
		{"negative stop cost", func(v *Vehicle) { v.FixedStopCost = -2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := mixedMissionProblem(10)
			tc.mut(&p.Vehicles[0])
			_, err := Solve(context.Background(), p, Config{})
			var vehErr *InvalidVehicleError
			require.ErrorAs(t, err, &vehErr)
			assert.Equal(t, "v1", vehErr.ID)
		})
	}
}

func TestSolveProgressEvents(t *testing.T) {
	p := mixedMissionProblem(10)
	var phases []State
	_, err := SolveMultiStart(context.Background(), p, Config{
		Metaheuristic: MetaGreedyDescent,
		Seed:          4,
		MaxIterations: 200,
	}, func(evt ProgressEvent) {
		phases = append(phases, evt.Phase)
	})
	require.NoError(t, err)
	require.NotEmpty(t, phases)
	assert.Equal(t, StateConstructing, phases[0])
	assert.Equal(t, StateTerminated, phases[len(phases)-1])
}

func TestSolveMultiStartNoWorseThanSingle(t *testing.T) {
	p := clusterProblem()
	single, err := Solve(context.Background(), p, Config{
		Metaheuristic: MetaSimulatedAnnealing,
		Seed:          11,
		MaxIterations: 1500,
	})
	require.NoError(t, err)
	multi, err := SolveMultiStart(context.Background(), p, Config{
		Metaheuristic: MetaSimulatedAnnealing,
		Seed:          11,
		MaxIterations: 1500,
		Starts:        4,
	}, nil)
	require.NoError(t, err)

	// Start 0 reuses the base seed, so the pool always contains the
	// single-run result as one candidate.
	assert.LessOrEqual(t, len(multi.Solution.Unassigned), len(single.Solution.Unassigned))
	if len(multi.Solution.Unassigned) == len(single.Solution.Unassigned) {
		assert.LessOrEqual(t, multi.Summary.TotalCost, single.Summary.TotalCost+deltaEps)
	}
}

func TestSolveMultiStartDeterministicRanking(t *testing.T) {
	p := clusterProblem()
	cfg := Config{Metaheuristic: MetaGreedyDescent, Seed: 21, MaxIterations: 800, Starts: 3}
	a, err := SolveMultiStart(context.Background(), p, cfg, nil)
	require.NoError(t, err)
	b, err := SolveMultiStart(context.Background(), p, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, len(a.Solution.Unassigned), len(b.Solution.Unassigned))
	assert.InDelta(t, a.Summary.TotalCost, b.Summary.TotalCost, 1e-9)
}

func TestSolveMultiStartValidatesOnce(t *testing.T) {
	p := mixedMissionProblem(10)
	p.Vehicles[0].Capacity = 0
	_, err := SolveMultiStart(context.Background(), p, Config{Starts: 3}, nil)
	var vehErr *InvalidVehicleError
	require.ErrorAs(t, err, &vehErr)
}
