package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusterProblem() *Problem {
	// Two geographic clusters so local search has real gains to find.
	return &Problem{
		Hub: Node{ID: "hub", Lat: 0, Lon: 0},
		Stops: []Node{
			{ID: "e1", Lat: 0.1, Lon: 1.0, Demand: 1},
			{ID: "e2", Lat: -0.1, Lon: 1.1, Demand: 1},
			{ID: "e3", Lat: 0.0, Lon: 0.9, Demand: 1},
			{ID: "w1", Lat: 0.1, Lon: -1.0, Demand: 1},
			{ID: "w2", Lat: -0.1, Lon: -1.1, Demand: 1},
			{ID: "w3", Lat: 0.0, Lon: -0.9, Demand: 1},
		},
		Vehicles: []Vehicle{
			{ID: "v1", Capacity: 4, Rate: 1},
			{ID: "v2", Capacity: 4, Rate: 1},
		},
	}
}

func improveWith(t *testing.T, meta Metaheuristic, cfg Config) (Solution, Metrics, *Problem) {
	t.Helper()
	p := clusterProblem()
	cost := buildCost(t, p)
	cons := NewConstraintModel(p)
	cfg.Metaheuristic = meta
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	engine := NewEngine(p, cost, cons, cfg)
	initial := Construct(p, cost, cons, StrategyPathCheapestArc)
	best, m := engine.Improve(context.Background(), initial)
	return best, m, p
}

func TestImproveNeverWorsensBest(t *testing.T) {
	for _, meta := range []Metaheuristic{MetaGreedyDescent, MetaSimulatedAnnealing, MetaGuidedLocalSearch} {
		t.Run(string(meta), func(t *testing.T) {
			best, m, p := improveWith(t, meta, Config{MaxIterations: 3000})
			assert.LessOrEqual(t, best.Cost, m.InitialCost+deltaEps)
			assert.InDelta(t, best.Cost, m.BestCost, 1e-9)
			cons := NewConstraintModel(p)
			for _, r := range best.Routes {
				assert.True(t, cons.Feasible(r.Stops, p.Vehicles[r.Vehicle]))
			}
		})
	}
}

func TestImprovePreservesAssignment(t *testing.T) {
	best, m, p := improveWith(t, MetaGreedyDescent, Config{MaxIterations: 2000})
	_ = m
	seen := map[int]bool{}
	for _, r := range best.Routes {
		for _, n := range r.Stops {
			assert.False(t, seen[n], "stop visited twice")
			seen[n] = true
		}
	}
	assert.Len(t, seen, len(p.Stops))
	assert.Empty(t, best.Unassigned)
}

func TestImproveIterationLimit(t *testing.T) {
	_, m, _ := improveWith(t, MetaGreedyDescent, Config{MaxIterations: 50, NoImprove: 1 << 30})
	assert.Equal(t, "iteration_limit", m.StopReason)
	assert.Equal(t, 50, m.Iterations)
}

func TestImproveTimeLimit(t *testing.T) {
	_, m, _ := improveWith(t, MetaSimulatedAnnealing, Config{TimeLimit: 30 * time.Millisecond, NoImprove: 1 << 30})
	assert.Equal(t, "time_limit", m.StopReason)
}

func TestImproveNoImprovementStop(t *testing.T) {
	_, m, _ := improveWith(t, MetaGreedyDescent, Config{NoImprove: 25})
	assert.Equal(t, "no_improvement", m.StopReason)
}

func TestImproveMetaNone(t *testing.T) {
	p := clusterProblem()
	cost := buildCost(t, p)
	cons := NewConstraintModel(p)
	engine := NewEngine(p, cost, cons, Config{Metaheuristic: MetaNone, Seed: 1})
	initial := Construct(p, cost, cons, StrategyParallelCheapestInsertion)
	best, m := engine.Improve(context.Background(), initial)
	assert.Equal(t, initial.Cost, best.Cost)
	assert.Zero(t, m.Iterations)
	assert.Equal(t, "metaheuristic_none", m.StopReason)
}

func TestImproveDeterministicWithSeed(t *testing.T) {
	a, _, _ := improveWith(t, MetaSimulatedAnnealing, Config{MaxIterations: 1500, Seed: 7})
	b, _, _ := improveWith(t, MetaSimulatedAnnealing, Config{MaxIterations: 1500, Seed: 7})
	require.Equal(t, a.Routes, b.Routes)
	require.Equal(t, a.Cost, b.Cost)
}

func TestImproveContextCancel(t *testing.T) {
	p := clusterProblem()
	cost := buildCost(t, p)
	cons := NewConstraintModel(p)
	engine := NewEngine(p, cost, cons, Config{Metaheuristic: MetaGreedyDescent, Seed: 3, NoImprove: 1 << 30})
	initial := Construct(p, cost, cons, StrategyPathCheapestArc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, m := engine.Improve(ctx, initial)
	assert.Equal(t, "time_limit", m.StopReason)
	assert.Zero(t, m.Iterations)
}

func TestEngineStateLifecycle(t *testing.T) {
	p := clusterProblem()
	cost := buildCost(t, p)
	cons := NewConstraintModel(p)
	engine := NewEngine(p, cost, cons, Config{Metaheuristic: MetaGreedyDescent, Seed: 5, MaxIterations: 10})
	assert.Equal(t, StateInit, engine.State())
	initial := Construct(p, cost, cons, StrategyPathCheapestArc)
	engine.Improve(context.Background(), initial)
	assert.Equal(t, StateTerminated, engine.State())
}

func TestAnnealingAcceptsSomeWorseMoves(t *testing.T) {
	_, m, _ := improveWith(t, MetaSimulatedAnnealing, Config{
		MaxIterations: 4000,
		InitialTemp:   50,
		Cooling:       0.999,
		NoImprove:     1 << 30,
	})
	assert.Positive(t, m.AcceptedWorse)
}
