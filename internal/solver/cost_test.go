package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hubfleet/internal/geo"
)

// testMatrix is a small hand-checked asymmetric-free distance table.
func testMatrix() geo.Matrix {
	return geo.Matrix{
		{0, 10, 20, 15},
		{10, 0, 12, 25},
		{20, 12, 0, 8},
		{15, 25, 8, 0},
	}
}

func TestRouteCost(t *testing.T) {
	c := CostModel{Matrix: testMatrix()}
	v := Vehicle{Rate: 2, FixedStopCost: 3}

	assert.Zero(t, c.RouteCost(nil, v))
	// hub->1->hub: (10+10)*2 + 1*3
	assert.InDelta(t, 43, c.RouteCost([]int{1}, v), 1e-9)
	// hub->1->2->3->hub: (10+12+8+15)*2 + 3*3
	assert.InDelta(t, 99, c.RouteCost([]int{1, 2, 3}, v), 1e-9)
}

func TestRouteCostZeroRate(t *testing.T) {
	c := CostModel{Matrix: testMatrix()}
	v := Vehicle{Rate: 0, FixedStopCost: 5}
	assert.InDelta(t, 10, c.RouteCost([]int{1, 3}, v), 1e-9)
}

func TestInsertionDeltaMatchesRouteCostDiff(t *testing.T) {
	c := CostModel{Matrix: testMatrix()}
	v := Vehicle{Rate: 1.5, FixedStopCost: 2}
	stops := []int{1, 3}

	for pos := 0; pos <= len(stops); pos++ {
		after := make([]int, 0, len(stops)+1)
		after = append(after, stops[:pos]...)
		after = append(after, 2)
		after = append(after, stops[pos:]...)
		want := c.RouteCost(after, v) - c.RouteCost(stops, v)
		assert.InDelta(t, want, c.InsertionDelta(stops, pos, 2, v), 1e-9, "pos %d", pos)
	}
}

func TestInsertionDeltaEmptyRoute(t *testing.T) {
	c := CostModel{Matrix: testMatrix()}
	v := Vehicle{Rate: 1, FixedStopCost: 0}
	// hub->2->hub round trip
	assert.InDelta(t, 40, c.InsertionDelta(nil, 0, 2, v), 1e-9)
}
