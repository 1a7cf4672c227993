package geo

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineKnownDistance(t *testing.T) {
	// One degree of longitude at the equator.
	got := Haversine(0, 0, 0, 1, EarthRadiusKm)
	want := EarthRadiusKm * math.Pi / 180
	assert.InDelta(t, want, got, 1e-9)
	assert.InDelta(t, 111.19492664455873, got, 1e-9)
}

func TestHaversineSymmetricAndZero(t *testing.T) {
	a := Haversine(48.85, 2.35, 40.71, -74.0, EarthRadiusKm)
	b := Haversine(40.71, -74.0, 48.85, 2.35, EarthRadiusKm)
	assert.InDelta(t, a, b, 1e-9)
	assert.Zero(t, Haversine(48.85, 2.35, 48.85, 2.35, EarthRadiusKm))
}

func TestUnitRadius(t *testing.T) {
	assert.Equal(t, EarthRadiusKm, UnitKm.Radius())
	assert.Equal(t, EarthRadiusMi, UnitMi.Radius())
	assert.Equal(t, EarthRadiusKm, Unit("furlong").Radius())
}

func TestValidatePoint(t *testing.T) {
	cases := []struct {
		name string
		p    Point
		ok   bool
	}{
		{"origin", Point{0, 0}, true},
		{"poles", Point{90, 180}, true},
		{"lat high", Point{90.1, 0}, false},
		{"lat low", Point{-90.1, 0}, false},
		{"lon high", Point{0, 180.1}, false},
		{"lon low", Point{0, -180.1}, false},
		{"nan", Point{math.NaN(), 0}, false},
		{"inf", Point{0, math.Inf(1)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.ok, ValidatePoint(tc.p))
		})
	}
}

func TestBuildMatrixShape(t *testing.T) {
	pts := []Point{{0, 0}, {0, 1}, {1, 0}, {10, 10}}
	m, err := BuildMatrix(context.Background(), pts, UnitKm, 2)
	require.NoError(t, err)
	require.Equal(t, len(pts), m.Len())
	for i := range m {
		assert.Zero(t, m[i][i])
		for j := range m {
			assert.Equal(t, m[i][j], m[j][i], "m[%d][%d]", i, j)
			if i != j {
				assert.Positive(t, m[i][j])
			}
		}
	}
}

func TestBuildMatrixParallelMatchesSerial(t *testing.T) {
	pts := make([]Point, 40)
	for i := range pts {
		pts[i] = Point{Lat: float64(i%17) - 8, Lon: float64(i%23) * 3}
	}
	serial, err := BuildMatrix(context.Background(), pts, UnitMi, 1)
	require.NoError(t, err)
	parallel, err := BuildMatrix(context.Background(), pts, UnitMi, 8)
	require.NoError(t, err)
	require.Equal(t, serial, parallel)
}

func TestBuildMatrixInvalidCoordinate(t *testing.T) {
	pts := []Point{{0, 0}, {91, 0}}
	_, err := BuildMatrix(context.Background(), pts, UnitKm, 0)
	var coordErr *InvalidCoordinateError
	require.ErrorAs(t, err, &coordErr)
	assert.Equal(t, 1, coordErr.Index)
	assert.Equal(t, 91.0, coordErr.Lat)
}

func TestBuildMatrixCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildMatrix(ctx, []Point{{0, 0}, {1, 1}}, UnitKm, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBuildMatrixEmpty(t *testing.T) {
	m, err := BuildMatrix(context.Background(), nil, UnitKm, 0)
	require.NoError(t, err)
	assert.Zero(t, m.Len())
}
