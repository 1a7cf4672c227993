// Package geo holds great-circle distance helpers and the pairwise
// distance matrix used by the solver.
package geo

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
)

// Mean Earth radii per distance unit.
const (
	EarthRadiusKm = 6371.0
	EarthRadiusMi = 3956.0
)

// Unit selects the distance unit of a matrix.
type Unit string

const (
	UnitKm Unit = "km"
	UnitMi Unit = "mi"
)

// Radius returns the mean Earth radius for the unit. Unknown units fall
// back to kilometers.
func (u Unit) Radius() float64 {
	if u == UnitMi {
		return EarthRadiusMi
	}
	return EarthRadiusKm
}

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// InvalidCoordinateError reports a latitude/longitude that is out of range
// or non-finite. Index refers to the offending point in the input slice.
type InvalidCoordinateError struct {
	Index int
	Lat   float64
	Lon   float64
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate at index %d: lat=%v lon=%v", e.Index, e.Lat, e.Lon)
}

// ValidatePoint checks that p is a finite coordinate within
// [-90,90] x [-180,180].
func ValidatePoint(p Point) bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Haversine returns the great-circle distance between two coordinates
// for the given sphere radius.
func Haversine(lat1, lon1, lat2, lon2, radius float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return radius * c
}

// Matrix is a symmetric pairwise distance table. Matrix[i][i] == 0 and
// Matrix[i][j] == Matrix[j][i]. Built once, read-only afterward.
type Matrix [][]float64

// Len returns the number of points covered by the matrix.
func (m Matrix) Len() int { return len(m) }

// BuildMatrix computes the full pairwise haversine matrix for pts.
// Cells are independent, so rows are computed by a bounded pool of
// workers; the result is identical to a serial build. All coordinates are
// validated up front and a *InvalidCoordinateError is returned before any
// distance work starts.
func BuildMatrix(ctx context.Context, pts []Point, unit Unit, workers int) (Matrix, error) {
	for i, p := range pts {
		if !ValidatePoint(p) {
			return nil, &InvalidCoordinateError{Index: i, Lat: p.Lat, Lon: p.Lon}
		}
	}
	n := len(pts)
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	if n == 0 {
		return m, nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	radius := unit.Radius()

	rows := make(chan int, n)
	for i := 0; i < n; i++ {
		rows <- i
	}
	close(rows)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rows {
				if ctx.Err() != nil {
					return
				}
				// Upper triangle only; mirrored after the join.
				for j := i + 1; j < n; j++ {
					m[i][j] = Haversine(pts[i].Lat, pts[i].Lon, pts[j].Lat, pts[j].Lon, radius)
				}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Mirror the upper triangle; the diagonal stays zero.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			m[j][i] = m[i][j]
		}
	}
	return m, nil
}
