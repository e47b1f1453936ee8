package result

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Matrix is the payload of an elevation job (type 2): one elevation and one
// path loss grid per index.
type Matrix struct {
	Elevation     [][]float64 `json:"elevation_matrix"`
	PathLoss      [][]float64 `json:"pl_matrix"`
	SatellitePath string      `json:"satellite_path,omitempty"`
	// Malformed is set when both grids were read but their dimensions differ.
	Malformed bool `json:"malformed,omitempty"`
	Cursor
}

func emptyMatrix() Matrix {
	return Matrix{
		Elevation: [][]float64{},
		PathLoss:  [][]float64{},
	}
}

// Matrix returns the grids of the current index. An index is complete once
// both grids exist.
func (r *Reader) Matrix(ctx context.Context, t Target, requested *int) Matrix {
	l := r.layout
	elevations, err := r.files(ctx, t, l.ElevationDir, l.ElevationPattern)
	if err != nil {
		logReadError(ctx, "matrix", t, err)
		return emptyMatrix()
	}
	pathLosses, err := r.files(ctx, t, l.PathLossDir, l.PathLossPattern)
	if err != nil {
		logReadError(ctx, "matrix", t, err)
		return emptyMatrix()
	}

	c, ok := cursor(sortedKeys(elevations), requested, func(i int) bool {
		_, ok := pathLosses[i]
		return ok
	})
	if !ok {
		return emptyMatrix()
	}

	ret := emptyMatrix()
	ret.Cursor = c

	var elevation, pathLoss [][]float64
	g, gctx := errgroup.WithContext(ctx)
	load := func(dst *[][]float64, name string) func() error {
		return func() error {
			m, err := retry(gctx, r.attempts, r.delay, name, func() ([][]float64, error) {
				return readMatrix(r.fsys, name)
			})
			*dst = m
			return err
		}
	}
	g.Go(load(&elevation, elevations[c.CurrentIndex].Path))
	g.Go(load(&pathLoss, pathLosses[c.CurrentIndex].Path))
	if err := g.Wait(); err != nil {
		logReadError(ctx, "matrix", t, err)
		return emptyMatrix()
	}

	if !sameShape(elevation, pathLoss) {
		ret.Malformed = true
		return ret
	}
	ret.Elevation = elevation
	ret.PathLoss = pathLoss
	ret.SatellitePath = r.satellite(t, c.CurrentIndex)
	return ret
}
