package result

import (
	"context"
	"path"
)

// Table is the payload of a path loss job (type 1): a growing table of
// measured value, predicted value and rmse rows.
type Table struct {
	Measure       []float64 `json:"measure"`
	Predict       []float64 `json:"predict"`
	RMSE          []float64 `json:"rmse"`
	SatellitePath string    `json:"satellite_path,omitempty"`
	Cursor
}

func emptyTable() Table {
	return Table{
		Measure: []float64{},
		Predict: []float64{},
		RMSE:    []float64{},
	}
}

// Table returns the rows 0..current of the table. The writer pre-allocates
// rows as zeros, so the first all zero row ends the valid data.
func (r *Reader) Table(ctx context.Context, t Target, requested *int) Table {
	name := path.Join(t.Output, r.layout.PathLossFile)
	rows, err := retry(ctx, r.attempts, r.delay, name, func() ([][3]float64, error) {
		return readTable(r.fsys, name)
	})
	if err != nil {
		logReadError(ctx, "table", t, err)
		return emptyTable()
	}

	rows = validPrefix(rows)
	if len(rows) == 0 {
		return emptyTable()
	}

	latest := len(rows) - 1
	current := Clamp(requested, latest)
	ret := Table{
		Measure: make([]float64, 0, current+1),
		Predict: make([]float64, 0, current+1),
		RMSE:    make([]float64, 0, current+1),
		Cursor:  Cursor{CurrentIndex: current, LatestIndex: latest},
	}
	for _, row := range rows[:current+1] {
		ret.Measure = append(ret.Measure, row[0])
		ret.Predict = append(ret.Predict, row[1])
		ret.RMSE = append(ret.RMSE, row[2])
	}
	ret.SatellitePath = r.satellite(t, current)
	return ret
}

// validPrefix cuts rows before the first sentinel row.
func validPrefix(rows [][3]float64) [][3]float64 {
	for i, row := range rows {
		if row == [3]float64{} {
			return rows[:i]
		}
	}
	return rows
}
