package result

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 300 * time.Millisecond
)

var errNoRows = errors.New("no rows")

// retry runs op up to attempts times, delay apart. A missing file is not
// retried.
func retry[T any](ctx context.Context, attempts int, delay time.Duration, name string, op func() (T, error)) (T, error) {
	var b backoff.BackOff = backoff.NewConstantBackOff(delay)
	b = backoff.WithMaxRetries(b, uint64(max(attempts-1, 0)))
	b = backoff.WithContext(b, ctx)

	var attempt int
	return backoff.RetryWithData(func() (T, error) {
		attempt++
		ret, err := op()
		if err == nil {
			return ret, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return ret, backoff.Permanent(err)
		}
		slog.DebugContext(ctx, "reading failed", "path", name, "attempt", attempt, "error", err)
		return ret, err
	}, b)
}

// readTable reads the rows of a three column table. Reading stops at the first
// malformed row, it is most likely being written.
func readTable(fsys fs.FS, name string) ([][3]float64, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	var rows [][3]float64
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil || len(rec) != 3 {
			break
		}
		var row [3]float64
		ok := true
		for i, field := range rec {
			v, err := parseFloat(field)
			if err != nil {
				ok = false
				break
			}
			row[i] = v
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, errNoRows
	}
	return rows, nil
}

// readMatrix reads a rectangular grid of numbers.
func readMatrix(fsys fs.FS, name string) ([][]float64, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errNoRows
	}
	matrix := make([][]float64, len(records))
	for i, rec := range records {
		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := parseFloat(field)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			row[j] = v
		}
		matrix[i] = row
	}
	return matrix, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func sameShape(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
	}
	return true
}
