package result

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"time"

	"github.com/CZERTAINLY/Evaluator/internal/model"
	"github.com/CZERTAINLY/Evaluator/internal/walk"
)

// Reader serves the results of jobs while they are still writing them. Every
// read only ever returns data proven to be complete, missing data results in
// an empty payload with a zero Cursor and never in an error.
type Reader struct {
	fsys     fs.FS
	layout   Layout
	attempts int
	delay    time.Duration
}

type Option func(*Reader)

// WithRetry sets how many times a table is read before giving up and the
// delay between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(r *Reader) {
		r.attempts = attempts
		r.delay = delay
	}
}

func WithLayout(layout Layout) Option {
	return func(r *Reader) { r.layout = layout }
}

// NewReader returns a reader over the storage filesystem fsys. Paths returned
// in payloads are relative to fsys.
func NewReader(fsys fs.FS, opts ...Option) *Reader {
	r := &Reader{
		fsys:     fsys,
		layout:   DefaultLayout(),
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read dispatches to the shape of the evaluation type.
func (r *Reader) Read(ctx context.Context, evaluateType int, t Target, requested *int) (any, error) {
	switch evaluateType {
	case model.TypePathLoss:
		return r.Table(ctx, t, requested), nil
	case model.TypeElevation:
		return r.Matrix(ctx, t, requested), nil
	case model.TypePDP:
		return r.Pair(ctx, t, requested), nil
	case model.TypeSurface:
		return r.ImageSet(ctx, t, requested), nil
	default:
		return nil, fmt.Errorf("%d: %w", evaluateType, model.ErrInvalidType)
	}
}

// files indexes the entries of <t.Output>/<dir> matching rx.
func (r *Reader) files(ctx context.Context, t Target, dir string, rx *regexp.Regexp) (map[int]walk.Entry, error) {
	return walk.Index(walk.Files(ctx, r.fsys, path.Join(t.Output, dir), rx))
}

// satellite returns the dataset image of index if it exists.
func (r *Reader) satellite(t Target, index int) string {
	if t.Dataset == "" {
		return ""
	}
	p := path.Join(r.layout.DatasetDir, t.Dataset, r.layout.SatelliteDir, strconv.Itoa(index)+".png")
	if _, err := fs.Stat(r.fsys, p); err != nil {
		return ""
	}
	return p
}

func logReadError(ctx context.Context, shape string, t Target, err error) {
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	slog.WarnContext(ctx, "reading result failed: returning empty", "shape", shape, "output", t.Output, "error", err)
}
