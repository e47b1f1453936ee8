package result

import (
	"context"
	"path"
	"regexp"

	"github.com/CZERTAINLY/Evaluator/internal/walk"
)

// Pair is the payload of a power delay profile job (type 3): two images
// written once and a pair of generated images per index.
type Pair struct {
	LeftUpPath    string `json:"left_up_path,omitempty"`
	LeftDownPath  string `json:"left_down_path,omitempty"`
	RightUpPath   string `json:"right_up_path,omitempty"`
	RightDownPath string `json:"right_down_path,omitempty"`
	Cursor
}

// Pair returns the singleton images, whenever present, and the generated pair
// of the current index.
func (r *Reader) Pair(ctx context.Context, t Target, requested *int) Pair {
	l := r.layout
	ret := Pair{
		LeftUpPath:   r.singleton(ctx, t, l.LeftUpDir, l.SingletonPattern),
		LeftDownPath: r.singleton(ctx, t, l.LeftDownDir, l.SingletonPattern),
	}

	ups, err := r.files(ctx, t, l.RightUpDir, l.RightUpPattern)
	if err != nil {
		logReadError(ctx, "pair", t, err)
		return ret
	}
	downs, err := r.files(ctx, t, l.RightDownDir, l.RightDownPattern)
	if err != nil {
		logReadError(ctx, "pair", t, err)
		return ret
	}

	c, ok := cursor(sortedKeys(ups), requested, func(i int) bool {
		_, ok := downs[i]
		return ok
	})
	if !ok {
		return ret
	}
	ret.Cursor = c
	ret.RightUpPath = ups[c.CurrentIndex].Path
	ret.RightDownPath = downs[c.CurrentIndex].Path
	return ret
}

func (r *Reader) singleton(ctx context.Context, t Target, dir string, rx *regexp.Regexp) string {
	e, found, err := walk.First(walk.Files(ctx, r.fsys, path.Join(t.Output, dir), rx))
	if err != nil {
		logReadError(ctx, "pair", t, err)
		return ""
	}
	if !found {
		return ""
	}
	return e.Path
}
