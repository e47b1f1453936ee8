package result

import "context"

// ImageSet is the payload of a surface job (type 4): three images per index.
type ImageSet struct {
	PDPPath string `json:"pdp_path,omitempty"`
	PLPath  string `json:"pl_path,omitempty"`
	SFPath  string `json:"sf_path,omitempty"`
	Cursor
}

// ImageSet returns the images of the current index. The images of one index
// are written independently, in any order, so the highest index found is not
// necessarily complete. An index is complete when all three images exist.
func (r *Reader) ImageSet(ctx context.Context, t Target, requested *int) ImageSet {
	l := r.layout
	pdps, err := r.files(ctx, t, l.PDPDir, l.PDPPattern)
	if err != nil {
		logReadError(ctx, "imageset", t, err)
		return ImageSet{}
	}
	pls, err := r.files(ctx, t, l.PLDir, l.PLPattern)
	if err != nil {
		logReadError(ctx, "imageset", t, err)
		return ImageSet{}
	}
	sfs, err := r.files(ctx, t, l.SFDir, l.SFPattern)
	if err != nil {
		logReadError(ctx, "imageset", t, err)
		return ImageSet{}
	}

	c, ok := cursor(sortedKeys(pdps), requested, func(i int) bool {
		_, pl := pls[i]
		_, sf := sfs[i]
		return pl && sf
	})
	if !ok {
		return ImageSet{}
	}
	return ImageSet{
		PDPPath: pdps[c.CurrentIndex].Path,
		PLPath:  pls[c.CurrentIndex].Path,
		SFPath:  sfs[c.CurrentIndex].Path,
		Cursor:  c,
	}
}
