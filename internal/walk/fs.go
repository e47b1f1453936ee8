package walk

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"path"
	"regexp"
	"strconv"
)

const readDirBatch = 64

// Entry is a regular file found by Files.
type Entry struct {
	// Index is the integer captured by the first group of the pattern, 0
	// for patterns without a group.
	Index int
	// Path is the slash separated path of the file inside the filesystem.
	Path string

	fsys fs.FS
}

func (e Entry) Name() string {
	return path.Base(e.Path)
}

func (e Entry) Open() (io.ReadCloser, error) {
	return e.fsys.Open(e.Path)
}

// Files lazily yields the regular files of dir whose name matches rx. It does
// not recurse. The directory is read in small batches so a consumer which
// stops early never lists the rest of it. Every range over the returned
// sequence reads the directory again.
//
// Names whose captured group is not a valid int are skipped. A missing
// directory yields a single error wrapping fs.ErrNotExist.
func Files(ctx context.Context, fsys fs.FS, dir string, rx *regexp.Regexp) iter.Seq2[Entry, error] {
	if fsys == nil {
		panic("fsys is nil")
	}
	if rx == nil {
		panic("rx is nil")
	}

	return func(yield func(Entry, error) bool) {
		f, err := fsys.Open(dir)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		defer func() {
			_ = f.Close()
		}()
		rdf, ok := f.(fs.ReadDirFile)
		if !ok {
			yield(Entry{}, &fs.PathError{Op: "readdir", Path: dir, Err: errors.New("not a directory")})
			return
		}

		for {
			if err := ctx.Err(); err != nil {
				yield(Entry{}, err)
				return
			}
			batch, err := rdf.ReadDir(readDirBatch)
			for _, d := range batch {
				entry, ok := match(fsys, dir, d, rx)
				if !ok {
					continue
				}
				if !yield(entry, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) || (err == nil && len(batch) == 0) {
				return
			}
			if err != nil {
				yield(Entry{}, err)
				return
			}
		}
	}
}

func match(fsys fs.FS, dir string, d fs.DirEntry, rx *regexp.Regexp) (Entry, bool) {
	if !d.Type().IsRegular() {
		return Entry{}, false
	}
	m := rx.FindStringSubmatch(d.Name())
	if m == nil {
		return Entry{}, false
	}
	var idx int
	if len(m) > 1 {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			return Entry{}, false
		}
		idx = n
	}
	return Entry{
		Index: idx,
		Path:  path.Join(dir, d.Name()),
		fsys:  fsys,
	}, true
}

// Index consumes seq into a map keyed by Entry.Index. When two files share an
// index the one with the lexically smaller name wins, so the result does not
// depend on the directory order. A missing directory is an empty index.
func Index(seq iter.Seq2[Entry, error]) (map[int]Entry, error) {
	ret := make(map[int]Entry)
	for entry, err := range seq {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return ret, nil
			}
			return ret, err
		}
		if prev, ok := ret[entry.Index]; ok && prev.Name() <= entry.Name() {
			continue
		}
		ret[entry.Index] = entry
	}
	return ret, nil
}

// First returns the lexically smallest entry of seq.
func First(seq iter.Seq2[Entry, error]) (Entry, bool, error) {
	var first Entry
	var found bool
	for entry, err := range seq {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Entry{}, false, nil
			}
			return Entry{}, false, err
		}
		if !found || entry.Name() < first.Name() {
			first, found = entry, true
		}
	}
	return first, found, nil
}
