package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/CZERTAINLY/Evaluator/internal/model"
)

const evaluationPrefix = "evaluations/"

// Badger stores evaluations as JSON values under evaluations/<id>.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens the database in dir, an empty dir means in memory.
func OpenBadger(ctx context.Context, dir string) (*Badger, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = badgerLogger{ctx: ctx, logger: slog.Default().With("component", "badger")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func key(id string) []byte {
	return []byte(evaluationPrefix + id)
}

func (s *Badger) Create(_ context.Context, e model.Evaluation) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.UUID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key(e.UUID))
		switch {
		case err == nil:
			return fmt.Errorf("%s: %w", e.UUID, model.ErrExists)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key(e.UUID), value)
	})
}

func (s *Badger) Get(_ context.Context, id string) (model.Evaluation, error) {
	var e model.Evaluation
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = get(txn, id)
		return err
	})
	return e, err
}

func (s *Badger) List(_ context.Context) ([]model.Evaluation, error) {
	var ret []model.Evaluation
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(evaluationPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e model.Evaluation
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			ret = append(ret, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// newest first
	slices.SortStableFunc(ret, func(a, b model.Evaluation) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.UUID, b.UUID)
	})
	return ret, nil
}

// Claim reads and writes the record in one transaction, so of two concurrent
// claims only one succeeds.
func (s *Badger) Claim(_ context.Context, id string) (model.Evaluation, error) {
	return s.update(id, func(e *model.Evaluation) error {
		return e.Claim()
	})
}

func (s *Badger) Release(_ context.Context, id string) error {
	_, err := s.update(id, func(e *model.Evaluation) error {
		return e.Release()
	})
	return err
}

// Finalize writes the terminal state in one transaction, nothing is written
// if it fails.
func (s *Badger) Finalize(_ context.Context, f model.Finalization) error {
	_, err := s.update(f.ID, f.Apply)
	return err
}

func (s *Badger) Delete(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := get(txn, id); err != nil {
			return err
		}
		return txn.Delete(key(id))
	})
}

func (s *Badger) Close() error {
	return s.db.Close()
}

// update applies fn to the record. A conflicting concurrent transaction
// makes Update return badger.ErrConflict, the update is then retried on the
// fresh value.
func (s *Badger) update(id string, fn func(*model.Evaluation) error) (model.Evaluation, error) {
	var e model.Evaluation
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			var err error
			e, err = get(txn, id)
			if err != nil {
				return err
			}
			if err := fn(&e); err != nil {
				return err
			}
			value, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", id, err)
			}
			return txn.Set(key(id), value)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return e, err
	}
}

func get(txn *badger.Txn, id string) (model.Evaluation, error) {
	var e model.Evaluation
	item, err := txn.Get(key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return e, fmt.Errorf("evaluation %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return e, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	return e, err
}

// badgerLogger sends badger logs to slog. Badger is chatty at info level, so
// its info messages are logged as debug.
type badgerLogger struct {
	ctx    context.Context
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log(slog.LevelError, format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log(slog.LevelWarn, format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l badgerLogger) log(level slog.Level, format string, args ...any) {
	ctx := context.WithoutCancel(l.ctx)
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, strings.TrimSpace(fmt.Sprintf(format, args...)))
}
