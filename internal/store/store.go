// Package store persists evaluation records. Badger is the embedded default,
// MongoDB is used when several instances share the records.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/CZERTAINLY/Evaluator/internal/model"
)

const (
	defaultBadgerDir = "badger"
	defaultDatabase  = "evaluator"
)

// Open returns the store configured by cfg. A relative badger path is
// resolved against root.
func Open(ctx context.Context, cfg model.StoreConfig, root string) (model.Store, error) {
	switch cfg.Driver {
	case "", model.StoreBadger:
		path := cfg.Path
		if path == "" {
			path = defaultBadgerDir
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		return OpenBadger(ctx, path)
	case model.StoreMongo:
		database := cfg.Database
		if database == "" {
			database = defaultDatabase
		}
		return OpenMongo(ctx, cfg.URI, database)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
