// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pdiddy/dossier/internal/cache"
	"github.com/pdiddy/dossier/internal/sqlitedb"
	"github.com/pdiddy/dossier/pkg/types"
)

// workspace is the on-disk state under cache.dir that a command opened:
// the shared SQLite database and the phase cache over its stores.
type workspace struct {
	db    *sql.DB
	cache *cache.PhaseCache
}

// openWorkspace opens what c enables. mode overrides c.Cache.Mode; the
// cache subcommands pass readwrite so they can inspect a cache that runs
// leave alone.
func openWorkspace(ctx context.Context, c types.Config, mode types.CacheMode) (*workspace, error) {
	w := &workspace{}
	durable := mode != types.CacheOff && c.Cache.DurableEnabled
	useSQLite := durable && c.Cache.DurableBackend != "badger"

	if useSQLite || c.Metrics.DBEnabled {
		db, err := sqlitedb.Open(c.Cache.Dir)
		if err != nil {
			return nil, err
		}
		w.db = db
	}

	if mode == types.CacheOff {
		return w, nil
	}

	var stores []cache.Store
	if durable {
		if useSQLite {
			s, err := cache.NewSQLiteStore(ctx, w.db)
			if err != nil {
				w.Close()
				return nil, err
			}
			stores = append(stores, s)
		} else {
			s, err := cache.OpenBadgerStore(c.Cache.Dir, false, logger)
			if err != nil {
				w.Close()
				return nil, err
			}
			stores = append(stores, s)
		}
	}
	if c.Cache.FileEnabled {
		stores = append(stores, cache.NewFileStore(c.Cache.Dir))
	}
	w.cache = cache.New(cache.Options{Read: mode.Reads(), Write: mode.Writes(), Logger: logger}, stores...)
	return w, nil
}

// Close closes the cache stores before the database they may share.
func (w *workspace) Close() error {
	var errs []error
	if w.cache != nil {
		errs = append(errs, w.cache.Close())
	}
	if w.db != nil {
		errs = append(errs, w.db.Close())
	}
	return errors.Join(errs...)
}

// subjectFromURL builds a subject for commands that only need its ID.
func subjectFromURL(rawURL string) (types.Subject, error) {
	if rawURL == "" {
		return types.Subject{}, fmt.Errorf("--url is required")
	}
	s := types.Subject{Name: rawURL, CanonicalURL: rawURL}
	if err := s.Validate(); err != nil {
		return types.Subject{}, err
	}
	return s, nil
}
