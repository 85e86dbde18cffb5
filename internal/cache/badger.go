// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

const badgerDir = "badger"

// BadgerStore is an alternative durable store on an embedded BadgerDB.
// Keys are "phase/<subject>/<phase>"; values are JSON-encoded entries.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens a BadgerDB under baseDir/badger. With inMemory set
// nothing touches disk and baseDir is ignored.
func OpenBadgerStore(baseDir string, inMemory bool, logger *slog.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(baseDir, badgerDir)).WithSyncWrites(true)
	}
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Name implements Store.
func (s *BadgerStore) Name() string { return "badger" }

func badgerKey(subjectID, phaseID string) []byte {
	return []byte("phase/" + subjectID + "/" + phaseID)
}

func badgerPrefix(subjectID string) []byte {
	return []byte("phase/" + subjectID + "/")
}

// Get implements Store.
func (s *BadgerStore) Get(_ context.Context, subjectID, phaseID string) (Entry, bool, error) {
	if err := checkKey(subjectID, phaseID); err != nil {
		return Entry{}, false, err
	}
	var e Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(subjectID, phaseID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading badger entry: %w", err)
	}
	return e, true, nil
}

// Put implements Store.
func (s *BadgerStore) Put(_ context.Context, e Entry) error {
	if err := checkKey(e.SubjectID, e.PhaseID); err != nil {
		return err
	}
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(e.SubjectID, e.PhaseID), val)
	}); err != nil {
		return fmt.Errorf("writing badger entry: %w", err)
	}
	return nil
}

// List implements Store.
func (s *BadgerStore) List(_ context.Context, subjectID string) ([]Entry, error) {
	if err := checkKey(subjectID); err != nil {
		return nil, err
	}
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := badgerPrefix(subjectID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing badger entries: %w", err)
	}
	return out, nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(_ context.Context, subjectID string) (int, error) {
	if err := checkKey(subjectID); err != nil {
		return 0, err
	}
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := badgerPrefix(subjectID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning badger entries: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("deleting badger entries: %w", err)
	}
	return len(keys), nil
}

// Close implements Store.
func (s *BadgerStore) Close() error { return s.db.Close() }

// badgerLogger adapts slog to badger.Logger. Badger's info chatter is
// demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
