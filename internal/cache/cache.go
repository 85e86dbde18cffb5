// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache stores phase results keyed by (subject, phase) so a rerun
// for the same subject can skip phases that already succeeded. Caching is an
// optimization: every store failure is logged and swallowed.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/dossier/internal/provider"
)

// Status distinguishes cached successes from error markers.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Entry is one cached phase outcome.
type Entry struct {
	SubjectID string          `json:"subject_id"`
	PhaseID   string          `json:"phase_id"`
	Status    Status          `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	Model     string          `json:"model,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`

	// Store names the backing store the entry was read from.
	Store string `json:"-"`
}

// Store is one backing tier of the phase cache. Implementations must be
// safe for concurrent use across subjects.
type Store interface {
	Name() string
	Get(ctx context.Context, subjectID, phaseID string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
	// List may return the readable entries together with an error.
	List(ctx context.Context, subjectID string) ([]Entry, error)
	Delete(ctx context.Context, subjectID string) (int, error)
	Close() error
}

// Options selects which operations are enabled.
type Options struct {
	Read   bool
	Write  bool
	Logger *slog.Logger
}

// PhaseCache reads through its stores in priority order and writes to all
// of them. A nil *PhaseCache is a valid, disabled cache.
type PhaseCache struct {
	stores []Store
	read   bool
	write  bool
	logger *slog.Logger
	now    func() time.Time
}

// New returns a cache over stores, highest read priority first (the
// durable store, then the file store).
func New(opts Options, stores ...Store) *PhaseCache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var live []Store
	for _, s := range stores {
		if s != nil {
			live = append(live, s)
		}
	}
	return &PhaseCache{
		stores: live,
		read:   opts.Read,
		write:  opts.Write,
		logger: logger,
		now:    time.Now,
	}
}

// ReadEnabled reports whether Get can return hits.
func (c *PhaseCache) ReadEnabled() bool { return c != nil && c.read && len(c.stores) > 0 }

// WriteEnabled reports whether Set and MarkError persist anything.
func (c *PhaseCache) WriteEnabled() bool { return c != nil && c.write && len(c.stores) > 0 }

// Get returns the cached payload for the phase. The first store holding an
// entry decides: a success is a hit, an error marker is a miss.
func (c *PhaseCache) Get(ctx context.Context, subjectID, phaseID string) (json.RawMessage, bool) {
	if !c.ReadEnabled() {
		return nil, false
	}
	for _, s := range c.stores {
		e, ok, err := s.Get(ctx, subjectID, phaseID)
		if err != nil {
			c.logFailure("get", s, subjectID, phaseID, err)
			continue
		}
		if !ok {
			continue
		}
		if e.Status != StatusOK {
			c.logger.Debug("cache holds error marker", "store", s.Name(), "subject", subjectID, "phase", phaseID, "error", e.Error)
			return nil, false
		}
		c.logger.Debug("cache hit", "store", s.Name(), "subject", subjectID, "phase", phaseID)
		return e.Payload, true
	}
	return nil, false
}

// Set records a successful phase result in every store.
func (c *PhaseCache) Set(ctx context.Context, subjectID, phaseID, model string, payload json.RawMessage) {
	c.put(ctx, Entry{
		SubjectID: subjectID,
		PhaseID:   phaseID,
		Status:    StatusOK,
		Payload:   payload,
		Model:     model,
	})
}

// MarkError records a terminal failure so a later Get does not return a
// stale success for the phase.
func (c *PhaseCache) MarkError(ctx context.Context, subjectID, phaseID, message string) {
	c.put(ctx, Entry{
		SubjectID: subjectID,
		PhaseID:   phaseID,
		Status:    StatusError,
		Error:     message,
	})
}

func (c *PhaseCache) put(ctx context.Context, e Entry) {
	if !c.WriteEnabled() {
		return
	}
	e.UpdatedAt = c.now().UTC()
	for _, s := range c.stores {
		if err := s.Put(ctx, e); err != nil {
			c.logFailure("put", s, e.SubjectID, e.PhaseID, err)
		}
	}
}

// List returns one entry per phase for the subject, taking each phase from
// the highest-priority store that has it.
func (c *PhaseCache) List(ctx context.Context, subjectID string) ([]Entry, error) {
	if c == nil {
		return nil, nil
	}
	seen := make(map[string]bool)
	var out []Entry
	var errs []error
	for _, s := range c.stores {
		entries, err := s.List(ctx, subjectID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
		for _, e := range entries {
			if seen[e.PhaseID] {
				continue
			}
			seen[e.PhaseID] = true
			e.Store = s.Name()
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhaseID < out[j].PhaseID })
	return out, errors.Join(errs...)
}

// Clear removes every entry for the subject from every store and returns
// the number of entries removed.
func (c *PhaseCache) Clear(ctx context.Context, subjectID string) (int, error) {
	if c == nil {
		return 0, nil
	}
	total := 0
	var errs []error
	for _, s := range c.stores {
		n, err := s.Delete(ctx, subjectID)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return total, errors.Join(errs...)
}

// Close closes every store.
func (c *PhaseCache) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, s := range c.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Stores returns the names of the backing stores in priority order.
func (c *PhaseCache) Stores() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.stores))
	for i, s := range c.stores {
		names[i] = s.Name()
	}
	return names
}

func (c *PhaseCache) logFailure(op string, s Store, subjectID, phaseID string, err error) {
	c.logger.Warn("phase cache "+op+" failed",
		"store", s.Name(), "subject", subjectID, "phase", phaseID,
		"error", fmt.Errorf("%w: %w", provider.ErrPersistence, err))
}

// checkKey rejects identifiers that could escape a store's namespace.
func checkKey(parts ...string) error {
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			return fmt.Errorf("invalid cache key component %q", p)
		}
	}
	return nil
}
