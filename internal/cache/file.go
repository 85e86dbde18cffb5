// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

const phasesDir = "phases"

// FileStore keeps one YAML document per (subject, phase) under
// baseDir/phases/<subject>/<phase>.yaml.
type FileStore struct {
	root string
}

// fileEntry is the on-disk form. The payload stays JSON text so the
// round trip is byte-exact.
type fileEntry struct {
	SubjectID string    `yaml:"subject_id"`
	PhaseID   string    `yaml:"phase_id"`
	Status    Status    `yaml:"status"`
	Model     string    `yaml:"model,omitempty"`
	Error     string    `yaml:"error,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at"`
	Payload   string    `yaml:"payload,omitempty"`
}

// NewFileStore returns a store rooted at baseDir/phases. Directories are
// created on first write.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{root: filepath.Join(baseDir, phasesDir)}
}

// Name implements Store.
func (s *FileStore) Name() string { return "file" }

func (s *FileStore) path(subjectID, phaseID string) (string, error) {
	if err := checkKey(subjectID, phaseID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, subjectID, phaseID+".yaml"), nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, subjectID, phaseID string) (Entry, bool, error) {
	p, err := s.path(subjectID, phaseID)
	if err != nil {
		return Entry{}, false, err
	}
	e, err := readFileEntry(p)
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Put implements Store. The document is written to a temp file and renamed
// so readers never see a partial entry.
func (s *FileStore) Put(_ context.Context, e Entry) error {
	p, err := s.path(e.SubjectID, e.PhaseID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := yaml.Marshal(fileEntry{
		SubjectID: e.SubjectID,
		PhaseID:   e.PhaseID,
		Status:    e.Status,
		Model:     e.Model,
		Error:     e.Error,
		UpdatedAt: e.UpdatedAt,
		Payload:   string(e.Payload),
	})
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), "."+e.PhaseID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming cache entry: %w", err)
	}
	return nil
}

// List implements Store.
func (s *FileStore) List(_ context.Context, subjectID string) ([]Entry, error) {
	if err := checkKey(subjectID); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, subjectID)
	files, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache directory %s: %w", dir, err)
	}

	// A corrupt file must not hide the readable entries around it.
	var out []Entry
	var errs []error
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
			continue
		}
		e, err := readFileEntry(filepath.Join(dir, f.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, e)
	}
	return out, errors.Join(errs...)
}

// Delete implements Store. It removes the subject directory even when some
// of its entries no longer parse, and counts the entry files it held.
func (s *FileStore) Delete(_ context.Context, subjectID string) (int, error) {
	if err := checkKey(subjectID); err != nil {
		return 0, err
	}
	dir := filepath.Join(s.root, subjectID)
	files, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading cache directory %s: %w", dir, err)
	}
	n := 0
	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".yaml") {
			n++
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("removing cache directory: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func readFileEntry(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	var fe fileEntry
	if err := yaml.Unmarshal(data, &fe); err != nil {
		return Entry{}, fmt.Errorf("parsing cache entry %s: %w", path, err)
	}
	e := Entry{
		SubjectID: fe.SubjectID,
		PhaseID:   fe.PhaseID,
		Status:    fe.Status,
		Model:     fe.Model,
		Error:     fe.Error,
		UpdatedAt: fe.UpdatedAt,
	}
	if fe.Payload != "" {
		e.Payload = []byte(fe.Payload)
	}
	return e, nil
}
