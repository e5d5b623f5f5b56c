// Package file implements domain.CommitmentStore as a single JSON document on
// local disk, mirroring the browser's localStorage layout.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// StorageKey is the top-level key the commitment map lives under.
const StorageKey = "darkpool_commitments"

var _ domain.CommitmentStore = (*CommitmentStore)(nil)

// CommitmentStore keeps every commitment in one JSON file. Each mutation
// rewrites the file through a temp file and rename, so a crash never leaves a
// half-written document.
type CommitmentStore struct {
	path string
	mu   sync.Mutex
}

// NewCommitmentStore returns a store persisted at path. The parent directory
// is created if needed; the file itself appears on first Put.
func NewCommitmentStore(path string) (*CommitmentStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("file: create dir for %s: %w", path, err)
	}
	s := &CommitmentStore{path: path}
	// Fail fast on a corrupt document rather than at first reveal.
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

type document map[string]map[string]domain.Commitment

func (s *CommitmentStore) load() (map[string]domain.Commitment, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]domain.Commitment{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return map[string]domain.Commitment{}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("file: decode %s: %w", s.path, err)
	}
	m := doc[StorageKey]
	if m == nil {
		m = map[string]domain.Commitment{}
	}
	return m, nil
}

func (s *CommitmentStore) save(m map[string]domain.Commitment) error {
	data, err := json.MarshalIndent(document{StorageKey: m}, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode commitments: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".commitments-*")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close temp: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("file: chmod temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("file: replace %s: %w", s.path, err)
	}
	return nil
}

func key(marketID uint64) string {
	return strconv.FormatUint(marketID, 10)
}

// Put overwrites the entry for c.MarketID.
func (s *CommitmentStore) Put(_ context.Context, c domain.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	m[key(c.MarketID)] = c
	return s.save(m)
}

// Get returns the entry for marketID or domain.ErrNotFound.
func (s *CommitmentStore) Get(_ context.Context, marketID uint64) (domain.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return domain.Commitment{}, err
	}
	c, ok := m[key(marketID)]
	if !ok {
		return domain.Commitment{}, fmt.Errorf("file: commitment %d: %w", marketID, domain.ErrNotFound)
	}
	return c, nil
}

// Remove deletes the entry for marketID. Absent keys are not an error.
func (s *CommitmentStore) Remove(_ context.Context, marketID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[key(marketID)]; !ok {
		return nil
	}
	delete(m, key(marketID))
	return s.save(m)
}

// Clear drops every entry.
func (s *CommitmentStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(map[string]domain.Commitment{})
}

// List returns every entry ordered by market id.
func (s *CommitmentStore) List(context.Context) ([]domain.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Commitment, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}
