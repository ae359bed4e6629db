// Package snapshot stores golden outputs and reconciles captured CLI output
// against them.
package snapshot

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by a Store when no snapshot exists for a key
var ErrNotFound = errors.New("snapshot not found")

// Key identifies one stored snapshot: the artifact Name of case CaseID
type Key struct {
	CaseID string
	Name   string
}

func (k Key) String() string {
	return k.CaseID + "/" + k.Name
}

// Validate rejects keys that would escape the store's namespace
func (k Key) Validate() error {
	for _, part := range []string{k.CaseID, k.Name} {
		if part == "" {
			return fmt.Errorf("invalid snapshot key %q: empty component", k.String())
		}
		if path.IsAbs(part) || strings.Contains(part, "\\") {
			return fmt.Errorf("invalid snapshot key %q", k.String())
		}
		for _, seg := range strings.Split(part, "/") {
			if seg == "" || seg == "." || seg == ".." {
				return fmt.Errorf("invalid snapshot key %q", k.String())
			}
		}
	}
	if strings.Contains(k.Name, "/") {
		return fmt.Errorf("invalid snapshot key %q: name must not contain a path separator", k.String())
	}
	return nil
}

// Store persists snapshot contents. Implementations must be safe for
// concurrent use.
type Store interface {
	// Read returns ErrNotFound when the key has never been written
	Read(ctx context.Context, key Key) ([]byte, error)
	Write(ctx context.Context, key Key, content []byte) error
}

// MemoryStore keeps snapshots in a map. Used for tests and dry runs.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[Key][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[Key][]byte)}
}

func (s *MemoryStore) Read(_ context.Context, key Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.snapshots[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), content...), nil
}

func (s *MemoryStore) Write(_ context.Context, key Key, content []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key] = append([]byte(nil), content...)
	return nil
}

// Len returns the number of stored snapshots
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
