package intake

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Mark records a file whose every record was accepted.
type Mark struct {
	Name     string    `json:"name"`
	Checksum string    `json:"checksum"`
	Records  int       `json:"records"`
	CycleID  string    `json:"cycle_id"`
	At       time.Time `json:"at"`
}

// DedupSet remembers files that were fully uploaded so a file that could not
// be moved out of the watched directory is not submitted again.
type DedupSet interface {
	Contains(ctx context.Context, name string) (bool, error)
	Add(ctx context.Context, m Mark) error
}

// MemorySet is a process-lifetime DedupSet.
type MemorySet struct {
	mu    sync.RWMutex
	marks map[string]Mark
}

func NewMemorySet() *MemorySet {
	return &MemorySet{marks: map[string]Mark{}}
}

func (s *MemorySet) Contains(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.marks[name]
	return ok, nil
}

// Add is idempotent; the first mark for a name wins.
func (s *MemorySet) Add(_ context.Context, m Mark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.marks[m.Name]; !ok {
		s.marks[m.Name] = m
	}
	return nil
}

// Names returns the marked names in sorted order.
func (s *MemorySet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.marks))
	for n := range s.marks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s *MemorySet) Get(name string) (Mark, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.marks[name]
	return m, ok
}
