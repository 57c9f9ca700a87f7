package transport

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory RemoteStore. Listing order is insertion order so
// tests can assert on processing sequence.
type MemStore struct {
	mu        sync.Mutex
	collision CollisionPolicy
	dirs      map[string]struct{}
	files     map[string][]byte
	order     map[string]int
	seq       int
	opens     []string
	moves     [][2]string

	// ListErr, OpenErr and MoveErr, when set, are returned by the matching operation.
	ListErr error
	OpenErr map[string]error
	MoveErr map[string]error
}

// NewMemStore creates a store whose root directory exists.
func NewMemStore(collision CollisionPolicy) *MemStore {
	return &MemStore{
		collision: collision,
		dirs:      map[string]struct{}{".": {}},
		files:     map[string][]byte{},
		order:     map[string]int{},
		OpenErr:   map[string]error{},
		MoveErr:   map[string]error{},
	}
}

func clean(p string) string {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	if p == "" {
		return "."
	}
	return p
}

// MkdirAll creates dir and its parents.
func (m *MemStore) MkdirAll(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for d := clean(dir); d != "."; d = path.Dir(d) {
		m.dirs[d] = struct{}{}
	}
}

// Put writes a file, creating parent directories.
func (m *MemStore) Put(p string, content []byte) {
	m.MkdirAll(path.Dir(clean(p)))
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	m.files[p] = append([]byte(nil), content...)
	m.seq++
	m.order[p] = m.seq
}

// Exists reports whether a file or directory is present at p.
func (m *MemStore) Exists(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	_, isFile := m.files[p]
	_, isDir := m.dirs[p]
	return isFile || isDir
}

// Opened lists the paths passed to Open, in call order.
func (m *MemStore) Opened() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.opens...)
}

// Moves lists every successful move as {src, dst}.
func (m *MemStore) Moves() [][2]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][2]string(nil), m.moves...)
}

func (m *MemStore) EnsureDir(_ context.Context, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = clean(dir)
	if _, ok := m.dirs[dir]; ok {
		return nil
	}
	if _, ok := m.files[dir]; ok {
		return wrap("mkdir", dir, fs.ErrExist)
	}
	if _, ok := m.dirs[path.Dir(dir)]; !ok {
		return wrap("mkdir", dir, fs.ErrNotExist)
	}
	m.dirs[dir] = struct{}{}
	return nil
}

func (m *MemStore) List(_ context.Context, dir string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, wrap("list", dir, m.ListErr)
	}
	dir = clean(dir)
	if _, ok := m.dirs[dir]; !ok {
		return nil, wrap("list", dir, fs.ErrNotExist)
	}

	var files []string
	for p := range m.files {
		if path.Dir(p) == dir {
			files = append(files, p)
		}
	}
	sort.Slice(files, func(i, j int) bool { return m.order[files[i]] < m.order[files[j]] })

	var subdirs []string
	for d := range m.dirs {
		if d != dir && path.Dir(d) == dir {
			subdirs = append(subdirs, d)
		}
	}
	sort.Strings(subdirs)

	out := make([]Entry, 0, len(files)+len(subdirs))
	for _, d := range subdirs {
		out = append(out, Entry{Name: path.Base(d), IsDir: true})
	}
	for _, f := range files {
		out = append(out, Entry{Name: path.Base(f), Size: int64(len(m.files[f])), ModTime: time.Unix(int64(m.order[f]), 0)})
	}
	return out, nil
}

func (m *MemStore) Open(_ context.Context, p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	m.opens = append(m.opens, p)
	if err := m.OpenErr[p]; err != nil {
		return nil, wrap("open", p, err)
	}
	content, ok := m.files[p]
	if !ok {
		return nil, wrap("open", p, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (m *MemStore) Move(_ context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, dst = clean(src), clean(dst)
	if err := m.MoveErr[src]; err != nil {
		return wrap("move", src, err)
	}
	content, ok := m.files[src]
	if !ok {
		return wrap("move", src, fs.ErrNotExist)
	}
	if _, ok := m.dirs[path.Dir(dst)]; !ok {
		return wrap("move", dst, fs.ErrNotExist)
	}
	if _, exists := m.files[dst]; exists && m.collision == CollisionFail {
		return wrap("move", dst, ErrDestinationExists)
	}
	delete(m.files, src)
	m.files[dst] = content
	m.order[dst] = m.order[src]
	delete(m.order, src)
	m.moves = append(m.moves, [2]string{src, dst})
	return nil
}

func (m *MemStore) Close() error { return nil }
