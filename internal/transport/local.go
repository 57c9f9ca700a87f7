package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalStore is a RemoteStore over a directory on the local filesystem, such
// as a mounted partner share.
type LocalStore struct {
	root      string
	collision CollisionPolicy
	logger    *slog.Logger
}

func NewLocalStore(root string, collision CollisionPolicy, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, wrap("resolve", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, wrap("stat", abs, err)
	}
	if !info.IsDir() {
		return nil, wrap("stat", abs, fmt.Errorf("%w: not a directory", fs.ErrInvalid))
	}
	return &LocalStore{root: abs, collision: collision, logger: logger}, nil
}

func (l *LocalStore) resolve(p string) string {
	return filepath.Join(l.root, filepath.FromSlash(p))
}

func (l *LocalStore) EnsureDir(_ context.Context, dir string) error {
	full := l.resolve(dir)
	info, err := os.Stat(full)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return wrap("mkdir", full, fmt.Errorf("%w: not a directory", fs.ErrExist))
	case !errors.Is(err, fs.ErrNotExist):
		return wrap("stat", full, err)
	}
	if err := os.Mkdir(full, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return wrap("mkdir", full, err)
	}
	l.logger.Info("created directory", "dir", full)
	return nil
}

func (l *LocalStore) List(_ context.Context, dir string) ([]Entry, error) {
	full := l.resolve(dir)
	des, err := os.ReadDir(full)
	if err != nil {
		return nil, wrap("list", full, err)
	}
	out := make([]Entry, 0, len(des))
	for _, d := range des {
		info, err := d.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, Entry{Name: d.Name(), IsDir: d.IsDir(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return out, nil
}

func (l *LocalStore) Open(_ context.Context, p string) (io.ReadCloser, error) {
	full := l.resolve(p)
	f, err := os.Open(full)
	if err != nil {
		return nil, wrap("open", full, err)
	}
	return f, nil
}

func (l *LocalStore) Move(_ context.Context, src, dst string) error {
	from, to := l.resolve(src), l.resolve(dst)
	if l.collision == CollisionFail {
		if _, err := os.Lstat(to); err == nil {
			return wrap("move", to, ErrDestinationExists)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return wrap("stat", to, err)
		}
	}
	if err := os.Rename(from, to); err != nil {
		return wrap("move", from, err)
	}
	return nil
}

func (l *LocalStore) Close() error { return nil }
