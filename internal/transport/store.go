// Package transport wraps the remote directory the intake pipeline polls.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
)

// RemoteStore is the capability the pipeline needs from a remote directory.
// Paths are slash separated and relative to the store's root.
type RemoteStore interface {
	// EnsureDir creates dir if it does not exist. Existing directories are left alone.
	EnsureDir(ctx context.Context, dir string) error
	// List returns every entry directly under dir.
	List(ctx context.Context, dir string) ([]Entry, error)
	// Open returns a read handle; callers must close it.
	Open(ctx context.Context, p string) (io.ReadCloser, error)
	// Move renames src to dst following the store's collision policy.
	Move(ctx context.Context, src, dst string) error
	Close() error
}

// Entry is one item of a directory listing.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// CollisionPolicy decides what Move does when dst already exists.
type CollisionPolicy int

const (
	CollisionFail CollisionPolicy = iota
	CollisionOverwrite
)

// ParseCollisionPolicy maps the MOVE_COLLISION setting.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", common.CollisionFail:
		return CollisionFail, nil
	case common.CollisionOverwrite:
		return CollisionOverwrite, nil
	default:
		return CollisionFail, fmt.Errorf("unknown collision policy %q", s)
	}
}

func (p CollisionPolicy) String() string {
	if p == CollisionOverwrite {
		return common.CollisionOverwrite
	}
	return common.CollisionFail
}

// ErrDestinationExists is returned by Move under CollisionFail.
var ErrDestinationExists = errors.New("destination already exists")

// Error describes a failed remote operation.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match any transport failure with common.ErrTransport.
func (e *Error) Is(target error) bool { return target == common.ErrTransport }

func wrap(op, p string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Op: op, Path: p, Err: err}
}

// Join builds a remote path from slash separated parts.
func Join(parts ...string) string {
	return path.Join(parts...)
}
