package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore is a RemoteStore over a Cloud Storage bucket. Directories are object
// name prefixes; EnsureDir writes a zero-byte "dir/" marker so empty
// directories survive a listing.
type GCSStore struct {
	client    *storage.Client
	bucket    *storage.BucketHandle
	root      string
	collision CollisionPolicy
	logger    *slog.Logger
}

// NewGCSStore opens a storage client using application default credentials
// unless opts say otherwise.
func NewGCSStore(ctx context.Context, bucket, root string, collision CollisionPolicy, logger *slog.Logger, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, wrap("dial", "gs://"+bucket, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSStore{
		client:    client,
		bucket:    client.Bucket(bucket),
		root:      strings.Trim(root, "/"),
		collision: collision,
		logger:    logger,
	}, nil
}

func (g *GCSStore) object(p string) string {
	return strings.TrimPrefix(path.Join(g.root, strings.TrimPrefix(p, "/")), "/")
}

func (g *GCSStore) prefix(dir string) string {
	o := g.object(dir)
	if o == "" || o == "." {
		return ""
	}
	return o + "/"
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

func notExist(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %w", fs.ErrNotExist, err)
	}
	return err
}

func (g *GCSStore) EnsureDir(ctx context.Context, dir string) error {
	marker := g.prefix(dir)
	if marker == "" {
		return nil
	}
	w := g.bucket.Object(marker).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return nil
		}
		return wrap("mkdir", marker, err)
	}
	g.logger.Info("created remote directory", "dir", marker)
	return nil
}

func (g *GCSStore) List(ctx context.Context, dir string) ([]Entry, error) {
	prefix := g.prefix(dir)
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})

	var out []Entry
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrap("list", prefix, err)
		}
		if attrs.Prefix != "" {
			out = append(out, Entry{Name: path.Base(strings.TrimSuffix(attrs.Prefix, "/")), IsDir: true})
			continue
		}
		name := strings.TrimPrefix(attrs.Name, prefix)
		if name == "" {
			// the directory marker itself
			continue
		}
		out = append(out, Entry{Name: name, Size: attrs.Size, ModTime: attrs.Updated})
	}
	return out, nil
}

func (g *GCSStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	name := g.object(p)
	r, err := g.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, wrap("open", name, notExist(err))
	}
	return r, nil
}

// Move copies src to dst and deletes src. If the delete fails the copy is
// removed again so the object is only ever found at one of the two paths.
func (g *GCSStore) Move(ctx context.Context, src, dst string) error {
	from, to := g.object(src), g.object(dst)
	dstObj := g.bucket.Object(to)
	if g.collision == CollisionFail {
		dstObj = dstObj.If(storage.Conditions{DoesNotExist: true})
	}
	attrs, err := dstObj.CopierFrom(g.bucket.Object(from)).Run(ctx)
	if err != nil {
		if isPreconditionFailed(err) {
			return wrap("move", to, ErrDestinationExists)
		}
		return wrap("move", from, notExist(err))
	}
	if err := g.bucket.Object(from).Delete(ctx); err != nil {
		copied := g.bucket.Object(to).If(storage.Conditions{GenerationMatch: attrs.Generation})
		if rerr := copied.Delete(context.WithoutCancel(ctx)); rerr != nil {
			g.logger.Error("move rollback failed; object exists at both paths", "src", from, "dst", to, "error", rerr)
		}
		return wrap("delete", from, notExist(err))
	}
	return nil
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}
