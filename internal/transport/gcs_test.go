package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
)

const testBucket = "arrivals-drop"

// fakeGCS serves the subset of the Cloud Storage JSON API that GCSStore
// uses for listing and moving: objects.list, objects.rewrite and
// objects.delete.
type fakeGCS struct {
	mu         sync.Mutex
	objects    map[string]int64 // name -> generation
	gen        int64
	failDelete map[string]int // name -> status returned by delete
	deletes    []string
}

func newFakeGCS(names ...string) *fakeGCS {
	f := &fakeGCS{objects: map[string]int64{}, failDelete: map[string]int{}}
	for _, n := range names {
		f.gen++
		f.objects[n] = f.gen
	}
	return f
}

func (f *fakeGCS) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[name]
	return ok
}

func (f *fakeGCS) setDeleteFailure(name string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code == 0 {
		delete(f.failDelete, name)
		return
	}
	f.failDelete[name] = code
}

func (f *fakeGCS) deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func gcsError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, code, http.StatusText(code))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func objectJSON(name string, gen int64) map[string]any {
	return map[string]any{
		"kind":       "storage#object",
		"bucket":     testBucket,
		"name":       name,
		"generation": strconv.FormatInt(gen, 10),
		"size":       "0",
	}
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	segs := strings.Split(strings.TrimPrefix(r.URL.EscapedPath(), "/storage/v1/"), "/")
	for i, s := range segs {
		segs[i], _ = url.PathUnescape(s)
	}
	q := r.URL.Query()

	switch {
	case r.Method == http.MethodGet && len(segs) == 3 && segs[2] == "o":
		f.list(w, q.Get("prefix"), q.Get("delimiter"))

	case r.Method == http.MethodPost && len(segs) == 9 && segs[4] == "rewriteTo":
		src, dst := segs[3], segs[8]
		if _, ok := f.objects[src]; !ok {
			gcsError(w, http.StatusNotFound)
			return
		}
		if _, exists := f.objects[dst]; exists && q.Get("ifGenerationMatch") == "0" {
			gcsError(w, http.StatusPreconditionFailed)
			return
		}
		f.gen++
		f.objects[dst] = f.gen
		writeJSON(w, map[string]any{
			"kind":                "storage#rewriteResponse",
			"done":                true,
			"totalBytesRewritten": "0",
			"objectSize":          "0",
			"resource":            objectJSON(dst, f.gen),
		})

	case r.Method == http.MethodDelete && len(segs) == 4:
		name := segs[3]
		f.deletes = append(f.deletes, name)
		if code, ok := f.failDelete[name]; ok {
			gcsError(w, code)
			return
		}
		gen, ok := f.objects[name]
		if !ok {
			gcsError(w, http.StatusNotFound)
			return
		}
		if want := q.Get("ifGenerationMatch"); want != "" && want != strconv.FormatInt(gen, 10) {
			gcsError(w, http.StatusPreconditionFailed)
			return
		}
		delete(f.objects, name)
		w.WriteHeader(http.StatusNoContent)

	default:
		gcsError(w, http.StatusNotImplemented)
	}
}

func (f *fakeGCS) list(w http.ResponseWriter, prefix, delim string) {
	var items []map[string]any
	prefixes := map[string]bool{}
	names := make([]string, 0, len(f.objects))
	for n := range f.objects {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if !strings.HasPrefix(n, prefix) {
			continue
		}
		rest := strings.TrimPrefix(n, prefix)
		if i := strings.Index(rest, delim); delim != "" && i >= 0 {
			prefixes[prefix+rest[:i+1]] = true
			continue
		}
		items = append(items, objectJSON(n, f.objects[n]))
	}
	var ps []string
	for p := range prefixes {
		ps = append(ps, p)
	}
	sort.Strings(ps)
	writeJSON(w, map[string]any{"kind": "storage#objects", "items": items, "prefixes": ps})
}

func newTestGCSStore(t *testing.T, fake *fakeGCS, policy CollisionPolicy) *GCSStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewGCSStore(context.Background(), testBucket, "", policy, common.DiscardLogger(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGCSStore_List(t *testing.T) {
	fake := newFakeGCS("inbound/", "inbound/a.csv", "inbound/uploaded/", "inbound/uploaded/old.csv", "other.csv")
	store := newTestGCSStore(t, fake, CollisionFail)

	entries, err := store.List(context.Background(), "inbound")
	require.NoError(t, err)
	got := map[string]bool{}
	for _, e := range entries {
		got[e.Name] = e.IsDir
	}
	assert.Equal(t, map[string]bool{"a.csv": false, "uploaded": true}, got)
}

func TestGCSStore_Move(t *testing.T) {
	fake := newFakeGCS("inbound/a.csv")
	store := newTestGCSStore(t, fake, CollisionFail)

	require.NoError(t, store.Move(context.Background(), "inbound/a.csv", "inbound/uploaded/a.csv"))
	assert.True(t, fake.has("inbound/uploaded/a.csv"))
	assert.False(t, fake.has("inbound/a.csv"))
}

func TestGCSStore_MoveCollision(t *testing.T) {
	fake := newFakeGCS("inbound/a.csv", "inbound/errors/a.csv")

	failing := newTestGCSStore(t, fake, CollisionFail)
	err := failing.Move(context.Background(), "inbound/a.csv", "inbound/errors/a.csv")
	assert.ErrorIs(t, err, ErrDestinationExists)
	assert.ErrorIs(t, err, common.ErrTransport)
	assert.True(t, fake.has("inbound/a.csv"))

	overwriting := newTestGCSStore(t, fake, CollisionOverwrite)
	require.NoError(t, overwriting.Move(context.Background(), "inbound/a.csv", "inbound/errors/a.csv"))
	assert.False(t, fake.has("inbound/a.csv"))
	assert.True(t, fake.has("inbound/errors/a.csv"))
}

func TestGCSStore_MoveRollsBackCopyWhenDeleteFails(t *testing.T) {
	fake := newFakeGCS("inbound/a.csv")
	fake.setDeleteFailure("inbound/a.csv", http.StatusForbidden)
	store := newTestGCSStore(t, fake, CollisionFail)

	err := store.Move(context.Background(), "inbound/a.csv", "inbound/errors/a.csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransport)

	assert.True(t, fake.has("inbound/a.csv"))
	assert.False(t, fake.has("inbound/errors/a.csv"))
	assert.Equal(t, []string{"inbound/a.csv", "inbound/errors/a.csv"}, fake.deleted())

	// the next attempt is not blocked by a leftover copy
	fake.setDeleteFailure("inbound/a.csv", 0)
	require.NoError(t, store.Move(context.Background(), "inbound/a.csv", "inbound/errors/a.csv"))
	assert.True(t, fake.has("inbound/errors/a.csv"))
}
