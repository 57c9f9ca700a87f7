package intake

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
	"github.com/joseph-ayodele/arrivals-intake/internal/delivery"
	"github.com/joseph-ayodele/arrivals-intake/internal/transform"
	"github.com/joseph-ayodele/arrivals-intake/internal/transport"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Authenticate(ctx context.Context, creds delivery.Credentials) (delivery.Token, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(delivery.Token), args.Error(1)
}

func (m *MockClient) Submit(ctx context.Context, rec transform.UploadRecord, token delivery.Token) (delivery.Ack, error) {
	args := m.Called(ctx, rec, token)
	return args.Get(0).(delivery.Ack), args.Error(1)
}

// countingStore counts List calls on top of a MemStore.
type countingStore struct {
	*transport.MemStore
	lists atomic.Int32
}

func (c *countingStore) List(ctx context.Context, dir string) ([]transport.Entry, error) {
	c.lists.Add(1)
	return c.MemStore.List(ctx, dir)
}

var testCreds = delivery.Credentials{UserName: "api-user", Password: "api-pass", SystemID: "WMS01"}

const (
	testToken   = delivery.Token("tok")
	csvHeader   = "Owner ID,Warehouse ID,Our PO\n"
	watchedDir  = "inbound"
	uploadedDir = "inbound/uploaded"
	errorsDir   = "inbound/errors"
)

func ackOK() delivery.Ack { return delivery.Ack{StatusCode: 200} }

func rejected(status int) error {
	return &delivery.SubmitError{StatusCode: status, Body: "nope"}
}

func newTestStore(t *testing.T) *transport.MemStore {
	t.Helper()
	store := transport.NewMemStore(transport.CollisionFail)
	store.MkdirAll(watchedDir)
	return store
}

func newTestPipeline(store transport.RemoteStore, client delivery.Client, opts ...Option) *Pipeline {
	return NewPipeline(store, client, testCreds, watchedDir, common.DiscardLogger(), opts...)
}

func bootstrapped(t *testing.T, p *Pipeline) {
	t.Helper()
	require.NoError(t, p.Bootstrap(context.Background()))
}
