package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
	"github.com/joseph-ayodele/arrivals-intake/internal/transform"
)

var testCreds = Credentials{UserName: "api-user", Password: "api-pass", SystemID: "WMS01"}

func newClient(srv *httptest.Server) *HTTPClient {
	return NewHTTPClient(srv.URL+"/login", srv.URL+"/arrivals", 5*time.Second, srv.Client(), common.DiscardLogger())
}

func TestAuthenticate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"userName": "api-user", "password": "api-pass", "systemId": "WMS01"}, body)

		_, _ = w.Write([]byte(`{"Token":"abc123","Expires":"later"}`))
	}))
	defer srv.Close()

	token, err := newClient(srv).Authenticate(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Equal(t, Token("abc123"), token)
}

func TestAuthenticate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: "bad credentials"},
		{name: "created is not success", status: http.StatusCreated, body: `{"Token":"abc"}`},
		{name: "missing token", status: http.StatusOK, body: `{"token":"lowercase"}`},
		{name: "empty token", status: http.StatusOK, body: `{"Token":""}`},
		{name: "token not a string", status: http.StatusOK, body: `{"Token":42}`},
		{name: "not json", status: http.StatusOK, body: `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			token, err := newClient(srv).Authenticate(context.Background(), testCreds)
			require.Error(t, err)
			assert.Empty(t, token)
			assert.ErrorIs(t, err, common.ErrAuth)

			var ae *AuthError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.status, ae.StatusCode)
			assert.Equal(t, tt.body, ae.Body)
		})
	}
}

func TestAuthenticate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := newClient(srv)
	srv.Close()

	_, err := client.Authenticate(context.Background(), testCreds)
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Zero(t, ae.StatusCode)
}

func TestSubmit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/arrivals", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		b, _ := io.ReadAll(r.Body)
		var rec map[string]string
		require.NoError(t, json.Unmarshal(b, &rec))

		if rec["ownerID"] == "reject" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
			return
		}
		if rec["ownerID"] == "accepted" {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()
	client := newClient(srv)
	ctx := context.Background()

	ack, err := client.Submit(ctx, transform.UploadRecord{OwnerID: "O1"}, "tok")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, ack.StatusCode)
	assert.Equal(t, `{"id":1}`, ack.Body)

	_, err = client.Submit(ctx, transform.UploadRecord{OwnerID: "reject"}, "tok")
	var se *SubmitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "boom", se.Body)
	assert.True(t, errors.Is(err, common.ErrSubmit))

	_, err = client.Submit(ctx, transform.UploadRecord{OwnerID: "accepted"}, "tok")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusAccepted, se.StatusCode)

	assert.EqualValues(t, 3, calls.Load(), "one request per call, no retries")

	_, err = client.Submit(ctx, transform.UploadRecord{OwnerID: "O1"}, "")
	assert.ErrorIs(t, err, common.ErrSubmit)
	assert.EqualValues(t, 3, calls.Load())
}
