package hypervisor

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveUnix runs an HTTP handler on a unix socket for the test's lifetime.
func serveUnix(t *testing.T, handler http.Handler) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "api.sock")
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	srv := &http.Server{Handler: handler} //nolint:gosec
	go srv.Serve(ln)                      //nolint:errcheck
	t.Cleanup(func() { _ = srv.Close() })
	return socketPath
}

func TestDoPutSuccess(t *testing.T) {
	var gotMethod, gotPath string
	socketPath := serveUnix(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	err := DoPut(context.Background(), socketPath, "/boot-source", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/boot-source", gotPath)
}

func TestDoPatchErrorCarriesStatus(t *testing.T) {
	socketPath := serveUnix(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad state", http.StatusBadRequest)
	}))

	err := DoPatch(context.Background(), socketPath, "/vm", []byte(`{"state":"Paused"}`))
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadRequest, ae.Code)
	assert.False(t, IsRetryable(err))
}

func TestDoWithRetryStopsOnClientError(t *testing.T) {
	calls := 0
	socketPath := serveUnix(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
	}))

	err := DoWithRetry(context.Background(), func() error {
		return DoPut(context.Background(), socketPath, "/actions", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithRetryRetriesServerError(t *testing.T) {
	calls := 0
	socketPath := serveUnix(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	err := DoWithRetry(context.Background(), func() error {
		return DoPut(context.Background(), socketPath, "/actions", nil)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCheckSocket(t *testing.T) {
	socketPath := serveUnix(t, http.NotFoundHandler())
	require.NoError(t, CheckSocket(socketPath))
	require.Error(t, CheckSocket(filepath.Join(t.TempDir(), "absent.sock")))
}
