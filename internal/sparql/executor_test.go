package sparql

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danja/semem-sub009/pkg/types"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestSelect_ParsesJSONResults(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/sparql-query", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/sparql-results+json")
		w.Write([]byte(`{"head":{"vars":["c"]},"results":{"bindings":[{"c":{"type":"literal","value":"42"}}]}}`))
	})

	ex := NewExecutor(Config{QueryURL: srv.URL, UpdateURL: srv.URL, GraphName: "http://example.org/g"})
	res, err := ex.Select(context.Background(), "SELECT (COUNT(*) AS ?c) WHERE { ?s ?p ?o }")
	require.NoError(t, err)
	require.Len(t, res.Results.Bindings, 1)
	assert.Equal(t, "42", res.Results.Bindings[0]["c"].Value)
}

func TestSelect_AuthError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	ex := NewExecutor(Config{QueryURL: srv.URL, UpdateURL: srv.URL, GraphName: "http://example.org/g"})
	_, err := ex.Select(context.Background(), "SELECT * WHERE { ?s ?p ?o }")
	require.Error(t, err)
	assert.Equal(t, types.KindAuthError, types.KindOf(err))
}

func TestSelect_EndpointError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	ex := NewExecutor(Config{QueryURL: srv.URL, UpdateURL: srv.URL, GraphName: "http://example.org/g"})
	_, err := ex.Select(context.Background(), "SELECT * WHERE { ?s ?p ?o }")
	require.Error(t, err)
	assert.Equal(t, types.KindEndpointError, types.KindOf(err))
}

func TestTransaction_BeginCommit(t *testing.T) {
	var updates []string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		updates = append(updates, string(buf))
		w.WriteHeader(http.StatusOK)
	})

	ex := NewExecutor(Config{QueryURL: srv.URL, UpdateURL: srv.URL, GraphName: "http://example.org/g"})
	ctx := context.Background()

	require.NoError(t, ex.BeginTransaction(ctx))
	assert.True(t, ex.InTransaction())

	err := ex.BeginTransaction(ctx)
	require.Error(t, err)
	assert.Equal(t, types.KindTransactionAlreadyActive, types.KindOf(err))

	require.NoError(t, ex.CommitTransaction(ctx))
	assert.False(t, ex.InTransaction())

	require.Len(t, updates, 2)
	assert.True(t, strings.Contains(updates[0], "COPY GRAPH"))
	assert.True(t, strings.Contains(updates[1], "DROP SILENT GRAPH"))
}

func TestTransaction_Rollback(t *testing.T) {
	var updates []string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		updates = append(updates, string(buf))
		w.WriteHeader(http.StatusOK)
	})

	ex := NewExecutor(Config{QueryURL: srv.URL, UpdateURL: srv.URL, GraphName: "http://example.org/g"})
	ctx := context.Background()

	require.NoError(t, ex.BeginTransaction(ctx))
	require.NoError(t, ex.RollbackTransaction(ctx))
	assert.False(t, ex.InTransaction())

	require.Len(t, updates, 2)
	assert.True(t, strings.Contains(updates[1], "MOVE GRAPH"))
}

func TestCommitWithoutBegin_Fails(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ex := NewExecutor(Config{QueryURL: srv.URL, UpdateURL: srv.URL, GraphName: "http://example.org/g"})
	err := ex.CommitTransaction(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.KindNoTransactionInProgress, types.KindOf(err))
}

func TestDispose_FailsSubsequentOperations(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ex := NewExecutor(Config{QueryURL: srv.URL, UpdateURL: srv.URL, GraphName: "http://example.org/g"})
	ctx := context.Background()
	require.NoError(t, ex.Dispose(ctx))

	_, err := ex.Select(ctx, "SELECT * WHERE { ?s ?p ?o }")
	require.Error(t, err)

	err = ex.Update(ctx, "INSERT DATA { }")
	require.Error(t, err)
}
