package db

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "/api/v2/tenants/default_tenant/databases/default_database"

func newFakeChroma(t *testing.T, handler http.HandlerFunc) *ChromaDBClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewChromaDBClient(ChromaDBConfig{URL: srv.URL, Timeout: 5 * time.Second})
}

// TestNewChromaDBClient tests client initialization
func TestNewChromaDBClient(t *testing.T) {
	tests := []struct {
		name     string
		config   ChromaDBConfig
		wantBase string
	}{
		{
			name:     "default tenant and database",
			config:   ChromaDBConfig{Host: "localhost", Port: 8000},
			wantBase: "http://localhost:8000" + testBase,
		},
		{
			name: "custom tenant and database",
			config: ChromaDBConfig{
				Host:     "chromadb.example.com",
				Port:     9000,
				Tenant:   "custom_tenant",
				Database: "custom_db",
				Timeout:  60 * time.Second,
			},
			wantBase: "http://chromadb.example.com:9000/api/v2/tenants/custom_tenant/databases/custom_db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewChromaDBClient(tt.config)
			require.NotNil(t, client)
			assert.Equal(t, tt.wantBase, client.baseURL)
			assert.NotZero(t, client.httpClient.Timeout)
		})
	}
}

func TestChromaDBClient_Heartbeat(t *testing.T) {
	client := newFakeChroma(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/heartbeat", r.URL.Path)
		_, _ = w.Write([]byte(`{"nanosecond heartbeat": 1}`))
	})
	assert.NoError(t, client.Heartbeat(context.Background()))
}

func TestChromaDBClient_GetOrCreateCachesCollectionID(t *testing.T) {
	var lookups int32
	client := newFakeChroma(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == testBase+"/collections":
			atomic.AddInt32(&lookups, 1)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, true, body["get_or_create"])
			_, _ = w.Write([]byte(`{"id":"col-1","name":"pdf_chunks"}`))
		case r.URL.Path == testBase+"/collections/col-1/count":
			_, _ = w.Write([]byte(`7`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	ctx := context.Background()
	col, err := client.GetOrCreateCollection(ctx, "pdf_chunks", nil)
	require.NoError(t, err)
	assert.Equal(t, "col-1", col.ID)

	n, err := client.Count(ctx, "pdf_chunks")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, int32(1), atomic.LoadInt32(&lookups))
}

func TestChromaDBClient_QuerySendsWhereAndInclude(t *testing.T) {
	client := newFakeChroma(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case testBase + "/collections/pdf_chunks":
			_, _ = w.Write([]byte(`{"id":"col-1","name":"pdf_chunks"}`))
		case testBase + "/collections/col-1/query":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.EqualValues(t, 3, body["n_results"])
			assert.NotNil(t, body["where"])
			assert.Len(t, body["include"], 3)
			_, _ = w.Write([]byte(`{"ids":[["a:0"]],"documents":[["hello"]],"metadatas":[[{"document_id":"a"}]],"distances":[[0.25]]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	where := map[string]interface{}{"document_id": map[string]interface{}{"$eq": "a"}}
	resp, err := client.Query(context.Background(), "pdf_chunks", [][]float32{{0.1, 0.2}}, 3, where)
	require.NoError(t, err)
	require.Len(t, resp.IDs, 1)
	assert.Equal(t, "a:0", resp.IDs[0][0])
	assert.Equal(t, "hello", resp.Documents[0][0])
	assert.InDelta(t, 0.25, resp.Distances[0][0], 1e-6)
}

func TestChromaDBClient_ErrorStatusIncludesBody(t *testing.T) {
	client := newFakeChroma(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/collections/pdf_chunks") {
			_, _ = w.Write([]byte(`{"id":"col-1","name":"pdf_chunks"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`bad where clause`))
	})

	err := client.Delete(context.Background(), "pdf_chunks", nil, map[string]interface{}{"x": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "bad where clause")
}

func TestChromaDBClient_MissingCollection(t *testing.T) {
	client := newFakeChroma(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	err := client.Upsert(context.Background(), "missing", []string{"x"}, []string{"t"}, [][]float32{{1}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection not found")
}

func TestChromaDBClient_StaleCollectionIDIsForgotten(t *testing.T) {
	var lookups int32
	client := newFakeChroma(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case testBase + "/collections/pdf_chunks":
			n := atomic.AddInt32(&lookups, 1)
			if n == 1 {
				_, _ = w.Write([]byte(`{"id":"old","name":"pdf_chunks"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"new","name":"pdf_chunks"}`))
		case testBase + "/collections/new/count":
			_, _ = w.Write([]byte(`2`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	_, err := client.Count(ctx, "pdf_chunks")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	n, err := client.Count(ctx, "pdf_chunks")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), atomic.LoadInt32(&lookups))
}
