package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
	"docchat/internal/vectorindex"
)

func TestPointID_StableUUID(t *testing.T) {
	a := pointID("contract_pdf-0")
	b := pointID("contract_pdf-0")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, pointID("contract_pdf-1"))

	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestUpsert_CreatesCollectionOnce(t *testing.T) {
	var creates, upserts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			creates++
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			vectors := body["vectors"].(map[string]any)
			assert.Equal(t, "Cosine", vectors["distance"])
			assert.Equal(t, float64(2), vectors["size"])
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			upserts++
			var body struct {
				Points []struct {
					ID      string         `json:"id"`
					Vector  []float32      `json:"vector"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Len(t, body.Points, 1)
			assert.Equal(t, pointID("c0"), body.Points[0].ID)
			assert.Equal(t, "c0", body.Points[0].Payload["chunk_id"])
			assert.Equal(t, "chunk text", body.Points[0].Payload["document"])
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	defer srv.Close()

	b := New(Config{URL: srv.URL, Collection: "docs"})
	ctx := context.Background()

	rec := vectorindex.Record{ID: "c0", Document: "chunk text", Vector: []float32{1, 0}}
	require.NoError(t, b.Upsert(ctx, []vectorindex.Record{rec}))
	require.NoError(t, b.Upsert(ctx, []vectorindex.Record{rec}))
	assert.Equal(t, 1, creates)
	assert.Equal(t, 2, upserts)
}

func TestSearch_MapsPayloadToCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/docs/points/search", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(2), req["limit"])

		_, _ = w.Write([]byte(`{"result":[
			{"score":0.91,"payload":{"chunk_id":"c1","document":"best match","metadata":{"page":2}}},
			{"score":0.40,"payload":{"chunk_id":"c0","document":"weaker match","metadata":{"page":1}}}
		]}`))
	}))
	defer srv.Close()

	b := New(Config{URL: srv.URL, Collection: "docs"})
	got, err := b.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "best match", got[0].Content)
	assert.Equal(t, 0.91, got[0].Score)
	assert.Equal(t, float64(2), got[0].Metadata["page"])
}

func TestCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/docs/points/count", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":{"count":42}}`))
	}))
	defer srv.Close()

	b := New(Config{URL: srv.URL, Collection: "docs"})
	n, err := b.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestEmptyIndex_QueriesSucceed(t *testing.T) {
	// The collection is only created at the first upsert, so the server
	// answers 404 until then. Readers must see an empty index, not an error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"status":{"error":"Collection docs doesn't exist!"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	b := New(Config{URL: srv.URL, Collection: "docs"})

	got, err := b.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := b.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServerError_WrapsStorage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	b := New(Config{URL: srv.URL, Collection: "docs"})
	_, err := b.Search(context.Background(), []float32{1}, 1)
	assert.ErrorIs(t, err, domain.ErrStorage)

	err = b.Upsert(context.Background(), []vectorindex.Record{{ID: "c0", Vector: []float32{1}}})
	assert.ErrorIs(t, err, domain.ErrStorage)
}
