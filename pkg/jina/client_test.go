package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/resilience"
)

func testOptions(url string) []Option {
	return []Option{
		WithBaseURL(url),
		WithEmbedURL(url + "/v1/embeddings"),
		WithRateLimit(rate.Inf, 1),
		WithRetryPolicy(resilience.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
	}
}

func TestRead_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://www.facebook.com/business/help", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ReadResponse{ //nolint:errcheck
			Code: 200,
			Data: ReadData{Title: "Attribution settings", Content: "# Attribution\n7-day click"},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", testOptions(srv.URL)...)
	got, err := client.Read(context.Background(), "https://www.facebook.com/business/help")
	require.NoError(t, err)
	assert.Equal(t, "Attribution settings", got.Data.Title)
	assert.Contains(t, got.Data.Content, "7-day click")
}

func TestRead_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(ReadResponse{Code: 200, Data: ReadData{Content: "ok"}}) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", testOptions(srv.URL)...)
	got, err := client.Read(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Data.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRead_PermanentError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("bad-key", testOptions(srv.URL)...)
	_, err := client.Read(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, TaskQuery, req.Task)
		assert.Equal(t, "jina-embeddings-v3", req.Model)
		assert.Equal(t, []string{"Facebook", "Roofing"}, req.Input)

		w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}],"usage":{"total_tokens":4}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", testOptions(srv.URL)...)
	vecs, err := client.Embed(context.Background(), []string{"Facebook", "Roofing"}, TaskQuery)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestEmbed_MissingVector(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", testOptions(srv.URL)...)
	_, err := client.Embed(context.Background(), []string{"a", "b"}, TaskQuery)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing embedding")
}

func TestEmbed_EmptyInput(t *testing.T) {
	t.Parallel()

	client := NewClient("test-key")
	vecs, err := client.Embed(context.Background(), nil, TaskQuery)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
