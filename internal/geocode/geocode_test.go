package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "paris", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "memorymap-test", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"lat":"48.8566","lon":"2.3522","name":"Paris","display_name":"Paris, France"},
			{"lat":"bogus","lon":"2.0","name":"Bad","display_name":"Bad"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "memorymap-test")
	results, err := c.Search(context.Background(), "paris")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.InDelta(t, 48.8566, results[0].Lat, 1e-9)
	assert.InDelta(t, 2.3522, results[0].Lng, 1e-9)
	assert.Equal(t, "Paris", results[0].Name)
	assert.Equal(t, "Paris, France", results[0].DisplayName)
}

func TestSearch_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	results, err := c.Search(context.Background(), "nowhere at all")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Search(context.Background(), "paris")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestSearch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Search(context.Background(), "paris")
	require.Error(t, err)
}
