package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return New(5*time.Second, zap.NewNop())
}

func TestFetchJSON_ReturnsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"atlases":["goa"]}`))
	}))
	defer ts.Close()

	body, err := newTestClient(t).FetchJSON(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"atlases":["goa"]}`, string(body))
}

func TestFetchJSON_AcceptsGeoJSONMediaType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json; charset=utf-8")
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer ts.Close()

	_, err := newTestClient(t).FetchJSON(context.Background(), ts.URL)
	assert.NoError(t, err)
}

func TestFetchJSON_RejectsHTMLErrorPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body>404 page</body></html>`))
	}))
	defer ts.Close()

	_, err := newTestClient(t).FetchJSON(context.Background(), ts.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotJSON)
}

func TestFetchJSON_MissingContentTypeSniffsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil // suppress automatic detection
		w.Write([]byte(`  [1, 2, 3]`))
	}))
	defer ts.Close()

	body, err := newTestClient(t).FetchJSON(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, `  [1, 2, 3]`, string(body))
}

func TestFetchJSON_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	_, err := newTestClient(t).FetchJSON(context.Background(), ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchJSON_CanceledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t).FetchJSON(ctx, ts.URL)
	assert.Error(t, err)
}

func TestNew_ZeroTimeoutUsesDefault(t *testing.T) {
	c := New(0, zap.NewNop())
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
}
