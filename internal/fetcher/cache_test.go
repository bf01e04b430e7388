package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRemote(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{id: "https://example.com/dem.asc", want: true},
		{id: "http://example.com/dem.asc", want: true},
		{id: "ftp://example.com/dem.asc", want: true},
		{id: "/data/dem.asc", want: false},
		{id: "data/dem.asc", want: false},
		{id: "s3://bucket/dem.asc", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRemote(tt.id))
		})
	}
}

func TestKey_Stable(t *testing.T) {
	assert.Equal(t, Key("https://example.com/a"), Key("https://example.com/a"))
	assert.NotEqual(t, Key("https://example.com/a"), Key("https://example.com/b"))
}

func TestCache_LocalPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dem.asc")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	c := NewCache(t.TempDir(), nil, nil)
	got, err := c.Resolve(context.Background(), path, ".asc")
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = c.Resolve(context.Background(), filepath.Join(dir, "missing.asc"))
	assert.Error(t, err)

	_, err = c.Resolve(context.Background(), "")
	assert.Error(t, err)
}

func TestCache_LocalZipExtractsIntoCache(t *testing.T) {
	src := t.TempDir()
	zipPath := createTestZIP(t, src, [][2]string{{"roads.shp", "shp"}, {"roads.dbf", "dbf"}})
	cacheDir := t.TempDir()

	c := NewCache(cacheDir, nil, nil)
	got, err := c.Resolve(context.Background(), zipPath, ".shp")
	require.NoError(t, err)
	assert.Equal(t, "roads.shp", filepath.Base(got))
	assert.True(t, strings.HasPrefix(got, cacheDir))

	_, err = c.Resolve(context.Background(), zipPath, ".asc")
	assert.Error(t, err)
}

func TestCache_RemoteDownloadedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("ncols 1"))
	}))
	defer srv.Close()

	c := NewCache(t.TempDir(), newTestFetcher(), nil)
	url := srv.URL + "/tiles/dem.asc"

	first, err := c.Resolve(context.Background(), url, ".asc")
	require.NoError(t, err)
	assert.Equal(t, "dem.asc", filepath.Base(first))

	second, err := c.Resolve(context.Background(), url, ".asc")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	etag, err := os.ReadFile(filepath.Join(filepath.Dir(first), etagFile))
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, string(etag))
}

func TestCache_RefreshRevalidates(t *testing.T) {
	var full atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		full.Add(1)
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	c := NewCache(t.TempDir(), newTestFetcher(), nil)
	c.Refresh = true
	url := srv.URL + "/lc.asc"

	for range 3 {
		_, err := c.Resolve(context.Background(), url)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), full.Load())
}

func TestCache_RemoteZip(t *testing.T) {
	zipPath := createTestZIP(t, t.TempDir(), [][2]string{{"readme.txt", "hi"}, {"dem.asc", "grid"}})
	data, err := os.ReadFile(zipPath)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	c := NewCache(t.TempDir(), newTestFetcher(), nil)
	got, err := c.Resolve(context.Background(), srv.URL+"/dem.zip", ".asc")
	require.NoError(t, err)

	content, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "grid", string(content))
}

func TestCache_NoFetcher(t *testing.T) {
	c := NewCache(t.TempDir(), nil, nil)
	_, err := c.Resolve(context.Background(), "ftp://example.com/dem.asc")
	assert.Error(t, err)
}
