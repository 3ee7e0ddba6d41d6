package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/h.csv"))
	assert.True(t, IsRemote("http://example.com/h.csv"))
	assert.False(t, IsRemote("/tmp/h.csv"))
	assert.False(t, IsRemote("data/h.json"))
}

func TestLocalName_KeepsExtension(t *testing.T) {
	assert.Equal(t, ".json", filepath.Ext(localName("https://x/exports/h.JSON?sig=1")))
	assert.Equal(t, ".csv", filepath.Ext(localName("https://x/exports/latest")))
	assert.NotEqual(t, localName("https://x/a.csv"), localName("https://x/b.csv"))
}

func TestDownloader_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir(), time.Second)

	path, err := d.Download(context.Background(), srv.URL+"/history.csv")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, string(data))

	_, err = d.Download(context.Background(), srv.URL+"/missing.csv")
	assert.ErrorContains(t, err, "404")
}

func TestWorkerPool_ProcessRemoteFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	dir := t.TempDir()
	loader := &mockLoader{}
	pool := NewWorkerPool(1, NewParser(100, 1), loader).WithDownloader(NewDownloader(dir, time.Second))

	result := pool.ProcessFile(context.Background(), "5001", srv.URL+"/history.csv")

	require.NoError(t, result.Error)
	assert.Equal(t, int64(2), result.RecordsCount)
	assert.Equal(t, srv.URL+"/history.csv", result.FilePath)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "downloaded copy is removed")
}
