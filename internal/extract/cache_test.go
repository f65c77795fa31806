package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheExpiry(t *testing.T) {
	clock := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(t.TempDir(), time.Hour)
	c.now = func() time.Time { return clock }

	require.NoError(t, c.Set("k", []string{"A", "B"}))

	var got []string
	require.True(t, c.Get("k", &got))
	assert.Equal(t, []string{"A", "B"}, got)
	assert.False(t, c.Get("other", &got))

	clock = clock.Add(2 * time.Hour)
	assert.False(t, c.Get("k", &got))

	n, err := c.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCacheCleanupMissingDir(t *testing.T) {
	n, err := NewCache(filepath.Join(t.TempDir(), "absent"), time.Hour).CleanupExpired()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCacheIgnoresCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, time.Hour)
	require.NoError(t, os.WriteFile(c.path("k"), []byte("{"), 0o644))

	var got []string
	assert.False(t, c.Get("k", &got))
}

func TestScraperUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(sp500HTML))
	}))
	t.Cleanup(srv.Close)

	s := NewScraper(5 * time.Second).WithCache(NewCache(t.TempDir(), time.Hour))
	first, err := s.SP500(context.Background(), srv.URL+"/sp500")
	require.NoError(t, err)
	second, err := s.SP500(context.Background(), srv.URL+"/sp500")
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, first.Symbols, second.Symbols)
	require.Len(t, second.Changes, len(first.Changes))
	assert.True(t, first.Changes[0].Date.Equal(second.Changes[0].Date))
}
