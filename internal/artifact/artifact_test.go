package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	s := NewStore("models")
	assert.Equal(t, filepath.Join("models", "AAPL", "2021-01"), s.Dir("AAPL", "2021-01"))
	assert.Equal(t, filepath.Join("models", "AAPL", "2021-01", "model.json"), s.ModelPath("AAPL", "2021-01"))
}

func TestManifestRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	assert.False(t, s.Exists("AAPL", "2021-01"))

	_, err := s.ReadManifest("AAPL", "2021-01")
	assert.ErrorIs(t, err, ErrNotFound)

	created := time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.WriteManifest(Manifest{Symbol: "AAPL", Split: "2021-01", Fingerprint: "abc", CreatedAt: created}))
	assert.True(t, s.Exists("AAPL", "2021-01"))

	m, err := s.ReadManifest("AAPL", "2021-01")
	require.NoError(t, err)
	assert.Equal(t, "abc", m.Fingerprint)
	assert.True(t, created.Equal(m.CreatedAt))
	_, err = uuid.Parse(m.RunID)
	assert.NoError(t, err)

	assert.False(t, s.Stale("AAPL", "2021-01", "abc"))
	assert.True(t, s.Stale("AAPL", "2021-01", "def"))
}

func TestStaleWithoutManifest(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, os.MkdirAll(s.Dir("MSFT", "2021-03"), 0o755))
	assert.True(t, s.Exists("MSFT", "2021-03"))
	assert.False(t, s.Stale("MSFT", "2021-03", "anything"))
}

func TestSplitsAndRemove(t *testing.T) {
	s := NewStore(t.TempDir())
	names, err := s.Splits("AAPL")
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, split := range []string{"2021-02", "2021-01"} {
		require.NoError(t, s.WriteManifest(Manifest{Symbol: "AAPL", Split: split}))
	}
	names, err = s.Splits("AAPL")
	require.NoError(t, err)
	assert.Equal(t, []string{"2021-01", "2021-02"}, names)

	require.NoError(t, s.Remove("AAPL", "2021-01"))
	assert.False(t, s.Exists("AAPL", "2021-01"))
}
