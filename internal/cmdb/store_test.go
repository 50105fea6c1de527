package cmdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cmdb.sqlite"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestSetThenGetReturnsExactValue(t *testing.T) {
	s := openTestStore(t)
	s.Set("ci:host:h1", map[string]interface{}{"type": "host", "os": "linux"})

	v, ok := s.Get("ci:host:h1")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"type": "host", "os": "linux"}, v)
}

func TestMergeShallowUnionsWithPartialWinning(t *testing.T) {
	s := openTestStore(t)
	s.Set("ci:host:h1", map[string]interface{}{"type": "host", "os": "linux"})
	merged := s.Merge("ci:host:h1", map[string]interface{}{"ip": "10.0.0.1", "os": "linux-6"})

	assert.Equal(t, "host", merged["type"])
	assert.Equal(t, "linux-6", merged["os"])
	assert.Equal(t, "10.0.0.1", merged["ip"])

	v, ok := s.Get("ci:host:h1")
	require.True(t, ok)
	assert.Equal(t, merged, v)
}

func TestQueryGlobMatchesPrefix(t *testing.T) {
	s := openTestStore(t)
	s.Set("ci:host:h1", map[string]interface{}{"os": "linux"})
	s.Set("ci:host:h2", map[string]interface{}{"os": "linux"})
	s.Set("ci:cluster:c1", map[string]interface{}{"nodes": 3})

	results, err := s.Query("ci:host:*")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Contains(t, results, "ci:host:h1")
	assert.Contains(t, results, "ci:host:h2")
}

func TestSaveAndReopenPersistsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cmdb.sqlite")

	s1, err := Open(path, Options{})
	require.NoError(t, err)
	s1.Set("ci:service:svc1", map[string]interface{}{"port": float64(8080)})
	require.NoError(t, s1.Save())
	require.NoError(t, s1.Close(context.Background()))

	s2, err := Open(path, Options{})
	require.NoError(t, err)
	defer s2.Close(context.Background())

	v, ok := s2.Get("ci:service:svc1")
	require.True(t, ok)
	assert.Equal(t, float64(8080), v["port"])
}

func TestStatsCountsByTypeHint(t *testing.T) {
	s := openTestStore(t)
	s.Set("ci:host:h1", map[string]interface{}{"os": "linux"})
	s.Set("ci:net:n1", map[string]interface{}{"cidr": "10.0.0.0/24"})

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalCIs)
	assert.Equal(t, 1, stats.ByType[TypeHost])
	assert.Equal(t, 1, stats.ByType[TypeNetwork])
}

func TestClearRemovesEverything(t *testing.T) {
	s := openTestStore(t)
	s.Set("ci:host:h1", map[string]interface{}{"os": "linux"})
	require.NoError(t, s.Clear())

	_, ok := s.Get("ci:host:h1")
	assert.False(t, ok)
}
