package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/verifact/internal/model"
)

func TestKey(t *testing.T) {
	a := Key("claim", "laksa")

	assert.Equal(t, a, Key("claim", "laksa"), "keys are stable")
	assert.NotEqual(t, a, Key("claimlaksa"), "part boundaries matter")
	assert.True(t, strings.HasPrefix(a, KeyPrefix))
	assert.Len(t, a, len(KeyPrefix)+64)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	value := []byte("hello")
	require.NoError(t, c.Set("k", value, 0))
	value[0] = 'j'

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "hello", string(got), "cache keeps its own copy")

	require.NoError(t, c.Set("short", []byte("x"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("short")
	assert.False(t, ok, "entry should expire")

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should be deleted")

	require.NoError(t, c.Set("a", []byte("1"), 0))
	require.NoError(t, c.Clear())
	assert.Zero(t, c.Len())
}

func TestDiskCache(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := Key("x")

	require.NoError(t, c.Set(key, []byte("payload"), 0))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "payload", string(got))

	// Another instance on the same directory sees the entry
	_, ok = NewDiskCache(dir, time.Hour).Get(key)
	assert.True(t, ok, "entry should persist across instances")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".entry-"), "temporary file left behind: %s", e.Name())
		assert.NotContains(t, e.Name(), ":")
	}

	assert.NoError(t, c.Delete(key))
	assert.NoError(t, c.Delete(key), "deleting a missing entry succeeds")
}

func TestDiskCache_Expiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	require.NoError(t, c.Set("k", []byte("v"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok, "expired entry should miss")
	_, err := os.Stat(filepath.Join(dir, "k.cache"))
	assert.True(t, os.IsNotExist(err), "expired file should be removed")
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewDiskCache(dir, time.Hour).Set("k", []byte("from disk"), 0))

	c := NewLayeredCache(time.Minute, dir, time.Hour)
	_, ok := c.memory.Get("k")
	require.False(t, ok, "memory layer starts empty")

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "from disk", string(got))
	_, ok = c.memory.Get("k")
	assert.True(t, ok, "disk hit is promoted to memory")

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok, "entry gone from both layers")
}

func TestLoadStore(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	in := []model.Evidence{{Text: "passage", Relevance: 0.5, Source: model.SourceRef{URL: "https://a.example"}}}

	require.NoError(t, Store(c, "ev", in, 0))
	out, ok := Load[[]model.Evidence](c, "ev")
	require.True(t, ok)
	require.Len(t, out, 1)
	assert.Equal(t, "https://a.example", out[0].Source.URL)

	require.NoError(t, c.Set("bad", []byte("{not json"), 0))
	_, ok = Load[[]model.Evidence](c, "bad")
	assert.False(t, ok, "undecodable entry should miss")
}

func TestNew(t *testing.T) {
	assert.Nil(t, New(model.CacheConfig{Enabled: false}))
	assert.IsType(t, &MemoryCache{}, New(model.CacheConfig{Enabled: true}))
	assert.IsType(t, &LayeredCache{}, New(model.CacheConfig{Enabled: true, Dir: t.TempDir()}))
}
