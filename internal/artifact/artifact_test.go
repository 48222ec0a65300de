package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "pkg-1", ScriptName)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "pkg-1", ScriptName, []byte("Write-Log 'v1'")))
	require.NoError(t, s.Put(ctx, "pkg-1", "/logs/attempt-1.txt", []byte("score 40")))
	require.NoError(t, s.Put(ctx, "pkg-2", ScriptName, []byte("other")))

	got, err := s.Get(ctx, "pkg-1", ScriptName)
	require.NoError(t, err)
	assert.Equal(t, "Write-Log 'v1'", string(got))

	require.NoError(t, s.Put(ctx, "pkg-1", ScriptName, []byte("Write-Log 'v2'")))
	got, err = s.Get(ctx, "pkg-1", ScriptName)
	require.NoError(t, err)
	assert.Equal(t, "Write-Log 'v2'", string(got))

	names, err := s.List(ctx, "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, []string{ScriptName, "logs/attempt-1.txt"}, names)

	require.NoError(t, s.Delete(ctx, "pkg-1"))
	_, err = s.Get(ctx, "pkg-1", ScriptName)
	assert.ErrorIs(t, err, ErrNotFound)
	names, err = s.List(ctx, "pkg-1")
	require.NoError(t, err)
	assert.Empty(t, names)

	got, err = s.Get(ctx, "pkg-2", ScriptName)
	require.NoError(t, err)
	assert.Equal(t, "other", string(got))

	assert.Error(t, s.Put(ctx, "../escape", ScriptName, nil))
	assert.Error(t, s.Put(ctx, "pkg-1", "../../etc/passwd", nil))
	assert.Error(t, s.Put(ctx, " ", ScriptName, nil))
	assert.Error(t, s.Put(ctx, "pkg-1", "", nil))
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestDiskStore(t *testing.T) {
	root := t.TempDir()
	s, err := NewDiskStore(root)
	require.NoError(t, err)
	storeContract(t, s)

	require.NoError(t, s.Put(context.Background(), "pkg-3", ScriptName, []byte("x")))
	_, err = os.Stat(filepath.Join(root, "pkg-3", ScriptName))
	assert.NoError(t, err)

	_, err = NewDiskStore("  ")
	assert.Error(t, err)
}

type countingStore struct {
	Store
	gets int
}

func (c *countingStore) Get(ctx context.Context, id, name string) ([]byte, error) {
	c.gets++
	return c.Store.Get(ctx, id, name)
}

func TestCachedStore(t *testing.T) {
	storeContract(t, NewCachedStore(NewMemoryStore(), CacheConfig{}))

	origin := &countingStore{Store: NewMemoryStore()}
	ctx := context.Background()
	require.NoError(t, origin.Put(ctx, "p", ScriptName, []byte("body")))

	c := NewCachedStore(origin, DefaultCacheConfig())
	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, "p", ScriptName)
		require.NoError(t, err)
		assert.Equal(t, "body", string(got))
	}
	assert.Equal(t, 1, origin.gets)
	assert.Equal(t, CacheStats{Hits: 2, Misses: 1}, c.Stats())

	got, _ := c.Get(ctx, "p", ScriptName)
	got[0] = 'X'
	again, _ := c.Get(ctx, "p", ScriptName)
	assert.Equal(t, "body", string(again), "callers get copies")

	require.NoError(t, c.Delete(ctx, "p"))
	_, err := c.Get(ctx, "p", ScriptName)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewS3StoreValidates(t *testing.T) {
	_, err := NewS3Store(S3Config{})
	assert.Error(t, err)
	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	s, err := NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.Equal(t, "psadt-scripts", s.bucket)
	assert.Equal(t, "us-east-1", s.region)
}

func TestObjectKey(t *testing.T) {
	k, err := objectKey(" pkg ", `\scripts\Deploy-Application.ps1`)
	require.NoError(t, err)
	assert.Equal(t, "pkg/scripts/Deploy-Application.ps1", k)

	_, err = objectKey("a/b", "x")
	assert.Error(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", contentType(ScriptName))
	assert.Equal(t, "application/octet-stream", contentType("x.bin"))
}
