package knowledge

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreFromDistance(t *testing.T) {
	cases := []struct {
		d    float64
		want float64
	}{
		{0, 1},
		{0.25, 0.75},
		{1, 0},
		{3, 0.25},
		{-0.5, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, ScoreFromDistance(c.d), 1e-9, "d=%v", c.d)
	}
}

func TestScoreFromDistanceBounds(t *testing.T) {
	for d := 0.0; d < 50; d += 0.37 {
		s := ScoreFromDistance(d)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestFilenameFallback(t *testing.T) {
	assert.Equal(t, "Unknown", Document{ID: "x"}.Filename())
	assert.Equal(t, "a.md", Document{Metadata: map[string]string{"filename": "a.md"}}.Filename())
	assert.Equal(t, []string{"a.md", "Unknown"}, Sources([]SearchResult{
		{Document: Document{Metadata: map[string]string{"filename": "a.md"}}},
		{Document: Document{}},
	}))
}

func corpus() []Document {
	return []Document{
		{ID: "msi.md", Content: "Execute-MSI installs msi packages silently with msiexec", Metadata: map[string]string{"filename": "msi.md"}},
		{ID: "welcome.md", Content: "Show-InstallationWelcome closes running applications before install", Metadata: map[string]string{"filename": "welcome.md"}},
		{ID: "registry.md", Content: "Set-RegistryKey writes registry values for the deployment", Metadata: map[string]string{"filename": "registry.md"}},
	}
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Add(ctx, corpus()...))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := s.Search(ctx, "Execute-MSI msiexec", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "msi.md", res[0].Document.ID)
	assert.Equal(t, "msi.md", res[0].Document.Filename())
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
	for _, r := range res {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}

	err = s.Add(ctx, Document{ID: "msi.md", Content: "again"})
	assert.ErrorIs(t, err, ErrDuplicateID)
	n, _ = s.Count(ctx)
	assert.Equal(t, 3, n)

	err = s.Add(ctx, Document{ID: "new.md", Content: "a"}, Document{ID: "new.md", Content: "b"})
	assert.ErrorIs(t, err, ErrDuplicateID)
	n, _ = s.Count(ctx)
	assert.Equal(t, 3, n, "a rejected batch stores nothing")
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(nil))
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb", "docs.db")
	s, err := OpenSQLiteStore(context.Background(), path, nil)
	require.NoError(t, err)
	storeContract(t, s)
	require.NoError(t, s.Close())

	// reopen and check persistence
	s, err = OpenSQLiteStore(context.Background(), path, nil)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	res, err := s.Search(context.Background(), "registry values", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "registry.md", res[0].Document.ID)
	assert.Equal(t, "registry.md", res[0].Document.Metadata["filename"])
}

func TestSearchDefaultsTopK(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		require.NoError(t, s.Add(ctx, Document{ID: string(rune('a' + i)), Content: "psadt toolkit"}))
	}
	res, err := s.Search(ctx, "psadt", 0)
	require.NoError(t, err)
	assert.Len(t, res, DefaultTopK)
	for i := 1; i < len(res); i++ {
		assert.Less(t, res[i-1].Document.ID, res[i].Document.ID, "ties break by id")
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), []string{"Execute-Process setup.exe", "Execute-Process setup.exe"})
	require.NoError(t, err)
	assert.Len(t, a[0], 64)
	assert.Equal(t, a[0], a[1])
	assert.InDelta(t, 0, cosineDistance(a[0], a[1]), 1e-9)
	assert.True(t, math.IsNaN(cosineDistance(make([]float32, 64), a[0])))
	assert.True(t, math.IsNaN(cosineDistance(a[0], a[0][:10])))
}

type countingEmbedder struct {
	inner Embedder
	calls atomic.Int32
	texts atomic.Int32
}

func (c *countingEmbedder) Name() string { return "counting" }

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(texts)))
	return c.inner.Embed(ctx, texts)
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{inner: NewHashEmbedder(32)}
	c, err := NewCachedEmbedder(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := c.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	second, err := c.Embed(ctx, []string{"b", "c", "a"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, int32(3), inner.texts.Load(), "only misses reach the inner embedder")
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, 3, c.Len())
	assert.Same(t, c, c.QueryEmbedder())
}

type failingEmbedder struct{}

func (failingEmbedder) Name() string { return "failing" }
func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model offline")
}

func TestAddEmbedFailureStoresNothing(t *testing.T) {
	s := NewMemoryStore(failingEmbedder{})
	err := s.Add(context.Background(), Document{ID: "a", Content: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")
	n, _ := s.Count(context.Background())
	assert.Zero(t, n)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIndexDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "intro.md"), "# PSADT\nDeploy-Application.ps1 basics")
	writeFile(t, filepath.Join(dir, "nested", "msi.txt"), "Execute-MSI -Action Install")
	writeFile(t, filepath.Join(dir, "blank.md"), "   \n\t")
	writeFile(t, filepath.Join(dir, "image.png"), "binary")
	writeFile(t, filepath.Join(dir, "page.html"), `<html><body><nav>menu</nav><h1>Registry</h1><p>Use <b>Set-RegistryKey</b>.</p></body></html>`)

	s := NewMemoryStore(nil)
	ix := NewIndexer(s, nil)
	n, err := ix.IndexDirectory(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := s.Search(context.Background(), "Execute-MSI", 8)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "nested/msi.txt", res[0].Document.ID)
	meta := res[0].Document.Metadata
	assert.Equal(t, "msi.txt", meta["filename"])
	assert.Equal(t, ".txt", meta["extension"])
	assert.Equal(t, "27", meta["size"])
	assert.Equal(t, filepath.Join(dir, "nested", "msi.txt"), meta["filepath"])

	s2 := NewMemoryStore(nil)
	n, err = NewIndexer(s2, nil).IndexDirectory(context.Background(), dir, []string{"html"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	res, err = s2.Search(context.Background(), "registry", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Document.Content, "Set-RegistryKey")
	assert.NotContains(t, res[0].Document.Content, "menu")
	assert.NotContains(t, res[0].Document.Content, "<p>")
}

func TestEnsureIndexedOnlyWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "toolkit docs")
	s := NewMemoryStore(nil)
	ix := NewIndexer(s, nil)

	n, err := ix.EnsureIndexed(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	writeFile(t, filepath.Join(dir, "b.md"), "more docs")
	n, err = ix.EnsureIndexed(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, n)
	count, _ := s.Count(context.Background())
	assert.Equal(t, 1, count)

	n, err = NewIndexer(NewMemoryStore(nil), nil).EnsureIndexed(context.Background(), filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

const switchYAML = `
switches:
  - id: 7zip-exe
    product: 7-Zip
    file_pattern: 7z
    install_switches: /S
    uninstall_switches: /S
  - id: 7zip-msi
    product: 7-Zip
    file_pattern: .msi
    install_switches: /qn
  - id: 7zip-generic
    product: 7-Zip
    install_switches: /S
    notes: applies to every 7-Zip build
  - id: vlc
    product: VLC media player
    file_pattern: vlc
    install_switches: /L=1033 /S
`

func TestFindSwitches(t *testing.T) {
	cat, err := ParseSwitches([]byte(switchYAML))
	require.NoError(t, err)
	assert.Equal(t, 4, cat.Len())

	ids := func(rs []SwitchRecord) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.ID
		}
		return out
	}

	assert.Equal(t, []string{"7zip-exe", "7zip-msi", "7zip-generic"}, ids(cat.FindSwitches("7-Zip", "", 8)))
	assert.Equal(t, []string{"7zip-exe", "7zip-generic"}, ids(cat.FindSwitches("7-Zip", "7z2301-x64.exe", 8)))
	assert.Equal(t, []string{"7zip-msi", "7zip-generic"}, ids(cat.FindSwitches("7-Zip", "Setup.MSI", 8)))
	assert.Equal(t, []string{"7zip-generic"}, ids(cat.FindSwitches("7-Zip", "other.exe", 8)))
	assert.Equal(t, []string{"7zip-exe"}, ids(cat.FindSwitches("7-Zip", "", 1)))
	assert.Empty(t, cat.FindSwitches("7-Zip File Manager", "", 8), "product match is exact")
	assert.Empty(t, cat.FindSwitches("7-zip", "", 8), "product match is case-sensitive")
	assert.Equal(t, []string{"7zip-exe", "7zip-generic"}, ids(cat.FindSwitches(" 7-Zip ", "7Z2301-X64.EXE", 8)))
}

func TestSwitchCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewSwitchCatalog([]SwitchRecord{
		{ID: "a", Product: "x"},
		{ID: " a ", Product: "y"},
	})
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = NewSwitchCatalog([]SwitchRecord{{ID: "a"}})
	assert.Error(t, err)

	_, err = ParseSwitches([]byte("switches:\n  - id: a\n    product: x\n    colour: red\n"))
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "colour"))
}
