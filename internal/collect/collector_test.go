package collect

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/contractfix/internal/textutil"
	"github.com/animus-coder/contractfix/internal/tools"
)

func newCollector(t *testing.T, files map[string]string) (*Collector, string) {
	t.Helper()
	dir := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	fsys, err := tools.NewFilesystem(dir, false)
	require.NoError(t, err)
	c, err := New(fsys, 16, nil)
	require.NoError(t, err)
	return c, dir
}

func TestPathsFiltersAndOrders(t *testing.T) {
	c, dir := newCollector(t, map[string]string{
		"src/main/java/b/B.java":              "class B {}",
		"src/main/java/a/A.java":              "class A {}",
		"src/main/java/a/notes.md":            "skip me",
		"src/main/resources/application.yaml": "server: {}",
		"pom.xml":                             "<project/>",
		"specmatic.yaml":                      "sources: []",
	})

	snap := c.Paths([]string{"src/main/java", "src/main/resources", "pom.xml", "missing", "specmatic.yaml"}, Budget{MaxFiles: 60, MaxChars: 120000})

	want := []string{
		filepath.Join(dir, "src/main/java/a/A.java"),
		filepath.Join(dir, "src/main/java/b/B.java"),
		filepath.Join(dir, "src/main/resources/application.yaml"),
		filepath.Join(dir, "pom.xml"),
		filepath.Join(dir, "specmatic.yaml"),
	}
	require.Equal(t, want, snap.Paths())
	require.Contains(t, snap.String(), "\n--- FILE: "+filepath.Join(dir, "pom.xml")+" ---\n<project/>\n")
}

func TestPathsStopsAtFileBudget(t *testing.T) {
	c, _ := newCollector(t, map[string]string{
		"src/A.java": "a",
		"src/B.java": "b",
		"src/C.java": "c",
	})
	snap := c.Paths([]string{"src"}, Budget{MaxFiles: 2, MaxChars: 1000})
	require.Len(t, snap.Chunks, 2)
}

func TestPathsTruncatesLastChunkAtCharBudget(t *testing.T) {
	c, _ := newCollector(t, map[string]string{
		"src/A.java": strings.Repeat("a", 30),
		"src/B.java": strings.Repeat("b", 30),
		"src/C.java": strings.Repeat("c", 30),
	})
	snap := c.Paths([]string{"src"}, Budget{MaxFiles: 10, MaxChars: 50})
	require.Len(t, snap.Chunks, 2)
	require.Equal(t, 50, snap.Used)
	require.False(t, snap.Chunks[0].Truncated)
	require.True(t, snap.Chunks[1].Truncated)
	require.Equal(t, strings.Repeat("b", 20), snap.Chunks[1].Content)
}

func TestKeywordMode(t *testing.T) {
	c, dir := newCollector(t, map[string]string{
		"api/OpenAPI/orders.yaml": "openapi: 3.0.0",
		"api/openapi-users.json":  "{}",
		"api/other.yaml":          "x: 1",
		"api/openapi-readme.md":   "docs",
	})
	snap := c.Keyword("openapi", Budget{MaxFiles: 10, MaxChars: 1000})
	require.Equal(t, []string{
		filepath.Join(dir, "api/OpenAPI/orders.yaml"),
		filepath.Join(dir, "api/openapi-users.json"),
	}, snap.Paths())
}

func TestSingleCapsAndMissing(t *testing.T) {
	c, _ := newCollector(t, map[string]string{"specmatic.yaml": strings.Repeat("x", 100)})

	snap := c.Single("specmatic.yaml", 40)
	require.Len(t, snap.Chunks, 1)
	require.Equal(t, 40, textutil.Len(snap.Chunks[0].Content))

	require.Empty(t, c.Single("nope.yaml", 40).Chunks)
	require.Equal(t, "", c.Single("nope.yaml", 40).String())
}

func TestUnreadableFileBecomesMarker(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read files regardless of mode")
	}
	c, dir := newCollector(t, map[string]string{
		"src/A.java": "class A {}",
		"src/B.java": "class B {}",
	})
	require.NoError(t, os.Chmod(filepath.Join(dir, "src/A.java"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(dir, "src/A.java"), 0o644) })

	snap := c.Paths([]string{"src"}, Budget{MaxFiles: 2, MaxChars: 1000})
	require.Len(t, snap.Chunks, 2)
	require.True(t, strings.HasPrefix(snap.Chunks[0].Content, "READ_ERROR("+filepath.Join(dir, "src/A.java")+"): "))
	require.Equal(t, "class B {}", snap.Chunks[1].Content)
}

func TestReadCacheServesRepeatReads(t *testing.T) {
	c, dir := newCollector(t, map[string]string{"specmatic.yaml": "v1"})

	require.Equal(t, "v1", c.Single("specmatic.yaml", 100).Chunks[0].Content)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "specmatic.yaml"), []byte("v2"), 0o644))
	require.Equal(t, "v1", c.Single("specmatic.yaml", 100).Chunks[0].Content)
}

func TestBudgetInvariantHolds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	files := make(map[string]string)
	for i := 0; i < 40; i++ {
		files[fmt.Sprintf("src/pkg%d/F%02d.java", i%5, i)] = strings.Repeat("é", rng.Intn(300))
		files[fmt.Sprintf("specs/openapi-%02d.yaml", i)] = strings.Repeat("y", rng.Intn(300))
	}
	c, _ := newCollector(t, files)

	for i := 0; i < 200; i++ {
		b := Budget{MaxFiles: rng.Intn(50), MaxChars: rng.Intn(5000)}
		for _, snap := range []Snapshot{
			c.Paths([]string{"src", "specs"}, b),
			c.Keyword("openapi", b),
		} {
			total := 0
			for _, ch := range snap.Chunks {
				total += textutil.Len(ch.Content)
			}
			require.LessOrEqual(t, total, b.MaxChars, "budget %+v", b)
			require.LessOrEqual(t, len(snap.Chunks), b.MaxFiles, "budget %+v", b)
			require.Equal(t, total, snap.Used)
		}
	}
}
