package walk

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files (and their parent directories) below root.
// Names ending in "/" create empty directories.
func writeTree(t *testing.T, root string, names ...string) {
	t.Helper()

	for _, name := range names {
		p := filepath.Join(root, filepath.FromSlash(name))
		if strings.HasSuffix(name, "/") {
			require.NoError(t, os.MkdirAll(p, 0o755))
			continue
		}

		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
}

// collect drains c and returns the paths relative to root in visit order.
func collect(t *testing.T, c *Cursor, root string) []string {
	t.Helper()

	var got []string

	for {
		e, ok := c.Next()
		if !ok {
			break
		}

		require.NoError(t, e.Err)

		rel, err := filepath.Rel(root, e.Path)
		require.NoError(t, err)
		got = append(got, filepath.ToSlash(rel))
	}

	return got
}

func TestCursor_VisitsEveryEntryOnce(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.txt", "sub/b.txt")

	c, err := Open(root)
	require.NoError(t, err)

	got := collect(t, c, root)
	assert.ElementsMatch(t, []string{"a.txt", "sub", "sub/b.txt"}, got)
	assert.Less(t, slices.Index(got, "sub"), slices.Index(got, "sub/b.txt"))
}

func TestCursor_PreOrderDrainsSubtreeBeforeSiblings(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "x/1.txt", "x/deep/2.txt", "y/3.txt", "z.txt")

	c, err := Open(root)
	require.NoError(t, err)

	got := collect(t, c, root)
	require.Len(t, got, 7)

	// Everything below x must appear contiguously right after x.
	ix := slices.Index(got, "x")
	require.GreaterOrEqual(t, ix, 0)

	var below []string
	for _, p := range got[ix+1:] {
		if !strings.HasPrefix(p, "x/") {
			break
		}

		below = append(below, p)
	}

	assert.ElementsMatch(t, []string{"x/1.txt", "x/deep", "x/deep/2.txt"}, below)
	assert.Less(t, slices.Index(got, "x/deep"), slices.Index(got, "x/deep/2.txt"))
}

func TestCursor_DeepTree(t *testing.T) {
	root := t.TempDir()

	parts := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		parts = append(parts, "d")
	}

	writeTree(t, root, strings.Join(parts, "/")+"/leaf.svg")

	c, err := Open(root)
	require.NoError(t, err)

	got := collect(t, c, root)
	assert.Len(t, got, 65)
	assert.True(t, strings.HasSuffix(got[len(got)-1], "leaf.svg"))
	assert.Equal(t, 0, c.depth())
}

func TestCursor_NonDirectoryRootIsEmpty(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "file.txt")

	c, err := Open(filepath.Join(root, "file.txt"))
	require.NoError(t, err)

	_, ok := c.Next()
	assert.False(t, ok)

	c, err = Open(filepath.Join(root, "missing"))
	require.NoError(t, err)

	_, ok = c.Next()
	assert.False(t, ok)
}

func TestCursor_NotRestartable(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.txt")

	c, err := Open(root)
	require.NoError(t, err)

	assert.Len(t, collect(t, c, root), 1)
	assert.Empty(t, collect(t, c, root))
}

func TestCursor_UnreadableSubdirectoryIsSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}

	root := t.TempDir()
	writeTree(t, root, "locked/secret.svg", "open/ok.svg")

	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	c, err := Open(root)
	require.NoError(t, err)

	var (
		paths []string
		errs  int
	)

	for e, err := range c.All() {
		if err != nil {
			errs++
			assert.Equal(t, locked, e.Path)

			continue
		}

		rel, _ := filepath.Rel(root, e.Path)
		paths = append(paths, filepath.ToSlash(rel))
	}

	assert.Equal(t, 1, errs)
	assert.ElementsMatch(t, []string{"open", "open/ok.svg"}, paths)
}

func TestCursor_AllBreakCloses(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a/b/c.txt", "d.txt")

	c, err := Open(root)
	require.NoError(t, err)

	for range c.All() {
		break
	}

	assert.Equal(t, 0, c.depth())
	assert.NoError(t, c.Close())
}

func TestReadFlat(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.svg", "sub/b.svg")

	var got []string
	for e, err := range ReadFlat(root) {
		require.NoError(t, err)
		got = append(got, filepath.Base(e.Path))
	}

	assert.ElementsMatch(t, []string{"a.svg", "sub"}, got)
}

func TestReadFlat_MissingDir(t *testing.T) {
	var errs int
	for _, err := range ReadFlat(filepath.Join(t.TempDir(), "nope")) {
		if err != nil {
			errs++
		}
	}

	assert.Equal(t, 1, errs)
}

func TestTree(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.svg", "sub/b.svg")

	count := func(recursive bool) int {
		n := 0
		for _, err := range Tree(root, recursive) {
			require.NoError(t, err)
			n++
		}

		return n
	}

	assert.Equal(t, 3, count(true))
	assert.Equal(t, 2, count(false))
}
