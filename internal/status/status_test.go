package status

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestScan_States(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-time.Hour)
	now := time.Now()

	// Fresh.
	touch(t, filepath.Join(root, "ok.svg"), old)
	touch(t, filepath.Join(root, "ok.pdf"), now)
	touch(t, filepath.Join(root, "ok.pdf_tex"), now)

	// Page only.
	touch(t, filepath.Join(root, "half.svg"), old)
	touch(t, filepath.Join(root, "half.pdf"), now)

	// Edited after the last render.
	touch(t, filepath.Join(root, "sub", "stale.svg"), now)
	touch(t, filepath.Join(root, "sub", "stale.pdf"), old)
	touch(t, filepath.Join(root, "sub", "stale.pdf_tex"), now)

	touch(t, filepath.Join(root, "readme.txt"), now)

	report := Scan(root, true, "")
	require.Empty(t, report.Errors)
	require.Len(t, report.Entries, 3)

	byName := map[string]Entry{}
	for _, e := range report.Entries {
		byName[filepath.Base(e.Source)] = e
	}

	assert.Equal(t, StateOK, byName["ok.svg"].State)
	assert.Equal(t, int64(1), byName["ok.svg"].PageSize)
	assert.Equal(t, StateMissing, byName["half.svg"].State)
	assert.True(t, byName["half.svg"].OutputTime.IsZero())
	assert.Equal(t, StateStale, byName["stale.svg"].State)

	assert.Equal(t, 1, report.Count(StateOK))
	assert.Equal(t, 1, report.Count(StateMissing))
	assert.Equal(t, 1, report.Count(StateStale))
	assert.False(t, report.UpToDate())
}

func TestScan_SortedAndFlat(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	touch(t, filepath.Join(root, "b.svg"), now)
	touch(t, filepath.Join(root, "a.svg"), now)
	touch(t, filepath.Join(root, "sub", "c.svg"), now)

	report := Scan(root, false, "")
	require.Len(t, report.Entries, 2)
	assert.Equal(t, filepath.Join(root, "a.svg"), report.Entries[0].Source)
	assert.Equal(t, filepath.Join(root, "b.svg"), report.Entries[1].Source)
}

func TestScan_Prefix(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-time.Hour)
	now := time.Now()

	touch(t, filepath.Join(root, "fig.svg"), old)
	touch(t, filepath.Join(root, ".fig.pdf"), now)
	touch(t, filepath.Join(root, ".fig.pdf_tex"), now)

	report := Scan(root, true, ".")
	require.Len(t, report.Entries, 1)
	assert.Equal(t, StateOK, report.Entries[0].State)
	assert.True(t, report.UpToDate())

	assert.Equal(t, StateMissing, Scan(root, true, "").Entries[0].State)
}

func TestScan_EmptyAndMissingRoot(t *testing.T) {
	report := Scan(t.TempDir(), true, "")
	assert.Empty(t, report.Entries)
	assert.True(t, report.UpToDate())

	report = Scan(filepath.Join(t.TempDir(), "missing"), false, "")
	assert.Len(t, report.Errors, 1)
	assert.False(t, report.UpToDate())
}
