package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/inkwatch/internal/config"
	"github.com/hupe1980/inkwatch/internal/render/rendertest"
	"github.com/hupe1980/inkwatch/internal/status"
	"github.com/hupe1980/inkwatch/internal/watch"
)

func writeFigures(t *testing.T, root string, names ...string) {
	t.Helper()

	for _, name := range names {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("<svg/>"), 0o600))
	}
}

// ---------------------------------------------------------------------------
// regen
// ---------------------------------------------------------------------------

func TestRegen_ConvertsTree(t *testing.T) {
	fake := rendertest.New(t)
	root := t.TempDir()
	writeFigures(t, root, "a.svg", "sub/b.svg", "notes.txt")

	stdout, _, err := executeCommand("--renderer", fake.Path, "regen", root)
	require.NoError(t, err)

	assert.Contains(t, stdout, "converted 2 of 2 source(s)")
	assert.FileExists(t, filepath.Join(root, "a.pdf"))
	assert.FileExists(t, filepath.Join(root, "a.pdf_tex"))
	assert.FileExists(t, filepath.Join(root, "sub", "b.pdf"))
}

func TestRegen_FlatWithPrefix(t *testing.T) {
	fake := rendertest.New(t)
	root := t.TempDir()
	writeFigures(t, root, "a.svg", "sub/b.svg")

	_, _, err := executeCommand("--renderer", fake.Path, "--recursive=false", "--aux-prefix", ".", "regen", root)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, ".a.pdf"))
	assert.FileExists(t, filepath.Join(root, ".a.pdf_tex"))
	assert.NoFileExists(t, filepath.Join(root, "sub", ".b.pdf"))
}

func TestRegen_FailureExitsOne(t *testing.T) {
	fake := rendertest.New(t)
	root := t.TempDir()
	writeFigures(t, root, "ok.svg", "broken.svg")

	stdout, _, err := executeCommand("--renderer", fake.Path, "regen", root)
	requireExitCode(t, err, 1)

	assert.Contains(t, stdout, "FAILED "+filepath.Join(root, "broken.svg"))
	assert.Contains(t, stdout, "converted 1 of 2 source(s)")
	assert.FileExists(t, filepath.Join(root, "ok.pdf"))
}

func TestRegen_UsageErrors(t *testing.T) {
	fake := rendertest.New(t)

	_, _, err := executeCommand("--renderer", fake.Path, "regen", filepath.Join(t.TempDir(), "missing"))
	requireExitCode(t, err, 2)
	assert.ErrorIs(t, err, config.ErrPathNotExist)

	_, _, err = executeCommand("--renderer", filepath.Join(t.TempDir(), "inkscape"), "regen", t.TempDir())
	requireExitCode(t, err, 2)
	assert.ErrorIs(t, err, config.ErrPathNotExist)

	_, _, err = executeCommand("regen")
	require.Error(t, err)
}

func TestRegen_RendererArgsFromEnv(t *testing.T) {
	fake := rendertest.New(t)
	root := t.TempDir()
	writeFigures(t, root, "a.svg")

	t.Setenv("INKWATCH_RENDERER", fake.Path)
	t.Setenv("INKWATCH_RENDERER_ARGS", `--export-dpi=300`)

	_, _, err := executeCommand("regen", root)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "a.pdf"))
}

// ---------------------------------------------------------------------------
// status
// ---------------------------------------------------------------------------

func statusFixture(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	old := time.Now().Add(-time.Hour)

	writeFigures(t, root, "fresh.svg", "fresh.pdf", "fresh.pdf_tex", "new.svg")
	require.NoError(t, os.Chtimes(filepath.Join(root, "fresh.svg"), old, old))

	return root
}

func TestStatus_Table(t *testing.T) {
	root := statusFixture(t)

	stdout, _, err := executeCommand("status", root)
	require.NoError(t, err)

	assert.Contains(t, stdout, "fresh.svg")
	assert.Contains(t, stdout, "new.svg")
	assert.Contains(t, stdout, "missing")
	assert.Contains(t, stdout, "2 source(s)")
	assert.Contains(t, stdout, "1 ok")
}

func TestStatus_JSON(t *testing.T) {
	root := statusFixture(t)

	stdout, _, err := executeCommand("status", "-o", "json", root)
	require.NoError(t, err)

	var report status.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))

	require.Len(t, report.Entries, 2)
	assert.Equal(t, filepath.Join(root, "fresh.svg"), report.Entries[0].Source)
	assert.Equal(t, status.StateOK, report.Entries[0].State)
	assert.Equal(t, status.StateMissing, report.Entries[1].State)
	assert.Equal(t, filepath.Join(root, "new.pdf_tex"), report.Entries[1].Outputs.Fragment)
}

func TestStatus_YAML(t *testing.T) {
	root := statusFixture(t)

	stdout, _, err := executeCommand("status", "--output", "yaml", root)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &doc))

	assert.Equal(t, root, doc["root"])
	assert.Len(t, doc["entries"], 2)
}

func TestStatus_Check(t *testing.T) {
	root := statusFixture(t)

	_, _, err := executeCommand("status", "--check", root)
	requireExitCode(t, err, 1)
	assert.Contains(t, err.Error(), "1 missing, 0 stale")

	clean := t.TempDir()
	_, _, err = executeCommand("status", "--check", clean)
	require.NoError(t, err)
}

func TestStatus_UsageErrors(t *testing.T) {
	_, _, err := executeCommand("status", "-o", "xml", t.TempDir())
	requireExitCode(t, err, 2)
	assert.Contains(t, err.Error(), "unknown output format")

	file := filepath.Join(t.TempDir(), "fig.svg")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	_, _, err = executeCommand("status", file)
	requireExitCode(t, err, 2)
	assert.ErrorIs(t, err, config.ErrNotDirectory)
}

func TestStatus_DoesNotNeedRenderer(t *testing.T) {
	t.Setenv("PATH", "")

	_, _, err := executeCommand("status", statusFixture(t))
	require.NoError(t, err)
}

// ---------------------------------------------------------------------------
// watch
// ---------------------------------------------------------------------------

func TestWatch_UsageErrors(t *testing.T) {
	fake := rendertest.New(t)

	_, _, err := executeCommand("--renderer", fake.Path, "watch", filepath.Join(t.TempDir(), "missing"))
	requireExitCode(t, err, 2)

	_, _, err = executeCommand("--renderer", fake.Path, "watch", "--debounce", "-1s", t.TempDir())
	requireExitCode(t, err, 2)
	assert.Contains(t, err.Error(), "invalid debounce")

	_, _, err = executeCommand("watch")
	require.Error(t, err)
}

func TestWatch_RendererNotInPath(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, _, err := executeCommand("watch", t.TempDir())
	requireExitCode(t, err, 2)
	assert.ErrorIs(t, err, config.ErrRendererNotFound)
}

func TestWatch_RefusesSecondInstance(t *testing.T) {
	fake := rendertest.New(t)
	root := t.TempDir()

	abs, err := filepath.Abs(root)
	require.NoError(t, err)

	held, err := watch.AcquireLock("", abs)
	require.NoError(t, err)
	defer held.Release() //nolint:errcheck

	_, _, err = executeCommand("--renderer", fake.Path, "watch", root)
	require.ErrorIs(t, err, watch.ErrAlreadyWatched)
}
