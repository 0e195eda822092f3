// Package rendertest provides a stand-in renderer executable for tests.
//
// The fake is a POSIX shell script that accepts the same export flags as
// Inkscape, writes the page and fragment files, and appends every rendered
// source to a call log.
package rendertest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// FailMarker makes the fake exit with status 1 when it appears in the
// source file name.
const FailMarker = "broken"

// Version is what the fake prints for --version.
const Version = "Inkscape 1.3.2 (091e20e, 2023-11-25)"

const script = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo '%[1]s'
  exit 0
fi
page="$2"
src="$4"
echo "$src" >> '%[2]s'
case "$src" in
  *%[3]s*)
    echo "cannot import $src" >&2
    exit 1
    ;;
esac
%[4]s
cat "$src" > "$page" || exit 3
printf '%%s' 'fragment' > "${page}_tex" || exit 3
`

// Fake is an installed fake renderer.
type Fake struct {
	// Path is the executable to pass as renderer.
	Path string
	// CallLog is the file the fake appends each source path to.
	CallLog string
}

// Option tweaks the generated script.
type Option func(*options)

type options struct {
	delay string
}

// WithDelay makes every render sleep for the given number of seconds,
// e.g. "0.2".
func WithDelay(seconds string) Option {
	return func(o *options) { o.delay = seconds }
}

// New writes the fake renderer into a temporary directory. Tests using it
// are skipped on Windows.
func New(t testing.TB, opts ...Option) *Fake {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake renderer is a shell script")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	extra := ""
	if o.delay != "" {
		extra = "sleep " + o.delay
	}

	dir := t.TempDir()
	f := &Fake{
		Path:    filepath.Join(dir, "inkscape"),
		CallLog: filepath.Join(dir, "calls.log"),
	}

	body := fmt.Sprintf(script, Version, f.CallLog, FailMarker, extra)
	if err := os.WriteFile(f.Path, []byte(body), 0o755); err != nil { //nolint:gosec // test executable
		t.Fatalf("writing fake renderer: %v", err)
	}

	return f
}

// Calls returns the sources rendered so far, in call order.
func (f *Fake) Calls(t testing.TB) []string {
	t.Helper()

	data, err := os.ReadFile(f.CallLog)
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		t.Fatalf("reading call log: %v", err)
	}

	return strings.Fields(string(data))
}
