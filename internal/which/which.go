// Package which resolves an executable name to a file on disk, first as a
// literal path and then by scanning the directories listed in PATH.
//
// Resolution is a pure existence and name match. It does not infer
// extensions and does not check permission bits; whether the file can
// actually be executed is discovered when it is run.
package which

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// PathEnv is the environment variable listing search directories.
const PathEnv = "PATH"

var (
	// ErrNotFound is returned when no PATH directory contains the name.
	ErrNotFound = errors.New("executable not found")

	// ErrEnvironment is the parent of all PATH environment failures.
	ErrEnvironment = errors.New("environment error")

	// ErrNoPath is returned when PATH is not set.
	ErrNoPath = fmt.Errorf("%w: %s is not set", ErrEnvironment, PathEnv)

	// ErrInvalidPath is returned when PATH is not valid UTF-8.
	ErrInvalidPath = fmt.Errorf("%w: %s is not valid unicode", ErrEnvironment, PathEnv)
)

// Options customises a lookup. The zero value reads the process
// environment and logs to slog.Default().
type Options struct {
	// LookupEnv replaces os.LookupEnv.
	LookupEnv func(key string) (string, bool)

	// Logger receives a warning for every PATH directory that cannot be read.
	Logger *slog.Logger
}

// Lookup resolves name using the process environment.
func Lookup(name string) (string, error) {
	return LookupWith(name, Options{})
}

// LookupWith resolves name. When name is itself an existing regular file it
// is returned unchanged and PATH is never consulted.
func LookupWith(name string, opts Options) (string, error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if isRegular(name) {
		return name, nil
	}

	paths, ok := opts.LookupEnv(PathEnv)
	if !ok {
		return "", ErrNoPath
	}

	if !utf8.ValidString(paths) {
		return "", ErrInvalidPath
	}

	for _, dir := range filepath.SplitList(paths) {
		match, err := searchDir(dir, name)
		if err != nil {
			opts.Logger.Warn("skipping unreadable PATH entry",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)

			continue
		}

		if match != "" {
			return match, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// searchDir lists dir in the order the operating system reports and
// returns the first regular file called name.
func searchDir(dir, name string) (string, error) {
	// Empty elements are not resolved against the working directory.
	if dir == "" {
		return "", nil
	}

	f, err := os.Open(dir)
	if err != nil {
		return "", err
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	for _, e := range entries {
		if e.Name() != name {
			continue
		}

		p := filepath.Join(dir, e.Name())
		if isRegular(p) {
			return p, nil
		}
	}

	if err != nil {
		return "", err
	}

	return "", nil
}

// isRegular follows symlinks, so a link to a binary counts as a file.
func isRegular(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}
