package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hupe1980/inkwatch/internal/which"
)

var (
	// ErrPathNotExist is returned when a configured path does not exist.
	ErrPathNotExist = errors.New("path does not exist")

	// ErrNotDirectory is returned when the watch root is not a directory.
	ErrNotDirectory = errors.New("watch path is not a directory")

	// ErrNotFile is returned when the renderer path is not a regular file.
	ErrNotFile = errors.New("renderer path is not a file")

	// ErrRendererNotFound is returned when no renderer was given and none
	// was found in PATH.
	ErrRendererNotFound = errors.New("renderer not found in PATH")
)

// WatchConfig is the resolved, validated configuration the watch pipeline
// runs on. It is built once before any component starts and never changes
// afterwards; components share it by pointer and read it through accessors.
type WatchConfig struct {
	root           string
	renderer       string
	rendererArgs   []string
	prefix         string
	regenerate     bool
	recursive      bool
	workers        int
	debounce       time.Duration
	maxWatchErrors int
	lock           bool
}

// Resolver finds an executable by name.
type Resolver func(name string) (string, error)

// NewWatchConfig validates root and the renderer and freezes cfg into a
// WatchConfig. When cfg.Renderer is empty the default renderer is looked
// up with which.Lookup.
func NewWatchConfig(cfg *Config, root string) (*WatchConfig, error) {
	return NewWatchConfigWith(cfg, root, which.Lookup)
}

// NewWatchConfigWith is NewWatchConfig with an explicit resolver.
func NewWatchConfigWith(cfg *Config, root string, resolve Resolver) (*WatchConfig, error) {
	if cfg == nil {
		cfg = Default()
	}

	absRoot, err := checkDir(root)
	if err != nil {
		return nil, err
	}

	renderer, err := resolveRenderer(cfg.Renderer, resolve)
	if err != nil {
		return nil, err
	}

	args, err := cfg.ParsedRendererArgs()
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &WatchConfig{
		root:           absRoot,
		renderer:       renderer,
		rendererArgs:   args,
		prefix:         cfg.AuxPrefix,
		regenerate:     cfg.Regenerate,
		recursive:      cfg.Recursive,
		workers:        workers,
		debounce:       cfg.Debounce,
		maxWatchErrors: cfg.MaxWatchErrors,
		lock:           cfg.Lock,
	}, nil
}

// Root is the absolute watch root.
func (w *WatchConfig) Root() string { return w.root }

// Renderer is the absolute path of the renderer executable.
func (w *WatchConfig) Renderer() string { return w.renderer }

// RendererArgs returns a copy of the extra renderer arguments.
func (w *WatchConfig) RendererArgs() []string {
	return append([]string(nil), w.rendererArgs...)
}

// Prefix is prepended to derived file names.
func (w *WatchConfig) Prefix() string { return w.prefix }

// Regenerate reports whether the startup batch runs.
func (w *WatchConfig) Regenerate() bool { return w.regenerate }

// Recursive reports whether subdirectories are included.
func (w *WatchConfig) Recursive() bool { return w.recursive }

// Workers is the batch pool size, always at least one.
func (w *WatchConfig) Workers() int { return w.workers }

// Debounce is the per-source settle delay.
func (w *WatchConfig) Debounce() time.Duration { return w.debounce }

// MaxWatchErrors is the consecutive subscription error budget; zero is unlimited.
func (w *WatchConfig) MaxWatchErrors() int { return w.maxWatchErrors }

// Lock reports whether the single-instance lock is taken.
func (w *WatchConfig) Lock() bool { return w.lock }

// ResolveRoot checks that path is an existing directory and returns it
// absolute. It is what NewWatchConfig does to the root, for commands that
// never run the renderer.
func ResolveRoot(path string) (string, error) {
	return checkDir(path)
}

// checkDir requires path to exist and be a directory and returns it absolute.
func checkDir(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrPathNotExist, path)
		}

		return "", fmt.Errorf("checking watch path %s: %w", path, err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving watch path %s: %w", path, err)
	}

	return abs, nil
}

// checkFile requires path to exist and be a regular file. Executability is
// left to the first run.
func checkFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrPathNotExist, path)
		}

		return "", fmt.Errorf("checking renderer path %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFile, path)
	}

	// A bare name found in the working directory must not be re-resolved
	// through PATH by os/exec.
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving renderer path %s: %w", path, err)
	}

	return abs, nil
}

func resolveRenderer(explicit string, resolve Resolver) (string, error) {
	if explicit != "" {
		return checkFile(explicit)
	}

	found, err := resolve(DefaultRenderer)
	if err != nil {
		if errors.Is(err, which.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrRendererNotFound, DefaultRenderer)
		}

		return "", fmt.Errorf("locating %s: %w", DefaultRenderer, err)
	}

	return checkFile(found)
}
