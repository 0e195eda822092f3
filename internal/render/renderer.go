// Package render runs the external Inkscape process that turns an SVG into
// a PDF page plus a pdf_tex fragment.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

// Inkscape 1.x command-line flags.
const (
	ExportFilenameFlag = "--export-filename"
	ExportLatexFlag    = "--export-latex"
)

// ErrStart is returned when the renderer process could not be started.
var ErrStart = errors.New("starting renderer")

// Error reports a renderer run that exited with a nonzero status.
type Error struct {
	ExitCode int
	Stderr   []byte
}

func (e *Error) Error() string {
	if utf8.Valid(e.Stderr) {
		msg := strings.TrimSpace(string(e.Stderr))
		if msg == "" {
			return fmt.Sprintf("renderer exited with status %d", e.ExitCode)
		}

		return fmt.Sprintf("renderer exited with status %d: %s", e.ExitCode, msg)
	}

	return fmt.Sprintf("renderer exited with status %d (non-UTF-8 output): %q", e.ExitCode, e.Stderr)
}

// Renderer invokes one renderer executable.
type Renderer struct {
	path      string
	extraArgs []string
	logger    *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithExtraArgs appends args after the export flags on every run.
func WithExtraArgs(args ...string) Option {
	return func(r *Renderer) {
		r.extraArgs = append(r.extraArgs, args...)
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// New returns a renderer for the executable at path.
func New(path string, opts ...Option) *Renderer {
	r := &Renderer{
		path:   path,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Path returns the executable path.
func (r *Renderer) Path() string { return r.path }

// Args returns the argument list for rendering source into page.
func (r *Renderer) Args(page, source string) []string {
	args := []string{ExportFilenameFlag, page, ExportLatexFlag, source}

	return append(args, r.extraArgs...)
}

// Render converts source synchronously. Inkscape writes the page to page
// and the fragment next to it. A nonzero exit is returned as *Error
// carrying everything the process wrote to stderr.
func (r *Renderer) Render(ctx context.Context, page, source string) error {
	args := r.Args(page, source)

	//nolint:gosec // G204: the renderer path and arguments come from configuration.
	cmd := exec.CommandContext(ctx, r.path, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Error{ExitCode: exitErr.ExitCode(), Stderr: stderr.Bytes()}
		}

		return fmt.Errorf("%w %s: %w", ErrStart, r.path, err)
	}

	r.logger.Debug("renderer finished",
		slog.String("source", source),
		slog.String("page", page),
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}
