package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// MinVersion is the oldest renderer release that understands
// --export-filename. Older releases spell it --export-pdf.
const MinVersion = ">= 1.0.0-0"

var versionPattern = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?`)

// Version runs the renderer with --version and parses the first version
// number it prints, e.g. "Inkscape 1.3.2 (091e20e, 2023-11-25)".
func (r *Renderer) Version(ctx context.Context) (*semver.Version, error) {
	//nolint:gosec // G204: the renderer path comes from configuration.
	cmd := exec.CommandContext(ctx, r.path, "--version")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("querying renderer version: %w", err)
	}

	return ParseVersion(out.String())
}

// ParseVersion extracts the first dotted version number from text.
func ParseVersion(text string) (*semver.Version, error) {
	raw := versionPattern.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("no version number in %q", text)
	}

	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing renderer version %q: %w", raw, err)
	}

	return v, nil
}

// Supported reports whether v satisfies MinVersion.
func Supported(v *semver.Version) bool {
	c, err := semver.NewConstraint(MinVersion)
	if err != nil {
		return false
	}

	return c.Check(v)
}

// CheckVersion logs the renderer version and warns when it is too old.
// Probe failures are logged too; they never prevent rendering.
func (r *Renderer) CheckVersion(ctx context.Context) {
	v, err := r.Version(ctx)
	if err != nil {
		r.logger.Warn("could not determine renderer version",
			slog.String("renderer", r.path),
			slog.String("error", err.Error()),
		)

		return
	}

	if !Supported(v) {
		r.logger.Warn("renderer is older than 1.0 and may reject the export flags",
			slog.String("renderer", r.path),
			slog.String("version", v.String()),
		)

		return
	}

	r.logger.Debug("renderer version",
		slog.String("renderer", r.path),
		slog.String("version", v.String()),
	)
}
