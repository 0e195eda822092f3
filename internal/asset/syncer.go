// Package asset applies classified actions to the derived outputs of SVG
// sources: rendering them, deleting orphaned outputs, and moving outputs
// along with a renamed source.
package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/inkwatch/internal/event"
	"github.com/hupe1980/inkwatch/internal/logging"
	"github.com/hupe1980/inkwatch/internal/naming"
)

// Renderer converts one source into its page (and fragment) output.
type Renderer interface {
	Render(ctx context.Context, page, source string) error
}

// Syncer keeps derived outputs in step with their sources.
type Syncer struct {
	renderer Renderer
	prefix   string
	logger   *slog.Logger
}

// NewSyncer returns a Syncer rendering with r and naming outputs with prefix.
func NewSyncer(r Renderer, prefix string, logger *slog.Logger) *Syncer {
	return &Syncer{
		renderer: r,
		prefix:   prefix,
		logger:   logging.Component(logger, "asset"),
	}
}

// Apply performs a. Ignore actions succeed without doing anything.
func (s *Syncer) Apply(ctx context.Context, a event.Action) error {
	switch a.Op {
	case event.OpConvert:
		return s.Convert(ctx, a.Path)
	case event.OpRemove:
		return s.RemoveOutputs(a.Path)
	case event.OpRename:
		return s.RenameOutputs(ctx, a.From, a.Path)
	default:
		return nil
	}
}

// Convert renders source. On success both outputs exist on disk, written
// by the renderer.
func (s *Syncer) Convert(ctx context.Context, source string) error {
	out, err := naming.Derive(source, s.prefix)
	if err != nil {
		return fmt.Errorf("deriving outputs for %s: %w", source, err)
	}

	if err := s.renderer.Render(ctx, out.Page, source); err != nil {
		return fmt.Errorf("converting %s: %w", source, err)
	}

	attrs := []any{slog.String("source", source), slog.String("page", out.Page)}
	if info, statErr := os.Stat(out.Page); statErr == nil {
		attrs = append(attrs, slog.String("size", humanize.Bytes(uint64(max(0, info.Size()))))) //nolint:gosec // clamped
	}

	s.logger.Info("converted", attrs...)

	return nil
}

// RemoveOutputs deletes whichever derived outputs of source exist. Missing
// outputs are expected after a failed or partial conversion and are only
// logged.
func (s *Syncer) RemoveOutputs(source string) error {
	out, err := naming.Derive(source, s.prefix)
	if err != nil {
		return fmt.Errorf("deriving outputs for %s: %w", source, err)
	}

	var errs []error

	for _, p := range out.Paths() {
		err := os.Remove(p)

		switch {
		case err == nil:
			s.logger.Info("removed", slog.String("output", p))
		case errors.Is(err, fs.ErrNotExist):
			s.logger.Warn("output does not exist", slog.String("output", p))
		default:
			errs = append(errs, fmt.Errorf("removing %s: %w", p, err))
		}
	}

	return errors.Join(errs...)
}

// RenameOutputs moves the outputs of from to the names derived for to, so
// a plain rename needs no re-render. The fragment's reference to its page
// is rewritten to the new page name. When the old outputs are not all
// there to move, or the fragment cannot be updated, to is converted instead.
func (s *Syncer) RenameOutputs(ctx context.Context, from, to string) error {
	oldOut, err := naming.Derive(from, s.prefix)
	if err != nil {
		return fmt.Errorf("deriving outputs for %s: %w", from, err)
	}

	newOut, err := naming.Derive(to, s.prefix)
	if err != nil {
		return fmt.Errorf("deriving outputs for %s: %w", to, err)
	}

	moved := 0
	pairs := [][2]string{{oldOut.Page, newOut.Page}, {oldOut.Fragment, newOut.Fragment}}

	for _, pair := range pairs {
		if err := os.Rename(pair[0], pair[1]); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("moving output failed",
					slog.String("from", pair[0]),
					slog.String("to", pair[1]),
					logging.Err(err),
				)
			}

			continue
		}

		moved++
	}

	if moved == len(pairs) {
		err := retarget(newOut.Fragment, oldOut.Page, newOut.Page)
		if err == nil {
			s.logger.Info("renamed outputs", slog.String("from", from), slog.String("to", to))
			return nil
		}

		s.logger.Warn("updating fragment failed, converting",
			slog.String("fragment", newOut.Fragment),
			logging.Err(err),
		)

		return s.Convert(ctx, to)
	}

	s.logger.Debug("outputs incomplete after rename, converting",
		slog.String("source", to),
		slog.Int("moved", moved),
	)

	return s.Convert(ctx, to)
}

// retarget rewrites the \includegraphics argument of a moved fragment. The
// renderer references the page by its base name.
func retarget(fragment, oldPage, newPage string) error {
	oldRef := []byte("{" + filepath.Base(oldPage) + "}")
	newRef := []byte("{" + filepath.Base(newPage) + "}")

	if bytes.Equal(oldRef, newRef) {
		return nil
	}

	info, err := os.Stat(fragment)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(fragment)
	if err != nil {
		return err
	}

	if !bytes.Contains(data, oldRef) {
		return nil
	}

	return os.WriteFile(fragment, bytes.ReplaceAll(data, oldRef, newRef), info.Mode().Perm())
}
