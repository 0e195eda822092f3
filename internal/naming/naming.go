// Package naming maps an SVG source path to the pair of files Inkscape
// produces for it: a PDF page and a LaTeX fragment (pdf_tex) that places
// the text layer on top of that page.
//
// Derivation is pure. Nothing in this package touches the filesystem.
package naming

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// File extensions, including the leading dot.
const (
	SourceExt   = ".svg"
	PageExt     = ".pdf"
	FragmentExt = ".pdf_tex"
)

var (
	// ErrNoStem is returned when the source path has no file-name component.
	ErrNoStem = errors.New("cannot determine file stem")

	// ErrNoParent is returned when the source path has no parent directory.
	ErrNoParent = errors.New("cannot determine parent directory")
)

// Outputs is the derived page and fragment path pair for one source.
type Outputs struct {
	Page     string `json:"page" yaml:"page"`
	Fragment string `json:"fragment" yaml:"fragment"`
}

// Paths returns both outputs, page first.
func (o Outputs) Paths() []string {
	return []string{o.Page, o.Fragment}
}

// Derive computes the outputs for source. The page is written to
// parent/prefix+stem+PageExt and the fragment to parent/prefix+stem+FragmentExt.
func Derive(source, prefix string) (Outputs, error) {
	stem, ok := Stem(source)
	if !ok {
		return Outputs{}, ErrNoStem
	}

	parent, ok := parentDir(source)
	if !ok {
		return Outputs{}, ErrNoParent
	}

	base := prefix + stem

	return Outputs{
		Page:     filepath.Join(parent, base+PageExt),
		Fragment: filepath.Join(parent, base+FragmentExt),
	}, nil
}

// IsSource reports whether path carries the SVG extension. The comparison is
// exact: "FIG.SVG" and a bare ".svg" dot-file are not sources.
func IsSource(path string) bool {
	name, ok := fileName(path)
	if !ok {
		return false
	}

	return extension(name) == SourceExt
}

// Stem returns the final path element without its extension.
func Stem(path string) (string, bool) {
	name, ok := fileName(path)
	if !ok {
		return "", false
	}

	return strings.TrimSuffix(name, extension(name)), true
}

// fileName returns the last element of path. Paths ending in a separator,
// "." or ".." have no file name.
func fileName(path string) (string, bool) {
	if path == "" || os.IsPathSeparator(path[len(path)-1]) {
		return "", false
	}

	name := filepath.Base(path)

	switch name {
	case ".", "..", string(filepath.Separator):
		return "", false
	}

	return name, true
}

// extension returns the suffix starting at the last dot. A name whose only
// dot is the leading one (".svg", ".hidden") has no extension.
func extension(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 {
		return ""
	}

	return name[idx:]
}

// parentDir returns the directory containing path. A path that is its own
// directory (a root or a bare volume name) has no parent.
func parentDir(path string) (string, bool) {
	vol := filepath.VolumeName(path)
	if path == "" || path == vol {
		return "", false
	}

	dir := filepath.Dir(path)
	if filepath.Clean(path) == dir {
		return "", false
	}

	return dir, true
}
