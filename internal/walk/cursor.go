// Package walk provides a lazy, pre-order directory traversal that keeps
// its position on an explicit stack of open directory handles instead of
// the call stack, so directory depth costs heap memory, not recursion.
package walk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// Entry is one step of a traversal. Exactly one of Dir or Err describes the
// step: Dir is set for a successfully read entry, Err for a failure. When a
// subdirectory was read but could not be opened for descent both are set.
type Entry struct {
	// Path is the full path of the entry, or of the directory whose read failed.
	Path string
	// Dir is the directory entry as reported by the operating system.
	Dir fs.DirEntry
	// Err is a read or open error attached to this step.
	Err error
}

// frame is an open directory handle still being listed.
type frame struct {
	dir  string
	file *os.File
}

// Cursor walks a directory tree depth-first. It is single-pass: once
// exhausted (or closed) it yields nothing further.
type Cursor struct {
	stack []frame
}

// Open returns a cursor positioned on root. If root is not a directory the
// cursor is empty. An error is returned only when root is a directory that
// cannot be opened.
func Open(root string) (*Cursor, error) {
	c := &Cursor{}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return c, nil
	}

	f, err := os.Open(root)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", root, err)
	}

	c.stack = append(c.stack, frame{dir: root, file: f})

	return c, nil
}

// Next advances the traversal by one step. The boolean is false once the
// whole tree has been visited.
//
// A directory entry is reported before any of its children. Its children
// are drained completely before the traversal resumes with its siblings.
func (c *Cursor) Next() (Entry, bool) {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]

		entries, err := top.file.ReadDir(1)
		if len(entries) == 1 {
			return c.visit(top.dir, entries[0]), true
		}

		if err == nil || errors.Is(err, io.EOF) {
			c.pop()
			continue
		}

		// The handle is not retried after a read error. Its remaining
		// entries are lost but the rest of the tree is still visited.
		dir := top.dir
		c.pop()

		return Entry{Path: dir, Err: fmt.Errorf("reading %s: %w", dir, err)}, true
	}

	return Entry{}, false
}

// visit reports d and, when it is a directory, pushes a frame for it.
// Symbolic links are reported but never followed.
func (c *Cursor) visit(parent string, d fs.DirEntry) Entry {
	path := filepath.Join(parent, d.Name())
	e := Entry{Path: path, Dir: d}

	if !d.IsDir() {
		return e
	}

	f, err := os.Open(path)
	if err != nil {
		e.Err = fmt.Errorf("opening %s: %w", path, err)
		return e
	}

	c.stack = append(c.stack, frame{dir: path, file: f})

	return e
}

func (c *Cursor) pop() {
	last := len(c.stack) - 1
	_ = c.stack[last].file.Close()
	c.stack[last] = frame{}
	c.stack = c.stack[:last]
}

// depth reports how many directories are currently open.
func (c *Cursor) depth() int {
	return len(c.stack)
}

// Close releases every open directory handle. It is safe to call more
// than once and after the traversal finished.
func (c *Cursor) Close() error {
	var errs []error

	for len(c.stack) > 0 {
		last := len(c.stack) - 1
		if err := c.stack[last].file.Close(); err != nil {
			errs = append(errs, err)
		}

		c.stack = c.stack[:last]
	}

	return errors.Join(errs...)
}

// All adapts the cursor to a range-over-func sequence. Breaking out of the
// loop closes the cursor.
func (c *Cursor) All() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		defer c.Close()

		for {
			e, ok := c.Next()
			if !ok {
				return
			}

			if !yield(e, e.Err) {
				return
			}
		}
	}
}

// ReadFlat lists the immediate entries of dir without descending. It
// yields the same Entry shape as a Cursor so callers can treat both modes
// alike.
func ReadFlat(dir string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			e := Entry{Path: dir, Err: fmt.Errorf("reading %s: %w", dir, err)}
			if !yield(e, e.Err) {
				return
			}
		}

		// os.ReadDir returns what it managed to read alongside the error.
		for _, d := range entries {
			if !yield(Entry{Path: filepath.Join(dir, d.Name()), Dir: d}, nil) {
				return
			}
		}
	}
}

// Tree returns a sequence over every entry below root when recursive is
// true, or over root's immediate entries otherwise.
func Tree(root string, recursive bool) iter.Seq2[Entry, error] {
	if !recursive {
		return ReadFlat(root)
	}

	return func(yield func(Entry, error) bool) {
		c, err := Open(root)
		if err != nil {
			yield(Entry{Path: root, Err: err}, err)
			return
		}

		for e, err := range c.All() {
			if !yield(e, err) {
				return
			}
		}
	}
}
