// Package watch keeps the derived PDF and LaTeX outputs of a directory of
// SVG sources in sync with the sources while they are being edited.
//
// [Run] subscribes to the root (and every subdirectory in recursive mode),
// optionally regenerates all outputs once, and then turns each filesystem
// notification into an [event.Action] that a [Dispatcher] executes off the
// notification path. Actions for the same source never overlap.
package watch
