// Package event turns raw filesystem notifications into the action that
// keeps an SVG's derived PDF outputs in sync.
package event

import (
	"github.com/fsnotify/fsnotify"
)

// Kind is the kind of change a notification reports.
type Kind int

const (
	// Other covers anything not listed below, e.g. permission changes.
	Other Kind = iota
	// Created reports a new file.
	Created
	// DataModified reports a content write.
	DataModified
	// RenamedTo reports the new name of a renamed file.
	RenamedTo
	// RenamedFrom reports the old name of a renamed file.
	RenamedFrom
	// Removed reports a deleted file.
	Removed
	// Renamed reports both names of a rename in one notification.
	Renamed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case DataModified:
		return "data-modified"
	case RenamedTo:
		return "renamed-to"
	case RenamedFrom:
		return "renamed-from"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	default:
		return "other"
	}
}

// Notification is one filesystem change. For Renamed, Path is the old
// name and To the new one; To is empty for every other kind.
type Notification struct {
	Kind Kind
	Path string
	To   string
}

// FromFsnotify converts an fsnotify event. fsnotify reports a rename as
// Rename on the old name followed by Create on the new name, so Rename
// maps to RenamedFrom and the destination is handled as a creation.
// When several op bits are set the most significant change wins.
func FromFsnotify(ev fsnotify.Event) Notification {
	n := Notification{Path: ev.Name}

	switch {
	case ev.Has(fsnotify.Remove):
		n.Kind = Removed
	case ev.Has(fsnotify.Rename):
		n.Kind = RenamedFrom
	case ev.Has(fsnotify.Create):
		n.Kind = Created
	case ev.Has(fsnotify.Write):
		n.Kind = DataModified
	default:
		n.Kind = Other
	}

	return n
}
