package event

import (
	"fmt"
	"os"

	"github.com/hupe1980/inkwatch/internal/naming"
)

// Op is what to do with a source's derived outputs.
type Op int

const (
	// OpIgnore leaves everything as is.
	OpIgnore Op = iota
	// OpConvert (re)renders the source.
	OpConvert
	// OpRemove deletes the outputs of a source that no longer exists.
	OpRemove
	// OpRename moves the outputs along with a renamed source.
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpConvert:
		return "convert"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "ignore"
	}
}

// Action is the outcome of classifying a notification. From is only set
// for OpRename.
type Action struct {
	Op   Op
	Path string
	From string
}

// Key identifies the source an action targets. Actions sharing a key must
// not run concurrently. A rename is keyed by its new name; From is left to
// the scheduler.
func (a Action) Key() string {
	return a.Path
}

func (a Action) String() string {
	if a.Op == OpRename {
		return fmt.Sprintf("%s %s -> %s", a.Op, a.From, a.Path)
	}

	return fmt.Sprintf("%s %s", a.Op, a.Path)
}

// Classifier maps notifications to actions.
type Classifier struct {
	// IsDir reports whether path currently is a directory. Defaults to os.Stat.
	IsDir func(path string) bool
}

// Classify decides what a notification means for the derived outputs.
func (c Classifier) Classify(n Notification) Action {
	if n.Kind == Renamed {
		return c.classifyPair(n.Path, n.To)
	}

	if !c.eligible(n.Path) {
		return Action{}
	}

	switch n.Kind {
	case Created, DataModified, RenamedTo:
		return Action{Op: OpConvert, Path: n.Path}
	case Removed, RenamedFrom:
		return Action{Op: OpRemove, Path: n.Path}
	default:
		return Action{}
	}
}

// classifyPair handles a rename that reports both names at once.
func (c Classifier) classifyPair(from, to string) Action {
	fromOK := c.eligible(from)
	toOK := c.eligible(to)

	switch {
	case fromOK && toOK:
		return Action{Op: OpRename, Path: to, From: from}
	case toOK:
		return Action{Op: OpConvert, Path: to}
	case fromOK:
		return Action{Op: OpRemove, Path: from}
	default:
		return Action{}
	}
}

// eligible reports whether path names a source file. A removed path no
// longer stats as anything, so it still qualifies.
func (c Classifier) eligible(path string) bool {
	if path == "" || !naming.IsSource(path) {
		return false
	}

	isDir := c.IsDir
	if isDir == nil {
		isDir = statIsDir
	}

	return !isDir(path)
}

func statIsDir(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}
