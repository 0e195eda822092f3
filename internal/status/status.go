// Package status compares every source under a root with its derived
// outputs without rendering anything.
package status

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/inkwatch/internal/naming"
	"github.com/hupe1980/inkwatch/internal/walk"
)

// State classifies one source.
type State string

const (
	// StateOK means both outputs exist and are not older than the source.
	StateOK State = "ok"

	// StateMissing means at least one output does not exist.
	StateMissing State = "missing"

	// StateStale means both outputs exist but one predates the source.
	StateStale State = "stale"
)

// Entry is the state of one source.
type Entry struct {
	Source     string         `json:"source" yaml:"source"`
	Outputs    naming.Outputs `json:"outputs" yaml:"outputs"`
	State      State          `json:"state" yaml:"state"`
	SourceTime time.Time      `json:"sourceTime" yaml:"sourceTime"`
	// OutputTime is the older of the two outputs' times, zero when missing.
	OutputTime time.Time `json:"outputTime,omitzero" yaml:"outputTime,omitempty"`
	PageSize   int64     `json:"pageSize,omitempty" yaml:"pageSize,omitempty"`
}

// Report is the result of a scan, sorted by source path.
type Report struct {
	Root    string   `json:"root" yaml:"root"`
	Entries []Entry  `json:"entries" yaml:"entries"`
	Errors  []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Count returns how many entries are in state s.
func (r *Report) Count(s State) int {
	n := 0

	for _, e := range r.Entries {
		if e.State == s {
			n++
		}
	}

	return n
}

// UpToDate reports whether every source has fresh outputs.
func (r *Report) UpToDate() bool {
	return len(r.Errors) == 0 && r.Count(StateOK) == len(r.Entries)
}

// Scan inspects every source below root. Traversal and stat errors are
// collected in the report rather than aborting the scan.
func Scan(root string, recursive bool, prefix string) *Report {
	report := &Report{Root: root, Entries: []Entry{}}

	for e, err := range walk.Tree(root, recursive) {
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}

		if e.Dir.IsDir() || !naming.IsSource(e.Path) {
			continue
		}

		entry, err := inspect(e.Path, prefix)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}

		report.Entries = append(report.Entries, entry)
	}

	slices.SortFunc(report.Entries, func(a, b Entry) int {
		return strings.Compare(a.Source, b.Source)
	})

	return report
}

func inspect(source, prefix string) (Entry, error) {
	outputs, err := naming.Derive(source, prefix)
	if err != nil {
		return Entry{}, err
	}

	info, err := os.Stat(source)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Source:     source,
		Outputs:    outputs,
		State:      StateOK,
		SourceTime: info.ModTime(),
	}

	for i, p := range outputs.Paths() {
		out, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			entry.State = StateMissing
			entry.OutputTime = time.Time{}

			return entry, nil
		}

		if err != nil {
			return Entry{}, err
		}

		if i == 0 {
			entry.PageSize = out.Size()
		}

		if entry.OutputTime.IsZero() || out.ModTime().Before(entry.OutputTime) {
			entry.OutputTime = out.ModTime()
		}
	}

	if entry.OutputTime.Before(entry.SourceTime) {
		entry.State = StateStale
	}

	return entry, nil
}
