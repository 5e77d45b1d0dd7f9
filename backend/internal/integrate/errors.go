package integrate

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched by errors.Is on a *StageError.
var (
	// ErrMissingInput indicates a configured source file is absent or unreadable
	ErrMissingInput = errors.New("missing input")

	// ErrMissingKey indicates a dataset lacks the join key column
	ErrMissingKey = errors.New("missing join key")

	// ErrMerge indicates the join itself failed
	ErrMerge = errors.New("merge failed")

	// ErrWrite indicates the merged table could not be saved
	ErrWrite = errors.New("write failed")

	// ErrNotLoaded indicates Merge ran before the datasets it needs were loaded
	ErrNotLoaded = errors.New("dataset not loaded")
)

// StageError is a failure of one pipeline stage, tagged with the dataset,
// column and path involved where they are known.
type StageError struct {
	Stage   string
	Dataset string
	Column  string
	Path    string
	Kind    error
	Err     error
}

// Error implements the error interface
func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Stage, e.Kind)
	if e.Dataset != "" {
		fmt.Fprintf(&b, " (dataset %s)", e.Dataset)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " (column %s)", e.Column)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (path %s)", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap implements errors.Unwrap
func (e *StageError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StageError) Is(target error) bool {
	return target == e.Kind
}
