package semtree

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCircularInclusion  = errors.New("semtree: circular inclusion")
	ErrUnreachableSubroot = errors.New("semtree: subroot is not reachable from the root")
	ErrRebuildInProgress  = errors.New("semtree: rebuild in progress")
	ErrRootNotFound       = errors.New("semtree: root index document not found")
	ErrMalformedOutline   = errors.New("semtree: malformed outline")
	ErrNotBuilt           = errors.New("semtree: tree has not been built")
)

// CycleError names the index documents that include each other, in
// inclusion order, ending with the document that closes the loop.
type CycleError struct {
	Files []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("semtree: circular inclusion: %s", strings.Join(e.Files, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCircularInclusion }
