package files

import (
	"errors"
	"fmt"

	"hs-go/internal/model"
)

var (
	// ErrNotFound is returned when a node, version or trash entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict matches every *ConflictError.
	ErrConflict = errors.New("conflict")

	// ErrInvalidName is returned for titles that cannot be stored.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidOperation is returned for requests that violate the tree's
	// shape, like moving a folder into itself or versioning a folder.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrNotImplemented is returned by reserved operations.
	ErrNotImplemented = errors.New("not implemented")
)

// ConflictError reports a title or kind collision under a parent, or an
// update based on a stale read of a node.
type ConflictError struct {
	ParentID int64
	Title    string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("conflict: %s", e.Reason)
	}
	return fmt.Sprintf("conflict: %q under parent %d: %s", e.Title, e.ParentID, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StoreError wraps a failure of the catalog store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// IOError wraps a failure of the physical file system.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("io: %s %s: %v", e.Op, e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// OrphanedResourceError means a physical write succeeded but the catalog
// write that should have followed it failed. The resource at Path is not
// referenced by any node and must be reconciled out of band.
type OrphanedResourceError struct {
	Path string
	Err  error
}

func (e *OrphanedResourceError) Error() string {
	return fmt.Sprintf("orphaned physical resource %s: %v", e.Path, e.Err)
}

func (e *OrphanedResourceError) Unwrap() error { return e.Err }

// MoveError reports which top-level source of a move or copy failed.
// Sources listed in Applied were fully processed before the failure and
// remain applied.
type MoveError struct {
	SourceID int64
	Applied  []int64
	Err      error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("moving node %d (%d applied before failure): %v", e.SourceID, len(e.Applied), e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }

// TransitionError reports a lifecycle change the node's current state does
// not allow, such as trashing a node that is already in the trash.
type TransitionError struct {
	ID   int64
	From model.NodeState
	To   model.NodeState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid operation: %s node %d cannot become %s", e.From, e.ID, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidOperation }
