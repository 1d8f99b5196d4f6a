package content

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("content: validation failed")
	// ErrPersistence matches every PersistenceError.
	ErrPersistence = errors.New("content: persistence failed")
	// ErrSnapshot matches every SnapshotError.
	ErrSnapshot = errors.New("content: version snapshot failed")
	// ErrBlockNotFound indicates that a mutation referenced an unknown block id.
	ErrBlockNotFound = errors.New("content: block not found")
	// ErrIndexOutOfRange indicates that a reorder index is outside the block list.
	ErrIndexOutOfRange = errors.New("content: block index out of range")
	// ErrNoDocument indicates that the session has no document bound.
	ErrNoDocument = errors.New("content: no document bound to session")
	// ErrSessionClosed indicates that the session no longer accepts saves.
	ErrSessionClosed = errors.New("content: session closed")
	// ErrDocumentNotFound indicates that the gateway has no document with the id.
	ErrDocumentNotFound = errors.New("content: document not found")
)

// ValidationError is raised before any I/O when input cannot be accepted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("content: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PersistenceError wraps a failed gateway operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("content: %s failed", e.Op)
	}
	return fmt.Sprintf("content: %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// SnapshotError reports a version snapshot append that did not land.
type SnapshotError struct {
	DocumentID string
	Err        error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("content: snapshot for document %s failed: %v", e.DocumentID, e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

func (e *SnapshotError) Is(target error) bool {
	return target == ErrSnapshot
}
