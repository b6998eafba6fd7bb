package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Check with errors.Is.
var (
	// ErrIO indicates a document or state file could not be read or written.
	// Fatal for the affected file only.
	ErrIO = errors.New("io error")

	// ErrCorruptState indicates the persisted sync state is unreadable.
	// Fatal for the whole run.
	ErrCorruptState = errors.New("corrupt sync state")

	// ErrInsertion indicates a single chunk could not be extracted, embedded or stored.
	// Recovered locally by the sync controller.
	ErrInsertion = errors.New("chunk insertion failed")

	// ErrQuery indicates retrieval or answer synthesis failed.
	ErrQuery = errors.New("query failed")

	// ErrModelMismatch indicates the index was built with a different embedding model.
	ErrModelMismatch = errors.New("embedding model mismatch")
)

// Error carries an error kind together with the operation and the underlying cause.
type Error struct {
	Kind error  // One of the Err* kinds above
	Op   string // Operation that failed, e.g. "read document"
	Path string // File involved, if any
	Err  error  // Underlying cause
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IOError wraps a filesystem failure.
func IOError(op, path string, err error) error {
	return &Error{Kind: ErrIO, Op: op, Path: path, Err: err}
}

// CorruptStateError wraps a state decoding failure.
func CorruptStateError(path string, err error) error {
	return &Error{Kind: ErrCorruptState, Op: "load state", Path: path, Err: err}
}

// InsertionError wraps a failure inserting chunk index of source.
func InsertionError(source string, index int, err error) error {
	return &Error{Kind: ErrInsertion, Op: fmt.Sprintf("insert chunk %d", index), Path: source, Err: err}
}

// QueryError wraps a retrieval or synthesis failure.
func QueryError(op string, err error) error {
	return &Error{Kind: ErrQuery, Op: op, Err: err}
}

// ModelMismatchError reports an index built with stored while configured is in use.
func ModelMismatchError(stored, configured string) error {
	return &Error{
		Kind: ErrModelMismatch,
		Op:   "validate embedding model",
		Err:  fmt.Errorf("index was built with %q, configuration uses %q", stored, configured),
	}
}
