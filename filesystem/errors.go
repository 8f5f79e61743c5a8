package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
)

// Error is a filesystem error kind. Kinds with an io/fs counterpart unwrap to
// it, so errors.Is(err, fs.ErrNotExist) works on [ErrNotFound].
type Error struct {
	msg  string
	kind error
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

var (
	ErrNotFound    = &Error{"no such file or directory", fs.ErrNotExist}
	ErrExist       = &Error{"file already exists", fs.ErrExist}
	ErrPermission  = &Error{"permission denied", fs.ErrPermission}
	ErrInvalid     = &Error{"invalid argument", fs.ErrInvalid}
	ErrClosed      = &Error{"accessor already closed", fs.ErrClosed}
	ErrNotDir      = &Error{msg: "not a directory"}
	ErrIsDir       = &Error{msg: "is a directory"}
	ErrNotEmpty    = &Error{msg: "directory not empty"}
	ErrLoop        = &Error{msg: "too many levels of symbolic links"}
	ErrUnsupported = &Error{msg: "operation not supported"}
	ErrNodeLimit   = &Error{msg: "trying to allocate node, but file limit reached"}
	ErrSizeLimit   = &Error{msg: "file size limit reached"}
)

// SizeLimitError reports a byte reservation that the remaining budget could not cover.
type SizeLimitError struct {
	Deficit uint64 // bytes that could not be reserved
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("trying to acquire %d bytes, but file limit reached", e.Deficit)
}

// Is matches [ErrSizeLimit]
func (e *SizeLimitError) Is(target error) bool {
	return target == ErrSizeLimit
}

// WrongNodeTypeError is returned by the typed node accessors.
type WrongNodeTypeError struct {
	Expected NodeType
	Got      NodeType
}

func (e *WrongNodeTypeError) Error() string {
	return fmt.Sprintf("node type mismatch! (expected %s, got %s)", e.Expected, e.Got)
}

// IsQuota reports whether err is a node or byte quota error.
func IsQuota(err error) bool {
	return errors.Is(err, ErrNodeLimit) || errors.Is(err, ErrSizeLimit)
}
