package fuse

import (
	"errors"
	"syscall"

	"github.com/brettbedarf/isofs/filesystem"
)

var errnoTable = []struct {
	err   error
	errno syscall.Errno
}{
	{filesystem.ErrNotFound, syscall.ENOENT},
	{filesystem.ErrExist, syscall.EEXIST},
	{filesystem.ErrPermission, syscall.EACCES},
	{filesystem.ErrInvalid, syscall.EINVAL},
	{filesystem.ErrClosed, syscall.EBADF},
	{filesystem.ErrNotDir, syscall.ENOTDIR},
	{filesystem.ErrIsDir, syscall.EISDIR},
	{filesystem.ErrNotEmpty, syscall.ENOTEMPTY},
	{filesystem.ErrLoop, syscall.ELOOP},
	{filesystem.ErrUnsupported, syscall.ENOTSUP},
	{filesystem.ErrNodeLimit, syscall.ENOSPC},
	{filesystem.ErrSizeLimit, syscall.EDQUOT},
}

// ToErrno maps a filesystem error to the errno reported to the kernel.
// Unknown errors become EIO.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	for _, e := range errnoTable {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	var typeErr *filesystem.WrongNodeTypeError
	if errors.As(err, &typeErr) {
		return syscall.EINVAL
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}
