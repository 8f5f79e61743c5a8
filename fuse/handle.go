package fuse

import (
	"context"
	"errors"
	"io"
	"sync"
	"syscall"

	"github.com/brettbedarf/isofs/filesystem"
	"github.com/brettbedarf/isofs/internal/util"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

var (
	_ gofs.FileReader   = (*fileHandle)(nil)
	_ gofs.FileWriter   = (*fileHandle)(nil)
	_ gofs.FileReleaser = (*fileHandle)(nil)
)

// fileHandle is an open FUSE file. It holds one stream per direction the
// file was opened for; both keep the file alive after an unlink.
type fileHandle struct {
	b  *Bridge
	fh uint64
	mu sync.Mutex
	r  *filesystem.FileAccessor
	w  *filesystem.FileAccessor
}

// openHandle opens the streams requested by the open(2) flags.
func openHandle(b *Bridge, w filesystem.CapWrapper, flags uint32) (*fileHandle, error) {
	h := &fileHandle{b: b}
	acc := int(flags) & syscall.O_ACCMODE

	if acc == syscall.O_RDONLY || acc == syscall.O_RDWR {
		r, err := w.OpenFile(filesystem.AccessRead, filesystem.CursorRead, 0)
		if err != nil {
			return nil, err
		}
		h.r = r
	}
	if acc == syscall.O_WRONLY || acc == syscall.O_RDWR {
		mode := filesystem.CursorWrite
		if int(flags)&syscall.O_APPEND != 0 {
			mode = filesystem.CursorAppend
		}
		wr, err := w.OpenFile(filesystem.AccessWrite, mode, 0)
		if err != nil {
			h.close()
			return nil, err
		}
		h.w = wr
	}
	if int(flags)&syscall.O_TRUNC != 0 {
		if err := w.Resize(0); err != nil {
			h.close()
			return nil, err
		}
	}
	return h, nil
}

// readAt fills dest from off, stopping early at the end of the file.
func (h *fileHandle) readAt(dest []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.r == nil {
		return 0, filesystem.ErrPermission
	}
	if err := h.r.Seek(int(off)); err != nil {
		return 0, err
	}

	n := 0
	for n < len(dest) {
		b, err := h.r.Read(len(dest) - n)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}
		n += copy(dest[n:], b)
	}
	return n, nil
}

// writeAt stores data at off, or at the end for O_APPEND handles.
func (h *fileHandle) writeAt(data []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.w == nil {
		return 0, filesystem.ErrPermission
	}
	if h.w.Mode() != filesystem.CursorAppend {
		if err := h.w.Seek(int(off)); err != nil {
			return 0, err
		}
	}
	return h.w.Write(data)
}

func (h *fileHandle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.r != nil {
		_ = h.r.Close()
		h.r = nil
	}
	if h.w != nil {
		_ = h.w.Close()
		h.w = nil
	}
}

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	logger := util.GetLogger("Fuse.Read")
	logger.Trace().Uint64("fh", h.fh).Int64("offset", off).Int("len", len(dest)).Msg("Read called")

	n, err := h.readAt(dest, off)
	if err != nil {
		logger.Debug().Err(err).Uint64("fh", h.fh).Msg("Read failed")
		return nil, ToErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	logger := util.GetLogger("Fuse.Write")
	logger.Trace().Uint64("fh", h.fh).Int64("offset", off).Int("len", len(data)).Msg("Write called")

	n, err := h.writeAt(data, off)
	if err != nil {
		logger.Debug().Err(err).Uint64("fh", h.fh).Msg("Write failed")
		return uint32(n), ToErrno(err)
	}
	return uint32(n), 0
}

// Release is called once the kernel drops its last reference to the handle.
func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	logger := util.GetLogger("Fuse.Release")
	logger.Trace().Uint64("fh", h.fh).Msg("Release called")
	if h.b != nil {
		h.b.handles.Close(h.fh)
	}
	h.close()
	return 0
}
