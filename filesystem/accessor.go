package filesystem

import (
	"io"
	"iter"
	"sync"
)

// CursorMode selects how a [FileAccessor] moves through its file.
type CursorMode uint8

const (
	CursorRead   CursorMode = iota // reads from an offset
	CursorWrite                    // writes from an offset
	CursorAppend                   // writes at the end of the file
)

// FileAccessor is a byte stream over a file. It keeps the file alive until
// closed. A failed call leaves the cursor where it was.
type FileAccessor struct {
	mu     sync.Mutex
	node   *Node // nil once closed
	file   *File
	access AccessMode
	mode   CursorMode
	offset int
}

func newFileAccessor(n *Node, access AccessMode, mode CursorMode, off int) (*FileAccessor, error) {
	if !n.retain() {
		return nil, ErrNotFound
	}
	return &FileAccessor{node: n, file: n.file, access: access, mode: mode, offset: off}, nil
}

func (a *FileAccessor) Mode() CursorMode { return a.mode }

// Offset returns the cursor position.
func (a *FileAccessor) Offset() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.offset
}

// Seek moves the cursor of a read or write stream.
func (a *FileAccessor) Seek(off int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.node == nil {
		return ErrClosed
	}
	if off < 0 {
		return ErrInvalid
	}
	if a.mode == CursorAppend {
		return ErrUnsupported
	}
	a.offset = off
	return nil
}

// Caller must hold a.mu.
func (a *FileAccessor) checkReadLocked() error {
	if a.node == nil {
		return ErrClosed
	}
	if a.mode != CursorRead {
		return ErrUnsupported
	}
	return a.access.ReadOrErr()
}

// Read returns up to n bytes from the cursor, at most one chunk at a time.
// Returns io.EOF once the cursor is at the end of the file.
func (a *FileAccessor) Read(n int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkReadLocked(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrInvalid
	}

	ret := a.file.Read(n, a.offset)
	if len(ret) == 0 && n > 0 {
		return nil, io.EOF
	}
	a.offset += len(ret)
	return ret, nil
}

// Skip advances the cursor by up to n bytes and returns how far it moved.
func (a *FileAccessor) Skip(n int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkReadLocked(); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrInvalid
	}

	a.file.mu.Lock()
	_, l := a.file.readLocked(n, a.offset)
	a.file.mu.Unlock()
	if l == 0 && n > 0 {
		return 0, io.EOF
	}
	a.offset += l
	return l, nil
}

// Write stores buf at the cursor, or at the end of the file in append mode.
func (a *FileAccessor) Write(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.node == nil {
		return 0, ErrClosed
	}
	if a.mode == CursorRead {
		return 0, ErrUnsupported
	}
	if err := a.access.WriteOrErr(); err != nil {
		return 0, err
	}

	f := a.file
	f.mu.Lock()
	defer f.mu.Unlock()

	off := a.offset
	if a.mode == CursorAppend {
		off = f.size
	}
	if err := f.writeLocked(buf, off); err != nil {
		return 0, err
	}
	a.offset = off + len(buf)
	return len(buf), nil
}

// Poll reports whether the stream is ready. Memory backed streams always
// are.
func (a *FileAccessor) Poll() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.node == nil {
		return ErrClosed
	}
	return nil
}

// Close releases the file. Further calls fail with ErrClosed.
func (a *FileAccessor) Close() error {
	a.mu.Lock()
	n := a.node
	a.node = nil
	a.mu.Unlock()

	if n == nil {
		return ErrClosed
	}
	n.release()
	return nil
}

// DirEntryAccessor iterates a directory in name order. It resumes from the
// name after the last returned entry, so entries added or removed between
// calls are seen or skipped the way a sorted map range would.
type DirEntryAccessor struct {
	mu   sync.Mutex
	node *Node // nil once exhausted
	next string
}

func newDirEntryAccessor(n *Node) (*DirEntryAccessor, error) {
	if !n.retain() {
		return nil, ErrNotFound
	}
	return &DirEntryAccessor{node: n}, nil
}

// Next returns the next entry, or io.EOF when the directory is exhausted.
// An exhausted accessor stays exhausted.
func (a *DirEntryAccessor) Next() (DirEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.node == nil {
		return DirEntry{}, io.EOF
	}

	cur, next, ok := a.node.dir.seek(a.next)
	if !ok {
		a.dropLocked()
		return DirEntry{}, io.EOF
	}
	if next == "" {
		a.dropLocked()
	}
	a.next = next
	return cur, nil
}

// All ranges over the remaining entries.
func (a *DirEntryAccessor) All() iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		for {
			e, err := a.Next()
			if err == io.EOF {
				return
			}
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// Close stops the iteration early.
func (a *DirEntryAccessor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dropLocked()
	return nil
}

// Caller must hold a.mu.
func (a *DirEntryAccessor) dropLocked() {
	if a.node != nil {
		a.node.release()
		a.node = nil
	}
}
