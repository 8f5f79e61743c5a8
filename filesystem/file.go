package filesystem

import (
	"math"
	"sync"

	"github.com/brettbedarf/isofs/internal/util"
)

// File is sparse, sector-chunked byte storage. size is what reads see;
// sizeChunks is what the file has reserved against the byte quota, always at
// least the chunk-rounded size. Chunk i covers [i*MaxSector, (i+1)*MaxSector)
// and holds at most MaxSector bytes; a nil chunk reads as zeroes.
type File struct {
	mu     sync.Mutex
	acq    *acqNode
	limits *FSLimits
	stamp  Timestamp

	size       int
	sizeChunks int
	data       [][]byte
	destroyed  bool
}

func newFile(limits *FSLimits) (*File, error) {
	acq, err := newAcqNode(limits)
	if err != nil {
		return nil, err
	}
	return &File{acq: acq, limits: limits, stamp: NewTimestamp()}, nil
}

func (f *File) inode() uint64 { return f.acq.inode }

// Len returns the logical size in bytes.
func (f *File) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Capacity returns the bytes reserved against the quota.
func (f *File) Capacity() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sizeChunks
}

// Read returns up to n bytes at off, never crossing a chunk boundary.
// Callers loop to read more. Unwritten regions read as zeroes.
func (f *File) Read(n, off int) []byte {
	ret, _ := f.read(n, off)
	return ret
}

// read is Read that fails with ErrNotFound once the file is destroyed.
func (f *File) read(n, off int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return nil, ErrNotFound
	}
	s, l := f.readLocked(n, off)
	ret := make([]byte, l)
	copy(ret, s)
	return ret, nil
}

// Write stores buf at off, growing the file as needed.
func (f *File) Write(buf []byte, off int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeLocked(buf, off)
}

// Resize truncates or zero-extends the file to size bytes.
func (f *File) Resize(size int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resizeLocked(size)
}

// Truncate shrinks the file to size bytes. Sizes at or above the current
// length are a no-op.
func (f *File) Truncate(size int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.truncateLocked(size)
}

// readLocked returns the stored bytes of the window and the exact number of
// bytes l the window covers. The slice may be shorter than l when the tail
// was never written; those bytes are zero.
// Caller must hold f.mu.
func (f *File) readLocked(n, off int) ([]byte, int) {
	f.stamp.Access()
	if n <= 0 || off < 0 || off >= f.size {
		return nil, 0
	}

	shift, mask := f.limits.shift, f.limits.maxSector-1
	o := off & mask
	n = min(n, f.size-off)
	e := min(o+n, f.size-(off&^mask), f.limits.maxSector)
	l := e - o

	chunk := f.data[off>>shift]
	if o >= len(chunk) {
		return nil, l
	}
	return chunk[o:min(e, len(chunk))], l
}

// reserveLocked charges the quota for data ending at end. State is only
// touched once the reservation succeeded. Ends past maxFileSize are refused
// before any chunk arithmetic.
// Caller must hold f.mu.
func (f *File) reserveLocked(end int) error {
	if end > f.limits.maxFileSize() {
		return &SizeLimitError{Deficit: uint64(end) - uint64(f.sizeChunks)}
	}
	ec := f.limits.chunkedSize(end)
	if ec <= f.sizeChunks {
		return nil
	}
	v := uint64(ec - f.sizeChunks)
	if !f.limits.TakeSize(v) {
		logger := util.GetLogger("File")
		logger.Debug().Uint64("inode", f.inode()).Uint64("deficit", v).Msg("Byte quota exhausted")
		return &SizeLimitError{Deficit: v}
	}
	f.sizeChunks = ec
	return nil
}

// growLocked appends empty chunks until the chunk table covers end bytes.
// Caller must hold f.mu.
func (f *File) growLocked(end int) {
	want := (end + f.limits.maxSector - 1) >> f.limits.shift
	for len(f.data) < want {
		f.data = append(f.data, nil)
	}
}

// Caller must hold f.mu.
func (f *File) writeLocked(buf []byte, off int) error {
	if f.destroyed {
		return ErrNotFound
	}
	if len(buf) == 0 {
		return nil
	}
	if off < 0 || off > math.MaxInt-len(buf) {
		return ErrInvalid
	}

	end := off + len(buf)
	if end > f.size {
		if err := f.reserveLocked(end); err != nil {
			return err
		}
		f.growLocked(end)
		f.size = end
	}
	f.stamp.Modify()

	shift, mask, maxSector := f.limits.shift, f.limits.maxSector-1, f.limits.maxSector
	d, r := off>>shift, off&mask
	for len(buf) > 0 {
		s := min(r+len(buf), maxSector)
		chunk := f.data[d]
		if s > len(chunk) {
			grown := make([]byte, f.limits.clampedSize(s))
			copy(grown, chunk)
			chunk = grown
			f.data[d] = chunk
		}
		n := copy(chunk[r:s], buf)
		buf = buf[n:]
		d, r = d+1, 0
	}
	return nil
}

// Caller must hold f.mu.
func (f *File) resizeLocked(size int) error {
	if f.destroyed {
		return ErrNotFound
	}
	if size < 0 {
		return ErrInvalid
	}
	if size <= f.size {
		f.truncateLocked(size)
		return nil
	}

	if err := f.reserveLocked(size); err != nil {
		return err
	}
	f.stamp.Modify()
	f.growLocked(size)
	f.size = size
	return nil
}

// Caller must hold f.mu.
func (f *File) truncateLocked(size int) {
	if size < 0 || size >= f.size {
		return
	}
	f.stamp.Modify()

	newChunks := (size + f.limits.maxSector - 1) &^ (f.limits.maxSector - 1)
	if f.sizeChunks > newChunks {
		f.limits.PutSize(uint64(f.sizeChunks - newChunks))
		f.sizeChunks = newChunks
	}
	f.size = size

	n := newChunks >> f.limits.shift
	clear(f.data[n:])
	f.data = f.data[:n]
	if r := size & (f.limits.maxSector - 1); r != 0 {
		last := f.data[n-1]
		clear(last[min(r, len(last)):])
	}
}

// destroy releases the file's bytes and node slot. Later writes fail.
func (f *File) destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return
	}
	f.destroyed = true
	f.limits.PutSize(uint64(f.sizeChunks))
	f.acq.release()
	f.size, f.sizeChunks, f.data = 0, 0, nil
}
