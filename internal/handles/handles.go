// Package handles maps FUSE file handle numbers to open streams.
package handles

import (
	"errors"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// ErrExhausted is returned by [Table.Open] when every handle number is taken.
var ErrExhausted = errors.New("no free file handles")

// Table hands out handle numbers between 1 and its limit. Numbers are reused
// only after they were closed.
type Table[T any] struct {
	m    *xsync.Map[uint64, T]
	next atomic.Uint64
	max  uint64
}

// New creates a table whose handles never exceed limit.
func New[T any](limit int) *Table[T] {
	return &Table[T]{
		m:   xsync.NewMap[uint64, T](),
		max: uint64(max(limit, 1)),
	}
}

// Open stores v under a fresh handle number.
func (t *Table[T]) Open(v T) (uint64, error) {
	if uint64(t.m.Size()) >= t.max {
		return 0, ErrExhausted
	}
	for range t.max {
		fh := (t.next.Add(1)-1)%t.max + 1
		if _, loaded := t.m.LoadOrStore(fh, v); !loaded {
			return fh, nil
		}
	}
	return 0, ErrExhausted
}

func (t *Table[T]) Lookup(fh uint64) (T, bool) {
	return t.m.Load(fh)
}

// Close removes fh and returns what it held.
func (t *Table[T]) Close(fh uint64) (T, bool) {
	return t.m.LoadAndDelete(fh)
}

// Len returns the number of open handles.
func (t *Table[T]) Len() int {
	return t.m.Size()
}

// Range calls fn for every open handle until it returns false.
func (t *Table[T]) Range(fn func(fh uint64, v T) bool) {
	t.m.Range(fn)
}
