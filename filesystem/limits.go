package filesystem

import (
	"math"
	"math/bits"
	"sync/atomic"
)

// FSLimits tracks the remaining quota of a controller. curSize and curNode
// hold what is left, not what is used. Reservations never block: exhaustion
// is reported to the caller immediately.
type FSLimits struct {
	curSize atomic.Uint64
	curNode atomic.Uint64
	inode   atomic.Uint64

	// Sector geometry shared by every file of the controller
	minSector int
	maxSector int
	shift     uint
}

func newFSLimits(maxSize, maxNode uint64, minSector, maxSector int) *FSLimits {
	l := &FSLimits{
		minSector: minSector,
		maxSector: maxSector,
		shift:     uint(bits.TrailingZeros(uint(maxSector))),
	}
	l.curSize.Store(maxSize)
	l.curNode.Store(maxNode)
	return l
}

// takeVal subtracts num from cur only if the whole amount is available.
func takeVal(cur *atomic.Uint64, num uint64) bool {
	if num == 0 {
		return true
	}
	for {
		s := cur.Load()
		if s < num {
			return false
		}
		if cur.CompareAndSwap(s, s-num) {
			return true
		}
	}
}

// putVal adds num back to cur, saturating instead of wrapping.
func putVal(cur *atomic.Uint64, num uint64) {
	if num == 0 {
		return
	}
	for {
		s := cur.Load()
		n := s + num
		if n < s {
			n = math.MaxUint64
		}
		if cur.CompareAndSwap(s, n) {
			return
		}
	}
}

// TakeSize reserves size bytes. Returns false without reserving anything
// when the budget cannot cover the whole amount.
func (l *FSLimits) TakeSize(size uint64) bool { return takeVal(&l.curSize, size) }

// TakeNode reserves n node slots, all-or-nothing.
func (l *FSLimits) TakeNode(n uint64) bool { return takeVal(&l.curNode, n) }

func (l *FSLimits) PutSize(size uint64) { putVal(&l.curSize, size) }

func (l *FSLimits) PutNode(n uint64) { putVal(&l.curNode, n) }

// NextInode allocates the next process-unique inode number.
func (l *FSLimits) NextInode() uint64 {
	return l.inode.Add(1)
}

// Remaining returns the bytes and nodes still available.
func (l *FSLimits) Remaining() (size, nodes uint64) {
	return l.curSize.Load(), l.curNode.Load()
}

func (l *FSLimits) MinSector() int { return l.minSector }

func (l *FSLimits) MaxSector() int { return l.maxSector }

// clampedSize maps an in-chunk length to its bucketed allocation size:
// 0, 16, MinSector, then powers of two up to MaxSector.
func (l *FSLimits) clampedSize(v int) int {
	switch {
	case v <= 0:
		return 0
	case v <= 16:
		return 16
	case v <= l.minSector:
		return l.minSector
	case v >= l.maxSector:
		return l.maxSector
	default:
		return 1 << bits.Len(uint(v-1))
	}
}

// maxFileSize is the largest end offset whose chunk-rounded size still fits
// in an int.
func (l *FSLimits) maxFileSize() int {
	return (math.MaxInt - l.maxSector) &^ (l.maxSector - 1)
}

// chunkedSize is the quota charged for a file whose data ends at end.
func (l *FSLimits) chunkedSize(end int) int {
	mask := l.maxSector - 1
	return (end &^ mask) + l.clampedSize(end&mask)
}

// acqNode is a ticket for one reserved node slot.
type acqNode struct {
	limits   *FSLimits
	inode    uint64
	released atomic.Bool
}

func newAcqNode(limits *FSLimits) (*acqNode, error) {
	if !limits.TakeNode(1) {
		return nil, ErrNodeLimit
	}
	return &acqNode{limits: limits, inode: limits.NextInode()}, nil
}

// release returns the slot. Only the first call has any effect.
func (a *acqNode) release() {
	if a.released.CompareAndSwap(false, true) {
		a.limits.PutNode(1)
	}
}
