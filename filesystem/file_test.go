package filesystem

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFile(t *testing.T, maxSize uint64) (*File, *FSLimits) {
	t.Helper()
	l := newTestLimits(maxSize, 8)
	f, err := newFile(l)
	require.NoError(t, err)
	return f, l
}

// readFull reads n bytes at off by looping over chunk sized reads.
func readFull(f *File, n, off int) []byte {
	var ret []byte
	for len(ret) < n {
		b := f.Read(n-len(ret), off+len(ret))
		if len(b) == 0 {
			break
		}
		ret = append(ret, b...)
	}
	return ret
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i%251 + 1)
	}
	return b
}

func TestFile_SmallWrite(t *testing.T) {
	t.Parallel()
	f, _ := newTestFile(t, 1024)

	data := []byte("twenty bytes of data")
	require.Len(t, data, 20)
	require.NoError(t, f.Write(data, 0))

	assert.Equal(t, 20, f.Len())
	assert.Equal(t, 64, f.Capacity(), "one clamped chunk")
	assert.Equal(t, data, f.Read(20, 0))
}

func TestFile_RoundTripAcrossChunks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		off  int
		n    int
	}{
		{"inside first chunk", 3, 40},
		{"ends on boundary", 200, 56},
		{"straddles boundary", 250, 20},
		{"spans three chunks", 100, 600},
		{"sparse start", 700, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, _ := newTestFile(t, 4096)
			data := pattern(tt.n)

			require.NoError(t, f.Write(data, tt.off))

			assert.Equal(t, tt.off+tt.n, f.Len())
			assert.Equal(t, data, readFull(f, tt.n, tt.off))
			assert.Equal(t, make([]byte, tt.off), readFull(f, tt.off, 0), "unwritten prefix reads as zero")
		})
	}
}

func TestFile_ReadStopsAtChunkBoundary(t *testing.T) {
	t.Parallel()
	f, _ := newTestFile(t, 4096)
	require.NoError(t, f.Write(pattern(600), 0))

	assert.Len(t, f.Read(100, 200), 56, "read must not cross the chunk boundary")
	assert.Len(t, f.Read(1000, 512), 88, "read must stop at the end of the file")
	assert.Empty(t, f.Read(10, 600))
	assert.Empty(t, f.Read(10, 9000))
}

func TestFile_LenAfterOverwrite(t *testing.T) {
	t.Parallel()
	f, _ := newTestFile(t, 4096)

	require.NoError(t, f.Write(pattern(300), 0))
	require.NoError(t, f.Write([]byte("abc"), 10))
	assert.Equal(t, 300, f.Len(), "inner write keeps the length")
	assert.Equal(t, []byte("abc"), f.Read(3, 10))
}

func TestFile_QuotaFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()
	f, l := newTestFile(t, 300)

	require.NoError(t, f.Write([]byte("hello"), 0))
	capBefore := f.Capacity()

	// 300 bytes round up to 256 + 64
	err := f.Write(pattern(300), 0)
	var sizeErr *SizeLimitError
	require.ErrorAs(t, err, &sizeErr)
	assert.ErrorIs(t, err, ErrSizeLimit)
	assert.True(t, IsQuota(err))
	assert.Equal(t, uint64(320-capBefore), sizeErr.Deficit)

	assert.Equal(t, 5, f.Len())
	assert.Equal(t, capBefore, f.Capacity())
	assert.Equal(t, []byte("hello"), f.Read(5, 0))
	size, _ := l.Remaining()
	assert.Equal(t, uint64(300-capBefore), size)
}

func TestFile_SingleWriteWithinLimit(t *testing.T) {
	t.Parallel()

	for _, limit := range []uint64{0, 16, 64, 256, 320, 528} {
		for _, end := range []int{1, 16, 17, 64, 65, 256, 300, 513} {
			f, l := newTestFile(t, limit)
			err := f.Write(pattern(end), 0)

			want := uint64(l.chunkedSize(end)) <= limit
			assert.Equal(t, want, err == nil, "limit %d end %d: %v", limit, end, err)
			size, _ := l.Remaining()
			assert.LessOrEqual(t, limit-size, limit)
		}
	}
}

func TestFile_EmptyWriteIsNoop(t *testing.T) {
	t.Parallel()
	f, _ := newTestFile(t, 0)

	require.NoError(t, f.Write(nil, 1000))
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 0, f.Capacity())
}

func TestFile_Truncate(t *testing.T) {
	t.Parallel()
	f, l := newTestFile(t, 4096)
	require.NoError(t, f.Write(pattern(300), 0))
	require.Equal(t, 320, f.Capacity())

	f.Truncate(100)
	assert.Equal(t, 100, f.Len())
	assert.Equal(t, 256, f.Capacity(), "quota released down to the chunk boundary")
	size, _ := l.Remaining()
	assert.Equal(t, uint64(4096-256), size)

	f.Truncate(100)
	f.Truncate(500)
	assert.Equal(t, 100, f.Len(), "truncate at or above the length is a no-op")
	assert.Equal(t, 256, f.Capacity())
	assert.Equal(t, pattern(100), readFull(f, 100, 0))
}

func TestFile_ResizeZeroFills(t *testing.T) {
	t.Parallel()
	f, _ := newTestFile(t, 4096)
	require.NoError(t, f.Write(pattern(300), 0))

	require.NoError(t, f.Resize(100))
	require.NoError(t, f.Resize(300))

	assert.Equal(t, 300, f.Len())
	assert.Equal(t, 320, f.Capacity())
	got := readFull(f, 300, 0)
	assert.Equal(t, pattern(100), got[:100])
	assert.True(t, bytes.Equal(make([]byte, 200), got[100:]), "bytes past a truncation must read as zero")
}

func TestFile_ResizeQuota(t *testing.T) {
	t.Parallel()
	f, _ := newTestFile(t, 256)

	require.NoError(t, f.Resize(256))
	err := f.Resize(257)
	assert.ErrorIs(t, err, ErrSizeLimit)
	assert.Equal(t, 256, f.Len())
	assert.ErrorIs(t, f.Resize(-1), ErrInvalid)
}

func TestFile_DestroyReturnsQuota(t *testing.T) {
	t.Parallel()
	f, l := newTestFile(t, 4096)
	require.NoError(t, f.Write(pattern(300), 0))

	f.destroy()
	size, nodes := l.Remaining()
	assert.Equal(t, uint64(4096), size)
	assert.Equal(t, uint64(8), nodes)

	assert.ErrorIs(t, f.Write([]byte("x"), 0), ErrNotFound)
	assert.ErrorIs(t, f.Resize(10), ErrNotFound)
	assert.Equal(t, 0, f.Len())
	_, err := f.read(1, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFile_HugeOffsets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		op   func(f *File) error
	}{
		{"resize to max int", func(f *File) error { return f.Resize(math.MaxInt) }},
		{"resize past ceiling", func(f *File) error { return f.Resize(f.limits.maxFileSize() + 1) }},
		{"write near max int", func(f *File) error { return f.Write([]byte("x"), math.MaxInt-1) }},
		{"write ending at max int", func(f *File) error { return f.Write([]byte("xy"), math.MaxInt-2) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// An unbounded byte quota leaves the size ceiling as the only guard
			f, l := newTestFile(t, math.MaxUint64)
			require.NoError(t, f.Write([]byte("abc"), 0))
			size, nodes := l.Remaining()

			assert.ErrorIs(t, tt.op(f), ErrSizeLimit)
			assert.Equal(t, 3, f.Len())
			assert.Equal(t, 16, f.Capacity())
			afterSize, afterNodes := l.Remaining()
			assert.Equal(t, size, afterSize)
			assert.Equal(t, nodes, afterNodes)
			assert.Equal(t, []byte("abc"), f.Read(10, 0))
			assert.Empty(t, f.Read(10, 1<<40))
		})
	}
}
