package filesystem

import (
	"math"
	"sync"
	"testing"

	"github.com/brettbedarf/isofs/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Small sector geometry keeps chunk boundary tests cheap
const (
	testMinSector = 64
	testMaxSector = 256
)

func createTestConfig(maxSize, maxNodes uint64) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.MaxSize = maxSize
	cfg.MaxNodes = maxNodes
	cfg.MinSector = testMinSector
	cfg.MaxSector = testMaxSector
	return cfg
}

func newTestController(t *testing.T, maxSize, maxNodes uint64) *Controller {
	t.Helper()
	c, err := NewController(createTestConfig(maxSize, maxNodes))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func newTestLimits(maxSize, maxNodes uint64) *FSLimits {
	return newFSLimits(maxSize, maxNodes, testMinSector, testMaxSector)
}

func TestFSLimits_TakeAllOrNothing(t *testing.T) {
	t.Parallel()
	l := newTestLimits(100, 2)

	assert.True(t, l.TakeSize(0), "zero always succeeds")
	assert.True(t, l.TakeSize(60))
	assert.False(t, l.TakeSize(41), "must not reserve past the budget")
	size, _ := l.Remaining()
	assert.Equal(t, uint64(40), size, "failed take must not reserve partially")
	assert.True(t, l.TakeSize(40))

	assert.True(t, l.TakeNode(2))
	assert.False(t, l.TakeNode(1))
	l.PutNode(1)
	assert.True(t, l.TakeNode(1))
}

func TestFSLimits_PutSaturates(t *testing.T) {
	t.Parallel()
	l := newTestLimits(math.MaxUint64-1, 0)

	l.PutSize(10)
	size, _ := l.Remaining()
	assert.Equal(t, uint64(math.MaxUint64), size, "must saturate instead of wrapping")
}

func TestFSLimits_ConcurrentTake(t *testing.T) {
	t.Parallel()
	l := newTestLimits(1000, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if l.TakeSize(3) {
					mu.Lock()
					taken += 3
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	size, _ := l.Remaining()
	assert.Equal(t, 999, taken)
	assert.Equal(t, uint64(1), size)
}

func TestFSLimits_NextInodeIncreases(t *testing.T) {
	t.Parallel()
	l := newTestLimits(0, 0)

	a, b := l.NextInode(), l.NextInode()
	assert.Less(t, a, b)
}

func TestFSLimits_ClampedSize(t *testing.T) {
	t.Parallel()
	l := newTestLimits(0, 0)

	tests := []struct{ in, want int }{
		{0, 0},
		{1, 16},
		{16, 16},
		{17, 64},
		{64, 64},
		{65, 128},
		{128, 128},
		{129, 256},
		{256, 256},
		{1000, 256},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.clampedSize(tt.in), "clampedSize(%d)", tt.in)
	}
}

func TestFSLimits_ChunkedSize(t *testing.T) {
	t.Parallel()
	l := newTestLimits(0, 0)

	assert.Equal(t, 0, l.chunkedSize(0))
	assert.Equal(t, 64, l.chunkedSize(20))
	assert.Equal(t, 256, l.chunkedSize(256))
	assert.Equal(t, 320, l.chunkedSize(300))
	assert.Equal(t, 528, l.chunkedSize(513))
}

func TestAcqNode_ReleaseOnce(t *testing.T) {
	t.Parallel()
	l := newTestLimits(0, 1)

	a, err := newAcqNode(l)
	require.NoError(t, err)
	_, err = newAcqNode(l)
	assert.ErrorIs(t, err, ErrNodeLimit)

	a.release()
	a.release()
	_, nodes := l.Remaining()
	assert.Equal(t, uint64(1), nodes, "second release must be a no-op")
}
