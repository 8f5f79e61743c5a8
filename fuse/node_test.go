package fuse

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/brettbedarf/isofs/config"
	"github.com/brettbedarf/isofs/filesystem"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.MaxSize = 4096
	cfg.MaxNodes = 16
	cfg.MinSector = 64
	cfg.MaxSector = 256
	cfg.MaxFH = 4

	ctrl, err := filesystem.NewController(cfg)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	return NewBridge(ctrl, cfg)
}

// nodeFor wraps a capability without attaching it to a mounted tree.
func nodeFor(b *Bridge, w filesystem.CapWrapper) *Node {
	return &Node{b: b, cap: w}
}

func TestBridge_Options(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)
	b.cfg.AttrTimeout = 0.5

	opts := b.Options()
	assert.Equal(t, 500*time.Millisecond, *opts.AttrTimeout)
	assert.Equal(t, time.Second, *opts.EntryTimeout)
	assert.Equal(t, config.DefaultFsName, opts.MountOptions.FsName)
	assert.Equal(t, config.DefaultName, opts.MountOptions.Name)
	assert.False(t, opts.MountOptions.Debug)
	assert.NotNil(t, opts.MountOptions.Logger)
}

func TestBridge_HoldUntilForget(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)
	ctx := context.Background()
	root := b.ctrl.RootCap()

	w, err := root.CreateFile(b.ctrl, "f")
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("data"), 0))

	require.NoError(t, b.hold(w))
	require.NoError(t, b.hold(w), "repeated lookups share one reference")
	assert.Equal(t, 1, b.HeldNodes())

	// The kernel still knows the inode, so the unlinked file stays readable
	assert.Equal(t, syscall.Errno(0), nodeFor(b, root).Unlink(ctx, "f"))
	got, err := w.Read(4, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	size, nodes := b.ctrl.Remaining()
	n := nodeFor(b, w)
	n.OnForget()
	n.OnForget()
	afterSize, afterNodes := b.ctrl.Remaining()
	assert.Equal(t, size+16, afterSize)
	assert.Equal(t, nodes+1, afterNodes)
	assert.Equal(t, 0, b.HeldNodes())

	_, err = w.Read(4, 0)
	assert.ErrorIs(t, err, filesystem.ErrNotFound)
	assert.ErrorIs(t, b.hold(w), filesystem.ErrNotFound)
}

func TestBridge_CloseAllDropsHeldNodes(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)
	root := b.ctrl.RootCap()

	w, err := root.CreateDir(b.ctrl, "d")
	require.NoError(t, err)
	require.NoError(t, b.hold(w))
	require.NoError(t, root.Unlink("d", true))
	assert.True(t, w.Node().Alive())

	b.CloseAll()
	assert.Equal(t, 0, b.HeldNodes())
	assert.False(t, w.Node().Alive())
}

func TestNode_Getattr(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)
	root := b.Root()

	var out fuse.AttrOut
	assert.Equal(t, syscall.Errno(0), root.Getattr(context.Background(), nil, &out))
	assert.Equal(t, uint32(syscall.S_IFDIR|0o755), out.Mode)
	assert.Equal(t, b.ctrl.Root().Inode(), out.Ino)
	assert.Equal(t, uint32(64), out.Blksize)
}

func TestNode_OpenReadWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBridge(t)
	w, err := b.ctrl.RootCap().CreateFile(b.ctrl, "f")
	require.NoError(t, err)
	n := nodeFor(b, w)

	fh, flags, errno := n.Open(ctx, syscall.O_RDWR)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint32(fuse.FOPEN_DIRECT_IO), flags)
	h := fh.(*fileHandle)
	assert.Equal(t, 1, b.OpenHandles())

	written, errno := h.Write(ctx, []byte("hello world"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint32(11), written)

	dest := make([]byte, 5)
	res, errno := h.Read(ctx, dest, 6)
	require.Equal(t, syscall.Errno(0), errno)
	got, _ := res.Bytes(nil)
	assert.Equal(t, "world", string(got))

	// Reads past the end come back short
	res, errno = h.Read(ctx, make([]byte, 100), 8)
	require.Equal(t, syscall.Errno(0), errno)
	got, _ = res.Bytes(nil)
	assert.Equal(t, "rld", string(got))

	assert.Equal(t, syscall.Errno(0), h.Release(ctx))
	assert.Equal(t, 0, b.OpenHandles())
}

func TestNode_OpenSpansChunks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBridge(t)
	w, err := b.ctrl.RootCap().CreateFile(b.ctrl, "f")
	require.NoError(t, err)
	data := make([]byte, 600)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, w.Write(data, 0))

	fh, _, errno := nodeFor(b, w).Open(ctx, syscall.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)
	defer fh.(*fileHandle).Release(ctx)

	res, errno := fh.(*fileHandle).Read(ctx, make([]byte, 600), 0)
	require.Equal(t, syscall.Errno(0), errno)
	got, _ := res.Bytes(nil)
	assert.Equal(t, data, got)

	_, errno = fh.(*fileHandle).Write(ctx, []byte("x"), 0)
	assert.Equal(t, syscall.EACCES, errno)
}

func TestNode_OpenFlags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBridge(t)
	w, err := b.ctrl.RootCap().CreateFile(b.ctrl, "f")
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("old contents"), 0))
	n := nodeFor(b, w)

	fh, _, errno := n.Open(ctx, syscall.O_WRONLY|syscall.O_TRUNC)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint64(0), w.Stat().Size)
	_, errno = fh.(*fileHandle).Read(ctx, make([]byte, 1), 0)
	assert.Equal(t, syscall.EACCES, errno, "write-only handle cannot read")
	fh.(*fileHandle).Release(ctx)

	require.NoError(t, w.Write([]byte("ab"), 0))
	fh, _, errno = n.Open(ctx, syscall.O_WRONLY|syscall.O_APPEND)
	require.Equal(t, syscall.Errno(0), errno)
	_, errno = fh.(*fileHandle).Write(ctx, []byte("cd"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	fh.(*fileHandle).Release(ctx)

	got, err := w.Read(10, 0)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got), "append ignores the write offset")

	_, _, errno = b.Root().Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.EISDIR, errno)
}

func TestNode_OpenHandleLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBridge(t)
	w, err := b.ctrl.RootCap().CreateFile(b.ctrl, "f")
	require.NoError(t, err)
	n := nodeFor(b, w)

	for range b.cfg.MaxFH {
		_, _, errno := n.Open(ctx, syscall.O_RDONLY)
		require.Equal(t, syscall.Errno(0), errno)
	}
	_, _, errno := n.Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.ENFILE, errno)

	b.CloseAll()
	assert.Equal(t, 0, b.OpenHandles())
	_, _, errno = n.Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.Errno(0), errno)
}

func TestNode_Setattr(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBridge(t)
	w, err := b.ctrl.RootCap().CreateFile(b.ctrl, "f")
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("123456"), 0))
	n := nodeFor(b, w)

	mtime := time.Unix(1600000000, 0)
	in := &fuse.SetAttrIn{}
	in.Valid = fuse.FATTR_SIZE | fuse.FATTR_MTIME
	in.Size = 3
	in.Mtime = uint64(mtime.Unix())

	var out fuse.AttrOut
	require.Equal(t, syscall.Errno(0), n.Setattr(ctx, nil, in, &out))
	assert.Equal(t, uint64(3), out.Size)
	assert.Equal(t, uint64(mtime.Unix()), out.Mtime)

	ro := nodeFor(b, filesystem.NewCapWrapper(w.Node(), filesystem.AccessRead))
	assert.Equal(t, syscall.EACCES, ro.Setattr(ctx, nil, in, &out))
}

func TestNode_Readdir(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBridge(t)
	root := b.ctrl.RootCap()
	d, err := root.CreateDir(b.ctrl, "d")
	require.NoError(t, err)
	_, err = root.CreateFile(b.ctrl, "f")
	require.NoError(t, err)
	_, err = root.CreateLink(b.ctrl, "l", "f")
	require.NoError(t, err)

	list := func(n *Node) []fuse.DirEntry {
		stream, errno := n.Readdir(ctx)
		require.Equal(t, syscall.Errno(0), errno)
		defer stream.Close()

		var entries []fuse.DirEntry
		for stream.HasNext() {
			e, errno := stream.Next()
			require.Equal(t, syscall.Errno(0), errno)
			entries = append(entries, e)
		}
		return entries
	}

	entries := list(b.Root())
	var names []string
	var modes []uint32
	for _, e := range entries {
		names = append(names, e.Name)
		modes = append(modes, e.Mode)
	}
	assert.Equal(t, []string{".", "..", "d", "f", "l"}, names)
	assert.Equal(t, []uint32{syscall.S_IFDIR, syscall.S_IFDIR, syscall.S_IFDIR, syscall.S_IFREG, syscall.S_IFLNK}, modes)
	rootIno := b.ctrl.Root().Inode()
	assert.Equal(t, rootIno, entries[0].Ino)
	assert.Equal(t, rootIno, entries[1].Ino, "the root is its own parent")

	entries = list(nodeFor(b, d))
	require.Len(t, entries, 2, "an empty directory lists only itself and its parent")
	assert.Equal(t, d.Node().Inode(), entries[0].Ino)
	assert.Equal(t, rootIno, entries[1].Ino)
}

func TestNode_Remove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBridge(t)
	root := b.ctrl.RootCap()
	d, err := root.CreateDir(b.ctrl, "d")
	require.NoError(t, err)
	_, err = d.CreateFile(b.ctrl, "f")
	require.NoError(t, err)
	n := b.Root()

	assert.Equal(t, syscall.ENOTEMPTY, n.Rmdir(ctx, "d"))
	assert.Equal(t, syscall.EISDIR, n.Unlink(ctx, "d"))
	assert.Equal(t, syscall.Errno(0), nodeFor(b, d).Unlink(ctx, "f"))
	assert.Equal(t, syscall.Errno(0), n.Rmdir(ctx, "d"))
	assert.Equal(t, syscall.ENOENT, n.Rmdir(ctx, "d"))
}

func TestNode_Readlink(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBridge(t)
	l, err := b.ctrl.RootCap().CreateLink(b.ctrl, "l", "../a/b")
	require.NoError(t, err)

	target, errno := nodeFor(b, l).Readlink(ctx)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, "../a/b", string(target))

	_, errno = b.Root().Readlink(ctx)
	assert.Equal(t, syscall.EINVAL, errno)
}

func TestNode_Rename(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBridge(t)
	root := b.ctrl.RootCap()
	d, err := root.CreateDir(b.ctrl, "d")
	require.NoError(t, err)
	_, err = root.CreateFile(b.ctrl, "f")
	require.NoError(t, err)
	_, err = root.CreateFile(b.ctrl, "g")
	require.NoError(t, err)
	n := b.Root()
	dn := nodeFor(b, d)

	assert.Equal(t, syscall.Errno(0), n.Rename(ctx, "f", dn, "moved", 0))
	_, err = d.Open(b.ctrl, "moved", false, nil, filesystem.AccessNone)
	assert.NoError(t, err)

	assert.Equal(t, syscall.EEXIST, n.Rename(ctx, "g", dn, "moved", renameNoReplace))
	assert.Equal(t, syscall.ENOTSUP, n.Rename(ctx, "g", dn, "x", 0x2))
	assert.Equal(t, syscall.EINVAL, n.Rename(ctx, "d", dn, "self", 0))
	assert.Equal(t, syscall.ENOENT, n.Rename(ctx, "missing", dn, "x", 0))
}

func TestNode_Statfs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newTestBridge(t)
	w, err := b.ctrl.RootCap().CreateFile(b.ctrl, "f")
	require.NoError(t, err)
	require.NoError(t, w.Write(make([]byte, 100), 0))

	var out fuse.StatfsOut
	require.Equal(t, syscall.Errno(0), b.Root().Statfs(ctx, &out))
	assert.Equal(t, uint32(64), out.Bsize)
	assert.Equal(t, uint64(4096/64), out.Blocks)
	assert.Equal(t, uint64(16), out.Files)
	assert.Equal(t, uint64(14), out.Ffree)

	size, _ := b.ctrl.Remaining()
	assert.Equal(t, size/64, out.Bfree)
}
