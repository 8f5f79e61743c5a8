package fuse

import (
	"context"
	"syscall"
	"time"

	"github.com/brettbedarf/isofs/filesystem"
	"github.com/brettbedarf/isofs/internal/util"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Flags accepted by rename(2)
const (
	renameNoReplace = 0x1
)

// Node is the FUSE view of one filesystem node, seen through a capability.
type Node struct {
	gofs.Inode
	b   *Bridge
	cap filesystem.CapWrapper
}

var (
	_ gofs.NodeLookuper    = (*Node)(nil)
	_ gofs.NodeGetattrer   = (*Node)(nil)
	_ gofs.NodeSetattrer   = (*Node)(nil)
	_ gofs.NodeReaddirer   = (*Node)(nil)
	_ gofs.NodeOpener      = (*Node)(nil)
	_ gofs.NodeCreater     = (*Node)(nil)
	_ gofs.NodeMkdirer     = (*Node)(nil)
	_ gofs.NodeSymlinker   = (*Node)(nil)
	_ gofs.NodeReadlinker  = (*Node)(nil)
	_ gofs.NodeUnlinker    = (*Node)(nil)
	_ gofs.NodeRmdirer     = (*Node)(nil)
	_ gofs.NodeRenamer     = (*Node)(nil)
	_ gofs.NodeStatfser    = (*Node)(nil)
	_ gofs.NodeOnForgetter = (*Node)(nil)
)

// Cap returns the capability the node was looked up with.
func (n *Node) Cap() filesystem.CapWrapper { return n.cap }

func (n *Node) fillEntry(w filesystem.CapWrapper, out *fuse.EntryOut) {
	fillAttr(w.Stat(), w.Access(), n.b.blksize(), &out.Attr)
	out.SetEntryTimeout(seconds(n.b.cfg.EntryTimeout))
	out.SetAttrTimeout(seconds(n.b.cfg.AttrTimeout))
}

// newChild wraps w in a kernel inode below n. The node stays alive, even
// once unlinked, until the kernel forgets the inode.
func (n *Node) newChild(ctx context.Context, w filesystem.CapWrapper, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	if err := n.b.hold(w); err != nil {
		return nil, ToErrno(err)
	}
	n.fillEntry(w, out)
	child := &Node{b: n.b, cap: w}
	return n.NewInode(ctx, child, gofs.StableAttr{
		Mode: typeBits(w.FileType()),
		Ino:  w.Node().Inode(),
	}), 0
}

// OnForget drops the reference taken when the kernel learned the inode.
func (n *Node) OnForget() {
	n.b.forget(n.cap.Node().Inode())
}

// Lookup is called by the kernel when the VFS wants to know
// about a file inside a directory.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	logger := util.GetLogger("Fuse.Lookup")
	logger.Trace().Uint64("parent", n.cap.Node().Inode()).Str("name", name).Msg("Lookup called")

	w, err := n.cap.Open(n.b.ctrl, name, false, nil, filesystem.AccessNone)
	if err != nil {
		return nil, ToErrno(err)
	}
	return n.newChild(ctx, w, out)
}

func (n *Node) Getattr(ctx context.Context, f gofs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(n.cap.Stat(), n.cap.Access(), n.b.blksize(), &out.Attr)
	out.SetTimeout(seconds(n.b.cfg.AttrTimeout))
	return 0
}

// Setattr handles truncate and utimens. Mode and owner changes are accepted
// and ignored since permissions come from the capability.
func (n *Node) Setattr(ctx context.Context, f gofs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	logger := util.GetLogger("Fuse.Setattr")
	logger.Trace().Uint64("inode", n.cap.Node().Inode()).Msg("Setattr called")

	if size, ok := in.GetSize(); ok {
		if err := n.cap.Resize(int(size)); err != nil {
			logger.Debug().Err(err).Uint64("size", size).Msg("Resize failed")
			return ToErrno(err)
		}
	}

	var mtime, atime *time.Time
	if t, ok := in.GetMTime(); ok {
		mtime = &t
	}
	if t, ok := in.GetATime(); ok {
		atime = &t
	}
	if mtime != nil || atime != nil {
		if err := n.cap.SetTimes(mtime, atime); err != nil {
			return ToErrno(err)
		}
	}
	return n.Getattr(ctx, f, out)
}

func (n *Node) Readdir(ctx context.Context) (gofs.DirStream, syscall.Errno) {
	logger := util.GetLogger("Fuse.Readdir")
	logger.Trace().Uint64("inode", n.cap.Node().Inode()).Msg("Readdir called")

	it, err := n.cap.ReadDirectory()
	if err != nil {
		return nil, ToErrno(err)
	}
	defer it.Close()

	self := n.cap.Node()
	parent := self.Parent()
	if parent == nil {
		parent = self
	}
	entries := []fuse.DirEntry{
		{Name: ".", Ino: self.Inode(), Mode: syscall.S_IFDIR},
		{Name: "..", Ino: parent.Inode(), Mode: syscall.S_IFDIR},
	}
	for e, err := range it.All() {
		if err != nil {
			return nil, ToErrno(err)
		}
		entries = append(entries, fuse.DirEntry{
			Name: e.Name,
			Ino:  e.Node.Inode(),
			Mode: typeBits(e.Node.Type()),
		})
	}
	return gofs.NewListDirStream(entries), 0
}

func (n *Node) open(w filesystem.CapWrapper, flags uint32) (*fileHandle, syscall.Errno) {
	h, err := openHandle(n.b, w, flags)
	if err != nil {
		return nil, ToErrno(err)
	}
	if err := n.b.register(h); err != nil {
		logger := util.GetLogger("Fuse.Open")
		logger.Warn().Err(err).Msg("Out of file handles")
		return nil, syscall.ENFILE
	}
	return h, 0
}

func (n *Node) Open(ctx context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	logger := util.GetLogger("Fuse.Open")
	logger.Trace().Uint64("inode", n.cap.Node().Inode()).Uint32("flags", flags).Msg("Open called")

	h, errno := n.open(n.cap, flags)
	if errno != 0 {
		return nil, 0, errno
	}
	return h, fuse.FOPEN_DIRECT_IO, 0
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofs.Inode, gofs.FileHandle, uint32, syscall.Errno) {
	logger := util.GetLogger("Fuse.Create")
	logger.Trace().Uint64("parent", n.cap.Node().Inode()).Str("name", name).Msg("Create called")

	create := &filesystem.CreateParams{Exclusive: flags&syscall.O_EXCL != 0}
	w, err := n.cap.Open(n.b.ctrl, name, false, create, filesystem.AccessNone)
	if err != nil {
		return nil, nil, 0, ToErrno(err)
	}
	h, errno := n.open(w, flags)
	if errno != 0 {
		return nil, nil, 0, errno
	}
	ch, errno := n.newChild(ctx, w, out)
	if errno != 0 {
		n.b.handles.Close(h.fh)
		h.close()
		return nil, nil, 0, errno
	}
	return ch, h, fuse.FOPEN_DIRECT_IO, 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	w, err := n.cap.CreateDir(n.b.ctrl, name)
	if err != nil {
		logger := util.GetLogger("Fuse.Mkdir")
		logger.Debug().Err(err).Str("name", name).Msg("Mkdir failed")
		return nil, ToErrno(err)
	}
	return n.newChild(ctx, w, out)
}

func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	w, err := n.cap.CreateLink(n.b.ctrl, name, target)
	if err != nil {
		return nil, ToErrno(err)
	}
	return n.newChild(ctx, w, out)
}

func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.cap.ReadLink()
	if err != nil {
		return nil, ToErrno(err)
	}
	return []byte(target), 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return ToErrno(n.cap.Unlink(name, false))
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return ToErrno(n.cap.Unlink(name, true))
}

// Rename moves name to newName below newParent. Existing destinations are
// never replaced, so plain rename(2) behaves like RENAME_NOREPLACE.
func (n *Node) Rename(ctx context.Context, name string, newParent gofs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	logger := util.GetLogger("Fuse.Rename")
	logger.Trace().Str("from", name).Str("to", newName).Uint32("flags", flags).Msg("Rename called")

	if flags&^renameNoReplace != 0 {
		return syscall.ENOTSUP
	}
	np, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}
	if err := np.cap.MoveFile(n.cap.Node(), name, newName); err != nil {
		logger.Debug().Err(err).Str("from", name).Str("to", newName).Msg("Rename failed")
		return ToErrno(err)
	}
	return 0
}

func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	limits := n.b.ctrl.Limits()
	bsize := uint64(limits.MinSector())
	size, nodes := n.b.ctrl.Remaining()

	out.Bsize = uint32(bsize)
	out.Frsize = uint32(bsize)
	out.Blocks = n.b.cfg.MaxSize / bsize
	out.Bfree = size / bsize
	out.Bavail = out.Bfree
	out.Files = n.b.cfg.MaxNodes
	out.Ffree = nodes
	out.NameLen = 255
	return 0
}
