package fuse

import (
	"os"
	"syscall"

	"github.com/brettbedarf/isofs/filesystem"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// typeBits returns the S_IFMT bits of a node type.
func typeBits(t filesystem.NodeType) uint32 {
	switch t {
	case filesystem.TypeDir:
		return syscall.S_IFDIR
	case filesystem.TypeLink:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

// modeFor derives permission bits from the capability the node is seen
// through, so a read-only capability shows up as a read-only file.
func modeFor(t filesystem.NodeType, access filesystem.AccessMode) uint32 {
	if t == filesystem.TypeLink {
		return syscall.S_IFLNK | 0o777
	}
	var perm uint32
	if access.IsRead() {
		perm |= 0o444
		if t == filesystem.TypeDir {
			perm |= 0o111
		}
	}
	if access.IsWrite() {
		perm |= 0o200
	}
	return typeBits(t) | perm
}

// fillAttr copies a node's metadata into the FUSE attribute struct.
func fillAttr(st filesystem.Stat, access filesystem.AccessMode, blksize uint32, out *fuse.Attr) {
	out.Ino = st.Inode
	out.Size = st.Size
	out.Blocks = (st.Size + 511) / 512
	out.Mode = modeFor(st.Type, access)
	out.Nlink = uint32(st.LinkCount)
	out.Blksize = blksize
	out.Owner = fuse.Owner{
		Uid: uint32(os.Getuid()),
		Gid: uint32(os.Getgid()),
	}
	out.SetTimes(&st.Atime, &st.Mtime, &st.Ctime)
}
