package filesystem

import (
	"encoding/binary"
	"slices"
	"sync/atomic"
	"time"

	"github.com/brettbedarf/isofs/internal/util"
	"github.com/cespare/xxhash/v2"
)

// CapWrapper is a capability: a node plus the access granted over it.
// Wrappers derived through [CapWrapper.Open] never carry more access than
// the wrapper they came from.
type CapWrapper struct {
	node   *Node
	access AccessMode
}

func NewCapWrapper(node *Node, access AccessMode) CapWrapper {
	return CapWrapper{node: node, access: access & AccessReadWrite}
}

func (w CapWrapper) Node() *Node { return w.node }

func (w CapWrapper) Access() AccessMode { return w.access }

func (w CapWrapper) FileType() NodeType { return w.node.typ }

// IsSame reports whether both wrappers refer to the same node.
func (w CapWrapper) IsSame(o CapWrapper) bool { return w.node == o.node }

// HeldCap is a capability that keeps its node alive, even after the node is
// unlinked, until Release.
type HeldCap struct {
	CapWrapper
	released atomic.Bool
}

// Hold takes a reference on the wrapped node. It fails with ErrNotFound once
// the node has been destroyed.
func (w CapWrapper) Hold() (*HeldCap, error) {
	if !w.node.retain() {
		return nil, ErrNotFound
	}
	return &HeldCap{CapWrapper: w}, nil
}

// Release drops the reference taken by Hold. Only the first call has any
// effect.
func (h *HeldCap) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.node.release()
	}
}

// FollowSymlink resolves the wrapped node through symbolic links, keeping
// the access.
func (w CapWrapper) FollowSymlink(c *Controller) (CapWrapper, error) {
	n, err := w.node.FollowSymlink(c)
	if err != nil {
		return CapWrapper{}, err
	}
	return CapWrapper{node: n, access: w.access}, nil
}

// CreateParams asks [CapWrapper.Open] to create the final path component
// when it does not exist.
type CreateParams struct {
	Dir       bool // create a directory instead of a file
	Exclusive bool // fail with ErrExist if the entry already exists
}

// Open resolves path from the wrapped node. The result carries the
// intersection of the wrapper's access and access; AccessNone keeps the
// wrapper's access unchanged.
func (w CapWrapper) Open(c *Controller, path string, followSymlink bool, create *CreateParams, access AccessMode) (CapWrapper, error) {
	logger := util.GetLogger("Open")

	if access == AccessNone {
		access = w.access
	} else {
		access = w.access.Intersect(access)
	}
	if access == AccessNone {
		return CapWrapper{}, ErrPermission
	}

	var err error
	node := w.node
	comps := slices.Collect(Components(path))
	for i, comp := range comps {
		switch comp.Kind {
		case RootDir:
			node = c.root
			continue
		case CurDir:
			continue
		case ParentDir:
			if node, err = node.parentOrRoot(c); err != nil {
				return CapWrapper{}, err
			}
			continue
		}
		if !validName(comp.Name) {
			return CapWrapper{}, ErrInvalid
		}

		if followSymlink {
			if node, err = node.FollowSymlink(c); err != nil {
				return CapWrapper{}, err
			}
		}
		if node.typ != TypeDir {
			return CapWrapper{}, ErrNotDir
		}

		if create != nil && i == len(comps)-1 {
			if node, err = w.createIn(c, node, comp.Name, create); err != nil {
				logger.Debug().Err(err).Str("path", path).Msg("Failed to create entry")
				return CapWrapper{}, err
			}
			continue
		}
		if node = node.dir.Get(comp.Name); node == nil {
			return CapWrapper{}, ErrNotFound
		}
	}

	if followSymlink {
		if node, err = node.FollowSymlink(c); err != nil {
			return CapWrapper{}, err
		}
	}
	logger.Trace().Str("path", path).Uint64("inode", node.inode).Stringer("access", access).Msg("Opened")
	return CapWrapper{node: node, access: access}, nil
}

// createIn returns the entry name of parent, creating it when vacant.
func (w CapWrapper) createIn(c *Controller, parent *Node, name string, create *CreateParams) (*Node, error) {
	d := parent.dir
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := d.getLocked(name); n != nil {
		if create.Exclusive {
			return nil, ErrExist
		}
		return n, nil
	}
	if !w.access.IsWrite() {
		return nil, ErrPermission
	}
	return d.addLocked(name, func() (*Node, error) {
		if create.Dir {
			return newDirNode(c.limits, parent)
		}
		return newFileNode(c.limits, parent)
	})
}

// file returns the file variant, mapping other node types to the error a
// byte operation on them reports.
func (w CapWrapper) file() (*File, error) {
	switch w.node.typ {
	case TypeFile:
		return w.node.file, nil
	case TypeDir:
		return nil, ErrIsDir
	default:
		return nil, ErrUnsupported
	}
}

// Read returns up to n bytes at off. It stops at the end of the file and at
// chunk boundaries; an empty result means off is at or past the end.
func (w CapWrapper) Read(n, off int) ([]byte, error) {
	if err := w.access.ReadOrErr(); err != nil {
		return nil, err
	}
	f, err := w.file()
	if err != nil {
		return nil, err
	}
	if n < 0 || off < 0 {
		return nil, ErrInvalid
	}
	return f.read(n, off)
}

func (w CapWrapper) Write(buf []byte, off int) error {
	if err := w.access.WriteOrErr(); err != nil {
		return err
	}
	f, err := w.file()
	if err != nil {
		return err
	}
	return f.Write(buf, off)
}

func (w CapWrapper) Resize(size int) error {
	if err := w.access.WriteOrErr(); err != nil {
		return err
	}
	f, err := w.file()
	if err != nil {
		return err
	}
	return f.Resize(size)
}

// add creates a new entry name in the wrapped directory.
func (w CapWrapper) add(name string, mk func() (*Node, error)) (CapWrapper, error) {
	if !validName(name) {
		return CapWrapper{}, ErrInvalid
	}
	if err := w.access.WriteOrErr(); err != nil {
		return CapWrapper{}, err
	}
	d, err := w.node.TryDir()
	if err != nil {
		return CapWrapper{}, ErrNotDir
	}
	n, err := d.Add(name, mk)
	if err != nil {
		return CapWrapper{}, err
	}
	if n == nil {
		return CapWrapper{}, ErrExist
	}
	return CapWrapper{node: n, access: w.access}, nil
}

func (w CapWrapper) CreateDir(c *Controller, name string) (CapWrapper, error) {
	return w.add(name, func() (*Node, error) { return newDirNode(c.limits, w.node) })
}

func (w CapWrapper) CreateFile(c *Controller, name string) (CapWrapper, error) {
	return w.add(name, func() (*Node, error) { return newFileNode(c.limits, w.node) })
}

// CreateLink creates a symbolic link name pointing at target. The target
// is stored normalized and does not need to exist.
func (w CapWrapper) CreateLink(c *Controller, name, target string) (CapWrapper, error) {
	if target == "" {
		return CapWrapper{}, ErrInvalid
	}
	return w.add(name, func() (*Node, error) { return newLinkNode(c.limits, w.node, target) })
}

// lockDirs locks a and b in inode order and returns the matching unlock.
func lockDirs(a, b *Dir) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	if a.inode() > b.inode() {
		a, b = b, a
	}
	a.mu.Lock()
	b.mu.Lock()
	return func() {
		b.mu.Unlock()
		a.mu.Unlock()
	}
}

// MoveFile moves entry srcName of directory src to dstName in the wrapped
// directory. The destination must be vacant; on failure the source entry is
// left in place.
func (w CapWrapper) MoveFile(src *Node, srcName, dstName string) error {
	if !validName(dstName) || !validName(srcName) {
		return ErrInvalid
	}
	if err := w.access.WriteOrErr(); err != nil {
		return err
	}
	dst, err := w.node.TryDir()
	if err != nil {
		return ErrNotDir
	}
	sd, err := src.TryDir()
	if err != nil {
		return ErrNotDir
	}

	unlock := lockDirs(sd, dst)
	defer unlock()

	n := sd.getLocked(srcName)
	if n == nil {
		return ErrNotFound
	}
	if src == w.node && srcName == dstName {
		return nil
	}
	if dst.hasLocked(dstName) {
		return ErrExist
	}
	if src != w.node && n.typ == TypeDir && isAncestor(n, w.node) {
		return ErrInvalid
	}

	sd.takeLocked(srcName)
	dst.putLocked(dstName, n)
	if src != w.node {
		n.setParent(w.node)
	}
	logger := util.GetLogger("MoveFile")
	logger.Trace().
		Uint64("inode", n.inode).
		Str("from", srcName).
		Str("to", dstName).
		Msg("Moved entry")
	return nil
}

// isAncestor reports whether a is n or one of its parents.
func isAncestor(a, n *Node) bool {
	for ; n != nil; n = n.Parent() {
		if n == a {
			return true
		}
	}
	return false
}

// Unlink removes entry name from the wrapped directory. With isDir the entry
// must be an empty directory, otherwise it must not be a directory.
func (w CapWrapper) Unlink(name string, isDir bool) error {
	if err := w.access.WriteOrErr(); err != nil {
		return err
	}
	d, err := w.node.TryDir()
	if err != nil {
		return ErrNotDir
	}

	for {
		n := d.Get(name)
		if n == nil {
			return ErrNotFound
		}

		// Directories are locked together with their parent so nothing is
		// added between the emptiness check and the removal
		var unlock func()
		if isDir {
			cd, err := n.TryDir()
			if err != nil {
				return ErrNotDir
			}
			unlock = lockDirs(d, cd)
			if d.getLocked(name) == n && cd.items.Len() != 0 {
				unlock()
				return ErrNotEmpty
			}
		} else {
			if n.typ == TypeDir {
				return ErrIsDir
			}
			d.mu.Lock()
			unlock = d.mu.Unlock
		}

		if d.getLocked(name) != n {
			// Replaced while unlocked
			unlock()
			continue
		}
		d.takeLocked(name)
		unlock()

		n.release()
		return nil
	}
}

// ReadDirectory returns an iterator over the wrapped directory.
func (w CapWrapper) ReadDirectory() (*DirEntryAccessor, error) {
	if err := w.access.ReadOrErr(); err != nil {
		return nil, err
	}
	if w.node.typ != TypeDir {
		return nil, ErrNotDir
	}
	return newDirEntryAccessor(w.node)
}

// ReadLink returns the target of the wrapped link.
func (w CapWrapper) ReadLink() (string, error) {
	if err := w.access.ReadOrErr(); err != nil {
		return "", err
	}
	l, err := w.node.TryLink()
	if err != nil {
		return "", ErrInvalid
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamp.Access()
	return l.getLocked(), nil
}

// ReadLinkAt returns the target of the link at path, without following it.
func (w CapWrapper) ReadLinkAt(c *Controller, path string) (string, error) {
	lw, err := w.Open(c, path, false, nil, AccessRead)
	if err != nil {
		return "", err
	}
	return lw.ReadLink()
}

// Stat describes a node.
type Stat struct {
	Type      NodeType
	Inode     uint64
	Size      uint64 // bytes, entries for a directory, target length for a link
	LinkCount uint64
	Ctime     time.Time
	Mtime     time.Time
	Atime     time.Time
}

func (w CapWrapper) Stat() Stat {
	st := w.node.Stamp()
	return Stat{
		Type:      w.node.typ,
		Inode:     w.node.inode,
		Size:      uint64(w.node.Size()),
		LinkCount: 1,
		Ctime:     st.Ctime,
		Mtime:     st.Mtime,
		Atime:     st.Atime,
	}
}

// MetadataHash is a process local fingerprint of a node's metadata.
type MetadataHash struct {
	Lower uint64
	Upper uint64
}

// Finalization salts
const (
	hashSaltLower   uint32 = 0xc12af7ed
	hashSaltUpperHi uint64 = 0x00265409
	hashSaltUpperLo uint64 = 0x00274028_00288693
)

// MetadataHash hashes the node identity, parent, size and timestamps. Two
// calls agree as long as none of those changed.
func (w CapWrapper) MetadataHash(c *Controller) MetadataHash {
	st := w.node.Stamp()
	var parent uint64
	if p := w.node.Parent(); p != nil {
		parent = p.inode
	}

	var buf [48]byte
	binary.LittleEndian.PutUint64(buf[0:], w.node.inode)
	binary.LittleEndian.PutUint64(buf[8:], parent)
	binary.LittleEndian.PutUint64(buf[16:], uint64(w.node.Size()))
	binary.LittleEndian.PutUint64(buf[24:], uint64(st.Ctime.UnixNano()))
	binary.LittleEndian.PutUint64(buf[32:], uint64(st.Mtime.UnixNano()))
	binary.LittleEndian.PutUint64(buf[40:], uint64(st.Atime.UnixNano()))

	h1 := xxhash.NewWithSeed(c.seed)
	_, _ = h1.Write(buf[:])
	h2 := *h1

	var lo [4]byte
	binary.LittleEndian.PutUint32(lo[:], hashSaltLower)
	_, _ = h1.Write(lo[:])

	var hi [16]byte
	binary.LittleEndian.PutUint64(hi[0:], hashSaltUpperLo)
	binary.LittleEndian.PutUint64(hi[8:], hashSaltUpperHi)
	_, _ = h2.Write(hi[:])

	return MetadataHash{Lower: h1.Sum64(), Upper: h2.Sum64()}
}

// SetTimes sets the modification and access times. A nil time is left
// unchanged.
func (w CapWrapper) SetTimes(mtime, atime *time.Time) error {
	if err := w.access.WriteOrErr(); err != nil {
		return err
	}
	w.node.UpdateStamp(func(s *Timestamp) {
		if mtime != nil {
			s.Mtime = *mtime
		}
		if atime != nil {
			s.Atime = *atime
		}
	})
	return nil
}

// FileFlags describes what a descriptor over the node may do.
type FileFlags uint8

const (
	FlagRead FileFlags = 1 << iota
	FlagWrite
	FlagMutateDirectory
)

func (w CapWrapper) FileFlags() FileFlags {
	var f FileFlags
	if w.access.IsRead() {
		f |= FlagRead
	}
	if w.access.IsWrite() {
		if w.node.typ == TypeDir {
			f |= FlagMutateDirectory
		} else {
			f |= FlagWrite
		}
	}
	return f
}

// OpenFile opens a byte stream over the wrapped file. access narrows the
// wrapper's access the same way [CapWrapper.Open] does; off is ignored for
// CursorAppend.
func (w CapWrapper) OpenFile(access AccessMode, mode CursorMode, off int) (*FileAccessor, error) {
	if access == AccessNone {
		access = w.access
	} else {
		access = w.access.Intersect(access)
	}
	want := AccessWrite
	if mode == CursorRead {
		want = AccessRead
	}
	if err := access.AccessOrErr(want); err != nil {
		return nil, err
	}

	switch w.node.typ {
	case TypeDir:
		return nil, ErrIsDir
	case TypeLink:
		return nil, ErrLoop
	}
	if off < 0 {
		return nil, ErrInvalid
	}
	return newFileAccessor(w.node, access, mode, off)
}
