package filesystem

import (
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/isofs/internal/util"
)

// LinkDepth is how many symbolic links a single resolution may pass through.
const LinkDepth = 10

type NodeType uint8

const (
	TypeDir NodeType = iota + 1
	TypeFile
	TypeLink
)

func (t NodeType) String() string {
	switch t {
	case TypeDir:
		return "directory"
	case TypeFile:
		return "file"
	case TypeLink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Node is one entity of the tree: exactly one of dir, file or link is set.
//
// Nodes are reference counted. Each directory entry and each open accessor
// holds one reference; the node is destroyed and its quota returned when the
// last one is dropped. The parent pointer does not hold a reference.
type Node struct {
	typ  NodeType
	dir  *Dir
	file *File
	link *Link

	inode uint64
	refs  atomic.Int64

	parentMu sync.RWMutex
	parent   *Node // Protected by parentMu
}

func newNode(parent *Node) *Node {
	n := &Node{parent: parent}
	n.refs.Store(1)
	return n
}

func newDirNode(limits *FSLimits, parent *Node) (*Node, error) {
	d, err := newDir(limits)
	if err != nil {
		return nil, err
	}
	n := newNode(parent)
	n.typ, n.dir, n.inode = TypeDir, d, d.inode()
	return n, nil
}

func newFileNode(limits *FSLimits, parent *Node) (*Node, error) {
	f, err := newFile(limits)
	if err != nil {
		return nil, err
	}
	n := newNode(parent)
	n.typ, n.file, n.inode = TypeFile, f, f.inode()
	return n, nil
}

func newLinkNode(limits *FSLimits, parent *Node, target string) (*Node, error) {
	l, err := newLink(limits, target)
	if err != nil {
		return nil, err
	}
	n := newNode(parent)
	n.typ, n.link, n.inode = TypeLink, l, l.inode()
	return n, nil
}

func (n *Node) Type() NodeType { return n.typ }

func (n *Node) Inode() uint64 { return n.inode }

func (n *Node) IsDir() bool { return n.typ == TypeDir }

func (n *Node) IsFile() bool { return n.typ == TypeFile }

func (n *Node) IsLink() bool { return n.typ == TypeLink }

// TryDir returns the directory variant or a *WrongNodeTypeError.
func (n *Node) TryDir() (*Dir, error) {
	if n.dir == nil {
		return nil, &WrongNodeTypeError{Expected: TypeDir, Got: n.typ}
	}
	return n.dir, nil
}

// TryFile returns the file variant or a *WrongNodeTypeError.
func (n *Node) TryFile() (*File, error) {
	if n.file == nil {
		return nil, &WrongNodeTypeError{Expected: TypeFile, Got: n.typ}
	}
	return n.file, nil
}

// TryLink returns the link variant or a *WrongNodeTypeError.
func (n *Node) TryLink() (*Link, error) {
	if n.link == nil {
		return nil, &WrongNodeTypeError{Expected: TypeLink, Got: n.typ}
	}
	return n.link, nil
}

// UpdateStamp runs fn with the variant's lock held.
func (n *Node) UpdateStamp(fn func(s *Timestamp)) {
	switch n.typ {
	case TypeDir:
		n.dir.mu.Lock()
		defer n.dir.mu.Unlock()
		fn(&n.dir.stamp)
	case TypeFile:
		n.file.mu.Lock()
		defer n.file.mu.Unlock()
		fn(&n.file.stamp)
	case TypeLink:
		n.link.mu.Lock()
		defer n.link.mu.Unlock()
		fn(&n.link.stamp)
	}
}

// Stamp returns a snapshot of the node's timestamps.
func (n *Node) Stamp() Timestamp {
	var ret Timestamp
	n.UpdateStamp(func(s *Timestamp) { ret = *s })
	return ret
}

// Size is the byte length of a file, the entry count of a directory and
// the rendered target length of a link.
func (n *Node) Size() int {
	switch n.typ {
	case TypeDir:
		return n.dir.Len()
	case TypeFile:
		return n.file.Len()
	default:
		return n.link.Len()
	}
}

// Parent returns the containing directory, or nil for the root, a detached
// node or one whose parent has been destroyed.
func (n *Node) Parent() *Node {
	n.parentMu.RLock()
	p := n.parent
	n.parentMu.RUnlock()
	if p == nil || !p.Alive() {
		return nil
	}
	return p
}

func (n *Node) setParent(p *Node) {
	n.parentMu.Lock()
	defer n.parentMu.Unlock()
	n.parent = p
}

// parentOrRoot ascends one level; the root is its own parent.
func (n *Node) parentOrRoot(c *Controller) (*Node, error) {
	if p := n.Parent(); p != nil {
		return p, nil
	}
	if n == c.root {
		return n, nil
	}
	return nil, ErrNotFound
}

// FollowSymlink resolves n through at most [LinkDepth] links. Anything that
// is not a link resolves to itself.
func (n *Node) FollowSymlink(c *Controller) (*Node, error) {
	return n.followLink(c, LinkDepth)
}

func (n *Node) followLink(c *Controller, depth int) (*Node, error) {
	if n.typ != TypeLink {
		return n, nil
	}
	if depth <= 0 {
		return nil, ErrLoop
	}
	depth--

	// Relative targets start from the directory holding the link
	ret, err := n.parentOrRoot(c)
	if err != nil {
		return nil, err
	}
	n.link.mu.Lock()
	n.link.stamp.Access()
	n.link.mu.Unlock()

	for _, comp := range n.link.Components() {
		switch comp.Kind {
		case RootDir:
			ret = c.root
		case CurDir:
		case ParentDir:
			if ret, err = ret.parentOrRoot(c); err != nil {
				return nil, err
			}
		case Normal:
			if ret, err = ret.followLink(c, depth); err != nil {
				return nil, err
			}
			if ret.typ != TypeDir {
				return nil, ErrNotDir
			}
			if ret = ret.dir.Get(comp.Name); ret == nil {
				return nil, ErrNotFound
			}
		}
	}
	return ret.followLink(c, depth)
}

// Alive reports whether the node still holds at least one reference.
func (n *Node) Alive() bool {
	return n.refs.Load() > 0
}

// retain adds a reference unless the node is already destroyed.
func (n *Node) retain() bool {
	for {
		r := n.refs.Load()
		if r <= 0 {
			return false
		}
		if n.refs.CompareAndSwap(r, r+1) {
			return true
		}
	}
}

// release drops a reference, destroying the node on the last one.
func (n *Node) release() {
	switch r := n.refs.Add(-1); {
	case r == 0:
		n.destroy()
	case r < 0:
		panic("filesystem: node released more times than retained")
	}
}

func (n *Node) destroy() {
	switch n.typ {
	case TypeDir:
		n.dir.destroy()
	case TypeFile:
		n.file.destroy()
	case TypeLink:
		n.link.destroy()
	}
	logger := util.GetLogger("Node")
	logger.Trace().Uint64("inode", n.inode).Stringer("type", n.typ).Msg("Node destroyed")
}
