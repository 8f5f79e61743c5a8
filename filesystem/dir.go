package filesystem

import (
	"sync"

	"github.com/google/btree"
)

// btree node width; entries are small so a wide node keeps the tree shallow
const dirDegree = 16

// DirEntry is one name of a directory listing.
type DirEntry struct {
	Name string
	Node *Node
}

func lessEntry(a, b DirEntry) bool { return a.Name < b.Name }

// Dir is an ordered name to node map. Every entry holds one reference on
// its node.
type Dir struct {
	mu        sync.Mutex
	acq       *acqNode
	stamp     Timestamp
	items     *btree.BTreeG[DirEntry]
	destroyed bool
}

func newDir(limits *FSLimits) (*Dir, error) {
	acq, err := newAcqNode(limits)
	if err != nil {
		return nil, err
	}
	return &Dir{
		acq:   acq,
		stamp: NewTimestamp(),
		items: btree.NewG(dirDegree, lessEntry),
	}, nil
}

func (d *Dir) inode() uint64 { return d.acq.inode }

// Get returns the node stored under name, or nil.
func (d *Dir) Get(name string) *Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getLocked(name)
}

// Caller must hold d.mu.
func (d *Dir) getLocked(name string) *Node {
	d.stamp.Access()
	e, ok := d.items.Get(DirEntry{Name: name})
	if !ok {
		return nil
	}
	return e.Node
}

// Add inserts the node built by mk under name. mk only runs when the name is
// vacant, so no quota is spent on a losing insert. Returns (nil, nil) if
// the name is taken.
func (d *Dir) Add(name string, mk func() (*Node, error)) (*Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addLocked(name, mk)
}

// Caller must hold d.mu.
func (d *Dir) addLocked(name string, mk func() (*Node, error)) (*Node, error) {
	if d.destroyed {
		return nil, ErrNotFound
	}
	if d.items.Has(DirEntry{Name: name}) {
		return nil, nil
	}
	n, err := mk()
	if err != nil {
		return nil, err
	}
	d.items.ReplaceOrInsert(DirEntry{Name: name, Node: n})
	d.stamp.Modify()
	return n, nil
}

// Remove drops the entry under name and its reference on the node.
// Reports whether anything was removed.
func (d *Dir) Remove(name string) bool {
	d.mu.Lock()
	n := d.takeLocked(name)
	d.mu.Unlock()

	if n == nil {
		return false
	}
	n.release()
	return true
}

// takeLocked detaches the entry under name without dropping its reference,
// which passes to the caller.
// Caller must hold d.mu.
func (d *Dir) takeLocked(name string) *Node {
	e, ok := d.items.Delete(DirEntry{Name: name})
	if !ok {
		return nil
	}
	d.stamp.Modify()
	return e.Node
}

// putLocked stores n under a name known to be vacant, taking over the
// caller's reference.
// Caller must hold d.mu.
func (d *Dir) putLocked(name string, n *Node) {
	if _, replaced := d.items.ReplaceOrInsert(DirEntry{Name: name, Node: n}); replaced {
		panic("filesystem: overwrote live directory entry " + name)
	}
	d.stamp.Modify()
}

func (d *Dir) hasLocked(name string) bool {
	return d.items.Has(DirEntry{Name: name})
}

func (d *Dir) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.items.Len()
}

func (d *Dir) IsEmpty() bool { return d.Len() == 0 }

// Entries returns a sorted snapshot of the directory.
func (d *Dir) Entries() []DirEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stamp.Access()
	ret := make([]DirEntry, 0, d.items.Len())
	d.items.Ascend(func(e DirEntry) bool {
		ret = append(ret, e)
		return true
	})
	return ret
}

// seek returns the entry at key or the first one after it, together with the
// name following it ("" when it is the last entry).
func (d *Dir) seek(key string) (cur DirEntry, next string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items.AscendGreaterOrEqual(DirEntry{Name: key}, func(e DirEntry) bool {
		if !ok {
			cur, ok = e, true
			return true
		}
		next = e.Name
		return false
	})
	return cur, next, ok
}

// destroy drops every entry and returns the node slot.
func (d *Dir) destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	var children []*Node
	d.items.Ascend(func(e DirEntry) bool {
		children = append(children, e.Node)
		return true
	})
	d.items.Clear(false)
	d.mu.Unlock()

	for _, c := range children {
		c.release()
	}
	d.acq.release()
}
