package filesystem

import (
	"strings"
	"sync"
)

// Stored form of a parent component
const parentMarker = "."

// Link is a symbolic link target kept in normalized, compact form: the raw
// segments are concatenated in path and segs holds where each one starts.
// A root segment is stored as "/", a parent segment as ".". n is the length
// of the rendered target.
type Link struct {
	// Reads take the write side too since they update the access time
	mu    sync.RWMutex
	acq   *acqNode
	stamp Timestamp

	path string
	segs []int
	n    int
}

func newLink(limits *FSLimits, target string) (*Link, error) {
	acq, err := newAcqNode(limits)
	if err != nil {
		return nil, err
	}
	l := &Link{acq: acq, stamp: NewTimestamp()}
	l.path, l.segs, l.n = genLink(target)
	return l, nil
}

func (l *Link) inode() uint64 { return l.acq.inode }

// segWidth is the rendered width of a stored segment.
func segWidth(s string) int {
	if s == parentMarker {
		return len("..")
	}
	return len(s)
}

// genLink normalizes target. "." components are dropped, ".." cancels a
// preceding name, and ".." directly under the root is dropped.
func genLink(target string) (string, []int, int) {
	var (
		b    strings.Builder
		segs []int
		n    int
	)
	b.Grow(len(target))

	// last returns the final stored segment
	last := func() string {
		return b.String()[segs[len(segs)-1]:]
	}
	// sep is the separator width placed before a new segment
	sep := func() int {
		if len(segs) == 0 || last() == "/" {
			return 0
		}
		return 1
	}
	push := func(s string) {
		n += sep() + segWidth(s)
		segs = append(segs, b.Len())
		b.WriteString(s)
	}

	for c := range Components(target) {
		switch c.Kind {
		case RootDir:
			b.Reset()
			segs = segs[:0]
			n = 0
			push("/")
		case CurDir:
		case ParentDir:
			if len(segs) == 0 {
				push(parentMarker)
				continue
			}
			switch s := last(); s {
			case "/":
			case parentMarker:
				push(parentMarker)
			default:
				off := segs[len(segs)-1]
				rest := b.String()[:off]
				b.Reset()
				b.WriteString(rest)
				segs = segs[:len(segs)-1]
				n -= sep() + len(s)
			}
		case Normal:
			push(c.Name)
		}
	}

	if len(segs) == 0 {
		n = 1
	}
	return b.String(), segs, n
}

// eachSeg calls fn for every stored segment in order.
func (l *Link) eachSeg(fn func(s string)) {
	for i, start := range l.segs {
		end := len(l.path)
		if i+1 < len(l.segs) {
			end = l.segs[i+1]
		}
		fn(l.path[start:end])
	}
}

// Caller must hold l.mu.
func (l *Link) getLocked() string {
	if len(l.segs) == 0 {
		return "."
	}
	var b strings.Builder
	b.Grow(l.n)
	prev := ""
	l.eachSeg(func(s string) {
		if prev != "" && prev != "/" {
			b.WriteByte('/')
		}
		if s == parentMarker {
			b.WriteString("..")
		} else {
			b.WriteString(s)
		}
		prev = s
	})
	return b.String()
}

// Get renders the target path.
func (l *Link) Get() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getLocked()
}

// Len is the length of [Link.Get], never less than 1.
func (l *Link) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Components returns the stored target as path components. An empty target
// yields a single CurDir.
func (l *Link) Components() []Component {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.segs) == 0 {
		return []Component{{Kind: CurDir}}
	}
	ret := make([]Component, 0, len(l.segs))
	l.eachSeg(func(s string) {
		switch s {
		case "/":
			ret = append(ret, Component{Kind: RootDir})
		case parentMarker:
			ret = append(ret, Component{Kind: ParentDir})
		default:
			ret = append(ret, Component{Kind: Normal, Name: s})
		}
	})
	return ret
}

// Set re-targets the link.
func (l *Link) Set(target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.path, l.segs, l.n = genLink(target)
	l.stamp.Modify()
}

func (l *Link) destroy() {
	l.acq.release()
}
