package filesystem

import (
	"iter"
	"strings"
)

// ComponentKind classifies one element of a slash separated path.
type ComponentKind uint8

const (
	RootDir ComponentKind = iota
	CurDir
	ParentDir
	Normal
)

type Component struct {
	Kind ComponentKind
	Name string // set for Normal components
}

// Characters no entry name may contain
const illegalChars = `\/:*?"'<>|`

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, illegalChars)
}

// Components splits p the way a POSIX path is read. Repeated and trailing
// separators are ignored; a "." only survives at the start of a relative
// path.
func Components(p string) iter.Seq[Component] {
	return func(yield func(Component) bool) {
		first := true
		if strings.HasPrefix(p, "/") {
			if !yield(Component{Kind: RootDir}) {
				return
			}
			first = false
		}
		for s := range strings.SplitSeq(p, "/") {
			var c Component
			switch s {
			case "":
				continue
			case ".":
				if !first {
					continue
				}
				c.Kind = CurDir
			case "..":
				c.Kind = ParentDir
			default:
				c = Component{Kind: Normal, Name: s}
			}
			first = false
			if !yield(c) {
				return
			}
		}
	}
}
