package isofs

import (
	"cmp"
	"slices"
	"time"
)

// NodeType valid types are DirNodeType "dir", FileNodeType "file", SymlinkNodeType "symlink"
type NodeType string

const (
	DirNodeType     NodeType = "dir"
	FileNodeType    NodeType = "file"
	SymlinkNodeType NodeType = "symlink"
)

// NodeRequest describes one node to create before the filesystem is exposed.
// Missing ancestor directories are created as needed.
type NodeRequest struct {
	Path   string
	Type   NodeType
	UUID   string     // Identifies the request in logs
	Target string     // Symlink target, kept verbatim
	Mtime  *time.Time // Last Modified at (Default creation time)
	Atime  *time.Time // Last Accessed at (Default creation time)

	// Sources are tried in priority order until one delivers the content.
	// A file without sources is created empty.
	Sources []FileSource
}

// SortedSources returns the sources ordered by priority, keeping the
// request order for equal priorities.
func (r *NodeRequest) SortedSources() []FileSource {
	s := slices.Clone(r.Sources)
	slices.SortStableFunc(s, func(a, b FileSource) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return s
}
