package filesystem

import "time"

// Timestamp holds the creation, modification and access times of a node.
type Timestamp struct {
	Ctime time.Time
	Mtime time.Time
	Atime time.Time
}

func NewTimestamp() Timestamp {
	now := time.Now()
	return Timestamp{Ctime: now, Mtime: now, Atime: now}
}

// Access bumps the access time.
func (t *Timestamp) Access() {
	t.Atime = time.Now()
}

// Modify bumps both the modification and access times.
func (t *Timestamp) Modify() {
	now := time.Now()
	t.Mtime = now
	t.Atime = now
}
