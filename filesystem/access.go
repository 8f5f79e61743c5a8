package filesystem

// AccessMode is the read/write capability carried by a [CapWrapper].
type AccessMode uint8

const (
	AccessNone      AccessMode = 0
	AccessRead      AccessMode = 1
	AccessWrite     AccessMode = 2
	AccessReadWrite            = AccessRead | AccessWrite
)

// Intersect returns the access allowed by both a and b.
func (a AccessMode) Intersect(b AccessMode) AccessMode { return a & b & AccessReadWrite }

// Union returns the access allowed by either a or b.
func (a AccessMode) Union(b AccessMode) AccessMode { return (a | b) & AccessReadWrite }

func (a AccessMode) IsRead() bool { return a&AccessRead != 0 }

func (a AccessMode) IsWrite() bool { return a&AccessWrite != 0 }

func (a AccessMode) ReadOrErr() error {
	if !a.IsRead() {
		return ErrPermission
	}
	return nil
}

func (a AccessMode) WriteOrErr() error {
	if !a.IsWrite() {
		return ErrPermission
	}
	return nil
}

// AccessOrErr fails unless a grants everything in want.
func (a AccessMode) AccessOrErr(want AccessMode) error {
	if a&want != want {
		return ErrPermission
	}
	return nil
}

func (a AccessMode) String() string {
	switch a & AccessReadWrite {
	case AccessRead:
		return "r"
	case AccessWrite:
		return "w"
	case AccessReadWrite:
		return "rw"
	default:
		return "-"
	}
}
