// Package fuse exposes an isolated filesystem controller through the
// go-fuse node API.
package fuse

import (
	"time"

	"github.com/brettbedarf/isofs/config"
	"github.com/brettbedarf/isofs/filesystem"
	"github.com/brettbedarf/isofs/internal/handles"
	"github.com/brettbedarf/isofs/internal/util"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// Bridge holds the state shared by every FUSE node of one mount.
type Bridge struct {
	ctrl    *filesystem.Controller
	cfg     *config.Config
	handles *handles.Table[*fileHandle]

	// One reference per inode the kernel knows, dropped on forget
	held *xsync.Map[uint64, *filesystem.HeldCap]
}

func NewBridge(ctrl *filesystem.Controller, cfg *config.Config) *Bridge {
	return &Bridge{
		ctrl:    ctrl,
		cfg:     cfg,
		handles: handles.New[*fileHandle](cfg.MaxFH),
		held:    xsync.NewMap[uint64, *filesystem.HeldCap](),
	}
}

// Root returns the FUSE node of the controller's root, with full access.
func (b *Bridge) Root() *Node {
	return &Node{b: b, cap: b.ctrl.RootCap()}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Options builds the go-fuse options for the mount.
func (b *Bridge) Options() *gofs.Options {
	attr := seconds(b.cfg.AttrTimeout)
	entry := seconds(b.cfg.EntryTimeout)
	opts := b.cfg.MountOptions
	return &gofs.Options{
		AttrTimeout:  &attr,
		EntryTimeout: &entry,
		MountOptions: fuse.MountOptions{
			Name:   opts.Name,
			FsName: opts.FsName,
			Debug:  opts.Debug || b.cfg.LogLvl == util.TraceLevel,
			Logger: util.NewLogLogger("FuseServer", util.TraceLevel),
		},
		Logger: util.NewLogLogger("FuseBridge", util.DebugLevel),
	}
}

// OpenHandles returns the number of open file handles.
func (b *Bridge) OpenHandles() int {
	return b.handles.Len()
}

// HeldNodes returns the number of nodes kept alive for the kernel.
func (b *Bridge) HeldNodes() int {
	return b.held.Size()
}

// CloseAll closes every open file handle and drops every node reference
// taken for the kernel.
func (b *Bridge) CloseAll() {
	b.handles.Range(func(fh uint64, _ *fileHandle) bool {
		if h, ok := b.handles.Close(fh); ok {
			h.close()
		}
		return true
	})
	b.held.Range(func(ino uint64, _ *filesystem.HeldCap) bool {
		b.forget(ino)
		return true
	})
}

// hold keeps the node behind w alive until the kernel forgets its inode.
// go-fuse keeps a single inode per number, so one reference per number
// suffices.
func (b *Bridge) hold(w filesystem.CapWrapper) error {
	ino := w.Node().Inode()
	if _, ok := b.held.Load(ino); ok {
		return nil
	}
	h, err := w.Hold()
	if err != nil {
		return err
	}
	if _, loaded := b.held.LoadOrStore(ino, h); loaded {
		h.Release()
	}
	return nil
}

func (b *Bridge) forget(ino uint64) {
	if h, ok := b.held.LoadAndDelete(ino); ok {
		h.Release()
	}
}

func (b *Bridge) register(h *fileHandle) error {
	fh, err := b.handles.Open(h)
	if err != nil {
		h.close()
		return err
	}
	h.fh = fh
	return nil
}

func (b *Bridge) blksize() uint32 {
	return uint32(b.ctrl.Limits().MinSector())
}
