// Package server ties a filesystem controller to its FUSE mount.
package server

import (
	"github.com/brettbedarf/isofs/config"
	"github.com/brettbedarf/isofs/filesystem"
	ifuse "github.com/brettbedarf/isofs/fuse"
	"github.com/brettbedarf/isofs/internal/util"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// IsoFs contains the isolated filesystem state with abstractions
// over the underlying FUSE wire protocol implementation
type IsoFs struct {
	*filesystem.Controller
	cfg    *config.Config
	bridge *ifuse.Bridge
	server *fuse.Server
}

// New creates an IsoFs instance given your config.
func New(cfg *config.Config) (*IsoFs, error) {
	ctrl, err := filesystem.NewController(cfg)
	if err != nil {
		return nil, err
	}
	return &IsoFs{
		Controller: ctrl,
		cfg:        cfg,
		bridge:     ifuse.NewBridge(ctrl, cfg),
	}, nil
}

// Serve mounts and serves the filesystem at the given mountPoint.
func (fs *IsoFs) Serve(mountPoint string) error {
	logger := util.GetLogger("Serve")

	opts := fs.bridge.Options()
	raw := gofs.NewNodeFS(fs.bridge.Root(), opts)
	srv, err := fuse.NewServer(raw, mountPoint, &opts.MountOptions)
	if err != nil {
		return err
	}
	fs.server = srv

	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		return err
	}
	logger.Debug().Str("mountpoint", mountPoint).Str("id", fs.ID().String()).Msg("Mounted")
	return nil
}

func (fs *IsoFs) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- fs.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Wait blocks until the mount is unmounted.
func (fs *IsoFs) Wait() {
	if fs.server != nil {
		fs.server.Wait()
	}
}

// Unmount cleanly unmounts the filesystem and closes every open handle.
func (fs *IsoFs) Unmount() error {
	if fs.server == nil {
		return nil
	}
	if err := fs.server.Unmount(); err != nil {
		return err
	}
	fs.server = nil
	fs.bridge.CloseAll()
	return nil
}

// Close unmounts if needed and releases the whole tree.
func (fs *IsoFs) Close() error {
	err := fs.Unmount()
	fs.Controller.Close()
	return err
}
