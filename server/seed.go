package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/brettbedarf/isofs"
	"github.com/brettbedarf/isofs/filesystem"
	"github.com/brettbedarf/isofs/internal/util"
)

// Seed creates the requested nodes. Failed requests are logged and
// reported together; the rest are still created.
func (fs *IsoFs) Seed(ctx context.Context, reqs []*isofs.NodeRequest) (int, error) {
	logger := util.GetLogger("Seed")

	var errs []error
	added := 0
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if err := fs.seedNode(ctx, req); err != nil {
			logger.Debug().Err(err).Str("uuid", req.UUID).Str("path", req.Path).Msg("Failed to add node request")
			errs = append(errs, fmt.Errorf("%s: %w", req.Path, err))
			continue
		}
		added++
	}
	logger.Info().Int("added", added).Int("failed", len(errs)).Msg("Seeded filesystem")
	return added, errors.Join(errs...)
}

func (fs *IsoFs) seedNode(ctx context.Context, req *isofs.NodeRequest) error {
	clean := path.Clean("/" + req.Path)
	if req.Type == isofs.DirNodeType {
		w, err := fs.mkdirAll(clean)
		if err != nil {
			return err
		}
		return setTimes(w, req)
	}

	dir, name := path.Split(clean)
	if name == "" {
		return filesystem.ErrInvalid
	}
	parent, err := fs.mkdirAll(dir)
	if err != nil {
		return err
	}

	var w filesystem.CapWrapper
	switch req.Type {
	case isofs.SymlinkNodeType:
		if w, err = parent.CreateLink(fs.Controller, name, req.Target); err != nil {
			return err
		}
	case isofs.FileNodeType:
		if w, err = parent.CreateFile(fs.Controller, name); err != nil {
			return err
		}
		if err := fill(ctx, w, req); err != nil {
			if uerr := parent.Unlink(name, false); uerr != nil {
				logger := util.GetLogger("Seed")
				logger.Debug().Err(uerr).Str("path", clean).Msg("Failed to remove partially filled file")
				err = errors.Join(err, fmt.Errorf("remove partial file: %w", uerr))
			}
			return err
		}
	default:
		return fmt.Errorf("unknown node type: %q", req.Type)
	}
	return setTimes(w, req)
}

// mkdirAll is the equivalent of `mkdir -p`: it creates every missing
// directory in p and returns the leaf.
func (fs *IsoFs) mkdirAll(p string) (filesystem.CapWrapper, error) {
	cur := fs.RootCap()
	create := &filesystem.CreateParams{Dir: true}
	for comp := range filesystem.Components(p) {
		if comp.Kind != filesystem.Normal {
			continue
		}
		next, err := cur.Open(fs.Controller, comp.Name, false, create, filesystem.AccessNone)
		if err != nil {
			return filesystem.CapWrapper{}, err
		}
		if next.FileType() != filesystem.TypeDir {
			return filesystem.CapWrapper{}, filesystem.ErrNotDir
		}
		cur = next
	}
	return cur, nil
}

// fill copies the first source that can be read completely into w.
func fill(ctx context.Context, w filesystem.CapWrapper, req *isofs.NodeRequest) error {
	logger := util.GetLogger("Seed.fill")

	var errs []error
	for _, src := range req.SortedSources() {
		err := copySource(ctx, w, src)
		if err == nil {
			return nil
		}
		logger.Debug().Err(err).Str("path", req.Path).Int("priority", src.Priority).Msg("Source failed")
		errs = append(errs, err)
		if filesystem.IsQuota(err) {
			break
		}
		if err := w.Resize(0); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func copySource(ctx context.Context, w filesystem.CapWrapper, src isofs.FileSource) error {
	rc, err := src.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	acc, err := w.OpenFile(filesystem.AccessWrite, filesystem.CursorWrite, 0)
	if err != nil {
		return err
	}
	defer acc.Close()

	_, err = io.Copy(acc, rc)
	return err
}

func setTimes(w filesystem.CapWrapper, req *isofs.NodeRequest) error {
	if req.Mtime == nil && req.Atime == nil {
		return nil
	}
	return w.SetTimes(req.Mtime, req.Atime)
}
