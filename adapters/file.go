package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/brettbedarf/isofs"
)

// FileSource copies content from a file on the host
type FileSource struct {
	Path string `json:"path"`
}

// FileProvider builds host file sources. Relative paths resolve against Dir
// when it is set.
type FileProvider struct {
	Dir string
}

func RegisterFile(r *Registry) {
	r.Register(FileSourceType, &FileProvider{})
}

func (p *FileProvider) NewSource(raw []byte) (isofs.ContentSource, error) {
	var src FileSource
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, err
	}
	if src.Path == "" {
		return nil, fmt.Errorf("file source requires a path")
	}
	path := src.Path
	if !filepath.IsAbs(path) && p.Dir != "" {
		path = filepath.Join(p.Dir, path)
	}
	return &FileAdapter{path: path}, nil
}

// FileAdapter implements [isofs.ContentSource] for host files
type FileAdapter struct {
	path string
}

func (a *FileAdapter) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(a.path)
}
