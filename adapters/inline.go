package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/brettbedarf/isofs"
)

// InlineSource carries the file content in the request itself
type InlineSource struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"` // "" (utf-8 text) or "base64"
}

// InlineProvider decodes inline sources
type InlineProvider struct{}

func RegisterInline(r *Registry) {
	r.Register(InlineSourceType, &InlineProvider{})
}

func (p *InlineProvider) NewSource(raw []byte) (isofs.ContentSource, error) {
	var src InlineSource
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, err
	}
	data, err := src.decode()
	if err != nil {
		return nil, err
	}
	return &InlineAdapter{data: data}, nil
}

func (s *InlineSource) decode() ([]byte, error) {
	switch s.Encoding {
	case "":
		return []byte(s.Content), nil
	case "base64":
		return base64.StdEncoding.DecodeString(s.Content)
	default:
		return nil, fmt.Errorf("unknown inline encoding %q", s.Encoding)
	}
}

// InlineAdapter implements [isofs.ContentSource] over decoded bytes
type InlineAdapter struct {
	data []byte
}

func (a *InlineAdapter) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(a.data)), nil
}
