// Package requests decodes seed files into [isofs.NodeRequest] values.
package requests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/isofs"
)

// SourceFactory builds content sources from raw source configs.
// [adapters.Registry] implements it.
type SourceFactory interface {
	NewSource(raw []byte) (isofs.ContentSource, error)
}

// GetNodeType extracts the node type from JSON without full unmarshaling
func GetNodeType(data []byte) (isofs.NodeType, error) {
	var meta struct {
		Type isofs.NodeType `json:"type"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", err
	}
	return meta.Type, nil
}

// UnmarshalNodeRequest decodes and validates a single JSON node request.
func UnmarshalNodeRequest(data []byte, sources SourceFactory) (*isofs.NodeRequest, error) {
	var dto NodeRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	if strings.TrimSpace(dto.Path) == "" {
		return nil, fmt.Errorf("node request is missing its path")
	}

	req := convertNodeDTO(dto)
	switch dto.Type {
	case isofs.DirNodeType:
	case isofs.FileNodeType:
		srcs, err := unmarshalSources(dto.Sources, sources)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dto.Path, err)
		}
		req.Sources = srcs
	case isofs.SymlinkNodeType:
		if req.Target == "" {
			return nil, fmt.Errorf("%s: symlink requires a target", dto.Path)
		}
	default:
		return nil, fmt.Errorf("unknown node type: %q", dto.Type)
	}
	if dto.Type != isofs.FileNodeType && len(dto.Sources) != 0 {
		return nil, fmt.Errorf("%s: only files take sources", dto.Path)
	}
	return req, nil
}

// UnmarshalNodeRequests decodes a JSON array of node requests. Every
// invalid entry is reported; valid ones are still returned.
func UnmarshalNodeRequests(data []byte, sources SourceFactory) ([]*isofs.NodeRequest, error) {
	var rawNodes []json.RawMessage
	if err := json.Unmarshal(data, &rawNodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node requests: %w", err)
	}
	return unmarshalAll(rawNodes, sources)
}

// UnmarshalYAMLNodeRequests decodes a YAML sequence of node requests.
func UnmarshalYAMLNodeRequests(data []byte, sources SourceFactory) ([]*isofs.NodeRequest, error) {
	var nodes []map[string]any
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node requests: %w", err)
	}

	rawNodes := make([]json.RawMessage, 0, len(nodes))
	for i, n := range nodes {
		raw, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		rawNodes = append(rawNodes, raw)
	}
	return unmarshalAll(rawNodes, sources)
}

// LoadFile reads node requests from a file.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadFile(path string, sources SourceFactory) ([]*isofs.NodeRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return UnmarshalYAMLNodeRequests(data, sources)
	case ".json":
		return UnmarshalNodeRequests(data, sources)
	default:
		return nil, fmt.Errorf("unknown node file extension: %s", path)
	}
}

func unmarshalAll(rawNodes []json.RawMessage, sources SourceFactory) ([]*isofs.NodeRequest, error) {
	var errs []error
	reqs := make([]*isofs.NodeRequest, 0, len(rawNodes))
	for i, raw := range rawNodes {
		req, err := UnmarshalNodeRequest(raw, sources)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %d: %w", i, err))
			continue
		}
		reqs = append(reqs, req)
	}
	return reqs, errors.Join(errs...)
}

// Helper function to process sources array
func unmarshalSources(rawSources []json.RawMessage, factory SourceFactory) ([]isofs.FileSource, error) {
	if len(rawSources) == 0 {
		return nil, nil
	}
	if factory == nil {
		return nil, fmt.Errorf("no source registry to decode %d source(s)", len(rawSources))
	}

	sources := make([]isofs.FileSource, 0, len(rawSources))
	for i, raw := range rawSources {
		var dto SourceConfigDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		src, err := factory.NewSource(raw)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}

		// Apply priority default
		sources = append(sources, isofs.FileSource{
			ContentSource: src,
			Priority:      valueOrDefault(dto.Priority, i),
		})
	}
	return sources, nil
}

// Conversion logic with defaults in the unmarshaling layer
func convertNodeDTO(dto NodeRequestDTO) *isofs.NodeRequest {
	return &isofs.NodeRequest{
		Path:   dto.Path,
		Type:   dto.Type,
		UUID:   valueOrDefault(dto.UUID, uuid.New().String()),
		Target: valueOrDefault(dto.Target, ""),
		Atime:  dto.Atime,
		Mtime:  dto.Mtime,
	}
}

func valueOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr != nil {
		return *ptr
	}
	return defaultVal
}

// Decode reads a whole JSON document from r; used by callers streaming
// requests from stdin.
func Decode(r io.Reader, sources SourceFactory) ([]*isofs.NodeRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		req, err := UnmarshalNodeRequest(data, sources)
		if err != nil {
			return nil, err
		}
		return []*isofs.NodeRequest{req}, nil
	}
	return UnmarshalNodeRequests(data, sources)
}
