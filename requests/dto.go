package requests

import (
	"encoding/json"
	"time"

	"github.com/brettbedarf/isofs"
)

// NodeRequestDTO is the JSON representation of [isofs.NodeRequest]
type NodeRequestDTO struct {
	Path   string         `json:"path"`
	Type   isofs.NodeType `json:"type"`
	UUID   *string        `json:"uuid,omitempty"`   // Optional id used in logs
	Target *string        `json:"target,omitempty"` // Required for symlinks
	Atime  *time.Time     `json:"atime,omitempty"`  // Last Accessed at (Default creation time)
	Mtime  *time.Time     `json:"mtime,omitempty"`  // Last Modified at (Default creation time)

	// Raw source configs, decoded by the adapter registry
	Sources []json.RawMessage `json:"sources,omitempty"`
}

// SourceConfigDTO is the JSON representation of static [isofs.FileSource] fields
//
// Additional fields depend on the "type" value:
//
// Ex. For type="http" (see [adapters.HTTPSource]):
//
//	URL     string            `json:"url"`
//	Method  *string           `json:"method,omitempty"`
//	Headers map[string]string `json:"headers,omitempty"`
//
// See the adapters package for the fields each built-in source accepts.
type SourceConfigDTO struct {
	Type     string `json:"type"`
	Priority *int   `json:"priority,omitempty"` // Lower number = higher priority, defaults to array index
}
