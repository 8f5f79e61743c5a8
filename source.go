// Package isofs contains the seed request types and content source
// interfaces shared by the isolated filesystem's entrypoints.
package isofs

import (
	"context"
	"io"
)

// ContentSource supplies the initial bytes of a seeded file.
// Instances are 1:1 with the file they fill.
type ContentSource interface {
	// Open returns a reader over the whole content
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceProvider is a factory for concrete [ContentSource] implementations
// generated from a request's raw source config.
// Implementations should handle resource management (connection pooling etc) for their sources
type SourceProvider interface {
	NewSource(raw []byte) (ContentSource, error)
}

// FileSource is a content source ranked against the other sources of a file
type FileSource struct {
	ContentSource
	Priority int `json:"priority,omitempty"` // Lower number = higher priority
}
