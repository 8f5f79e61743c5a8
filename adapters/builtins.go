package adapters

// NOTE: If build bloat becomes a concern for unused adapters
// look into build tags i.e. +build !nohttp

type BuiltInSourceType = string

const (
	InlineSourceType BuiltInSourceType = "inline"
	FileSourceType   BuiltInSourceType = "file"
	HTTPSourceType   BuiltInSourceType = "http"
)

// RegisterBuiltins registers all built-in sources by default
// or only the specific ones if keys are provided
func RegisterBuiltins(r *Registry, sources ...BuiltInSourceType) {
	if len(sources) == 0 {
		sources = append(sources, InlineSourceType, FileSourceType, HTTPSourceType)
	}

	for _, key := range sources {
		switch key {
		case InlineSourceType:
			RegisterInline(r)
		case FileSourceType:
			RegisterFile(r)
		case HTTPSourceType:
			RegisterHTTP(r)
		}
	}
}

// NewDefaultRegistry returns a registry with every built-in source registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}
