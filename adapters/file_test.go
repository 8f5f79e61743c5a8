package adapters

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProvider_NewSource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.txt"), []byte("from disk"), 0o600))
	p := &FileProvider{Dir: dir}

	src, err := p.NewSource([]byte(`{"type":"file","path":"seed.txt"}`))
	require.NoError(t, err)
	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "from disk", string(got))

	_, err = p.NewSource([]byte(`{"type":"file"}`))
	assert.Error(t, err)

	src, err = p.NewSource([]byte(`{"type":"file","path":"missing.txt"}`))
	require.NoError(t, err)
	_, err = src.Open(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
