package adapters

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineProvider_NewSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"text", `{"type":"inline","content":"hello"}`, "hello", false},
		{"empty", `{"type":"inline"}`, "", false},
		{"base64", `{"type":"inline","content":"aGk=","encoding":"base64"}`, "hi", false},
		{"bad base64", `{"type":"inline","content":"!!","encoding":"base64"}`, "", true},
		{"unknown encoding", `{"type":"inline","content":"x","encoding":"hex"}`, "", true},
		{"bad json", `{`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := (&InlineProvider{}).NewSource([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			// Each Open starts from the beginning
			for range 2 {
				rc, err := src.Open(context.Background())
				require.NoError(t, err)
				got, err := io.ReadAll(rc)
				require.NoError(t, err)
				assert.Equal(t, tt.want, string(got))
			}
		})
	}
}
