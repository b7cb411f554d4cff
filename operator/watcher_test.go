package operator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchFailsOnMissingFile(t *testing.T) {
	w := NewSchemaWatcher(NewSchemaRegistry(), filepath.Join(t.TempDir(), "absent.yaml"),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := w.Watch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial schema load")
}

func TestWatchLoadsThenStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schemas.yaml")
	content := `schemas:
  - operator: EXTRACT
    version: v2
    input:
      - name: text
        type: string
        required: true
      - name: language
        type: string
        required: true
    output:
      - name: candidates
        type: object
        required: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg := NewSchemaRegistry()
	w := NewSchemaWatcher(reg, path, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Watch(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// The initial load took effect before cancellation.
	s := reg.Get(OpExtract)
	require.NotNil(t, s)
	assert.Equal(t, "v2", s.Version)
}
