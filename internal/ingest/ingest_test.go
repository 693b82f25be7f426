package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestListDirectory(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.pdf"))
	touch(t, filepath.Join(root, "a.PNG"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "sub", "c.tiff"))
	touch(t, filepath.Join(root, ".hidden", "d.pdf"))
	touch(t, filepath.Join(root, ".e.pdf"))

	paths, stats, err := ListDirectory(root, nil, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.PNG"),
		filepath.Join(root, "b.pdf"),
		filepath.Join(root, "sub", "c.tiff"),
	}, paths)
	assert.Equal(t, uint32(3), stats.Matched)

	paths, _, err = ListDirectory(root, []string{".pdf"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, ".e.pdf"),
		filepath.Join(root, ".hidden", "d.pdf"),
		filepath.Join(root, "b.pdf"),
	}, paths)

	_, _, err = ListDirectory(filepath.Join(root, "missing"), nil, true)
	assert.Error(t, err)
	_, _, err = ListDirectory(" ", nil, true)
	assert.Error(t, err)
}

func TestAllowedExt(t *testing.T) {
	assert.True(t, AllowedExt(".PDF"))
	assert.True(t, AllowedExt("heic"))
	assert.False(t, AllowedExt(".docx"))
	assert.True(t, IsHidden("/tmp/.x"))
}

func TestWatcherEmitsExistingAndNewFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "existing.pdf"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    20 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("no watcher event")
			return ""
		}
	}
	assert.Equal(t, filepath.Join(root, "existing.pdf"), next())

	touch(t, filepath.Join(root, "ignored.txt"))
	touch(t, filepath.Join(root, "new.jpg"))
	assert.Equal(t, filepath.Join(root, "new.jpg"), next())

	cancel()
	for range events {
	}
}

func TestWatcherRequiresRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
