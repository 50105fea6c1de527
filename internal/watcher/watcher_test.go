package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/discoveryd/discoveryd/internal/registry"
)

func TestWatchUnwatchWatchIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: mod\n"), 0644))

	r := registry.New()
	w := New(r, []string{dir}, 10*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	reload := func(ctx context.Context, reg *registry.Registry) error { return nil }

	require.NoError(t, w.Watch("mod", path, reload))
	require.NoError(t, w.Unwatch("mod"))
	require.NoError(t, w.Watch("mod", path, reload))

	w.mu.RLock()
	_, watched := w.watched["mod"]
	w.mu.RUnlock()
	require.True(t, watched)
}

func TestReloadOnWriteReregisters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: mod\n"), 0644))

	r := registry.New()
	w := New(r, []string{dir}, 10*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	reloaded := make(chan struct{}, 1)
	reload := func(ctx context.Context, reg *registry.Registry) error {
		reloaded <- struct{}{}
		return nil
	}
	require.NoError(t, w.Watch("mod", path, reload))

	require.NoError(t, os.WriteFile(path, []byte("name: mod\nupdated: true\n"), 0644))

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("expected reload to fire after file write")
	}
}

func TestSymlinkEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.yaml")
	require.NoError(t, os.WriteFile(target, []byte("name: secret\n"), 0644))

	link := filepath.Join(root, "link.yaml")
	require.NoError(t, os.Symlink(target, link))

	r := registry.New()
	w := New(r, []string{root}, 10*time.Millisecond)

	err := w.Watch("secret", link, func(ctx context.Context, reg *registry.Registry) error { return nil })
	require.ErrorIs(t, err, ErrSymlinkEscape)
}
