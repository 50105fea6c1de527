package pluginmgr

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/discoveryd/discoveryd/internal/registry"
)

func writePlugin(t *testing.T, root, category, name string, files map[string][]byte) string {
	t.Helper()
	dir := filepath.Join(root, category, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, distDirName), 0755))
	for rel, content := range files {
		full := filepath.Join(dir, distDirName, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, content, 0644))
	}
	return dir
}

func writeManifest(t *testing.T, dir string, m Manifest) {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFileName), raw, 0644))
}

func baseManifest(t *testing.T, dir string) Manifest {
	hash, fc, tb, err := DistHash(filepath.Join(dir, distDirName))
	require.NoError(t, err)
	return Manifest{
		ManifestVersion:    "2",
		Name:               "pingsweep",
		Version:            "1.0.0",
		Entry:              "index.js",
		DependenciesPolicy: DependenciesBundledOnly,
		Dist:               DistInfo{Hash: "sha256:" + hash, FileCount: fc, TotalBytes: tb},
	}
}

func TestPluginIntegrityDriftFailsLoad(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "network", "pingsweep", map[string][]byte{
		"a.txt":     []byte("hello"),
		"sub/b.bin": {1, 2, 3, 4, 5},
	})
	manifest := baseManifest(t, dir)
	writeManifest(t, dir, manifest)

	r := registry.New()
	mgr := New(root, SignaturePolicy{}, r)
	require.NoError(t, mgr.Discover())
	require.NoError(t, mgr.Load(manifest.ID()))

	p, ok := mgr.Get(manifest.ID())
	require.True(t, ok)
	require.Equal(t, StateLoaded, p.State)

	// Append a byte to a.txt and re-load: expect IntegrityError and
	// state Failed, per end-to-end scenario 3.
	require.NoError(t, os.WriteFile(filepath.Join(dir, distDirName, "a.txt"), []byte("hello!"), 0644))

	mgr2 := New(root, SignaturePolicy{}, r)
	require.NoError(t, mgr2.Discover())
	err := mgr2.Load(manifest.ID())
	require.ErrorIs(t, err, ErrIntegrity)

	p2, ok := mgr2.Get(manifest.ID())
	require.True(t, ok)
	require.Equal(t, StateFailed, p2.State)
}

func TestSignatureRequiredButAbsentFailsLoad(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "network", "pingsweep", map[string][]byte{"a.txt": []byte("hello")})
	manifest := baseManifest(t, dir)
	writeManifest(t, dir, manifest)

	r := registry.New()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_ = priv
	mgr := New(root, SignaturePolicy{RequireSignature: true, PublicKeys: map[string]ed25519.PublicKey{}}, r)
	require.NoError(t, mgr.Discover())

	loadErr := mgr.Load(manifest.ID())
	require.ErrorIs(t, loadErr, ErrUnsigned)

	p, ok := mgr.Get(manifest.ID())
	require.True(t, ok)
	require.Equal(t, StateFailed, p.State)
}

func TestActivateExposesToolsAndDeactivateRemovesThem(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "network", "pingsweep", map[string][]byte{"a.txt": []byte("hello")})
	manifest := baseManifest(t, dir)
	writeManifest(t, dir, manifest)

	r := registry.New()
	mgr := New(root, SignaturePolicy{}, r)
	require.NoError(t, mgr.Discover())
	require.NoError(t, mgr.Load(manifest.ID()))

	mgr.Registrars[manifest.ID()] = func(ctx context.Context, reg *registry.Registry) error {
		return reg.RegisterTool(registry.ToolRecord{
			Name:         "ping",
			ModuleOrigin: manifest.ID(),
			InputSchema:  registry.Simple(registry.ObjectShape{Fields: map[string]registry.Field{}}),
			Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			},
		})
	}

	require.NoError(t, mgr.Activate(context.Background(), manifest.ID()))
	require.Len(t, r.ListTools(), 1)

	require.NoError(t, mgr.Deactivate(manifest.ID()))
	require.Empty(t, r.ListTools())

	p, ok := mgr.Get(manifest.ID())
	require.True(t, ok)
	require.Equal(t, StateInactive, p.State)
}

func TestIllegalTransitionRejected(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "network", "pingsweep", map[string][]byte{"a.txt": []byte("hi")})
	manifest := baseManifest(t, dir)
	writeManifest(t, dir, manifest)

	r := registry.New()
	mgr := New(root, SignaturePolicy{}, r)
	require.NoError(t, mgr.Discover())

	// Activate before Load: illegal (state is Validated, not Loaded).
	err := mgr.Activate(context.Background(), manifest.ID())
	require.ErrorIs(t, err, ErrIllegalState)
}
