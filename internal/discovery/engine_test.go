package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/discoveryd/discoveryd/internal/registry"
)

func writeDescriptor(t *testing.T, dir, name, category string, dependsOn []string) {
	t.Helper()
	content := "name: " + name + "\ncategory: " + category + "\n"
	if len(dependsOn) > 0 {
		content += "depends_on:\n"
		for _, d := range dependsOn {
			content += "  - " + d + "\n"
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".module.yaml"), []byte(content), 0644))
}

func TestEngineRunRespectsOrder(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "base", "network", nil)
	writeDescriptor(t, dir, "dependent", "network", []string{"base"})

	r := registry.New()
	e := NewEngine(r)

	var order []string
	e.Registrars["base"] = func(ctx context.Context, reg *registry.Registry) error {
		order = append(order, "base")
		return nil
	}
	e.Registrars["dependent"] = func(ctx context.Context, reg *registry.Registry) error {
		order = append(order, "dependent")
		return nil
	}

	require.NoError(t, e.Run(context.Background(), dir))
	require.Equal(t, []string{"base", "dependent"}, order)

	m, ok := r.GetModule("base")
	require.True(t, ok)
	require.Equal(t, registry.ModuleActive, m.State)
}

func TestEngineSkipsUnboundModule(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "orphan", "network", nil)

	r := registry.New()
	e := NewEngine(r)
	require.NoError(t, e.Run(context.Background(), dir))

	_, ok := r.GetModule("orphan")
	require.False(t, ok)
}
