package discovery

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/discoveryd/discoveryd/internal/registry"
	"github.com/discoveryd/discoveryd/pkg/logging"
)

// Registrar is implemented by whatever owns the concrete tool/resource/
// prompt construction for a discovered module (a built-in bundle, or
// the Plugin Manager for plugin-backed modules). It is looked up by
// module name after the dependency order is computed.
type Registrar func(ctx context.Context, r *registry.Registry) error

// Engine runs the Discovery Engine: scan, topologically order, and
// register in dependency-respecting waves.
type Engine struct {
	Registry *registry.Registry

	// Registrars maps a discovered module name to the function that
	// performs its registration. Modules with no matching entry are
	// skipped with a warning rather than failing the whole scan.
	Registrars map[string]Registrar
}

// NewEngine constructs an Engine bound to a registry.
func NewEngine(r *registry.Registry) *Engine {
	return &Engine{Registry: r, Registrars: make(map[string]Registrar)}
}

// Run scans root, orders the discovered modules by dependency, and
// registers each wave concurrently via errgroup, waiting for a wave to
// finish before starting the next (so a module never observes a
// not-yet-loaded dependency). One module's registration failure is
// isolated: it does not prevent siblings or later waves from loading.
func (e *Engine) Run(ctx context.Context, root string) error {
	descs, err := ScanDirectory(root)
	if err != nil {
		return err
	}

	g := BuildGraph(descs)
	waves, err := g.Waves()
	if err != nil {
		return err
	}

	byName := make(map[NodeID]ModuleDescriptor, len(descs))
	for _, d := range descs {
		byName[NodeID(d.Name)] = d
	}

	for _, wave := range waves {
		grp, gctx := errgroup.WithContext(ctx)
		for _, id := range wave {
			id := id
			grp.Go(func() error {
				e.loadModule(gctx, byName[id])
				return nil
			})
		}
		// errgroup's error is always nil here since loadModule isolates
		// its own failures; Wait only provides the join point.
		_ = grp.Wait()
	}

	return nil
}

func (e *Engine) loadModule(ctx context.Context, d ModuleDescriptor) {
	registrar, ok := e.Registrars[d.Name]
	if !ok {
		logging.Warn("Discovery", "no registrar bound for discovered module %s, skipping", d.Name)
		return
	}

	e.Registry.StartModule(d.Name, d.Category, d.FilePath)
	err := registrar(ctx, e.Registry)
	if cerr := e.Registry.CompleteModule(d.Name, err); cerr != nil {
		logging.Error("Discovery", cerr, "completing module %s", d.Name)
	}
	if err != nil {
		logging.Error("Discovery", err, "loading module %s", d.Name)
	}
}
