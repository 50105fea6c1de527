package registry

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/discoveryd/discoveryd/pkg/logging"
)

// Registry is the Core Registry: the authoritative inventory of tools,
// resources, and prompts. Registration/unregistration is serialised by
// a single mutex; reads take the read lock only.
type Registry struct {
	mu sync.RWMutex

	tools     map[string]ToolRecord
	resources map[string]ResourceRecord
	prompts   map[string]PromptRecord
	modules   map[string]*Module

	hub *Hub

	// Bootstrap dedup guard. registrationInProg serialises the
	// bulk startup registration pass; registrationDone prevents
	// re-running it after a teardown/re-init cycle. Both reset on
	// Cleanup(). group collapses concurrent bootstrap callers onto a
	// single in-flight registration using golang.org/x/sync/singleflight.
	guardMu             sync.Mutex
	registrationInProg  bool
	registrationDone    bool
	group               singleflight.Group

	// batches tracks in-progress StartModule/CompleteModule batches so
	// CompleteModule can roll back partial registrations on failure.
	batchMu sync.Mutex
	batches map[string]*batch
}

type batch struct {
	module    *Module
	toolNames []string
	resURIs   []string
	promNames []string
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		tools:     make(map[string]ToolRecord),
		resources: make(map[string]ResourceRecord),
		prompts:   make(map[string]PromptRecord),
		modules:   make(map[string]*Module),
		hub:       NewHub(),
		batches:   make(map[string]*batch),
	}
}

// Hub exposes the notification hub for transports to subscribe
// sessions against.
func (r *Registry) Hub() *Hub { return r.hub }

// StartModule begins a registration batch for a module, creating its
// record in the Loading state. Idempotent for the same name: a second
// call returns the existing module's batch.
func (r *Registry) StartModule(name, category, filePath string) *Module {
	r.mu.Lock()
	m, ok := r.modules[name]
	if !ok {
		m = newModule(name, category, filePath)
		r.modules[name] = m
	} else {
		m.State = ModuleLoading
		m.FilePath = filePath
	}
	r.mu.Unlock()

	r.batchMu.Lock()
	r.batches[name] = &batch{module: m}
	r.batchMu.Unlock()

	return m
}

// CompleteModule finalises a module's registration batch. If cause is
// non-nil, every tool/resource/prompt registered during the batch is
// rolled back and the module is marked Failed; otherwise the module
// becomes Active.
func (r *Registry) CompleteModule(name string, cause error) error {
	r.batchMu.Lock()
	b, ok := r.batches[name]
	if ok {
		delete(r.batches, name)
	}
	r.batchMu.Unlock()

	if !ok {
		return ErrNoActiveBatch
	}

	if cause != nil {
		r.mu.Lock()
		for _, t := range b.toolNames {
			delete(r.tools, t)
		}
		for _, u := range b.resURIs {
			delete(r.resources, u)
		}
		for _, p := range b.promNames {
			delete(r.prompts, p)
		}
		b.module.ToolNames = make(map[string]struct{})
		b.module.ResNames = make(map[string]struct{})
		b.module.PromNames = make(map[string]struct{})
		b.module.State = ModuleFailed
		b.module.LastError = cause.Error()
		r.mu.Unlock()
		logging.Warn("Registry", "module %s batch rolled back: %v", name, cause)
		return nil
	}

	r.mu.Lock()
	b.module.State = ModuleActive
	r.mu.Unlock()
	return nil
}

func (r *Registry) recordBatch(moduleName string, kind Kind, key string) {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	b, ok := r.batches[moduleName]
	if !ok {
		return
	}
	switch kind {
	case KindTools:
		b.toolNames = append(b.toolNames, key)
	case KindResources:
		b.resURIs = append(b.resURIs, key)
	case KindPrompts:
		b.promNames = append(b.promNames, key)
	}
}

// RegisterTool adds a tool to the registry: on success lookup(name)
// == tool and it appears in ListTools(); it fails if the name is
// taken, the schema's top-level is not object-shaped, or the owning
// module is not Loading/Active.
func (r *Registry) RegisterTool(t ToolRecord) error {
	if err := t.InputSchema.Shape.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.tools[t.Name]; exists {
		r.mu.Unlock()
		return ErrDuplicate
	}
	if m, ok := r.modules[t.ModuleOrigin]; ok {
		if m.State != ModuleLoading && m.State != ModuleActive {
			r.mu.Unlock()
			return ErrModuleNotReady
		}
		m.ToolNames[t.Name] = struct{}{}
	}
	r.tools[t.Name] = t
	r.mu.Unlock()

	r.recordBatch(t.ModuleOrigin, KindTools, t.Name)
	r.hub.Broadcast(KindTools)
	return nil
}

// UnregisterTool removes a tool by name.
func (r *Registry) UnregisterTool(name string) error {
	r.mu.Lock()
	t, ok := r.tools[name]
	if !ok {
		r.mu.Unlock()
		return ErrUnknown
	}
	delete(r.tools, name)
	if m, ok := r.modules[t.ModuleOrigin]; ok {
		delete(m.ToolNames, name)
	}
	r.mu.Unlock()

	r.hub.Broadcast(KindTools)
	return nil
}

// LookupTool returns the named tool.
func (r *Registry) LookupTool(name string) (ToolRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ListTools returns a snapshot of all registered tools. Ordering is
// not contractual; callers that need a stable order sort the snapshot
// themselves.
func (r *Registry) ListTools() []ToolRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolRecord, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// RegisterResource adds a resource to the registry, keyed by URI.
func (r *Registry) RegisterResource(res ResourceRecord) error {
	r.mu.Lock()
	if _, exists := r.resources[res.URI]; exists {
		r.mu.Unlock()
		return ErrDuplicate
	}
	if m, ok := r.modules[res.ModuleOrigin]; ok {
		if m.State != ModuleLoading && m.State != ModuleActive {
			r.mu.Unlock()
			return ErrModuleNotReady
		}
		m.ResNames[res.URI] = struct{}{}
	}
	r.resources[res.URI] = res
	r.mu.Unlock()

	r.recordBatch(res.ModuleOrigin, KindResources, res.URI)
	r.hub.Broadcast(KindResources)
	return nil
}

// UnregisterResource removes a resource by URI.
func (r *Registry) UnregisterResource(uri string) error {
	r.mu.Lock()
	res, ok := r.resources[uri]
	if !ok {
		r.mu.Unlock()
		return ErrUnknown
	}
	delete(r.resources, uri)
	if m, ok := r.modules[res.ModuleOrigin]; ok {
		delete(m.ResNames, uri)
	}
	r.mu.Unlock()

	r.hub.Broadcast(KindResources)
	return nil
}

// LookupResource returns the named resource.
func (r *Registry) LookupResource(uri string) (ResourceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[uri]
	return res, ok
}

// ListResources returns a snapshot of all registered resources.
func (r *Registry) ListResources() []ResourceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceRecord, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	return out
}

// RegisterPrompt adds a prompt to the registry, keyed by name.
func (r *Registry) RegisterPrompt(p PromptRecord) error {
	r.mu.Lock()
	if _, exists := r.prompts[p.Name]; exists {
		r.mu.Unlock()
		return ErrDuplicate
	}
	if m, ok := r.modules[p.ModuleOrigin]; ok {
		if m.State != ModuleLoading && m.State != ModuleActive {
			r.mu.Unlock()
			return ErrModuleNotReady
		}
		m.PromNames[p.Name] = struct{}{}
	}
	r.prompts[p.Name] = p
	r.mu.Unlock()

	r.recordBatch(p.ModuleOrigin, KindPrompts, p.Name)
	r.hub.Broadcast(KindPrompts)
	return nil
}

// UnregisterPrompt removes a prompt by name.
func (r *Registry) UnregisterPrompt(name string) error {
	r.mu.Lock()
	p, ok := r.prompts[name]
	if !ok {
		r.mu.Unlock()
		return ErrUnknown
	}
	delete(r.prompts, name)
	if m, ok := r.modules[p.ModuleOrigin]; ok {
		delete(m.PromNames, name)
	}
	r.mu.Unlock()

	r.hub.Broadcast(KindPrompts)
	return nil
}

// LookupPrompt returns the named prompt.
func (r *Registry) LookupPrompt(name string) (PromptRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[name]
	return p, ok
}

// ListPrompts returns a snapshot of all registered prompts.
func (r *Registry) ListPrompts() []PromptRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PromptRecord, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p)
	}
	return out
}

// UnloadModule removes every tool/resource/prompt owned by a module and
// marks it Unloaded. Used by the Hot-Reload Watcher before reload and
// by the Plugin Manager's unload transition.
func (r *Registry) UnloadModule(name string) error {
	r.mu.Lock()
	m, ok := r.modules[name]
	if !ok {
		r.mu.Unlock()
		return ErrUnknown
	}
	for t := range m.ToolNames {
		delete(r.tools, t)
	}
	for u := range m.ResNames {
		delete(r.resources, u)
	}
	for p := range m.PromNames {
		delete(r.prompts, p)
	}
	m.ToolNames = make(map[string]struct{})
	m.ResNames = make(map[string]struct{})
	m.PromNames = make(map[string]struct{})
	m.State = ModuleUnloaded
	r.mu.Unlock()

	r.hub.Broadcast(KindTools)
	r.hub.Broadcast(KindResources)
	r.hub.Broadcast(KindPrompts)
	return nil
}

// GetModule returns a snapshot of a module's record.
func (r *Registry) GetModule(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if !ok {
		return Module{}, false
	}
	return m.Snapshot(), true
}

// RunBootstrap runs fn exactly once as the bulk startup registration
// pass. Concurrent callers block until the in-flight pass completes and
// then return its result rather than running it again; a later call
// after the first completed pass is a no-op returning nil.
func (r *Registry) RunBootstrap(fn func() error) error {
	r.guardMu.Lock()
	if r.registrationDone {
		r.guardMu.Unlock()
		return nil
	}
	r.guardMu.Unlock()

	_, err, _ := r.group.Do("bootstrap", func() (interface{}, error) {
		r.guardMu.Lock()
		if r.registrationDone {
			r.guardMu.Unlock()
			return nil, nil
		}
		r.registrationInProg = true
		r.guardMu.Unlock()

		runErr := fn()

		r.guardMu.Lock()
		r.registrationInProg = false
		if runErr == nil {
			r.registrationDone = true
		}
		r.guardMu.Unlock()

		return nil, runErr
	})
	return err
}

// Cleanup resets the bootstrap dedup guard, e.g. after a full teardown
// and re-init cycle, so RunBootstrap will run again.
func (r *Registry) Cleanup() {
	r.guardMu.Lock()
	r.registrationInProg = false
	r.registrationDone = false
	r.guardMu.Unlock()
}
