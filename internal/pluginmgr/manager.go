package pluginmgr

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/discoveryd/discoveryd/internal/registry"
	"github.com/discoveryd/discoveryd/pkg/logging"
)

const (
	manifestFileName = "mcp-plugin.json"
	lockFileName     = "mcp-plugin.lock.json"
	distDirName      = "dist"
)

// Registrar constructs a plugin's tools/resources/prompts (the
// plugin's createPlugin entry point) and registers them against the
// Core Registry.
type Registrar func(ctx context.Context, r *registry.Registry) error

// Manager is the Plugin Manager: discovery, validation, integrity and
// signature checking, lock-file drift detection, and the plugin state
// machine.
type Manager struct {
	mu       sync.RWMutex
	root     string
	policy   SignaturePolicy
	registry *registry.Registry
	plugins  map[string]*Plugin

	// Registrars maps a plugin ID to its entry-point constructor. The
	// discovery tool bodies themselves are out of scope; this map is
	// populated by whatever bundles the concrete tool code (a built-in
	// table, or dynamically loaded Go plugin binary) for the entry path
	// named in the manifest.
	Registrars map[string]Registrar
}

// New constructs a Manager rooted at <plugins_root>.
func New(root string, policy SignaturePolicy, r *registry.Registry) *Manager {
	return &Manager{
		root:       root,
		policy:     policy,
		registry:   r,
		plugins:    make(map[string]*Plugin),
		Registrars: make(map[string]Registrar),
	}
}

// Discover walks <plugins_root>/<category>/<plugin-id>/ for manifests.
// Each plugin's discovery and validation failure is isolated: one
// broken plugin does not prevent others from loading.
func (m *Manager) Discover() error {
	categories, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, cat := range categories {
		if !cat.IsDir() {
			continue
		}
		catDir := filepath.Join(m.root, cat.Name())
		entries, err := os.ReadDir(catDir)
		if err != nil {
			logging.Warn("PluginManager", "reading category dir %s: %v", catDir, err)
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			m.discoverOne(filepath.Join(catDir, entry.Name()))
		}
	}
	return nil
}

func (m *Manager) discoverOne(dir string) {
	manifestPath := filepath.Join(dir, manifestFileName)
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		logging.Warn("PluginManager", "no manifest in %s: %v", dir, err)
		return
	}

	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		logging.Warn("PluginManager", "malformed manifest in %s: %v", dir, err)
		return
	}

	p := &Plugin{ID: manifest.ID(), Dir: dir, Manifest: manifest, State: StateDiscovered}

	m.mu.Lock()
	m.plugins[p.ID] = p
	m.mu.Unlock()

	if verrs := ValidateManifest(manifest); verrs.HasErrors() {
		m.fail(p, verrs)
		return
	}

	m.mu.Lock()
	p.State = StateValidated
	m.mu.Unlock()
	logging.Info("PluginManager", "discovered and validated plugin %s", p.ID)
}

func (m *Manager) fail(p *Plugin, err error) {
	m.mu.Lock()
	p.State = StateFailed
	p.LastError = err.Error()
	m.mu.Unlock()
	logging.Audit(logging.AuditEvent{Action: "plugin_load", Outcome: "failure", Target: p.ID, Error: err.Error()})
}

// Load performs the Validated -> Loaded transition: recompute the dist
// hash and compare against the manifest (ErrIntegrity on mismatch),
// validate or write the lock file (ErrDrift on mismatch against a
// pre-existing lock), and verify the signature if policy requires it
// (ErrUnsigned / ErrBadSignature).
func (m *Manager) Load(id string) error {
	p, err := m.get(id)
	if err != nil {
		return err
	}

	m.mu.RLock()
	state := p.State
	m.mu.RUnlock()
	if state != StateValidated {
		return ErrIllegalState
	}

	distDir := filepath.Join(p.Dir, distDirName)
	hash, fileCount, totalBytes, err := DistHash(distDir)
	if err != nil {
		m.fail(p, err)
		return err
	}
	if "sha256:"+hash != p.Manifest.Dist.Hash {
		m.fail(p, ErrIntegrity)
		return ErrIntegrity
	}

	observed := DistInfo{Hash: "sha256:" + hash, FileCount: fileCount, TotalBytes: totalBytes}
	if err := m.checkLockDrift(p, observed); err != nil {
		m.fail(p, err)
		return err
	}

	if m.policy.RequireSignature {
		signingInput, err := json.Marshal(struct {
			Name    string `json:"name"`
			Version string `json:"version"`
			Dist    DistInfo
		}{p.Manifest.Name, p.Manifest.Version, p.Manifest.Dist})
		if err != nil {
			m.fail(p, err)
			return err
		}
		if err := verifySignature(m.policy, p.Manifest.Signature, signingInput); err != nil {
			m.fail(p, err)
			return err
		}
	}

	if err := m.writeLockFile(p, observed); err != nil {
		m.fail(p, err)
		return err
	}

	m.mu.Lock()
	p.State = StateLoaded
	p.LoadedAt = time.Now()
	m.mu.Unlock()
	logging.Audit(logging.AuditEvent{Action: "plugin_load", Outcome: "success", Target: p.ID})
	return nil
}

func (m *Manager) checkLockDrift(p *Plugin, observed DistInfo) error {
	lockPath := filepath.Join(p.Dir, lockFileName)
	raw, err := os.ReadFile(lockPath)
	if os.IsNotExist(err) {
		return nil // first load: nothing to compare against yet
	}
	if err != nil {
		return err
	}
	var lock LockFile
	if err := json.Unmarshal(raw, &lock); err != nil {
		return err
	}
	if lock.ObservedDist.Hash != observed.Hash ||
		lock.ObservedDist.FileCount != observed.FileCount ||
		lock.ObservedDist.TotalBytes != observed.TotalBytes {
		return ErrDrift
	}
	return nil
}

func (m *Manager) writeLockFile(p *Plugin, observed DistInfo) error {
	lock := LockFile{ObservedDist: observed, Timestamp: time.Now()}
	if p.Manifest.Signature != nil {
		lock.KeyFingerprint = p.Manifest.Signature.PublicKeyID
	}
	raw, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.Dir, lockFileName), raw, 0644)
}

// Activate performs Loaded -> Active, running the plugin's registrar
// and exposing its tools/resources/prompts through the Core Registry
// as a module batch.
func (m *Manager) Activate(ctx context.Context, id string) error {
	p, err := m.get(id)
	if err != nil {
		return err
	}

	m.mu.RLock()
	state := p.State
	m.mu.RUnlock()
	if !canTransition(state, StateActive) {
		return ErrIllegalState
	}

	registrar, ok := m.Registrars[id]
	if !ok {
		return ErrNoRegistrar
	}

	m.registry.StartModule(id, p.Manifest.Name, filepath.Join(p.Dir, p.Manifest.Entry))
	runErr := registrar(ctx, m.registry)
	if cerr := m.registry.CompleteModule(id, runErr); cerr != nil {
		logging.Error("PluginManager", cerr, "completing activation batch for %s", id)
	}
	if runErr != nil {
		m.fail(p, runErr)
		return runErr
	}

	m.mu.Lock()
	p.State = StateActive
	m.mu.Unlock()
	logging.Audit(logging.AuditEvent{Action: "plugin_activate", Outcome: "success", Target: id})
	return nil
}

// Deactivate performs Active -> Inactive: tools are removed from the
// registry but the plugin stays resident, ready to Activate again
// without re-validating integrity.
func (m *Manager) Deactivate(id string) error {
	p, err := m.get(id)
	if err != nil {
		return err
	}
	m.mu.RLock()
	state := p.State
	m.mu.RUnlock()
	if !canTransition(state, StateInactive) {
		return ErrIllegalState
	}

	if err := m.registry.UnloadModule(id); err != nil && err != registry.ErrUnknown {
		return err
	}

	m.mu.Lock()
	p.State = StateInactive
	m.mu.Unlock()
	return nil
}

// Unload removes any exposed tools and resources permanently.
// Unloaded has no legal outgoing transition, so Load and Activate both
// reject the record afterwards; only a fresh Discover, which replaces
// it with a new record, makes the plugin loadable again. Accepted from
// Loaded or Inactive so a deactivated plugin can still be retired.
func (m *Manager) Unload(id string) error {
	p, err := m.get(id)
	if err != nil {
		return err
	}
	m.mu.RLock()
	state := p.State
	m.mu.RUnlock()
	if !canTransition(state, StateUnloaded) {
		return ErrIllegalState
	}

	if err := m.registry.UnloadModule(id); err != nil && err != registry.ErrUnknown {
		return err
	}

	m.mu.Lock()
	p.State = StateUnloaded
	m.mu.Unlock()
	logging.Audit(logging.AuditEvent{Action: "plugin_unload", Outcome: "success", Target: id})
	return nil
}

func (m *Manager) get(id string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[id]
	if !ok {
		return nil, ErrUnknownPlugin
	}
	return p, nil
}

// List returns a snapshot of every known plugin, for plugin_list.
func (m *Manager) List() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p.Snapshot())
	}
	return out
}

// Get returns a snapshot of a single plugin.
func (m *Manager) Get(id string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[id]
	if !ok {
		return Plugin{}, false
	}
	return p.Snapshot(), true
}
