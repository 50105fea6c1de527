package discovery

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// descriptorFile is the on-disk shape of a module's discovery
// descriptor: a small YAML file declaring the module's identity and
// dependency edges. The module's actual tool implementation (a Go
// plugin, or a built-in registrar) is out of this package's scope;
// the caller maps a descriptor's Name to a concrete registration
// function via Engine.Registrars.
type descriptorFile struct {
	Name      string   `yaml:"name"`
	Category  string   `yaml:"category"`
	DependsOn []string `yaml:"depends_on"`
}

// ModuleDescriptor is a discovered module ready to be handed to the
// Core Registry in dependency order.
type ModuleDescriptor struct {
	Name      string
	Category  string
	FilePath  string
	DependsOn []string
}

// ScanDirectory walks root for *.module.yaml descriptor files and
// returns one ModuleDescriptor per file found. It does not follow
// symlinks outside root, matching the same safety posture as the
// Hot-Reload Watcher.
func ScanDirectory(root string) ([]ModuleDescriptor, error) {
	var out []ModuleDescriptor

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(absRoot); os.IsNotExist(err) {
		return nil, nil
	}

	err = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".module.yaml") && !strings.HasSuffix(d.Name(), ".module.yml") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			if !strings.HasPrefix(resolved, absRoot) {
				return nil
			}
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var df descriptorFile
		if err := yaml.Unmarshal(raw, &df); err != nil {
			return err
		}
		if df.Name == "" {
			return nil
		}

		out = append(out, ModuleDescriptor{
			Name:      df.Name,
			Category:  df.Category,
			FilePath:  path,
			DependsOn: df.DependsOn,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BuildGraph converts a flat descriptor list into a dependency Graph.
func BuildGraph(descs []ModuleDescriptor) *Graph {
	g := New()
	for _, d := range descs {
		deps := make([]NodeID, len(d.DependsOn))
		for i, dep := range d.DependsOn {
			deps[i] = NodeID(dep)
		}
		g.AddNode(Node{ID: NodeID(d.Name), Category: d.Category, FilePath: d.FilePath, DependsOn: deps})
	}
	return g
}
