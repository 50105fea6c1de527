// Package builtins registers the process-wide CMDB and Credential
// Vault operations as Core Registry tools. They
// are wired in exactly like a discovered module (internal/discovery)
// would be, except their backing stores are process singletons opened
// by cmd/serve.go rather than files scanned off disk.
package builtins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/discoveryd/discoveryd/internal/cmdb"
	"github.com/discoveryd/discoveryd/internal/registry"
)

const memoryModule = "memory"

// RegisterMemory wires memory_get/set/merge/query/clear/stats/save/
// migrate_from as tools owned by the "memory" module. It follows the same
// StartModule/RegisterTool/
// CompleteModule sequence internal/discovery.Engine uses for
// file-discovered modules, batching the registrations atomically.
func RegisterMemory(ctx context.Context, r *registry.Registry, store *cmdb.Store) error {
	r.StartModule(memoryModule, "cmdb", "")

	tools := []registry.ToolRecord{
		memoryGetTool(store),
		memorySetTool(store),
		memoryMergeTool(store),
		memoryQueryTool(store),
		memoryClearTool(store),
		memoryStatsTool(store),
		memorySaveTool(store),
		memoryMigrateTool(store),
	}

	var regErr error
	for _, t := range tools {
		t.ModuleOrigin = memoryModule
		if err := r.RegisterTool(t); err != nil {
			regErr = fmt.Errorf("registering %s: %w", t.Name, err)
			break
		}
	}

	return r.CompleteModule(memoryModule, regErr)
}

func textResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

func requiredString(params map[string]interface{}, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("missing required field %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", name)
	}
	return s, nil
}

func optionalObject(params map[string]interface{}, name string) map[string]interface{} {
	v, ok := params[name]
	if !ok {
		return nil
	}
	m, _ := v.(map[string]interface{})
	return m
}

func keyField() registry.Field {
	return registry.Field{Kind: registry.FieldString, MinLen: 1}
}

func valueField() registry.Field {
	return registry.Field{Kind: registry.FieldObject, Shape: &registry.ObjectShape{
		Fields:     map[string]registry.Field{},
		Additional: registry.AdditionalAllow,
	}}
}

func memoryGetTool(store *cmdb.Store) registry.ToolRecord {
	shape := registry.ObjectShape{
		Fields:   map[string]registry.Field{"key": keyField()},
		Required: []string{"key"},
	}
	return registry.ToolRecord{
		Name:        "memory_get",
		Description: "Retrieve a configuration item by its key.",
		Category:    "memory",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			key, err := requiredString(params, "key")
			if err != nil {
				return nil, err
			}
			value, ok := store.Get(key)
			if !ok {
				return nil, cmdb.ErrUnknown
			}
			return textResult(value)
		},
	}
}

func memorySetTool(store *cmdb.Store) registry.ToolRecord {
	shape := registry.ObjectShape{
		Fields: map[string]registry.Field{
			"key":   keyField(),
			"value": valueField(),
		},
		Required: []string{"key", "value"},
	}
	return registry.ToolRecord{
		Name:        "memory_set",
		Description: "Store a configuration item, overwriting any existing value at that key.",
		Category:    "memory",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			key, err := requiredString(params, "key")
			if err != nil {
				return nil, err
			}
			value := optionalObject(params, "value")
			store.Set(key, value)
			return textResult(map[string]interface{}{"key": key, "value": value})
		},
	}
}

func memoryMergeTool(store *cmdb.Store) registry.ToolRecord {
	shape := registry.ObjectShape{
		Fields: map[string]registry.Field{
			"key":     keyField(),
			"partial": valueField(),
		},
		Required: []string{"key", "partial"},
	}
	return registry.ToolRecord{
		Name:        "memory_merge",
		Description: "Shallow-merge fields into an existing configuration item; partial wins on collisions.",
		Category:    "memory",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			key, err := requiredString(params, "key")
			if err != nil {
				return nil, err
			}
			partial := optionalObject(params, "partial")
			merged := store.Merge(key, partial)
			return textResult(map[string]interface{}{"key": key, "value": merged})
		},
	}
}

func memoryQueryTool(store *cmdb.Store) registry.ToolRecord {
	shape := registry.ObjectShape{
		Fields: map[string]registry.Field{
			"glob": {Kind: registry.FieldString, Optional: true},
		},
	}
	return registry.ToolRecord{
		Name:        "memory_query",
		Description: "List configuration items whose key matches a glob pattern (\"*\" = any characters).",
		Category:    "memory",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			glob := "*"
			if g, ok := params["glob"].(string); ok && g != "" {
				glob = g
			}
			results, err := store.Query(glob)
			if err != nil {
				return nil, err
			}
			return textResult(results)
		},
	}
}

func memoryClearTool(store *cmdb.Store) registry.ToolRecord {
	shape := registry.ObjectShape{Fields: map[string]registry.Field{}}
	return registry.ToolRecord{
		Name:        "memory_clear",
		Description: "Remove every configuration item from the CMDB.",
		Category:    "memory",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			if err := store.Clear(); err != nil {
				return nil, err
			}
			return textResult(map[string]interface{}{"cleared": true})
		},
	}
}

func memoryStatsTool(store *cmdb.Store) registry.ToolRecord {
	shape := registry.ObjectShape{Fields: map[string]registry.Field{}}
	return registry.ToolRecord{
		Name:        "memory_stats",
		Description: "Summarise CMDB contents: total CI count, counts by type hint, and dirty-key count.",
		Category:    "memory",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			return textResult(store.Stats())
		},
	}
}

func memorySaveTool(store *cmdb.Store) registry.ToolRecord {
	shape := registry.ObjectShape{Fields: map[string]registry.Field{}}
	return registry.ToolRecord{
		Name:        "memory_save",
		Description: "Force an immediate flush of all dirty configuration items to the durable store.",
		Category:    "memory",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			if err := store.Save(); err != nil {
				return nil, err
			}
			return textResult(map[string]interface{}{"saved": true})
		},
	}
}

func memoryMigrateTool(store *cmdb.Store) registry.ToolRecord {
	shape := registry.ObjectShape{
		Fields:   map[string]registry.Field{"path": keyField()},
		Required: []string{"path"},
	}
	return registry.ToolRecord{
		Name:        "memory_migrate_from",
		Description: "Import configuration items from a legacy durable-store file into the current CMDB.",
		Category:    "memory",
		InputSchema: registry.Simple(shape),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			path, err := requiredString(params, "path")
			if err != nil {
				return nil, err
			}
			if err := store.MigrateFrom(path); err != nil {
				return nil, err
			}
			return textResult(map[string]interface{}{"migrated": true})
		},
	}
}
