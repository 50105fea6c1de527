package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/discoveryd/discoveryd/internal/registry"
)

const protocolVersion = "2025-06-18"

type initializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	ServerInfo      map[string]interface{} `json:"serverInfo"`
	Capabilities    map[string]interface{} `json:"capabilities"`
}

type toolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type resourceDescriptor struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

type promptDescriptor struct {
	Name        string                    `json:"name"`
	Title       string                    `json:"title,omitempty"`
	Description string                    `json:"description"`
	Arguments   []registry.PromptArgument `json:"arguments"`
}

// registerBuiltins wires the fixed method catalogue: initialize,
// tools/*, resources/*, prompts/*, plus the registry_* and plugin_*
// management methods.
func (s *Server) registerBuiltins() {
	s.methods["initialize"] = s.handleInitialize
	s.methods["tools/list"] = s.handleToolsList
	s.methods["tools/call"] = s.handleToolsCall
	s.methods["resources/list"] = s.handleResourcesList
	s.methods["resources/read"] = s.handleResourcesRead
	s.methods["prompts/list"] = s.handlePromptsList
	s.methods["prompts/get"] = s.handlePromptsGet
	s.methods["registry_list_modules"] = s.handleRegistryListModules
	s.methods["registry_get_module"] = s.handleRegistryGetModule

	if s.Plugins != nil {
		s.methods["plugin_list"] = s.handlePluginList
		s.methods["plugin_load"] = s.handlePluginLoad
		s.methods["plugin_activate"] = s.handlePluginActivate
		s.methods["plugin_deactivate"] = s.handlePluginDeactivate
		s.methods["plugin_unload"] = s.handlePluginUnload
	}
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return initializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      map[string]interface{}{"name": "discoveryd", "version": "0.1.0"},
		Capabilities: map[string]interface{}{
			"tools":     map[string]interface{}{"listChanged": true},
			"resources": map[string]interface{}{"listChanged": true},
			"prompts":   map[string]interface{}{"listChanged": true},
		},
	}, nil
}

func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	tools := s.Registry.ListTools()
	out := make([]toolDescriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: registry.ToJSONSchema(t.InputSchema.Shape),
		})
	}
	return map[string]interface{}{"tools": out}, nil
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p toolCallParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid tools/call params: %v", err)}
	}

	tool, ok := s.Registry.LookupTool(p.Name)
	if !ok {
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown tool: %s", p.Name)}
	}

	if err := registry.ValidateParams(p.Arguments, tool.InputSchema.Shape); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	res, err := tool.Handler(ctx, p.Arguments)
	if err != nil {
		// Handler-level failure: use the tool-result error form, not a
		// JSON-RPC error, so the client still sees the output text.
		return stripProtocolViolations(toolResultError(err)), nil
	}
	return stripProtocolViolations(res), nil
}

func (s *Server) handleResourcesList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	resources := s.Registry.ListResources()
	out := make([]resourceDescriptor, 0, len(resources))
	for _, r := range resources {
		out = append(out, resourceDescriptor{URI: r.URI, Name: r.Name, MimeType: r.MimeType})
	}
	return map[string]interface{}{"resources": out}, nil
}

type resourcesReadParams struct {
	URI    string                 `json:"uri"`
	Params map[string]interface{} `json:"params,omitempty"`
}

func (s *Server) handleResourcesRead(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p resourcesReadParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid resources/read params: %v", err)}
	}
	res, ok := s.Registry.LookupResource(p.URI)
	if !ok {
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown resource: %s", p.URI)}
	}
	return res.Provider(ctx, p.URI, p.Params)
}

func (s *Server) handlePromptsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	prompts := s.Registry.ListPrompts()
	out := make([]promptDescriptor, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, promptDescriptor{Name: p.Name, Title: p.Title, Description: p.Description, Arguments: p.Arguments})
	}
	return map[string]interface{}{"prompts": out}, nil
}

type promptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (s *Server) handlePromptsGet(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p promptsGetParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid prompts/get params: %v", err)}
	}
	prompt, ok := s.Registry.LookupPrompt(p.Name)
	if !ok {
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown prompt: %s", p.Name)}
	}
	return prompt.Render(ctx, p.Arguments)
}

func (s *Server) handleRegistryListModules(ctx context.Context, params json.RawMessage) (interface{}, error) {
	// The registry has no bulk module-list accessor; expose the
	// tool counts per module instead, which is what plugin_list style
	// diagnostics actually need.
	tools := s.Registry.ListTools()
	modules := map[string]int{}
	for _, t := range tools {
		modules[t.ModuleOrigin]++
	}
	return map[string]interface{}{"tool_counts_by_module": modules}, nil
}

type moduleNameParams struct {
	Name string `json:"name"`
}

func (s *Server) handleRegistryGetModule(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p moduleNameParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	m, ok := s.Registry.GetModule(p.Name)
	if !ok {
		return nil, &Error{Code: CodeUnknownName, Message: fmt.Sprintf("unknown module: %s", p.Name)}
	}
	return map[string]interface{}{
		"name":      m.Name,
		"category":  m.Category,
		"state":     m.State.String(),
		"lastError": m.LastError,
	}, nil
}

type pluginIDParams struct {
	ID string `json:"id"`
}

func (s *Server) handlePluginList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	plugins := s.Plugins.List()
	out := make([]map[string]interface{}, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, map[string]interface{}{
			"id":        p.ID,
			"state":     p.State.String(),
			"lastError": p.LastError,
		})
	}
	return map[string]interface{}{"plugins": out}, nil
}

func (s *Server) handlePluginLoad(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p pluginIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	if err := s.Plugins.Load(p.ID); err != nil {
		return nil, err
	}
	return map[string]string{"id": p.ID, "state": "Loaded"}, nil
}

func (s *Server) handlePluginActivate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p pluginIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	if err := s.Plugins.Activate(ctx, p.ID); err != nil {
		return nil, err
	}
	return map[string]string{"id": p.ID, "state": "Active"}, nil
}

func (s *Server) handlePluginDeactivate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p pluginIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	if err := s.Plugins.Deactivate(p.ID); err != nil {
		return nil, err
	}
	return map[string]string{"id": p.ID, "state": "Inactive"}, nil
}

func (s *Server) handlePluginUnload(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p pluginIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	if err := s.Plugins.Unload(p.ID); err != nil {
		return nil, err
	}
	return map[string]string{"id": p.ID, "state": "Unloaded"}, nil
}
