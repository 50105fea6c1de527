package registry

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolHandler executes a tool call and produces a wire-ready result.
// Handlers never let errors escape uncaught; callers (internal/dispatch)
// translate a returned error into the appropriate JSON-RPC or
// tool-result error form.
type ToolHandler func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error)

// ToolRecord is the registry's record of a single tool.
type ToolRecord struct {
	Name         string
	Description  string
	InputSchema  SchemaShape
	Category     string
	ModuleOrigin string
	Handler      ToolHandler
}

// ResourceProvider lazily produces a resource's content.
type ResourceProvider func(ctx context.Context, uri string, params map[string]interface{}) (*mcp.ReadResourceResult, error)

// ResourceRecord is the registry's record of a single resource, keyed
// by URI.
type ResourceRecord struct {
	URI          string
	Name         string
	MimeType     string
	Provider     ResourceProvider
	ModuleOrigin string
}

// PromptArgument describes one named argument a prompt accepts.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// PromptRenderer renders a prompt's arguments into an ordered list of
// role/content messages.
type PromptRenderer func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error)

// PromptRecord is the registry's record of a single prompt.
type PromptRecord struct {
	Name         string
	Title        string
	Description  string
	Arguments    []PromptArgument
	Render       PromptRenderer
	ModuleOrigin string
}
