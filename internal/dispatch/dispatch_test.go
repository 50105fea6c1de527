package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discoveryd/discoveryd/internal/registry"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	r := registry.New()
	return New(r, nil), r
}

func TestClassifyOrdersResponseBeforeRequest(t *testing.T) {
	id := json.RawMessage(`1`)
	resp := Message{ID: id, Method: "tools/list", Result: json.RawMessage(`{}`)}
	assert.Equal(t, KindResponse, Classify(resp))

	req := Message{ID: id, Method: "tools/list"}
	assert.Equal(t, KindRequest, Classify(req))

	note := Message{Method: "notifications/tools/list_changed"}
	assert.Equal(t, KindNotification, Classify(note))
}

func TestHandleUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	resp, isReq := s.Handle(context.Background(), Message{ID: json.RawMessage(`1`), Method: "nope"})
	require.True(t, isReq)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestToolsCallRoutesToHandlerAndValidatesParams(t *testing.T) {
	s, r := newTestServer(t)
	r.StartModule("m1", "discovery", "m1.go")
	require.NoError(t, r.RegisterTool(registry.ToolRecord{
		Name:         "ping",
		ModuleOrigin: "m1",
		InputSchema: registry.Simple(registry.ObjectShape{
			Fields:   map[string]registry.Field{"host": {Kind: registry.FieldString}},
			Required: []string{"host"},
		}),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("pong " + params["host"].(string)), nil
		},
	}))
	require.NoError(t, r.CompleteModule("m1", nil))

	raw, err := json.Marshal(toolCallParams{Name: "ping", Arguments: map[string]interface{}{"host": "10.0.0.1"}})
	require.NoError(t, err)

	resp, isReq := s.Handle(context.Background(), Message{ID: json.RawMessage(`2`), Method: "tools/call", Params: raw})
	require.True(t, isReq)
	require.Nil(t, resp.Error)

	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.False(t, result.IsError)
}

func TestToolsCallMissingRequiredFieldIsInvalidParams(t *testing.T) {
	s, r := newTestServer(t)
	r.StartModule("m1", "discovery", "m1.go")
	require.NoError(t, r.RegisterTool(registry.ToolRecord{
		Name:         "ping",
		ModuleOrigin: "m1",
		InputSchema: registry.Simple(registry.ObjectShape{
			Fields:   map[string]registry.Field{"host": {Kind: registry.FieldString}},
			Required: []string{"host"},
		}),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		},
	}))
	require.NoError(t, r.CompleteModule("m1", nil))

	raw, err := json.Marshal(toolCallParams{Name: "ping", Arguments: map[string]interface{}{}})
	require.NoError(t, err)

	resp, _ := s.Handle(context.Background(), Message{ID: json.RawMessage(`3`), Method: "tools/call", Params: raw})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestHandlerErrorBecomesToolResultErrorNotRPCError(t *testing.T) {
	s, r := newTestServer(t)
	r.StartModule("m1", "discovery", "m1.go")
	require.NoError(t, r.RegisterTool(registry.ToolRecord{
		Name:         "nmap",
		ModuleOrigin: "m1",
		InputSchema:  registry.Simple(registry.ObjectShape{Fields: map[string]registry.Field{}}),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			return nil, assertErr
		},
	}))
	require.NoError(t, r.CompleteModule("m1", nil))

	raw, err := json.Marshal(toolCallParams{Name: "nmap"})
	require.NoError(t, err)

	resp, _ := s.Handle(context.Background(), Message{ID: json.RawMessage(`4`), Method: "tools/call", Params: raw})
	require.Nil(t, resp.Error)

	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.True(t, result.IsError)
}

func TestNotificationNeverProducesAResponse(t *testing.T) {
	s, _ := newTestServer(t)
	_, isReq := s.Handle(context.Background(), Message{Method: "notifications/tools/list_changed"})
	assert.False(t, isReq)
}

var assertErr = &mockExternalError{"nmap: command exited with status 1"}

type mockExternalError struct{ msg string }

func (e *mockExternalError) Error() string { return e.msg }
