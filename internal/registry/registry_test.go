package registry

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleTool(name, module string) ToolRecord {
	return ToolRecord{
		Name:         name,
		Description:  "test tool",
		ModuleOrigin: module,
		InputSchema:  Simple(ObjectShape{Fields: map[string]Field{}}),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		},
	}
}

func TestDuplicateToolGuard(t *testing.T) {
	r := New()
	r.StartModule("mod-a", "network", "a.yaml")
	require.NoError(t, r.RegisterTool(simpleTool("ping", "mod-a")))
	require.NoError(t, r.CompleteModule("mod-a", nil))

	r.StartModule("mod-b", "network", "b.yaml")
	err := r.RegisterTool(simpleTool("ping", "mod-b"))
	require.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, r.CompleteModule("mod-b", err))

	tools := r.ListTools()
	require.Len(t, tools, 1)
	assert.Equal(t, "ping", tools[0].Name)

	modB, ok := r.GetModule("mod-b")
	require.True(t, ok)
	assert.Equal(t, ModuleFailed, modB.State)
}

func TestNotificationDeliveredAfterMutation(t *testing.T) {
	r := New()
	ch := r.Hub().Subscribe("session-1")

	r.StartModule("mod-a", "network", "a.yaml")
	require.NoError(t, r.RegisterTool(simpleTool("ping", "mod-a")))
	require.NoError(t, r.CompleteModule("mod-a", nil))

	// The mutation must already be visible to list calls by the time
	// the notification is observed.
	select {
	case n := <-ch:
		assert.Equal(t, "notifications/tools/list_changed", n.Method)
		tools := r.ListTools()
		require.Len(t, tools, 1)
	case <-time.After(time.Second):
		t.Fatal("expected a list_changed notification")
	}
}

func TestUnloadModuleRemovesOwnedTools(t *testing.T) {
	r := New()
	r.StartModule("mod-a", "network", "a.yaml")
	require.NoError(t, r.RegisterTool(simpleTool("ping", "mod-a")))
	require.NoError(t, r.RegisterTool(simpleTool("traceroute", "mod-a")))
	require.NoError(t, r.CompleteModule("mod-a", nil))

	require.NoError(t, r.UnloadModule("mod-a"))
	assert.Empty(t, r.ListTools())

	m, ok := r.GetModule("mod-a")
	require.True(t, ok)
	assert.Equal(t, ModuleUnloaded, m.State)
}

func TestRunBootstrapOnlyRunsOnce(t *testing.T) {
	r := New()
	calls := 0
	run := func() error {
		calls++
		return nil
	}
	require.NoError(t, r.RunBootstrap(run))
	require.NoError(t, r.RunBootstrap(run))
	assert.Equal(t, 1, calls)

	r.Cleanup()
	require.NoError(t, r.RunBootstrap(run))
	assert.Equal(t, 2, calls)
}

func TestSchemaShapeClassification(t *testing.T) {
	simple := ObjectShape{Fields: map[string]Field{"name": {Kind: FieldString}}}
	assert.Equal(t, ShapeSimple, InferShape(simple).Kind)

	complex := ObjectShape{Fields: map[string]Field{
		"targets": {Kind: FieldArray, Elem: &Field{Kind: FieldString}},
	}}
	assert.Equal(t, ShapeComplex, InferShape(complex).Kind)
}

func TestObjectShapeValidateRejectsUnknownRequired(t *testing.T) {
	shape := ObjectShape{Fields: map[string]Field{}, Required: []string{"missing"}}
	assert.ErrorIs(t, shape.Validate(), ErrInvalidSchema)
}
