package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() *FuncTool {
	return &FuncTool{
		ToolName:        "echo",
		ToolDescription: "Echo the input back.",
		ToolSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"text": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"text"},
		},
		Fn: func(ctx context.Context, call ToolCall, onUpdate func(ToolUpdate)) (ToolResult, error) {
			text, _ := call.Params["text"].(string)
			return ToolResult{Success: true, Content: text}, nil
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	t.Run("should register a valid tool", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(echoTool()))

		tool, ok := registry.Get("echo")
		assert.True(t, ok)
		assert.Equal(t, "echo", tool.Name())
	})

	t.Run("should reject empty names", func(t *testing.T) {
		registry := NewRegistry()
		err := registry.Register(&FuncTool{ToolName: ""})
		assert.Error(t, err)
	})

	t.Run("should reject duplicate names", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(echoTool()))
		assert.Error(t, registry.Register(echoTool()))
	})

	t.Run("should reject schemas that do not compile", func(t *testing.T) {
		registry := NewRegistry()
		err := registry.Register(&FuncTool{
			ToolName: "broken",
			ToolSchema: map[string]interface{}{
				"type": 42,
			},
		})
		assert.Error(t, err)
	})

	t.Run("should accept a nil schema", func(t *testing.T) {
		registry := NewRegistry()
		assert.NoError(t, registry.Register(&FuncTool{
			ToolName: "schemaless",
			Fn: func(ctx context.Context, call ToolCall, onUpdate func(ToolUpdate)) (ToolResult, error) {
				return ToolResult{Success: true}, nil
			},
		}))
	})
}

func TestRegistry_Schemas(t *testing.T) {
	t.Run("should return schemas in stable name order", func(t *testing.T) {
		registry := NewRegistry()
		for _, name := range []string{"zeta", "alpha", "mid"} {
			require.NoError(t, registry.Register(&FuncTool{ToolName: name}))
		}

		schemas := registry.Schemas()
		require.Len(t, schemas, 3)
		assert.Equal(t, "alpha", schemas[0].Name)
		assert.Equal(t, "mid", schemas[1].Name)
		assert.Equal(t, "zeta", schemas[2].Name)
	})
}

func TestRegistry_ValidateParams(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(echoTool()))

	t.Run("should accept params matching the schema", func(t *testing.T) {
		err := registry.ValidateParams("echo", map[string]interface{}{"text": "hi"})
		assert.NoError(t, err)
	})

	t.Run("should reject params missing required fields", func(t *testing.T) {
		err := registry.ValidateParams("echo", map[string]interface{}{})
		assert.Error(t, err)
	})

	t.Run("should reject params of the wrong type", func(t *testing.T) {
		err := registry.ValidateParams("echo", map[string]interface{}{"text": 7})
		assert.Error(t, err)
	})

	t.Run("should treat nil params as an empty object", func(t *testing.T) {
		require.NoError(t, registry.Register(&FuncTool{
			ToolName:   "optional",
			ToolSchema: map[string]interface{}{"type": "object"},
		}))
		assert.NoError(t, registry.ValidateParams("optional", nil))
	})

	t.Run("should fail for unknown tools", func(t *testing.T) {
		err := registry.ValidateParams("ghost", nil)
		assert.Error(t, err)
	})
}

func TestFuncTool_Execute(t *testing.T) {
	t.Run("should delegate to the wrapped function", func(t *testing.T) {
		tool := echoTool()
		result, err := tool.Execute(context.Background(), ToolCall{Params: map[string]interface{}{"text": "ping"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, "ping", result.Content)
	})

	t.Run("should surface function errors", func(t *testing.T) {
		tool := &FuncTool{
			ToolName: "failing",
			Fn: func(ctx context.Context, call ToolCall, onUpdate func(ToolUpdate)) (ToolResult, error) {
				return ToolResult{}, errors.New("nope")
			},
		}
		_, err := tool.Execute(context.Background(), ToolCall{}, nil)
		assert.Error(t, err)
	})
}
