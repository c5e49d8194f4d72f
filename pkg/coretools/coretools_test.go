package coretools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/reina/pkg/agent"
)

func setupRegistry(t *testing.T) (*agent.Registry, string) {
	root := t.TempDir()
	registry := agent.NewRegistry()
	require.NoError(t, RegisterCoreTools(registry, Options{WorkspaceRoot: root}))
	return registry, root
}

func execute(t *testing.T, registry *agent.Registry, name string, params map[string]interface{}) (agent.ToolResult, error) {
	tool, ok := registry.Get(name)
	require.True(t, ok, "tool %s not registered", name)
	return tool.Execute(context.Background(), agent.ToolCall{ID: "t1", Name: name, Params: params}, nil)
}

func decodeContent(t *testing.T, result agent.ToolResult) map[string]interface{} {
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	return payload
}

func TestRegisterCoreTools(t *testing.T) {
	t.Run("should register file tools only with a workspace root", func(t *testing.T) {
		registry := agent.NewRegistry()
		require.NoError(t, RegisterCoreTools(registry, Options{}))

		_, ok := registry.Get("current_time")
		assert.True(t, ok)
		_, ok = registry.Get("read_file")
		assert.False(t, ok)
	})

	t.Run("should require a registry", func(t *testing.T) {
		assert.Error(t, RegisterCoreTools(nil, Options{}))
	})
}

func TestCurrentTime(t *testing.T) {
	registry, _ := setupRegistry(t)

	t.Run("should return the current time in UTC by default", func(t *testing.T) {
		result, err := execute(t, registry, "current_time", nil)
		require.NoError(t, err)
		require.True(t, result.Success)

		payload := decodeContent(t, result)
		assert.Equal(t, "UTC", payload["timezone"])

		parsed, err := time.Parse(time.RFC3339, payload["iso"].(string))
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), parsed, time.Minute)
	})

	t.Run("should honor a timezone parameter", func(t *testing.T) {
		result, err := execute(t, registry, "current_time", map[string]interface{}{"tz": "Asia/Jakarta"})
		require.NoError(t, err)
		payload := decodeContent(t, result)
		assert.Equal(t, "Asia/Jakarta", payload["timezone"])
	})

	t.Run("should reject unknown timezones", func(t *testing.T) {
		_, err := execute(t, registry, "current_time", map[string]interface{}{"tz": "Mars/Olympus"})
		assert.Error(t, err)
	})
}

func TestReadFile(t *testing.T) {
	registry, root := setupRegistry(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello world"), 0644))

	t.Run("should read a workspace file", func(t *testing.T) {
		result, err := execute(t, registry, "read_file", map[string]interface{}{"path": "notes.txt"})
		require.NoError(t, err)

		payload := decodeContent(t, result)
		assert.Equal(t, "hello world", payload["content"])
		assert.Equal(t, false, payload["truncated"])
	})

	t.Run("should truncate at max_bytes", func(t *testing.T) {
		result, err := execute(t, registry, "read_file", map[string]interface{}{
			"path":      "notes.txt",
			"max_bytes": float64(5),
		})
		require.NoError(t, err)

		payload := decodeContent(t, result)
		assert.Equal(t, "hello", payload["content"])
		assert.Equal(t, true, payload["truncated"])
	})

	t.Run("should reject paths escaping the workspace", func(t *testing.T) {
		_, err := execute(t, registry, "read_file", map[string]interface{}{"path": "../outside.txt"})
		assert.Error(t, err)
	})

	t.Run("should reject absolute paths", func(t *testing.T) {
		_, err := execute(t, registry, "read_file", map[string]interface{}{"path": "/etc/passwd"})
		assert.Error(t, err)
	})
}

func TestWriteFile(t *testing.T) {
	registry, root := setupRegistry(t)

	t.Run("should write and create parent directories", func(t *testing.T) {
		result, err := execute(t, registry, "write_file", map[string]interface{}{
			"path":    "sub/dir/out.txt",
			"content": "first",
		})
		require.NoError(t, err)
		require.True(t, result.Success)

		data, err := os.ReadFile(filepath.Join(root, "sub", "dir", "out.txt"))
		require.NoError(t, err)
		assert.Equal(t, "first", string(data))
	})

	t.Run("should append when requested", func(t *testing.T) {
		_, err := execute(t, registry, "write_file", map[string]interface{}{
			"path":    "log.txt",
			"content": "a",
		})
		require.NoError(t, err)
		_, err = execute(t, registry, "write_file", map[string]interface{}{
			"path":    "log.txt",
			"content": "b",
			"append":  true,
		})
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(root, "log.txt"))
		require.NoError(t, err)
		assert.Equal(t, "ab", string(data))
	})
}

func TestListDir(t *testing.T) {
	registry, root := setupRegistry(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "nested"), 0755))

	t.Run("should list sorted entries with directory markers", func(t *testing.T) {
		result, err := execute(t, registry, "list_dir", nil)
		require.NoError(t, err)

		payload := decodeContent(t, result)
		entries := payload["entries"].([]interface{})
		assert.Equal(t, []interface{}{"a.txt", "b.txt", "nested/"}, entries)
	})
}
