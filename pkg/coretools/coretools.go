// Package coretools provides the built-in tools registered with every
// engine instance: clock and workspace-confined file access.
package coretools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harun/reina/pkg/agent"
)

const defaultReadLimit = 200000

// Options configures core tool registration.
type Options struct {
	// WorkspaceRoot confines file tools. Required for them; current_time
	// works without it.
	WorkspaceRoot string
}

// RegisterCoreTools registers the baseline runtime and filesystem tools.
func RegisterCoreTools(registry *agent.Registry, opts Options) error {
	if registry == nil {
		return errors.New("tool registry is required")
	}

	tools := []agent.Tool{currentTimeTool()}
	if opts.WorkspaceRoot != "" {
		tools = append(tools,
			readFileTool(opts),
			writeFileTool(opts),
			listDirTool(opts),
		)
	}

	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register %s: %w", tool.Name(), err)
		}
	}
	return nil
}

func jsonResult(v interface{}) agent.ToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return agent.ToolResult{Success: false, Error: fmt.Sprintf("failed to encode result: %v", err)}
	}
	return agent.ToolResult{Success: true, Content: string(data)}
}

func currentTimeTool() agent.Tool {
	return &agent.FuncTool{
		ToolName:        "current_time",
		ToolDescription: "Get the current date and time.",
		ToolSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"tz": map[string]interface{}{
					"type":        "string",
					"description": "IANA timezone name (default UTC)",
				},
			},
		},
		Fn: func(ctx context.Context, call agent.ToolCall, onUpdate func(agent.ToolUpdate)) (agent.ToolResult, error) {
			loc := time.UTC
			if tz, ok := call.Params["tz"].(string); ok && tz != "" {
				parsed, err := time.LoadLocation(tz)
				if err != nil {
					return agent.ToolResult{}, fmt.Errorf("invalid timezone: %w", err)
				}
				loc = parsed
			}
			now := time.Now().In(loc)
			return jsonResult(map[string]interface{}{
				"iso":      now.Format(time.RFC3339),
				"unix_ms":  now.UnixMilli(),
				"timezone": loc.String(),
			}), nil
		},
	}
}

func readFileTool(opts Options) agent.Tool {
	return &agent.FuncTool{
		ToolName:        "read_file",
		ToolDescription: "Read a file from the workspace.",
		ToolSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Relative file path",
				},
				"max_bytes": map[string]interface{}{
					"type":        "number",
					"description": "Maximum bytes to read (default 200000)",
				},
			},
			"required": []interface{}{"path"},
		},
		Fn: func(ctx context.Context, call agent.ToolCall, onUpdate func(agent.ToolUpdate)) (agent.ToolResult, error) {
			pathValue, _ := call.Params["path"].(string)
			target, err := resolvePathInWorkspace(opts.WorkspaceRoot, pathValue)
			if err != nil {
				return agent.ToolResult{}, err
			}

			maxBytes := int64(defaultReadLimit)
			if raw, ok := call.Params["max_bytes"].(float64); ok && raw > 0 {
				maxBytes = int64(raw)
			}

			data, truncated, err := readFileWithLimit(target, maxBytes)
			if err != nil {
				return agent.ToolResult{}, err
			}

			return jsonResult(map[string]interface{}{
				"path":      pathValue,
				"content":   string(data),
				"truncated": truncated,
				"bytes":     len(data),
			}), nil
		},
	}
}

func writeFileTool(opts Options) agent.Tool {
	return &agent.FuncTool{
		ToolName:        "write_file",
		ToolDescription: "Write content to a file in the workspace.",
		ToolSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Relative file path",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "File content",
				},
				"append": map[string]interface{}{
					"type":        "boolean",
					"description": "Append to file (default false)",
				},
			},
			"required": []interface{}{"path", "content"},
		},
		Fn: func(ctx context.Context, call agent.ToolCall, onUpdate func(agent.ToolUpdate)) (agent.ToolResult, error) {
			pathValue, _ := call.Params["path"].(string)
			target, err := resolvePathInWorkspace(opts.WorkspaceRoot, pathValue)
			if err != nil {
				return agent.ToolResult{}, err
			}

			content, _ := call.Params["content"].(string)
			appendMode, _ := call.Params["append"].(bool)

			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return agent.ToolResult{}, fmt.Errorf("failed to create parent directory: %w", err)
			}

			flags := os.O_CREATE | os.O_WRONLY
			if appendMode {
				flags |= os.O_APPEND
			} else {
				flags |= os.O_TRUNC
			}
			file, err := os.OpenFile(target, flags, 0644)
			if err != nil {
				return agent.ToolResult{}, fmt.Errorf("failed to open file: %w", err)
			}
			defer file.Close()

			written, err := file.WriteString(content)
			if err != nil {
				return agent.ToolResult{}, fmt.Errorf("failed to write file: %w", err)
			}

			return jsonResult(map[string]interface{}{
				"path":  pathValue,
				"bytes": written,
			}), nil
		},
	}
}

func listDirTool(opts Options) agent.Tool {
	return &agent.FuncTool{
		ToolName:        "list_dir",
		ToolDescription: "List entries of a workspace directory.",
		ToolSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Relative directory path (default workspace root)",
				},
			},
		},
		Fn: func(ctx context.Context, call agent.ToolCall, onUpdate func(agent.ToolUpdate)) (agent.ToolResult, error) {
			pathValue, _ := call.Params["path"].(string)
			if pathValue == "" {
				pathValue = "."
			}
			target, err := resolvePathInWorkspace(opts.WorkspaceRoot, pathValue)
			if err != nil {
				return agent.ToolResult{}, err
			}

			entries, err := os.ReadDir(target)
			if err != nil {
				return agent.ToolResult{}, fmt.Errorf("failed to read directory: %w", err)
			}

			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)

			return jsonResult(map[string]interface{}{
				"path":    pathValue,
				"entries": names,
			}), nil
		},
	}
}

// resolvePathInWorkspace rejects absolute paths and escapes above the
// workspace root.
func resolvePathInWorkspace(root, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", errors.New("absolute paths are not allowed")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	target := filepath.Clean(filepath.Join(rootAbs, rel))
	if target != rootAbs && !strings.HasPrefix(target, rootAbs+string(filepath.Separator)) {
		return "", errors.New("path escapes the workspace")
	}
	return target, nil
}

func readFileWithLimit(path string, maxBytes int64) ([]byte, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read file: %w", err)
	}

	// One extra byte tells us whether we hit the limit
	extra := make([]byte, 1)
	n, _ := file.Read(extra)
	return data, n > 0, nil
}
