package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Tool is a named, schema-described unit of work. Execute must honour ctx
// cancellation and should report long-running progress through onUpdate.
// Returned errors are recovered by the engine into failed results; they
// never halt a turn.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON Schema for the tool's parameters.
	Schema() map[string]interface{}
	Execute(ctx context.Context, call ToolCall, onUpdate func(ToolUpdate)) (ToolResult, error)
}

// Registry resolves tools by name. Unknown names are a data-level error
// surfaced as a failed ToolResult, not a programming error.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. The schema must compile as JSON Schema; duplicate
// names are rejected.
func (r *Registry) Register(tool Tool) error {
	if tool.Name() == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if schema := tool.Schema(); schema != nil {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
			return fmt.Errorf("tool %s has invalid schema: %w", tool.Name(), err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Schemas returns provider tool schemas in stable name order.
func (r *Registry) Schemas() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]ToolSchema, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		schemas = append(schemas, ToolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return schemas
}

// ValidateParams checks call params against the tool's schema. A nil
// schema accepts anything.
func (r *Registry) ValidateParams(name string, params map[string]interface{}) error {
	tool, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("tool not found: %s", name)
	}
	schema := tool.Schema()
	if schema == nil {
		return nil
	}

	if params == nil {
		params = map[string]interface{}{}
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(params))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("invalid params for %s: %s", name, first.String())
	}
	return nil
}

// FuncTool adapts a plain function into a Tool. Handy for small built-ins
// and tests.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	ToolSchema      map[string]interface{}
	Fn              func(ctx context.Context, call ToolCall, onUpdate func(ToolUpdate)) (ToolResult, error)
}

func (t *FuncTool) Name() string                   { return t.ToolName }
func (t *FuncTool) Description() string            { return t.ToolDescription }
func (t *FuncTool) Schema() map[string]interface{} { return t.ToolSchema }

func (t *FuncTool) Execute(ctx context.Context, call ToolCall, onUpdate func(ToolUpdate)) (ToolResult, error) {
	return t.Fn(ctx, call, onUpdate)
}
