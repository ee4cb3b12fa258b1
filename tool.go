package flightagent

import (
	"context"

	"github.com/aerodesk/flightagent/providers"
)

// ToolHandler executes a tool. It returns either a structured success
// payload or an error payload built with errorPayload; it never returns a
// Go error for backend failures, only for programming defects.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a registered callable action with a declared name, argument
// schema, and handler. Backend-bound handlers acquire the shared outbound
// call limiter themselves, once per backend call.
type Tool struct {
	name        string
	description string
	parameters  map[string]any
	handler     ToolHandler
}

// ToolBuilder constructs tools with a fluent API.
type ToolBuilder struct {
	tool Tool
}

// NewTool creates a new tool builder.
func NewTool(name string) *ToolBuilder {
	return &ToolBuilder{
		tool: Tool{
			name:       name,
			parameters: map[string]any{},
		},
	}
}

// WithDescription sets the tool description.
func (tb *ToolBuilder) WithDescription(desc string) *ToolBuilder {
	tb.tool.description = desc
	return tb
}

// WithParameter adds a named parameter to the tool schema.
func (tb *ToolBuilder) WithParameter(name string, schema *ParameterSchema) *ToolBuilder {
	if tb.tool.parameters["properties"] == nil {
		tb.tool.parameters = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		}
	}

	props := tb.tool.parameters["properties"].(map[string]any)
	props[name] = schema.ToMap()

	if schema.required {
		required := tb.tool.parameters["required"].([]string)
		tb.tool.parameters["required"] = append(required, name)
	}

	return tb
}

// WithHandler sets the tool handler function.
func (tb *ToolBuilder) WithHandler(handler ToolHandler) *ToolBuilder {
	tb.tool.handler = handler
	return tb
}

// Build returns the constructed tool.
func (tb *ToolBuilder) Build() Tool {
	if len(tb.tool.parameters) == 0 {
		tb.tool.parameters = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return tb.tool
}

// Name returns the tool name.
func (t *Tool) Name() string {
	return t.name
}

// Execute runs the tool handler.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	return t.handler(ctx, args)
}

// ToToolDefinition converts the tool to a provider-agnostic definition.
func (t *Tool) ToToolDefinition() providers.ToolDefinition {
	return providers.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

// errorPayload wraps a failure reason in the structured form fed back to
// the reasoning step.
func errorPayload(reason string) map[string]any {
	return map[string]any{"error": reason}
}

// ParameterSchema defines a tool parameter schema.
type ParameterSchema struct {
	paramType   string
	description string
	required    bool
	enum        []string
}

// String creates a string parameter schema.
func String() *ParameterSchema {
	return &ParameterSchema{paramType: "string"}
}

// Integer creates an integer parameter schema.
func Integer() *ParameterSchema {
	return &ParameterSchema{paramType: "integer"}
}

// WithDescription sets the parameter description.
func (ps *ParameterSchema) WithDescription(desc string) *ParameterSchema {
	ps.description = desc
	return ps
}

// Required marks the parameter as required.
func (ps *ParameterSchema) Required() *ParameterSchema {
	ps.required = true
	return ps
}

// WithEnum sets allowed values for the parameter.
func (ps *ParameterSchema) WithEnum(values ...string) *ParameterSchema {
	ps.enum = values
	return ps
}

// ToMap converts the schema to a JSON-schema fragment.
func (ps *ParameterSchema) ToMap() map[string]any {
	m := map[string]any{
		"type": ps.paramType,
	}
	if ps.description != "" {
		m["description"] = ps.description
	}
	if len(ps.enum) > 0 {
		m["enum"] = ps.enum
	}
	return m
}
