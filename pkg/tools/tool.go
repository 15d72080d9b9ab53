// Copyright 2025 The CoorAgent Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tools provides the tool registry and the built-in tool set.
//
// Tools are registered at process start and are immutable thereafter. Every
// invocation is validated against the tool's JSON Schema before the tool runs;
// a schema violation is an ordinary ToolError fed back to the calling agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cooragent/cooragent/pkg/registry"
)

// Tool is the narrow interface every tool implements.
type Tool interface {
	Name() string
	Description() string
	// InputSchema returns the JSON Schema describing the tool's arguments.
	InputSchema() map[string]any
	// Execute runs the tool. Inputs have already been schema-validated.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolError wraps a tool invocation failure with the tool's name. It is
// non-fatal inside a proxy loop; the agent sees the message and may recover.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Info is the serializable description of a registered tool.
type Info struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type entry struct {
	tool     Tool
	compiled *jsv.Schema
}

// Registry holds the process-wide tool set. Registered at boot, read-only
// afterwards.
type Registry struct {
	*registry.BaseRegistry[entry]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[entry]()}
}

// Register adds a tool and compiles its input schema. The compiled schema is
// what validates every subsequent call.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	compiled, err := compileSchema(tool.Name(), tool.InputSchema())
	if err != nil {
		return fmt.Errorf("failed to compile schema for tool %s: %w", tool.Name(), err)
	}
	return r.BaseRegistry.Register(tool.Name(), entry{tool: tool, compiled: compiled})
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	e, ok := r.BaseRegistry.Get(name)
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.BaseRegistry.Get(name)
	return ok
}

// ListInfos returns the registered tools sorted by name.
func (r *Registry) ListInfos() []Info {
	var infos []Info
	for _, e := range r.List() {
		infos = append(infos, Info{
			Name:        e.tool.Name(),
			Description: e.tool.Description(),
			InputSchema: e.tool.InputSchema(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Validate checks args against the tool's compiled input schema.
func (r *Registry) Validate(name string, args map[string]any) error {
	e, ok := r.BaseRegistry.Get(name)
	if !ok {
		return &ToolError{Tool: name, Err: fmt.Errorf("tool not found")}
	}
	if err := e.compiled.Validate(normalize(args)); err != nil {
		return &ToolError{Tool: name, Err: fmt.Errorf("input validation failed: %w", err)}
	}
	return nil
}

// Execute validates args and runs the tool. Validation failures and execution
// failures both come back as *ToolError.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	e, ok := r.BaseRegistry.Get(name)
	if !ok {
		return "", &ToolError{Tool: name, Err: fmt.Errorf("tool not found")}
	}
	if err := e.compiled.Validate(normalize(args)); err != nil {
		return "", &ToolError{Tool: name, Err: fmt.Errorf("input validation failed: %w", err)}
	}
	result, err := e.tool.Execute(ctx, args)
	if err != nil {
		if te, ok := err.(*ToolError); ok {
			return "", te
		}
		return "", &ToolError{Tool: name, Err: err}
	}
	return result, nil
}

// normalize round-trips args through JSON so the validator sees the types it
// expects (float64 for numbers, map[string]interface{} for objects).
func normalize(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return args
	}
	return out
}

func compileSchema(name string, schema map[string]any) (*jsv.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	compiler := jsv.NewCompiler()
	url := fmt.Sprintf("cooragent://tools/%s.json", name)
	if err := compiler.AddResource(url, strings.NewReader(string(data))); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// reflectSchema generates a JSON Schema for a tool argument struct using
// struct tags, inlined and without $schema/$id noise.
func reflectSchema[T any]() map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(result, "$schema")
	delete(result, "$id")
	return result
}
