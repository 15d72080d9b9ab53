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

// Package llms defines the LM gateway contract: typed requests in, token
// streams or structured objects out. Concrete providers are registered per
// LLM type (basic, reasoning, vision, code).
package llms

import "context"

// LLMType selects an LLM channel.
type LLMType string

const (
	TypeBasic     LLMType = "basic"
	TypeReasoning LLMType = "reasoning"
	TypeVision    LLMType = "vision"
	TypeCode      LLMType = "code"
)

// ValidType reports whether t is one of the four known channels.
func ValidType(t string) bool {
	switch LLMType(t) {
	case TypeBasic, TypeReasoning, TypeVision, TypeCode:
		return true
	}
	return false
}

// Message is one turn of a conversation. Name carries the producing agent
// for messages attributed to a named team member.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ToolCall is an LM request to invoke a tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolDefinition describes a callable tool to the LM.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// StreamChunk is one increment of a streaming generation.
type StreamChunk struct {
	Content          string
	ReasoningContent string
	Err              error
}

// Generation is the result of a non-streaming call.
type Generation struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider is the narrow gateway the orchestrator consumes.
type Provider interface {
	// Generate performs a blocking call. Tool definitions may be empty; when
	// present the reply may contain tool calls instead of content.
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Generation, error)

	// GenerateStreaming returns a channel of chunks. The channel is closed
	// when generation completes; a chunk with Err set terminates the stream.
	GenerateStreaming(ctx context.Context, messages []Message) (<-chan StreamChunk, error)

	// GenerateStructured decodes the model reply into out, which must be a
	// pointer to a JSON-decodable value.
	GenerateStructured(ctx context.Context, messages []Message, out any) error

	ModelName() string
}
