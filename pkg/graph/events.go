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

package graph

import (
	"context"

	"github.com/google/uuid"
)

// Event tags, one per line on the wire.
const (
	EventStartOfWorkflow = "start_of_workflow"
	EventEndOfWorkflow   = "end_of_workflow"
	EventStartOfAgent    = "start_of_agent"
	EventEndOfAgent      = "end_of_agent"
	EventMessage         = "message"
	EventFullMessage     = "full_message"
	EventToolCall        = "tool_call"
	EventToolCallResult  = "tool_call_result"
	EventNewAgentCreated = "new_agent_created"
	EventError           = "error"
)

// Event is one element of a run's stream.
type Event struct {
	Event     string         `json:"event"`
	AgentName string         `json:"agent_name,omitempty"`
	Data      map[string]any `json:"data"`
}

// Stream is the single-producer, single-consumer event channel of one run.
// The channel is unbuffered: a slow consumer blocks the producer, which is
// the back-pressure contract.
type Stream struct {
	ch chan Event
}

func NewStream() *Stream {
	return &Stream{ch: make(chan Event)}
}

// Events returns the consumer side of the stream.
func (s *Stream) Events() <-chan Event { return s.ch }

// Send delivers one event, blocking until the consumer takes it or ctx is
// cancelled.
func (s *Stream) Send(ctx context.Context, ev Event) error {
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. Only the producing side may call it, after the
// terminal event.
func (s *Stream) Close() { close(s.ch) }

// Emitter is the node-facing view of a run's stream. It carries the run
// identity and the current agent attribution so nodes only supply payloads.
type Emitter struct {
	stream     *Stream
	workflowID string
	agentName  string
	chunkSize  int
}

// EmitMessage sends one incremental message delta.
func (e *Emitter) EmitMessage(ctx context.Context, messageID, content, reasoning string) error {
	delta := map[string]any{}
	if content != "" {
		delta["content"] = content
	}
	if reasoning != "" {
		delta["reasoning_content"] = reasoning
	}
	return e.stream.Send(ctx, Event{
		Event:     EventMessage,
		AgentName: e.agentName,
		Data:      map[string]any{"message_id": messageID, "delta": delta},
	})
}

// EmitChunked splits a complete message into fixed-size rune chunks,
// interleaving message events to keep the stream responsive, and closes with
// a full_message carrying the whole text.
func (e *Emitter) EmitChunked(ctx context.Context, content string) error {
	messageID := uuid.NewString()
	runes := []rune(content)
	size := e.chunkSize
	if size <= 0 {
		size = len(runes)
	}
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if err := e.EmitMessage(ctx, messageID, string(runes[start:end]), ""); err != nil {
			return err
		}
	}
	return e.EmitFullMessage(ctx, messageID, content)
}

// EmitFullMessage sends the full_message event closing a streamed message.
func (e *Emitter) EmitFullMessage(ctx context.Context, messageID, content string) error {
	return e.stream.Send(ctx, Event{
		Event:     EventFullMessage,
		AgentName: e.agentName,
		Data: map[string]any{
			"message_id": messageID,
			"delta":      map[string]any{"content": content},
		},
	})
}

// EmitToolCall announces a tool invocation.
func (e *Emitter) EmitToolCall(ctx context.Context, callID, toolName string, input map[string]any) error {
	return e.stream.Send(ctx, Event{
		Event:     EventToolCall,
		AgentName: e.agentName,
		Data: map[string]any{
			"tool_call_id": callID,
			"tool_name":    toolName,
			"tool_input":   input,
		},
	})
}

// EmitToolCallResult closes a tool invocation with its result or error text.
func (e *Emitter) EmitToolCallResult(ctx context.Context, callID, toolName, result string) error {
	return e.stream.Send(ctx, Event{
		Event:     EventToolCallResult,
		AgentName: e.agentName,
		Data: map[string]any{
			"tool_call_id": callID,
			"tool_name":    toolName,
			"tool_result":  result,
		},
	})
}

// EmitNewAgent announces a factory-created agent with its full definition.
func (e *Emitter) EmitNewAgent(ctx context.Context, agentName string, definition any) error {
	return e.stream.Send(ctx, Event{
		Event:     EventNewAgentCreated,
		AgentName: e.agentName,
		Data: map[string]any{
			"agent_name": agentName,
			"definition": definition,
		},
	})
}
