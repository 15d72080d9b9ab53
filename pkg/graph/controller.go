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
	"fmt"

	"github.com/google/uuid"

	"github.com/cooragent/cooragent/pkg/logger"
)

// Controller drives a graph over a session state. It owns the event stream:
// nodes emit payload events through an Emitter, the controller brackets them
// with start_of_agent/end_of_agent and guarantees exactly one terminal event
// per run.
type Controller struct {
	services *Services
	nodes    map[string]NodeFunc
	entry    string
}

func NewController(services *Services, nodes map[string]NodeFunc, entry string) *Controller {
	return &Controller{services: services, nodes: nodes, entry: entry}
}

// Run executes the graph asynchronously and returns the run's stream. The
// stream is closed after the terminal event. Cancelling ctx aborts the run at
// the next suspension point.
func (c *Controller) Run(ctx context.Context, state *State) *Stream {
	stream := NewStream()
	go c.run(ctx, state, stream)
	return stream
}

func (c *Controller) run(ctx context.Context, state *State, stream *Stream) {
	defer stream.Close()
	log := logger.GetLogger()

	input := make([]map[string]any, 0, len(state.Messages))
	for _, m := range state.Messages {
		input = append(input, map[string]any{"role": m.Role, "content": m.Content})
	}
	if err := stream.Send(ctx, Event{
		Event: EventStartOfWorkflow,
		Data:  map[string]any{"workflow_id": state.WorkflowID, "input": input},
	}); err != nil {
		return
	}

	runErr := c.drive(ctx, state, stream)
	if runErr != nil {
		classified := Classify(runErr)
		log.Error("Workflow failed", "workflow_id", state.WorkflowID, "kind", string(classified.Kind), "error", runErr)
		// Best effort: the consumer may already be gone.
		_ = stream.Send(ctx, Event{
			Event: EventError,
			Data: map[string]any{
				"workflow_id": state.WorkflowID,
				"error":       classified.Error(),
				"kind":        string(classified.Kind),
				"messages":    state.Messages,
			},
		})
		return
	}

	_ = stream.Send(ctx, Event{
		Event: EventEndOfWorkflow,
		Data: map[string]any{
			"workflow_id": state.WorkflowID,
			"messages":    state.Messages,
		},
	})
}

// drive walks the graph until a node returns EndNode or fails.
func (c *Controller) drive(ctx context.Context, state *State, stream *Stream) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Errf(KindInternal, "node panicked: %v", r)
		}
	}()

	node := c.entry
	publisherVisits := 0
	for node != EndNode {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn, ok := c.nodes[node]
		if !ok {
			return Errf(KindInternal, "graph has no node %q", node)
		}
		if node == NodePublisher {
			publisherVisits++
			if max := c.services.Graph.MaxIterations; max > 0 && publisherVisits > max {
				return Errf(KindInternal, "IterationLimit: exceeded %d publisher iterations", max)
			}
		}

		display := node
		if node == NodeProxy {
			display = state.Next
		}
		agentID := uuid.NewString()
		if err := stream.Send(ctx, Event{
			Event:     EventStartOfAgent,
			AgentName: display,
			Data:      map[string]any{"agent_name": display, "agent_id": agentID},
		}); err != nil {
			return err
		}

		emit := &Emitter{
			stream:     stream,
			workflowID: state.WorkflowID,
			agentName:  display,
			chunkSize:  c.services.Graph.MessageChunkSize,
		}
		cmd, nodeErr := fn(ctx, state, c.services, emit)
		if nodeErr != nil {
			return nodeErr
		}
		if cmd == nil {
			return Errf(KindInternal, "node %s returned no command", node)
		}
		if cmd.Patch != nil {
			cmd.Patch(state)
		}

		if err := stream.Send(ctx, Event{
			Event:     EventEndOfAgent,
			AgentName: display,
			Data:      map[string]any{"agent_name": display, "agent_id": agentID},
		}); err != nil {
			return err
		}

		if cmd.Goto == "" {
			return Errf(KindInternal, "node %s returned an empty goto", node)
		}
		node = cmd.Goto
	}
	return nil
}

// String renders the graph for debug logs.
func (c *Controller) String() string {
	return fmt.Sprintf("graph(entry=%s, nodes=%d)", c.entry, len(c.nodes))
}
