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

// Package workflow turns a user request into a running orchestration graph:
// it assembles the team roster, threads the session history in and hands the
// event stream back to the caller.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cooragent/cooragent/pkg/agent"
	"github.com/cooragent/cooragent/pkg/graph"
	"github.com/cooragent/cooragent/pkg/llms"
	"github.com/cooragent/cooragent/pkg/logger"
)

// Request is one workflow invocation.
type Request struct {
	UserID               string         `json:"user_id"`
	Lang                 string         `json:"lang,omitempty"`
	TaskType             string         `json:"task_type"`
	Messages             []llms.Message `json:"messages"`
	Debug                bool           `json:"debug,omitempty"`
	DeepThinkingMode     bool           `json:"deep_thinking_mode,omitempty"`
	SearchBeforePlanning bool           `json:"search_before_planning,omitempty"`
	CoopAgents           []string       `json:"coop_agents,omitempty"`
}

// Validate checks the request shape before any work starts.
func (r *Request) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if !graph.ValidFlavor(r.TaskType) {
		return fmt.Errorf("task_type must be %s or %s", graph.FlavorWorkflow, graph.FlavorFactory)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages cannot be empty")
	}
	return nil
}

// Service runs workflows against the shared registries.
type Service struct {
	services *graph.Services
	sessions *SessionCache
}

func NewService(services *graph.Services, sessions *SessionCache) *Service {
	if sessions == nil {
		sessions = NewSessionCache(defaultSessionTurns)
	}
	return &Service{services: services, sessions: sessions}
}

// Run starts a workflow and returns its event stream. The stream ends with
// end_of_workflow or error; cancelling ctx aborts the run.
func (s *Service) Run(ctx context.Context, req *Request) (*graph.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	members, description, err := s.assembleTeam(req.UserID, req.CoopAgents)
	if err != nil {
		return nil, err
	}

	messages := append(s.sessions.History(req.UserID), req.Messages...)
	state := &graph.State{
		UserID:                 req.UserID,
		WorkflowID:             uuid.NewString(),
		Lang:                   req.Lang,
		Messages:               messages,
		TeamMembers:            members,
		TeamMembersDescription: description,
		DeepThinkingMode:       req.DeepThinkingMode,
		SearchBeforePlanning:   req.SearchBeforePlanning,
	}

	logger.GetLogger().Info("Starting workflow",
		"workflow_id", state.WorkflowID,
		"user_id", req.UserID,
		"task_type", req.TaskType,
		"team_size", len(members))

	inner := graph.Build(graph.Flavor(req.TaskType), s.services).Run(ctx, state)
	return s.relay(ctx, req, inner), nil
}

// relay forwards events unchanged while watching for the terminal event, so
// the session cache can absorb the finished turn.
func (s *Service) relay(ctx context.Context, req *Request, inner *graph.Stream) *graph.Stream {
	outer := graph.NewStream()
	go func() {
		defer outer.Close()
		for ev := range inner.Events() {
			if ev.Event == graph.EventEndOfWorkflow {
				s.recordTurn(req, ev)
			}
			if err := outer.Send(ctx, ev); err != nil {
				return
			}
		}
	}()
	return outer
}

func (s *Service) recordTurn(req *Request, terminal graph.Event) {
	final, ok := terminal.Data["messages"].([]llms.Message)
	if !ok || len(final) == 0 {
		return
	}
	last := final[len(final)-1]
	turn := append([]llms.Message{}, req.Messages...)
	if last.Role != "user" || last.Name != "" {
		turn = append(turn, llms.Message{Role: "assistant", Content: last.Content})
	}
	s.sessions.Append(req.UserID, turn...)
}

// assembleTeam builds the roster: the factory pseudo-agent, every shared
// agent, the caller's own agents and the explicitly named coop agents.
// Shared agents join the roster but stay out of the description text to keep
// the publisher prompt compact.
func (s *Service) assembleTeam(userID string, coopAgents []string) ([]string, string, error) {
	members := []string{graph.NodeFactory}
	seen := map[string]bool{graph.NodeFactory: true}
	var descriptions []string

	visible, err := s.services.Agents.List(userID, "")
	if err != nil {
		return nil, "", err
	}
	for _, def := range visible {
		if seen[def.AgentName] {
			continue
		}
		seen[def.AgentName] = true
		members = append(members, def.AgentName)
		if !def.Shared() {
			descriptions = append(descriptions, describeAgent(def))
		}
	}

	for _, name := range coopAgents {
		if seen[name] {
			continue
		}
		def, err := s.services.Agents.Resolve(name, userID, true)
		if err != nil {
			return nil, "", fmt.Errorf("coop agent %s: %w", name, err)
		}
		seen[name] = true
		members = append(members, def.AgentName)
		descriptions = append(descriptions, describeAgent(def))
	}

	return members, strings.Join(descriptions, "\n"), nil
}

func describeAgent(def *agent.Definition) string {
	return fmt.Sprintf("- **%s**: %s", def.AgentName, def.Description)
}
