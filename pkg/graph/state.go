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

// Package graph implements the orchestration state machine: an explicit graph
// of node functions over a shared session state, driven by a controller that
// owns the event stream.
package graph

import (
	"strings"

	"github.com/cooragent/cooragent/pkg/llms"
)

// Node names. EndNode terminates the run.
const (
	EndNode         = "__end__"
	NodeCoordinator = "coordinator"
	NodePlanner     = "planner"
	NodePublisher   = "publisher"
	NodeFactory     = "agent_factory"
	NodeProxy       = "proxy"
)

// FinishRoute is the publisher's terminal routing value.
const FinishRoute = "FINISH"

// State is the per-run blackboard. It is created at request start, mutated
// only through Command patches and discarded after the terminal event.
type State struct {
	UserID     string
	WorkflowID string
	Lang       string

	Messages               []llms.Message
	FullPlan               string
	TeamMembers            []string
	TeamMembersDescription string
	Next                   string
	ProcessingAgentName    string

	DeepThinkingMode     bool
	SearchBeforePlanning bool
}

// Command is a node's verdict: an optional state patch plus the next node.
type Command struct {
	Patch func(*State)
	Goto  string
}

// AppendMessage adds one turn. Message history is append-only inside a run.
func (s *State) AppendMessage(m llms.Message) {
	s.Messages = append(s.Messages, m)
}

// LastUserMessage returns the content of the most recent user turn.
func (s *State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == "user" && s.Messages[i].Name == "" {
			return s.Messages[i].Content
		}
	}
	return ""
}

// HasMember reports whether name is on the team roster.
func (s *State) HasMember(name string) bool {
	for _, m := range s.TeamMembers {
		if m == name {
			return true
		}
	}
	return false
}

// TemplateVars exposes the state fields prompt templates may reference.
func (s *State) TemplateVars() map[string]string {
	return map[string]string{
		"USER_ID":                  s.UserID,
		"WORKFLOW_ID":              s.WorkflowID,
		"LANG":                     s.Lang,
		"USER_QUERY":               s.LastUserMessage(),
		"FULL_PLAN":                s.FullPlan,
		"TEAM_MEMBERS":             "[" + strings.Join(s.TeamMembers, ", ") + "]",
		"TEAM_MEMBERS_DESCRIPTION": s.TeamMembersDescription,
	}
}
