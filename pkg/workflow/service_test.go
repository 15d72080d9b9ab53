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

package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooragent/cooragent/pkg/agent"
	"github.com/cooragent/cooragent/pkg/config"
	"github.com/cooragent/cooragent/pkg/graph"
	"github.com/cooragent/cooragent/pkg/llms"
	"github.com/cooragent/cooragent/pkg/prompt"
	"github.com/cooragent/cooragent/pkg/tools"
)

func newTestService(t *testing.T, policy config.CoopPolicy) (*Service, *agent.Registry) {
	t.Helper()
	toolReg := tools.NewRegistry()
	store, err := agent.NewStore(t.TempDir())
	require.NoError(t, err)
	agents := agent.NewRegistry(store, toolReg, config.RegistryConfig{CoopPolicy: policy})

	services := &graph.Services{
		LLMs:    llms.NewRegistry(),
		Tools:   toolReg,
		Agents:  agents,
		Prompts: prompt.NewLoader(""),
		Graph:   config.GraphConfig{MaxIterations: 10, MessageChunkSize: 10},
	}
	return NewService(services, NewSessionCache(3)), agents
}

func seedAgent(t *testing.T, agents *agent.Registry, name, owner string) {
	t.Helper()
	require.NoError(t, agents.Create(&agent.Definition{
		UserID:      owner,
		AgentName:   name,
		Description: "does " + name + " things",
		LLMType:     llms.TypeBasic,
		Prompt:      "You are " + name + ".",
	}))
}

func TestRequestValidate(t *testing.T) {
	valid := Request{
		UserID:   "u1",
		TaskType: "agent_workflow",
		Messages: []llms.Message{{Role: "user", Content: "hi"}},
	}

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr bool
	}{
		{"valid", func(r *Request) {}, false},
		{"factory flavor", func(r *Request) { r.TaskType = "agent_factory" }, false},
		{"missing user", func(r *Request) { r.UserID = "" }, true},
		{"bad task type", func(r *Request) { r.TaskType = "agent_party" }, true},
		{"no messages", func(r *Request) { r.Messages = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssembleTeam(t *testing.T) {
	svc, agents := newTestService(t, config.CoopPolicyGrant)
	seedAgent(t, agents, "researcher", agent.ShareOwner)
	seedAgent(t, agents, "own_bot", "u1")
	seedAgent(t, agents, "foreign_bot", "u2")

	members, description, err := svc.assembleTeam("u1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{graph.NodeFactory, "researcher", "own_bot"}, members)
	// Shared agents stay out of the description text.
	assert.NotContains(t, description, "researcher")
	assert.Contains(t, description, "own_bot")
	assert.NotContains(t, members, "foreign_bot")
}

func TestAssembleTeamWithCoopAgents(t *testing.T) {
	svc, agents := newTestService(t, config.CoopPolicyGrant)
	seedAgent(t, agents, "foreign_bot", "u2")

	members, description, err := svc.assembleTeam("u1", []string{"foreign_bot"})
	require.NoError(t, err)
	assert.Contains(t, members, "foreign_bot")
	assert.Contains(t, description, "foreign_bot")
}

func TestAssembleTeamCoopDenied(t *testing.T) {
	svc, agents := newTestService(t, config.CoopPolicyDeny)
	seedAgent(t, agents, "foreign_bot", "u2")

	_, _, err := svc.assembleTeam("u1", []string{"foreign_bot"})
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrForbidden)
}

func TestAssembleTeamUnknownCoopAgent(t *testing.T) {
	svc, _ := newTestService(t, config.CoopPolicyGrant)
	_, _, err := svc.assembleTeam("u1", []string{"ghost"})
	require.ErrorIs(t, err, agent.ErrNotFound)
}

func TestSessionCacheWindow(t *testing.T) {
	cache := NewSessionCache(3)

	for i := 0; i < 5; i++ {
		cache.Append("u1",
			llms.Message{Role: "user", Content: "q"},
			llms.Message{Role: "assistant", Content: "a"},
		)
	}

	history := cache.History("u1")
	assert.Len(t, history, 6)

	// Unknown users have no history.
	assert.Empty(t, cache.History("u2"))

	cache.Clear("u1")
	assert.Empty(t, cache.History("u1"))
}

func TestSessionCacheIsolation(t *testing.T) {
	cache := NewSessionCache(3)
	cache.Append("u1", llms.Message{Role: "user", Content: "only u1"})
	assert.Len(t, cache.History("u1"), 1)
	assert.Empty(t, cache.History("u2"))

	// Returned history is a copy.
	h := cache.History("u1")
	h[0].Content = "mutated"
	assert.Equal(t, "only u1", cache.History("u1")[0].Content)
}
