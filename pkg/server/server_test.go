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

package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooragent/cooragent/pkg/agent"
	"github.com/cooragent/cooragent/pkg/config"
	"github.com/cooragent/cooragent/pkg/graph"
	"github.com/cooragent/cooragent/pkg/llms"
	"github.com/cooragent/cooragent/pkg/prompt"
	"github.com/cooragent/cooragent/pkg/tools"
	"github.com/cooragent/cooragent/pkg/workflow"
)

func newTestServer(t *testing.T) (*Server, *agent.Registry) {
	t.Helper()
	toolReg := tools.NewRegistry()
	require.NoError(t, toolReg.Register(tools.NewCrawlTool(nil)))

	store, err := agent.NewStore(t.TempDir())
	require.NoError(t, err)
	agents := agent.NewRegistry(store, toolReg, config.RegistryConfig{})
	require.NoError(t, agents.Create(&agent.Definition{
		UserID:      agent.ShareOwner,
		AgentName:   "researcher",
		Description: "default researcher",
		LLMType:     llms.TypeBasic,
		Prompt:      "You research.",
	}))
	require.NoError(t, agents.Create(&agent.Definition{
		UserID:      "u1",
		AgentName:   "private_bot",
		Description: "u1 only",
		LLMType:     llms.TypeBasic,
		Prompt:      "You help u1.",
	}))

	services := &graph.Services{
		LLMs:    llms.NewRegistry(),
		Tools:   toolReg,
		Agents:  agents,
		Prompts: prompt.NewLoader(""),
		Graph:   config.GraphConfig{MaxIterations: 10, MessageChunkSize: 10},
	}
	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, agents, toolReg, workflow.NewService(services, nil))
	return srv, agents
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)
	return rec
}

func ndjsonLines(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var lines []map[string]any
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(text), &doc))
		lines = append(lines, doc)
	}
	return lines
}

func TestListAgents(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/list_agents", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	lines := ndjsonLines(t, rec)
	require.Len(t, lines, 2)

	// Another user only sees shared agents.
	rec = doRequest(t, srv, http.MethodPost, "/v1/list_agents", map[string]string{"user_id": "u2"})
	lines = ndjsonLines(t, rec)
	require.Len(t, lines, 1)
	assert.Equal(t, "researcher", lines[0]["agent_name"])
}

func TestListAgentsWithMatch(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/v1/list_agents", map[string]string{"user_id": "u1", "match": "private"})
	lines := ndjsonLines(t, rec)
	require.Len(t, lines, 1)
	assert.Equal(t, "private_bot", lines[0]["agent_name"])
}

func TestListDefaultAgents(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/v1/list_default_agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := ndjsonLines(t, rec)
	require.Len(t, lines, 1)
	assert.Equal(t, "researcher", lines[0]["agent_name"])
}

func TestListDefaultTools(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/v1/list_default_tools", nil)
	lines := ndjsonLines(t, rec)
	require.Len(t, lines, 1)
	assert.Equal(t, "crawl", lines[0]["name"])
	assert.NotNil(t, lines[0]["input_schema"])
}

func TestEditAgent(t *testing.T) {
	srv, agents := newTestServer(t)

	def := agent.Definition{
		UserID:      "u1",
		AgentName:   "private_bot",
		Description: "edited description",
		LLMType:     llms.TypeBasic,
		Prompt:      "Updated prompt.",
	}
	rec := doRequest(t, srv, http.MethodPost, "/v1/edit_agent", def)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "success", result["result"])

	updated, err := agents.Get("private_bot")
	require.NoError(t, err)
	assert.Equal(t, "edited description", updated.Description)
}

func TestEditAgentNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	def := agent.Definition{
		UserID:    "u1",
		AgentName: "ghost",
		LLMType:   llms.TypeBasic,
		Prompt:    "x",
	}
	rec := doRequest(t, srv, http.MethodPost, "/v1/edit_agent", def)
	var result map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "agent not found", result["result"])
}

func TestRemoveAgent(t *testing.T) {
	srv, agents := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/remove_agent", map[string]string{
		"user_id": "u1", "agent_name": "private_bot",
	})
	var result map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "success", result["result"])

	_, err := agents.Get("private_bot")
	assert.Error(t, err)
}

func TestRemoveAgentErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	// Unknown agent.
	rec := doRequest(t, srv, http.MethodPost, "/v1/remove_agent", map[string]string{
		"user_id": "u1", "agent_name": "ghost",
	})
	var result map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "error", result["result"])

	// Shared agents need an administrator.
	rec = doRequest(t, srv, http.MethodPost, "/v1/remove_agent", map[string]string{
		"user_id": "u1", "agent_name": "researcher",
	})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "error", result["result"])
	assert.Contains(t, result["message"], "administrators")
}

func TestWorkflowRejectsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/v1/workflow", map[string]any{
		"user_id":   "u1",
		"task_type": "unknown_flavor",
		"messages":  []map[string]string{{"role": "user", "content": "hi"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["result"])
	assert.NotEmpty(t, body["message"])
}
