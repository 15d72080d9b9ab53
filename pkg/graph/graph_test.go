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
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooragent/cooragent/pkg/agent"
	"github.com/cooragent/cooragent/pkg/config"
	"github.com/cooragent/cooragent/pkg/llms"
	"github.com/cooragent/cooragent/pkg/prompt"
	"github.com/cooragent/cooragent/pkg/tools"
)

// scriptedLLM replays queued responses per method.
type scriptedLLM struct {
	mu         sync.Mutex
	generate   []*llms.Generation
	streams    []string
	structured []string
}

func (s *scriptedLLM) ModelName() string { return "scripted" }

func (s *scriptedLLM) Generate(ctx context.Context, messages []llms.Message, toolDefs []llms.ToolDefinition) (*llms.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.generate) == 0 {
		return &llms.Generation{Content: "out of script"}, nil
	}
	gen := s.generate[0]
	s.generate = s.generate[1:]
	return gen, nil
}

func (s *scriptedLLM) GenerateStreaming(ctx context.Context, messages []llms.Message) (<-chan llms.StreamChunk, error) {
	s.mu.Lock()
	var text string
	if len(s.streams) > 0 {
		text = s.streams[0]
		s.streams = s.streams[1:]
	}
	s.mu.Unlock()

	ch := make(chan llms.StreamChunk)
	go func() {
		defer close(ch)
		// Emit in small pieces so the planner exercises accumulation.
		for _, part := range splitN(text, 7) {
			select {
			case ch <- llms.StreamChunk{Content: part}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *scriptedLLM) GenerateStructured(ctx context.Context, messages []llms.Message, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.structured) == 0 {
		return json.Unmarshal([]byte(`{}`), out)
	}
	doc := s.structured[0]
	s.structured = s.structured[1:]
	return json.Unmarshal([]byte(doc), out)
}

func splitN(s string, n int) []string {
	var parts []string
	runes := []rune(s)
	for start := 0; start < len(runes); start += n {
		end := start + n
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

type sinkTool struct{}

func (s *sinkTool) Name() string        { return "tavily" }
func (s *sinkTool) Description() string { return "stub search" }
func (s *sinkTool) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []any{"query"},
	}
}
func (s *sinkTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return "search results for " + args["query"].(string), nil
}

type testHarness struct {
	services *Services
	basic    *scriptedLLM
	reason   *scriptedLLM
	agents   *agent.Registry
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	toolReg := tools.NewRegistry()
	require.NoError(t, toolReg.Register(&sinkTool{}))

	store, err := agent.NewStore(t.TempDir())
	require.NoError(t, err)
	agents := agent.NewRegistry(store, toolReg, config.RegistryConfig{})
	require.NoError(t, agents.Create(&agent.Definition{
		UserID:        agent.ShareOwner,
		AgentName:     "researcher",
		Description:   "searches the web",
		LLMType:       llms.TypeBasic,
		SelectedTools: []agent.ToolRef{{Name: "tavily"}},
		Prompt:        "You research things. Team: <<TEAM_MEMBERS>>",
	}))

	basic := &scriptedLLM{}
	reason := &scriptedLLM{}
	llmReg := llms.NewRegistry()
	require.NoError(t, llmReg.Register("basic", basic))
	require.NoError(t, llmReg.Register("reasoning", reason))

	return &testHarness{
		services: &Services{
			LLMs:    llmReg,
			Tools:   toolReg,
			Agents:  agents,
			Prompts: prompt.NewLoader(""),
			Graph:   config.GraphConfig{MaxIterations: 10, MessageChunkSize: 10},
		},
		basic:  basic,
		reason: reason,
		agents: agents,
	}
}

func newState(members ...string) *State {
	return &State{
		UserID:      "u1",
		WorkflowID:  "wf-test",
		Messages:    []llms.Message{{Role: "user", Content: "do something"}},
		TeamMembers: append([]string{NodeFactory}, members...),
	}
}

func collect(t *testing.T, stream *Stream) []Event {
	t.Helper()
	var events []Event
	for ev := range stream.Events() {
		events = append(events, ev)
	}
	return events
}

func tags(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Event
	}
	return out
}

func TestCoordinatorChitChat(t *testing.T) {
	h := newHarness(t)
	h.basic.generate = []*llms.Generation{{Content: "Hello! I am CoorAgent."}}

	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), newState("researcher")))

	require.Equal(t, []string{
		EventStartOfWorkflow,
		EventStartOfAgent,
		EventEndOfAgent,
		EventEndOfWorkflow,
	}, tags(events))
	assert.Equal(t, NodeCoordinator, events[1].AgentName)

	// The reply still reaches the caller through the terminal message list.
	final := events[len(events)-1].Data["messages"].([]llms.Message)
	assert.Equal(t, "Hello! I am CoorAgent.", final[len(final)-1].Content)
}

func TestCoordinatorHandoffSuppressed(t *testing.T) {
	h := newHarness(t)
	h.basic.generate = []*llms.Generation{{Content: "handoff_to_planner()"}}
	h.basic.streams = []string{`{"thought": "t", "title": "plan", "steps": []}`}
	h.basic.structured = []string{`{"next": "FINISH"}`}

	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), newState("researcher")))

	for _, ev := range events {
		if ev.Event == EventMessage && ev.AgentName == NodeCoordinator {
			t.Fatalf("coordinator message leaked: %+v", ev)
		}
	}
	assert.Equal(t, EventEndOfWorkflow, events[len(events)-1].Event)
}

func TestPlannerRejectsNonJSON(t *testing.T) {
	h := newHarness(t)
	h.basic.generate = []*llms.Generation{{Content: "handoff_to_planner()"}}
	h.basic.streams = []string{"I cannot produce a plan, sorry."}

	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), newState("researcher")))

	last := events[len(events)-1]
	require.Equal(t, EventError, last.Event)
	assert.Equal(t, string(KindValidation), last.Data["kind"])

	// The publisher is never reached.
	for _, ev := range events {
		if ev.Event == EventStartOfAgent && ev.AgentName == NodePublisher {
			t.Fatal("publisher ran after an unusable plan")
		}
	}
}

func TestPlannerStripsJSONFences(t *testing.T) {
	h := newHarness(t)
	h.basic.generate = []*llms.Generation{{Content: "handoff_to_planner()"}}
	h.basic.streams = []string{"```json\n{\"title\": \"fenced plan\", \"steps\": []}\n```"}
	h.basic.structured = []string{`{"next": "FINISH"}`}

	state := newState("researcher")
	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), state))

	assert.Equal(t, EventEndOfWorkflow, events[len(events)-1].Event)
	assert.True(t, json.Valid([]byte(state.FullPlan)))
	assert.False(t, strings.Contains(state.FullPlan, "```"))
}

type countingSearcher struct {
	mu      sync.Mutex
	calls   int
	queries []string
}

func (c *countingSearcher) Search(ctx context.Context, query string, maxResults int) ([]tools.SearchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.queries = append(c.queries, query)
	return []tools.SearchResult{{Title: "hit", URL: "https://example.com", Content: "relevant"}}, nil
}

func TestSearchBeforePlanning(t *testing.T) {
	h := newHarness(t)
	searcher := &countingSearcher{}
	h.services.Search = searcher
	h.basic.generate = []*llms.Generation{{Content: "handoff_to_planner()"}}
	h.basic.streams = []string{`{"steps": []}`}
	h.basic.structured = []string{`{"next": "FINISH"}`}

	state := newState("researcher")
	state.SearchBeforePlanning = true
	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), state))

	assert.Equal(t, EventEndOfWorkflow, events[len(events)-1].Event)
	require.Equal(t, 1, searcher.calls)
	// The last user message is the preflight query.
	assert.Equal(t, []string{"do something"}, searcher.queries)
}

func TestNoSearchWhenDisabled(t *testing.T) {
	h := newHarness(t)
	searcher := &countingSearcher{}
	h.services.Search = searcher
	h.basic.generate = []*llms.Generation{{Content: "handoff_to_planner()"}}
	h.basic.streams = []string{`{"steps": []}`}
	h.basic.structured = []string{`{"next": "FINISH"}`}

	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), newState("researcher")))

	assert.Equal(t, EventEndOfWorkflow, events[len(events)-1].Event)
	assert.Zero(t, searcher.calls)
}

func TestDeepThinkingUsesReasoningChannel(t *testing.T) {
	h := newHarness(t)
	h.basic.generate = []*llms.Generation{{Content: "handoff_to_planner()"}}
	// The plan script lives only on the reasoning channel.
	h.reason.streams = []string{`{"title": "deep plan", "steps": []}`}
	h.basic.structured = []string{`{"next": "FINISH"}`}

	state := newState("researcher")
	state.DeepThinkingMode = true
	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), state))

	assert.Equal(t, EventEndOfWorkflow, events[len(events)-1].Event)
	assert.Contains(t, state.FullPlan, "deep plan")
}

func TestFullWorkflowWithProxy(t *testing.T) {
	h := newHarness(t)
	h.basic.generate = []*llms.Generation{
		{Content: "handoff_to_planner()"},
		// Proxy loop: one tool call, then the final reply.
		{ToolCalls: []llms.ToolCall{{ID: "call-1", Name: "tavily", Args: map[string]any{"query": "golang"}}}},
		{Content: "Research complete: Go is great."},
	}
	h.basic.streams = []string{`{"title": "plan", "steps": [{"agent_name": "researcher"}]}`}
	h.basic.structured = []string{`{"next": "researcher"}`, `{"next": "FINISH"}`}

	state := newState("researcher")
	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), state))

	require.Equal(t, EventEndOfWorkflow, events[len(events)-1].Event)

	// Exactly one workflow start.
	assert.Equal(t, EventStartOfWorkflow, events[0].Event)

	// start_of_agent / end_of_agent pair up with no interleaving.
	var open []string
	for _, ev := range events {
		switch ev.Event {
		case EventStartOfAgent:
			require.Empty(t, open, "nested agent start")
			open = append(open, ev.AgentName)
		case EventEndOfAgent:
			require.NotEmpty(t, open)
			require.Equal(t, open[len(open)-1], ev.AgentName)
			open = open[:len(open)-1]
		}
	}
	require.Empty(t, open)

	// Tool call and result correlate by id.
	calls := map[string]int{}
	for _, ev := range events {
		switch ev.Event {
		case EventToolCall:
			calls[ev.Data["tool_call_id"].(string)]++
		case EventToolCallResult:
			calls[ev.Data["tool_call_id"].(string)]--
		}
	}
	for id, n := range calls {
		assert.Zero(t, n, "unbalanced tool call %s", id)
	}

	// The proxy ran under the agent's name.
	var sawResearcher bool
	for _, ev := range events {
		if ev.Event == EventStartOfAgent && ev.AgentName == "researcher" {
			sawResearcher = true
		}
	}
	assert.True(t, sawResearcher)

	// The researcher's reply joined the history in response format.
	found := false
	for _, m := range state.Messages {
		if m.Name == "researcher" && strings.Contains(m.Content, "<response>") {
			found = true
		}
	}
	assert.True(t, found)
	assert.Equal(t, "researcher", state.ProcessingAgentName)
}

func TestChunkingIsContentPreserving(t *testing.T) {
	h := newHarness(t)
	h.basic.generate = []*llms.Generation{
		{Content: "handoff_to_planner()"},
		{Content: "A reply that is long enough to be split into several chunks."},
	}
	h.basic.streams = []string{`{"steps": []}`}
	h.basic.structured = []string{`{"next": "researcher"}`, `{"next": "FINISH"}`}

	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), newState("researcher")))

	// For every full_message, the concatenated deltas with the same id must
	// reproduce the full content.
	deltas := map[string]string{}
	for _, ev := range events {
		if ev.Event != EventMessage {
			continue
		}
		id := ev.Data["message_id"].(string)
		if delta, ok := ev.Data["delta"].(map[string]any); ok {
			if content, ok := delta["content"].(string); ok {
				deltas[id] += content
			}
		}
	}
	var checked int
	for _, ev := range events {
		if ev.Event != EventFullMessage {
			continue
		}
		id := ev.Data["message_id"].(string)
		full := ev.Data["delta"].(map[string]any)["content"].(string)
		assert.Equal(t, full, deltas[id])
		checked++
	}
	assert.Greater(t, checked, 0)
}

func TestPublisherRejectsUnknownAgent(t *testing.T) {
	h := newHarness(t)
	h.basic.generate = []*llms.Generation{{Content: "handoff_to_planner()"}}
	h.basic.streams = []string{`{"steps": []}`}
	h.basic.structured = []string{`{"next": "intruder"}`}

	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), newState("researcher")))

	last := events[len(events)-1]
	require.Equal(t, EventError, last.Event)
	assert.Equal(t, string(KindProtocol), last.Data["kind"])
}

func TestFactoryFlavorCreatesAgent(t *testing.T) {
	h := newHarness(t)
	h.basic.generate = []*llms.Generation{{Content: "handoff_to_planner()"}}
	h.basic.streams = []string{`{"title": "make stock analyzer", "steps": []}`}
	spec := `{
		"agent_name": "stock_analyzer",
		"agent_description": "analyzes stocks",
		"llm_type": "basic",
		"selected_tools": ["tavily"],
		"prompt": "You analyze stocks."
	}`
	h.basic.structured = []string{`{"next": "agent_factory"}`, spec}

	state := newState()
	controller := Build(FlavorFactory, h.services)
	events := collect(t, controller.Run(context.Background(), state))

	require.Equal(t, EventEndOfWorkflow, events[len(events)-1].Event)

	var created bool
	for _, ev := range events {
		if ev.Event == EventNewAgentCreated {
			created = true
			assert.Equal(t, "stock_analyzer", ev.Data["agent_name"])
			assert.NotNil(t, ev.Data["definition"])
		}
	}
	require.True(t, created)

	defs, err := h.agents.List("u1", "stock")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "u1", defs[0].UserID)
	// The tool binding carries a schema snapshot.
	require.Len(t, defs[0].SelectedTools, 1)
	assert.NotNil(t, defs[0].SelectedTools[0].InputSchema)

	assert.Contains(t, state.TeamMembers, "stock_analyzer")
}

func TestFactoryAlreadyExistsRepublishes(t *testing.T) {
	h := newHarness(t)
	h.basic.generate = []*llms.Generation{{Content: "handoff_to_planner()"}}
	h.basic.streams = []string{`{"steps": []}`}
	spec := `{"agent_name": "researcher", "llm_type": "basic", "prompt": "duplicate"}`
	h.basic.structured = []string{`{"next": "agent_factory"}`, spec, `{"next": "FINISH"}`}

	state := newState("researcher")
	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), state))

	assert.Equal(t, EventEndOfWorkflow, events[len(events)-1].Event)
	for _, ev := range events {
		assert.NotEqual(t, EventNewAgentCreated, ev.Event)
	}
}

func TestIterationLimit(t *testing.T) {
	h := newHarness(t)
	h.services.Graph.MaxIterations = 2
	h.basic.generate = []*llms.Generation{
		{Content: "handoff_to_planner()"},
		{Content: "step done"},
		{Content: "step done"},
		{Content: "step done"},
	}
	h.basic.streams = []string{`{"steps": []}`}
	h.basic.structured = []string{`{"next": "researcher"}`, `{"next": "researcher"}`, `{"next": "researcher"}`}

	controller := Build(FlavorWorkflow, h.services)
	events := collect(t, controller.Run(context.Background(), newState("researcher")))

	last := events[len(events)-1]
	require.Equal(t, EventError, last.Event)
	assert.Equal(t, string(KindInternal), last.Data["kind"])
	assert.Contains(t, last.Data["error"], "IterationLimit")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"cancelled", context.Canceled, KindCancelled},
		{"deadline", context.DeadlineExceeded, KindCancelled},
		{"tool", &tools.ToolError{Tool: "tavily"}, KindTool},
		{"already exists", agent.ErrAlreadyExists, KindAlreadyExists},
		{"not found", agent.ErrNotFound, KindNotFound},
		{"validation", agent.ErrValidation, KindValidation},
		{"classified passthrough", Errf(KindProtocol, "bad route"), KindProtocol},
		{"unknown", assert.AnError, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err).Kind)
		})
	}
}
