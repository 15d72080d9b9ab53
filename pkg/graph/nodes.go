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
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cooragent/cooragent/pkg/agent"
	"github.com/cooragent/cooragent/pkg/config"
	"github.com/cooragent/cooragent/pkg/llms"
	"github.com/cooragent/cooragent/pkg/logger"
	"github.com/cooragent/cooragent/pkg/prompt"
	"github.com/cooragent/cooragent/pkg/tools"
)

// handoffSentinel triggers the coordinator-to-planner transition. The
// coordinator's own reply is suppressed in that case.
const handoffSentinel = "handoff_to_planner"

// responseFormat wraps a team member's final reply before it joins the
// shared message history.
const responseFormat = "Response from %s:\n\n<response>\n%s\n</response>\n\n*Please execute the next step.*"

// proxyLoopCap bounds a single agent's react loop independently of the
// publisher iteration cap.
const proxyLoopCap = 20

// Searcher is the planner's optional search preflight backend.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]tools.SearchResult, error)
}

// Services bundles the shared registries a node may touch.
type Services struct {
	LLMs    *llms.Registry
	Tools   *tools.Registry
	Agents  *agent.Registry
	Prompts *prompt.Loader
	Search  Searcher
	Graph   config.GraphConfig
}

// NodeFunc is one node of the graph: pure over State modulo its declared
// side effects (LM calls, tool calls, event emission).
type NodeFunc func(ctx context.Context, state *State, svc *Services, emit *Emitter) (*Command, error)

// generateWithRetry calls the LM once and retries a single time on failure.
func generateWithRetry(ctx context.Context, provider llms.Provider, messages []llms.Message, toolDefs []llms.ToolDefinition) (*llms.Generation, error) {
	gen, err := provider.Generate(ctx, messages, toolDefs)
	if err == nil {
		return gen, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logger.GetLogger().Warn("LLM call failed, retrying once", "error", err)
	gen, err = provider.Generate(ctx, messages, toolDefs)
	if err != nil {
		return nil, &Error{Kind: KindLM, Reason: "llm call failed after retry", Err: err}
	}
	return gen, nil
}

func structuredWithRetry(ctx context.Context, provider llms.Provider, messages []llms.Message, out any) error {
	if err := provider.GenerateStructured(ctx, messages, out); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return ctx.Err()
	} else {
		logger.GetLogger().Warn("LLM structured call failed, retrying once", "error", err)
		if err := provider.GenerateStructured(ctx, messages, out); err != nil {
			return &Error{Kind: KindLM, Reason: "llm structured call failed after retry", Err: err}
		}
	}
	return nil
}

// CoordinatorNode classifies the request: small talk is answered directly and
// ends the run; everything else hands off to the planner. Replies containing
// the handoff sentinel are never emitted to the consumer.
func CoordinatorNode(ctx context.Context, state *State, svc *Services, emit *Emitter) (*Command, error) {
	template, err := svc.Prompts.Get(NodeCoordinator)
	if err != nil {
		return nil, err
	}
	messages, err := prompt.Apply(template, state.TemplateVars(), state.Messages)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Reason: "coordinator prompt bind failed", Err: err}
	}

	provider, err := svc.LLMs.ByType(llms.TypeBasic)
	if err != nil {
		return nil, err
	}
	gen, err := generateWithRetry(ctx, provider, messages, nil)
	if err != nil {
		return nil, err
	}

	reply := strings.TrimSpace(gen.Content)
	if strings.HasPrefix(reply, "handoff") || strings.Contains(reply, handoffSentinel) {
		return &Command{Goto: NodePlanner}, nil
	}

	// Chit-chat replies travel in the terminal event's message list; the
	// coordinator never streams content of its own.
	return &Command{
		Patch: func(s *State) {
			s.AppendMessage(llms.Message{Role: "assistant", Content: reply, Name: NodeCoordinator})
		},
		Goto: EndNode,
	}, nil
}

// PlannerNode produces the step-by-step plan as JSON. Deep thinking mode
// switches to the reasoning channel; the optional search preflight injects
// live results into the prompt. A plan that does not parse as JSON aborts
// the run.
func PlannerNode(ctx context.Context, state *State, svc *Services, emit *Emitter) (*Command, error) {
	template, err := svc.Prompts.Get(NodePlanner)
	if err != nil {
		return nil, err
	}
	messages, err := prompt.Apply(template, state.TemplateVars(), state.Messages)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Reason: "planner prompt bind failed", Err: err}
	}

	if state.SearchBeforePlanning && svc.Search != nil {
		query := state.LastUserMessage()
		results, err := svc.Search.Search(ctx, query, 5)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.GetLogger().Warn("Search preflight failed, planning without results", "error", err)
		} else {
			encoded, _ := json.MarshalIndent(results, "", "  ")
			messages[0].Content += "\n\n# Relative Search Results\n\n" + string(encoded)
		}
	}

	channel := llms.TypeBasic
	if state.DeepThinkingMode {
		channel = llms.TypeReasoning
	}
	provider, err := svc.LLMs.ByType(channel)
	if err != nil {
		return nil, err
	}

	stream, err := provider.GenerateStreaming(ctx, messages)
	if err != nil {
		return nil, &Error{Kind: KindLM, Reason: "planner stream failed", Err: err}
	}

	messageID := uuid.NewString()
	var full strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return nil, &Error{Kind: KindLM, Reason: "planner stream failed", Err: chunk.Err}
		}
		full.WriteString(chunk.Content)
		if err := emit.EmitMessage(ctx, messageID, chunk.Content, chunk.ReasoningContent); err != nil {
			return nil, err
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	plan := llms.StripJSONFences(full.String())
	if !json.Valid([]byte(plan)) {
		return nil, Errf(KindValidation, "planner output is not valid JSON")
	}
	if err := emit.EmitFullMessage(ctx, messageID, full.String()); err != nil {
		return nil, err
	}
	return &Command{
		Patch: func(s *State) {
			s.FullPlan = plan
			s.AppendMessage(llms.Message{Role: "assistant", Content: plan, Name: NodePlanner})
		},
		Goto: NodePublisher,
	}, nil
}

// router is the publisher's structured output contract.
type router struct {
	Next string `json:"next"`
}

// NewPublisherNode routes to the next team member by plan order. In
// factoryOnly graphs every non-FINISH route leads to the factory.
func NewPublisherNode(factoryOnly bool) NodeFunc {
	return func(ctx context.Context, state *State, svc *Services, emit *Emitter) (*Command, error) {
		template, err := svc.Prompts.Get(NodePublisher)
		if err != nil {
			return nil, err
		}
		messages, err := prompt.Apply(template, state.TemplateVars(), state.Messages)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Reason: "publisher prompt bind failed", Err: err}
		}

		provider, err := svc.LLMs.ByType(llms.TypeBasic)
		if err != nil {
			return nil, err
		}
		var route router
		if err := structuredWithRetry(ctx, provider, messages, &route); err != nil {
			return nil, err
		}
		if route.Next == "" {
			return nil, Errf(KindProtocol, "publisher returned no next agent")
		}

		switch {
		case route.Next == FinishRoute:
			return &Command{Goto: EndNode}, nil
		case route.Next == NodeFactory:
			return &Command{Goto: NodeFactory}, nil
		case factoryOnly:
			return &Command{Goto: NodeFactory}, nil
		case state.HasMember(route.Next):
			next := route.Next
			return &Command{
				Patch: func(s *State) { s.Next = next },
				Goto:  NodeProxy,
			}, nil
		default:
			return nil, Errf(KindProtocol, "publisher chose %q which is not on the team roster", route.Next)
		}
	}
}

// agentSpec is the factory's structured output contract.
type agentSpec struct {
	AgentName        string   `json:"agent_name"`
	AgentDescription string   `json:"agent_description"`
	LLMType          string   `json:"llm_type"`
	SelectedTools    []string `json:"selected_tools"`
	Prompt           string   `json:"prompt"`
}

// NewFactoryNode designs and registers a new agent. When terminal is set the
// run ends after a successful creation (the agent_factory graph flavor);
// otherwise control returns to the publisher.
func NewFactoryNode(terminal bool) NodeFunc {
	return func(ctx context.Context, state *State, svc *Services, emit *Emitter) (*Command, error) {
		template, err := svc.Prompts.Get(NodeFactory)
		if err != nil {
			return nil, err
		}
		vars := state.TemplateVars()
		vars["TOOLS"] = describeTools(svc.Tools)
		messages, err := prompt.Apply(template, vars, state.Messages)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Reason: "factory prompt bind failed", Err: err}
		}

		provider, err := svc.LLMs.ByType(llms.TypeBasic)
		if err != nil {
			return nil, err
		}
		var spec agentSpec
		if err := structuredWithRetry(ctx, provider, messages, &spec); err != nil {
			return nil, err
		}
		if spec.AgentName == "" || spec.Prompt == "" {
			return nil, Errf(KindProtocol, "factory output is missing required fields")
		}
		if !llms.ValidType(spec.LLMType) {
			spec.LLMType = string(llms.TypeBasic)
		}

		refs := make([]agent.ToolRef, len(spec.SelectedTools))
		for i, name := range spec.SelectedTools {
			refs[i] = agent.ToolRef{Name: name}
		}
		def := &agent.Definition{
			UserID:        state.UserID,
			AgentName:     spec.AgentName,
			NickName:      spec.AgentName,
			Description:   spec.AgentDescription,
			LLMType:       llms.LLMType(spec.LLMType),
			SelectedTools: refs,
			Prompt:        spec.Prompt,
		}

		if err := svc.Agents.Create(def); err != nil {
			if errorsIsAlreadyExists(err) {
				note := fmt.Sprintf("Agent %s already exists; choose it directly instead of creating it.", spec.AgentName)
				return &Command{
					Patch: func(s *State) {
						s.AppendMessage(llms.Message{Role: "assistant", Content: note, Name: NodeFactory})
					},
					Goto: NodePublisher,
				}, nil
			}
			return nil, err
		}

		created, err := svc.Agents.Get(spec.AgentName)
		if err != nil {
			return nil, err
		}
		if err := emit.EmitNewAgent(ctx, spec.AgentName, created); err != nil {
			return nil, err
		}

		goTo := NodePublisher
		if terminal {
			goTo = EndNode
		}
		return &Command{
			Patch: func(s *State) {
				s.TeamMembers = append(s.TeamMembers, spec.AgentName)
				s.AppendMessage(llms.Message{
					Role:    "assistant",
					Content: fmt.Sprintf("New agent %s created.", spec.AgentName),
					Name:    NodeFactory,
				})
			},
			Goto: goTo,
		}, nil
	}
}

func errorsIsAlreadyExists(err error) bool {
	return Classify(err).Kind == KindAlreadyExists
}

func describeTools(reg *tools.Registry) string {
	var b strings.Builder
	for _, info := range reg.ListInfos() {
		fmt.Fprintf(&b, "- %s: %s\n", info.Name, info.Description)
	}
	return b.String()
}

// ProxyNode runs the selected agent's react loop: bound prompt, LM tool
// calls, validated tool execution. Tool failures feed back into the loop as
// messages; the loop ends on the first non-tool reply.
func ProxyNode(ctx context.Context, state *State, svc *Services, emit *Emitter) (*Command, error) {
	def, err := svc.Agents.Get(state.Next)
	if err != nil {
		return nil, err
	}
	provider, err := svc.LLMs.ByType(def.LLMType)
	if err != nil {
		return nil, err
	}

	conversation, err := prompt.Apply(def.Prompt, state.TemplateVars(), state.Messages)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Reason: "agent prompt bind failed", Err: err}
	}

	toolDefs := make([]llms.ToolDefinition, len(def.SelectedTools))
	for i, ref := range def.SelectedTools {
		toolDefs[i] = llms.ToolDefinition{
			Name:        ref.Name,
			Description: ref.Description,
			Parameters:  ref.InputSchema,
		}
	}

	var reply string
	for i := 0; ; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i >= proxyLoopCap {
			return nil, Errf(KindInternal, "agent %s exceeded the tool loop cap", def.AgentName)
		}

		gen, err := generateWithRetry(ctx, provider, conversation, toolDefs)
		if err != nil {
			return nil, err
		}
		if len(gen.ToolCalls) == 0 {
			reply = gen.Content
			break
		}

		for _, call := range gen.ToolCalls {
			callID := call.ID
			if callID == "" {
				callID = uuid.NewString()
			}
			if err := emit.EmitToolCall(ctx, callID, call.Name, call.Args); err != nil {
				return nil, err
			}

			result, execErr := svc.Tools.Execute(ctx, call.Name, call.Args)
			if execErr != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				result = fmt.Sprintf("Error: %v", execErr)
			}
			if err := emit.EmitToolCallResult(ctx, callID, call.Name, result); err != nil {
				return nil, err
			}

			args, _ := json.Marshal(call.Args)
			conversation = append(conversation,
				llms.Message{Role: "assistant", Content: fmt.Sprintf("Calling tool %s with %s", call.Name, string(args))},
				llms.Message{Role: "user", Content: fmt.Sprintf("Tool %s returned:\n%s", call.Name, result)},
			)
		}
	}

	if err := emit.EmitChunked(ctx, reply); err != nil {
		return nil, err
	}
	agentName := def.AgentName
	return &Command{
		Patch: func(s *State) {
			s.AppendMessage(llms.Message{
				Role:    "user",
				Content: fmt.Sprintf(responseFormat, agentName, reply),
				Name:    agentName,
			})
			s.ProcessingAgentName = agentName
		},
		Goto: NodePublisher,
	}, nil
}
