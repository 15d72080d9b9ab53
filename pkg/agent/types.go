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

// Package agent holds agent definitions, their durable store and the shared
// registry the orchestrator resolves agents from.
package agent

import (
	"fmt"
	"regexp"

	"github.com/cooragent/cooragent/pkg/llms"
)

// ShareOwner marks an agent visible to every user.
const ShareOwner = "share"

var agentNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ToolRef is one tool binding inside an agent definition. The schema is
// snapshotted at bind time so later tool evolution does not silently change
// the agent's contract.
type ToolRef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Definition is the persisted configuration of one agent. Identity is
// (UserID, AgentName); AgentName is globally unique across the store.
type Definition struct {
	UserID        string       `json:"user_id"`
	AgentName     string       `json:"agent_name"`
	NickName      string       `json:"nick_name,omitempty"`
	Description   string       `json:"description"`
	LLMType       llms.LLMType `json:"llm_type"`
	SelectedTools []ToolRef    `json:"selected_tools"`
	Prompt        string       `json:"prompt"`
}

// Shared reports whether the agent is visible to all users.
func (d *Definition) Shared() bool { return d.UserID == ShareOwner }

// Clone returns a deep copy. Resolved definitions are handed out as clones so
// in-flight runs keep a consistent snapshot across concurrent edits.
func (d *Definition) Clone() *Definition {
	out := *d
	out.SelectedTools = make([]ToolRef, len(d.SelectedTools))
	for i, ref := range d.SelectedTools {
		out.SelectedTools[i] = ref
		if ref.InputSchema != nil {
			schema := make(map[string]any, len(ref.InputSchema))
			for k, v := range ref.InputSchema {
				schema[k] = v
			}
			out.SelectedTools[i].InputSchema = schema
		}
	}
	return &out
}

// Validate checks structural invariants of a definition.
func (d *Definition) Validate() error {
	if d.AgentName == "" {
		return fmt.Errorf("%w: agent_name cannot be empty", ErrValidation)
	}
	if !agentNamePattern.MatchString(d.AgentName) {
		return fmt.Errorf("%w: agent_name %q must match %s", ErrValidation, d.AgentName, agentNamePattern)
	}
	if d.UserID == "" {
		return fmt.Errorf("%w: user_id cannot be empty", ErrValidation)
	}
	if !llms.ValidType(string(d.LLMType)) {
		return fmt.Errorf("%w: unknown llm_type %q", ErrValidation, d.LLMType)
	}
	if d.Prompt == "" {
		return fmt.Errorf("%w: prompt cannot be empty", ErrValidation)
	}
	return nil
}
