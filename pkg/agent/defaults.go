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

package agent

import (
	"errors"
	"fmt"

	"github.com/cooragent/cooragent/pkg/llms"
	"github.com/cooragent/cooragent/pkg/prompt"
)

type defaultSpec struct {
	name        string
	nick        string
	description string
	llmType     llms.LLMType
	tools       []string
}

var defaultRoster = []defaultSpec{
	{
		name:        "researcher",
		nick:        "Researcher",
		description: "Searches the web and crawls pages to gather up-to-date information. Cannot do math or programming.",
		llmType:     llms.TypeBasic,
		tools:       []string{"tavily", "crawl"},
	},
	{
		name:        "coder",
		nick:        "Coder",
		description: "Executes shell commands for calculations, file inspection and scripting.",
		llmType:     llms.TypeCode,
		tools:       []string{"bash"},
	},
	{
		name:        "browser",
		nick:        "Browser",
		description: "Interacts with web pages directly: navigation, clicking and in-site search.",
		llmType:     llms.TypeBasic,
		tools:       []string{"browser"},
	},
	{
		name:        "reporter",
		nick:        "Reporter",
		description: "Writes the final report summarizing what the other agents produced.",
		llmType:     llms.TypeBasic,
		tools:       nil,
	},
}

// InstallDefaults seeds the built-in share-owned roster. Safe to call on every
// boot: agents that already exist are left untouched.
func InstallDefaults(reg *Registry, prompts *prompt.Loader) error {
	for _, spec := range defaultRoster {
		template, err := prompts.Get(spec.name)
		if err != nil {
			return fmt.Errorf("failed to load default prompt for %s: %w", spec.name, err)
		}
		refs := make([]ToolRef, len(spec.tools))
		for i, t := range spec.tools {
			refs[i] = ToolRef{Name: t}
		}
		def := &Definition{
			UserID:        ShareOwner,
			AgentName:     spec.name,
			NickName:      spec.nick,
			Description:   spec.description,
			LLMType:       spec.llmType,
			SelectedTools: refs,
			Prompt:        template,
		}
		if err := reg.Create(def); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				continue
			}
			return fmt.Errorf("failed to install default agent %s: %w", spec.name, err)
		}
	}
	return nil
}
