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

package llms

import (
	"fmt"

	"github.com/cooragent/cooragent/pkg/config"
	"github.com/cooragent/cooragent/pkg/registry"
)

// Registry maps LLM types to providers. Read-only after init.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// NewRegistryFromConfig builds providers for every configured channel.
func NewRegistryFromConfig(cfg map[string]config.LLMConfig) (*Registry, error) {
	r := NewRegistry()
	for name, llmCfg := range cfg {
		if !ValidType(name) {
			return nil, fmt.Errorf("unknown llm type %q (supported: basic, reasoning, vision, code)", name)
		}
		provider := NewOpenAIProvider(llmCfg)
		if err := r.Register(name, provider); err != nil {
			return nil, fmt.Errorf("failed to register llm %s: %w", name, err)
		}
	}
	return r, nil
}

// ByType returns the provider for the given channel.
func (r *Registry) ByType(t LLMType) (Provider, error) {
	provider, exists := r.Get(string(t))
	if !exists {
		return nil, fmt.Errorf("llm provider %q not found", t)
	}
	return provider, nil
}
