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

// Package config loads and validates the CoorAgent runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CoopPolicy controls what happens when coop_agents names an agent owned by
// another non-share user.
type CoopPolicy string

const (
	// CoopPolicyGrant treats naming an agent in coop_agents as an explicit
	// opt-in grant from the caller.
	CoopPolicyGrant CoopPolicy = "grant"
	// CoopPolicyDeny restricts coop_agents to share-owned and own agents.
	CoopPolicyDeny CoopPolicy = "deny"
)

// LLMConfig configures one LLM channel (basic, reasoning, vision or code).
type LLMConfig struct {
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// StoreConfig locates the durable state directories.
type StoreConfig struct {
	// Dir is the root store directory. Agents live under <dir>/agents,
	// prompts under <dir>/prompts and tool records under <dir>/tools.
	Dir string `yaml:"dir"`
	// Watch enables hot reload of agent records edited out of band.
	Watch bool `yaml:"watch"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GraphConfig bounds a single workflow run.
type GraphConfig struct {
	// MaxIterations caps publisher round trips to stop runaway plans.
	MaxIterations int `yaml:"max_iterations"`
	// MessageChunkSize is the chunk width used when a node produces its
	// final message as a single string instead of streaming it.
	MessageChunkSize int `yaml:"message_chunk_size"`
}

// EvalConfig carries evaluation harness defaults.
type EvalConfig struct {
	MaxConcurrentTasks int    `yaml:"max_concurrent_tasks"`
	TimeoutPerTask     int    `yaml:"timeout_per_task"` // seconds, 0 = unlimited
	MaxRetries         int    `yaml:"max_retries"`
	RetryFailedTasks   bool   `yaml:"retry_failed_tasks"`
	SaveDetails        bool   `yaml:"save_details"`
	OutputDir          string `yaml:"output_dir"`
}

// RegistryConfig carries agent registry policies.
type RegistryConfig struct {
	CoopPolicy CoopPolicy `yaml:"coop_policy"`
	// AdminUsers may remove share-owned agents.
	AdminUsers []string `yaml:"admin_users"`
}

// ToolsConfig configures tool sources.
type ToolsConfig struct {
	TavilyAPIKey string `yaml:"tavily_api_key"`
	// MCPServers lists MCP server base URLs whose tools are registered at boot.
	MCPServers []string `yaml:"mcp_servers"`
	// BashAllowlist restricts which executables the bash tool may run.
	// Empty means the tool rejects every command.
	BashAllowlist []string `yaml:"bash_allowlist"`
}

// Config is the root configuration document.
type Config struct {
	Store    StoreConfig          `yaml:"store"`
	Server   ServerConfig         `yaml:"server"`
	Graph    GraphConfig          `yaml:"graph"`
	Eval     EvalConfig           `yaml:"eval"`
	Registry RegistryConfig       `yaml:"registry"`
	Tools    ToolsConfig          `yaml:"tools"`
	LLMs     map[string]LLMConfig `yaml:"llms"` // keyed by llm type
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Store:  StoreConfig{Dir: "./store", Watch: false},
		Server: ServerConfig{Host: "0.0.0.0", Port: 8001},
		Graph:  GraphConfig{MaxIterations: 25, MessageChunkSize: 10},
		Eval: EvalConfig{
			MaxConcurrentTasks: 4,
			MaxRetries:         1,
			RetryFailedTasks:   true,
			OutputDir:          "./store/evaluation",
		},
		Registry: RegistryConfig{CoopPolicy: CoopPolicyGrant},
		LLMs: map[string]LLMConfig{
			"basic":     {Model: "gpt-4o-mini", APIKey: "${BASIC_API_KEY}", BaseURL: "${BASIC_BASE_URL}"},
			"reasoning": {Model: "o3-mini", APIKey: "${REASONING_API_KEY}", BaseURL: "${REASONING_BASE_URL}"},
			"vision":    {Model: "gpt-4o", APIKey: "${VISION_API_KEY}", BaseURL: "${VISION_BASE_URL}"},
			"code":      {Model: "gpt-4o", APIKey: "${CODE_API_KEY}", BaseURL: "${CODE_BASE_URL}"},
		},
	}
}

// Load reads a YAML config file, expands environment references and applies
// defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Expand resolves ${VAR} and ${VAR:-default} references in every string
// field that supports them.
func (c *Config) Expand() {
	c.Store.Dir = ExpandEnvVars(c.Store.Dir)
	c.Eval.OutputDir = ExpandEnvVars(c.Eval.OutputDir)
	c.Tools.TavilyAPIKey = ExpandEnvVars(c.Tools.TavilyAPIKey)
	for i, s := range c.Tools.MCPServers {
		c.Tools.MCPServers[i] = ExpandEnvVars(s)
	}
	for name, llm := range c.LLMs {
		llm.APIKey = ExpandEnvVars(llm.APIKey)
		llm.BaseURL = ExpandEnvVars(llm.BaseURL)
		llm.Model = ExpandEnvVars(llm.Model)
		c.LLMs[name] = llm
	}
}

// Validate checks structural invariants of the configuration.
func (c *Config) Validate() error {
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir cannot be empty")
	}
	if c.Graph.MaxIterations <= 0 {
		return fmt.Errorf("graph.max_iterations must be positive")
	}
	if c.Graph.MessageChunkSize <= 0 {
		return fmt.Errorf("graph.message_chunk_size must be positive")
	}
	switch c.Registry.CoopPolicy {
	case CoopPolicyGrant, CoopPolicyDeny, "":
	default:
		return fmt.Errorf("registry.coop_policy must be grant or deny, got %q", c.Registry.CoopPolicy)
	}
	for _, typ := range []string{"basic", "reasoning", "vision", "code"} {
		if _, ok := c.LLMs[typ]; !ok {
			return fmt.Errorf("llms.%s is not configured", typ)
		}
	}
	return nil
}

// AgentsDir returns the directory holding one record per agent.
func (c *Config) AgentsDir() string { return filepath.Join(c.Store.Dir, "agents") }

// PromptsDir returns the directory of prompt template overrides.
func (c *Config) PromptsDir() string { return filepath.Join(c.Store.Dir, "prompts") }

// IsAdmin reports whether the given user may manage share-owned agents.
func (c *Config) IsAdmin(userID string) bool {
	for _, u := range c.Registry.AdminUsers {
		if u == userID {
			return true
		}
	}
	return false
}
