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

// Command cooragent runs the multi-agent orchestrator.
//
// Usage:
//
//	cooragent serve --config config.yaml
//	cooragent run -u alice -m "summarize the latest Go release notes"
//	cooragent eval --dataset tasks.jsonl
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/cooragent/cooragent/pkg/agent"
	"github.com/cooragent/cooragent/pkg/config"
	"github.com/cooragent/cooragent/pkg/graph"
	"github.com/cooragent/cooragent/pkg/llms"
	"github.com/cooragent/cooragent/pkg/logger"
	"github.com/cooragent/cooragent/pkg/prompt"
	"github.com/cooragent/cooragent/pkg/tools"
	"github.com/cooragent/cooragent/pkg/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Version           VersionCmd           `cmd:"" help:"Show version information."`
	Serve             ServeCmd             `cmd:"" help:"Start the HTTP server."`
	Run               RunCmd               `cmd:"" help:"Run a workflow from the terminal."`
	ListAgents        ListAgentsCmd        `cmd:"" name:"list-agents" help:"List agents visible to a user."`
	ListDefaultAgents ListDefaultAgentsCmd `cmd:"" name:"list-default-agents" help:"List the built-in agents."`
	ListDefaultTools  ListDefaultToolsCmd  `cmd:"" name:"list-default-tools" help:"List the registered tools."`
	EditAgent         EditAgentCmd         `cmd:"" name:"edit-agent" help:"Edit an existing agent."`
	RemoveAgent       RemoveAgentCmd       `cmd:"" name:"remove-agent" help:"Remove an agent."`
	Eval              EvalCmd              `cmd:"" help:"Run an evaluation dataset through the orchestrator."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" env:"COORAGENT_LOG_LEVEL"`
	LogFile   string `help:"Log file path (empty = stderr)." env:"COORAGENT_LOG_FILE"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple" env:"COORAGENT_LOG_FORMAT"`
}

// app bundles everything a command needs after bootstrap.
type app struct {
	cfg       *config.Config
	tools     *tools.Registry
	agents    *agent.Registry
	prompts   *prompt.Loader
	services  *graph.Services
	workflows *workflow.Service
}

func main() {
	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("cooragent"),
		kong.Description("CoorAgent - a multi-agent orchestration runtime"),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

func initLoggerFromCLI(level, file, format string) (func(), error) {
	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	output := os.Stderr
	var cleanup func()
	if file != "" {
		f, closeFn, err := logger.OpenLogFile(file)
		if err != nil {
			return nil, err
		}
		output = f
		cleanup = closeFn
	}
	logger.Init(parsed, output, format)
	return cleanup, nil
}

// bootstrap loads config and wires the registries and services.
func bootstrap(ctx context.Context, cli *CLI) (*app, error) {
	var cfg *config.Config
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		cfg.Expand()
	}

	toolReg := tools.NewRegistry()
	if err := tools.RegisterBuiltins(toolReg, cfg.Tools, nil); err != nil {
		return nil, err
	}
	for _, serverURL := range cfg.Tools.MCPServers {
		if err := tools.RegisterMCP(ctx, toolReg, serverURL); err != nil {
			logger.GetLogger().Warn("Skipping MCP server", "server", serverURL, "error", err)
		}
	}

	llmReg, err := llms.NewRegistryFromConfig(cfg.LLMs)
	if err != nil {
		return nil, err
	}

	store, err := agent.NewStore(cfg.AgentsDir())
	if err != nil {
		return nil, err
	}
	agents := agent.NewRegistry(store, toolReg, cfg.Registry)
	if err := agents.Load(); err != nil {
		return nil, err
	}
	prompts := prompt.NewLoader(cfg.PromptsDir())
	if err := agent.InstallDefaults(agents, prompts); err != nil {
		return nil, err
	}

	var search graph.Searcher
	if t, ok := toolReg.Get("tavily"); ok {
		if s, ok := t.(graph.Searcher); ok {
			search = s
		}
	}

	services := &graph.Services{
		LLMs:    llmReg,
		Tools:   toolReg,
		Agents:  agents,
		Prompts: prompts,
		Search:  search,
		Graph:   cfg.Graph,
	}

	return &app{
		cfg:       cfg,
		tools:     toolReg,
		agents:    agents,
		prompts:   prompts,
		services:  services,
		workflows: workflow.NewService(services, nil),
	}, nil
}
