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

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/cooragent/cooragent/pkg/agent"
	"github.com/cooragent/cooragent/pkg/eval"
	"github.com/cooragent/cooragent/pkg/graph"
	"github.com/cooragent/cooragent/pkg/llms"
	"github.com/cooragent/cooragent/pkg/logger"
	"github.com/cooragent/cooragent/pkg/server"
	"github.com/cooragent/cooragent/pkg/workflow"
)

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.GetLogger().Info("Shutting down...")
		cancel()
	}()
	return ctx, cancel
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("cooragent version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host string `help:"Bind address (overrides config)."`
	Port int    `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx, cli)
	if err != nil {
		return err
	}
	if c.Host != "" {
		a.cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		a.cfg.Server.Port = c.Port
	}

	if a.cfg.Store.Watch {
		watcher, err := agent.NewWatcher(a.agents)
		if err != nil {
			return err
		}
		go watcher.Run(ctx)
	}

	srv := server.New(a.cfg.Server, a.agents, a.tools, a.workflows)
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	return srv.ListenAndServe()
}

// RunCmd runs one workflow from the terminal and renders its event stream.
type RunCmd struct {
	User                 string   `short:"u" required:"" help:"User id the run executes as."`
	TaskType             string   `short:"t" default:"agent_workflow" enum:"agent_workflow,agent_factory" help:"Workflow flavor."`
	Message              []string `short:"m" required:"" help:"User message, repeatable."`
	Debug                bool     `help:"Verbose event dump."`
	DeepThinking         *bool    `name:"deep-thinking" negatable:"" help:"Use the reasoning channel for planning."`
	SearchBeforePlanning bool     `name:"search-before-planning" help:"Run a web search before planning."`
	CoopAgent            []string `short:"a" name:"agent" help:"Coop agent to include, repeatable."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx, cli)
	if err != nil {
		return err
	}

	messages := make([]llms.Message, len(c.Message))
	for i, m := range c.Message {
		messages[i] = llms.Message{Role: "user", Content: m}
	}
	req := &workflow.Request{
		UserID:               c.User,
		TaskType:             c.TaskType,
		Messages:             messages,
		Debug:                c.Debug,
		DeepThinkingMode:     c.DeepThinking != nil && *c.DeepThinking,
		SearchBeforePlanning: c.SearchBeforePlanning,
		CoopAgents:           c.CoopAgent,
	}

	stream, err := a.workflows.Run(ctx, req)
	if err != nil {
		return err
	}

	var failed bool
	for ev := range stream.Events() {
		if c.Debug {
			line, _ := json.Marshal(ev)
			fmt.Println(string(line))
			if ev.Event == graph.EventError {
				failed = true
			}
			continue
		}
		switch ev.Event {
		case graph.EventStartOfAgent:
			fmt.Printf("\n--- %s ---\n", ev.AgentName)
		case graph.EventMessage:
			if delta, ok := ev.Data["delta"].(map[string]any); ok {
				if content, ok := delta["content"].(string); ok {
					fmt.Print(content)
				}
			}
		case graph.EventToolCall:
			fmt.Printf("\n[tool] %v %v\n", ev.Data["tool_name"], ev.Data["tool_input"])
		case graph.EventNewAgentCreated:
			fmt.Printf("\n[new agent] %v\n", ev.Data["agent_name"])
		case graph.EventEndOfWorkflow:
			fmt.Println()
		case graph.EventError:
			failed = true
			fmt.Fprintf(os.Stderr, "\nworkflow failed: %v\n", ev.Data["error"])
		}
	}
	if failed {
		return fmt.Errorf("workflow ended with an error")
	}
	return nil
}

// ListAgentsCmd lists agents visible to a user.
type ListAgentsCmd struct {
	User  string `short:"u" required:"" help:"User id."`
	Match string `short:"m" help:"Regular expression on agent_name."`
}

func (c *ListAgentsCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := bootstrap(ctx, cli)
	if err != nil {
		return err
	}
	defs, err := a.agents.List(c.User, c.Match)
	if err != nil {
		return err
	}
	return printJSONLines(defs)
}

// ListDefaultAgentsCmd lists the built-in roster.
type ListDefaultAgentsCmd struct{}

func (c *ListDefaultAgentsCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := bootstrap(ctx, cli)
	if err != nil {
		return err
	}
	return printJSONLines(a.agents.DefaultAgents())
}

// ListDefaultToolsCmd lists the registered tools.
type ListDefaultToolsCmd struct{}

func (c *ListDefaultToolsCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := bootstrap(ctx, cli)
	if err != nil {
		return err
	}
	return printJSONLines(a.tools.ListInfos())
}

// EditAgentCmd edits an existing agent, interactively or from a JSON record
// on stdin.
type EditAgentCmd struct {
	Name        string `short:"n" required:"" help:"Agent name."`
	User        string `short:"u" required:"" help:"User id."`
	Interactive *bool  `negatable:"" default:"true" help:"Prompt for fields; with --no-interactive read the full definition from stdin."`
}

func (c *EditAgentCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := bootstrap(ctx, cli)
	if err != nil {
		return err
	}

	if c.Interactive != nil && !*c.Interactive {
		var def agent.Definition
		if err := json.NewDecoder(os.Stdin).Decode(&def); err != nil {
			return fmt.Errorf("failed to read definition from stdin: %w", err)
		}
		def.AgentName = c.Name
		return a.agents.Edit(&def)
	}

	def, err := a.agents.Resolve(c.Name, c.User, false)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(label, current string) string {
		fmt.Printf("%s [%s]: ", label, current)
		line, _ := reader.ReadString('\n')
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return current
		}
		return line
	}
	def.NickName = prompt("nick_name", def.NickName)
	def.Description = prompt("description", def.Description)
	def.Prompt = prompt("prompt", def.Prompt)
	// Interactive edits keep the existing tool bindings and schema snapshots.
	def.SelectedTools = nil
	if err := a.agents.Edit(def); err != nil {
		return err
	}
	fmt.Printf("agent %s updated\n", c.Name)
	return nil
}

// RemoveAgentCmd removes an agent.
type RemoveAgentCmd struct {
	Name string `short:"n" required:"" help:"Agent name."`
	User string `short:"u" required:"" help:"User id."`
}

func (c *RemoveAgentCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := bootstrap(ctx, cli)
	if err != nil {
		return err
	}
	if err := a.agents.Remove(c.User, c.Name); err != nil {
		return err
	}
	fmt.Printf("agent %s removed\n", c.Name)
	return nil
}

// EvalCmd runs a JSONL dataset through the orchestrator.
type EvalCmd struct {
	Dataset     string `required:"" type:"path" help:"Path to the JSONL task file."`
	Concurrency int    `help:"Max concurrent tasks (overrides config)."`
	Timeout     int    `help:"Per-task timeout in seconds (overrides config)."`
	OutputDir   string `name:"output-dir" type:"path" help:"Evaluation output directory (overrides config)."`
	SaveDetails bool   `name:"save-details" help:"Persist per-task transcripts."`
}

func (c *EvalCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := bootstrap(ctx, cli)
	if err != nil {
		return err
	}

	evalCfg := a.cfg.Eval
	if c.Concurrency > 0 {
		evalCfg.MaxConcurrentTasks = c.Concurrency
	}
	if c.Timeout > 0 {
		evalCfg.TimeoutPerTask = c.Timeout
	}
	if c.OutputDir != "" {
		evalCfg.OutputDir = c.OutputDir
	}
	if c.SaveDetails {
		evalCfg.SaveDetails = true
	}

	tasks, err := eval.LoadDataset(c.Dataset)
	if err != nil {
		return err
	}
	store, err := eval.NewResultStore(evalCfg.OutputDir)
	if err != nil {
		return err
	}
	engine := eval.NewEngine(a.workflows, evalCfg, store)
	summary, err := engine.Run(ctx, c.Dataset, tasks)
	if err != nil {
		return err
	}

	m := summary.Metrics
	fmt.Printf("run %s: %d tasks, %d failed\n", summary.RunID, m.NumTasks, m.NumFailed)
	fmt.Printf("accuracy=%.3f completeness=%.3f efficiency=%.3f tool_usage=%.3f aggregate=%.3f\n",
		m.Accuracy, m.Completeness, m.Efficiency, m.ToolUsage, m.Aggregate)
	return nil
}

func printJSONLines[T any](items []T) error {
	enc := json.NewEncoder(os.Stdout)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}
