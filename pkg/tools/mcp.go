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

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cooragent/cooragent/pkg/logger"
)

// RegisterMCP connects to an MCP server over streamable HTTP, lists its tools
// and registers each of them. The server's reported input schemas become the
// registered schemas, so MCP tools get the same call-time validation as
// built-ins.
func RegisterMCP(ctx context.Context, reg *Registry, serverURL string) error {
	mcpClient, err := client.NewStreamableHttpClient(serverURL)
	if err != nil {
		return fmt.Errorf("failed to create MCP client for %s: %w", serverURL, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client for %s: %w", serverURL, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "cooragent", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP session with %s: %w", serverURL, err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to list MCP tools from %s: %w", serverURL, err)
	}

	for _, mcpTool := range listResp.Tools {
		wrapper := &mcpToolWrapper{
			client: mcpClient,
			name:   mcpTool.Name,
			desc:   mcpTool.Description,
			schema: mcpSchemaToMap(mcpTool.InputSchema),
		}
		if err := reg.Register(wrapper); err != nil {
			logger.GetLogger().Warn("Skipping MCP tool", "tool", mcpTool.Name, "server", serverURL, "error", err)
		}
	}

	logger.GetLogger().Info("Connected to MCP server", "server", serverURL, "tools", len(listResp.Tools))
	return nil
}

type mcpToolWrapper struct {
	client *client.Client
	name   string
	desc   string
	schema map[string]any
}

func (w *mcpToolWrapper) Name() string        { return w.name }
func (w *mcpToolWrapper) Description() string { return w.desc }

func (w *mcpToolWrapper) InputSchema() map[string]any { return w.schema }

func (w *mcpToolWrapper) Execute(ctx context.Context, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = w.name
	req.Params.Arguments = args

	resp, err := w.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp call failed: %w", err)
	}

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	result := strings.Join(texts, "\n")
	if resp.IsError {
		if result == "" {
			result = "unknown error"
		}
		return "", fmt.Errorf("mcp tool reported an error: %s", result)
	}
	return result, nil
}

func mcpSchemaToMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return map[string]any{"type": "object"}
	}
	return result
}
