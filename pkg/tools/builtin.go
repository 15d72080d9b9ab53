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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/cooragent/cooragent/pkg/config"
)

const (
	tavilyEndpoint = "https://api.tavily.com/search"
	maxCrawlBytes  = 1 << 20 // 1MB page cap
	commandTimeout = 60 * time.Second
	defaultMaxHits = 5
	httpUserAgent  = "cooragent/1.0"
	requestTimeout = 30 * time.Second
)

// RegisterBuiltins installs the default tool set: tavily, crawl, browser and
// bash. Called once at boot.
func RegisterBuiltins(reg *Registry, cfg config.ToolsConfig, navigator Navigator) error {
	builtins := []Tool{
		NewTavilyTool(cfg.TavilyAPIKey, nil),
		NewCrawlTool(nil),
		NewBrowserTool(navigator),
		NewBashTool(cfg.BashAllowlist),
	}
	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("failed to register builtin tool %s: %w", t.Name(), err)
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// tavily
// ----------------------------------------------------------------------------

type tavilyArgs struct {
	Query      string `json:"query" jsonschema:"required,description=The search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results,default=5,minimum=1,maximum=10"`
}

// SearchResult is one hit returned by the search tool.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// TavilyTool queries the Tavily web search API.
type TavilyTool struct {
	apiKey   string
	client   *http.Client
	endpoint string
}

func NewTavilyTool(apiKey string, client *http.Client) *TavilyTool {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &TavilyTool{apiKey: apiKey, client: client, endpoint: tavilyEndpoint}
}

func (t *TavilyTool) Name() string { return "tavily" }

func (t *TavilyTool) Description() string {
	return "Search the web for up-to-date information. Returns a JSON list of results with title, url and content."
}

func (t *TavilyTool) InputSchema() map[string]any { return reflectSchema[tavilyArgs]() }

func (t *TavilyTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	maxResults := defaultMaxHits
	if n, ok := args["max_results"].(float64); ok && n > 0 {
		maxResults = int(n)
	}

	results, err := t.Search(ctx, query, maxResults)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Search performs the underlying API call. The planner's search preflight
// uses this directly, bypassing argument re-validation.
func (t *TavilyTool) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("tavily api key is not configured")
	}
	if maxResults <= 0 {
		maxResults = defaultMaxHits
	}

	body, err := json.Marshal(map[string]any{
		"api_key":     t.apiKey,
		"query":       query,
		"max_results": maxResults,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", httpUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return payload.Results, nil
}

// ----------------------------------------------------------------------------
// crawl
// ----------------------------------------------------------------------------

type crawlArgs struct {
	URL string `json:"url" jsonschema:"required,description=The URL to fetch"`
}

var (
	tagPattern        = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	markupPattern     = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\n{3,}`)
)

// CrawlTool fetches a URL and reduces the page to readable text.
type CrawlTool struct {
	client *http.Client
}

func NewCrawlTool(client *http.Client) *CrawlTool {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &CrawlTool{client: client}
}

func (t *CrawlTool) Name() string { return "crawl" }

func (t *CrawlTool) Description() string {
	return "Fetch a web page and return its readable text content."
}

func (t *CrawlTool) InputSchema() map[string]any { return reflectSchema[crawlArgs]() }

func (t *CrawlTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	url, _ := args["url"].(string)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", httpUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch failed with status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCrawlBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	return htmlToText(string(raw)), nil
}

func htmlToText(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = markupPattern.ReplaceAllString(text, "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = whitespacePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ----------------------------------------------------------------------------
// browser
// ----------------------------------------------------------------------------

type browserArgs struct {
	Instruction string `json:"instruction" jsonschema:"required,description=Natural-language instruction for the browser such as 'go to github.com and search for cooragent'"`
}

// Navigator is the narrow interface a concrete browser automation backend
// implements. The core ships without one.
type Navigator interface {
	Navigate(ctx context.Context, instruction string) (string, error)
}

// BrowserTool drives an injected Navigator. Without one, calls fail with a
// ToolError that the agent can route around.
type BrowserTool struct {
	navigator Navigator
}

func NewBrowserTool(navigator Navigator) *BrowserTool {
	return &BrowserTool{navigator: navigator}
}

func (t *BrowserTool) Name() string { return "browser" }

func (t *BrowserTool) Description() string {
	return "Interact with web pages directly: navigate, click and extract. Useful for in-domain search on sites like GitHub or Instagram."
}

func (t *BrowserTool) InputSchema() map[string]any { return reflectSchema[browserArgs]() }

func (t *BrowserTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.navigator == nil {
		return "", fmt.Errorf("no browser backend is configured")
	}
	instruction, _ := args["instruction"].(string)
	return t.navigator.Navigate(ctx, instruction)
}

// ----------------------------------------------------------------------------
// bash
// ----------------------------------------------------------------------------

type bashArgs struct {
	Command string `json:"command" jsonschema:"required,description=The shell command to run"`
}

// BashTool executes shell commands restricted to an allowlist of executables.
type BashTool struct {
	allowed map[string]bool
}

func NewBashTool(allowlist []string) *BashTool {
	allowed := make(map[string]bool, len(allowlist))
	for _, name := range allowlist {
		allowed[name] = true
	}
	return &BashTool{allowed: allowed}
}

func (t *BashTool) Name() string { return "bash" }

func (t *BashTool) Description() string {
	return "Run a shell command and return combined stdout and stderr. Use for math, file inspection and scripting."
}

func (t *BashTool) InputSchema() map[string]any { return reflectSchema[bashArgs]() }

func (t *BashTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command, _ := args["command"].(string)
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty command")
	}
	if !t.allowed[fields[0]] {
		return "", fmt.Errorf("command %q is not in the allowlist", fields[0])
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("command failed: %w\n%s", err, string(output))
	}
	return string(output), nil
}
